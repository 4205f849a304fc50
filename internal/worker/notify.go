package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// CallbackResult is one entry of a successful callback.
type CallbackResult struct {
	URL string `json:"url"`
}

// CallbackBody is the payload posted to the submitter's callback URL.
type CallbackBody struct {
	MessageID string           `json:"messageId"`
	Data      []CallbackResult `json:"data,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// NotifierOptions configures callback delivery.
type NotifierOptions struct {
	HTTPClient      *http.Client
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          zerolog.Logger
}

// Notifier delivers callbacks with retries. Any non-2xx answer is retried
// because receivers may be briefly unable to store the result.
type Notifier struct {
	client *http.Client
	opts   NotifierOptions
	logger zerolog.Logger
}

func NewNotifier(opts NotifierOptions) *Notifier {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 5
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = time.Second
	}
	if opts.MaxInterval < opts.InitialInterval {
		opts.MaxInterval = 30 * time.Second
	}
	return &Notifier{client: client, opts: opts, logger: opts.Logger}
}

func (n *Notifier) schedule(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.opts.InitialInterval
	b.MaxInterval = n.opts.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	if n.opts.Attempts == 1 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(n.opts.Attempts-1)), ctx)
}

// Deliver posts body to callbackURL until it is acknowledged with a 2xx or
// the attempts run out.
func (n *Notifier) Deliver(ctx context.Context, callbackURL string, body CallbackBody) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("post callback: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("callback answered %d", resp.StatusCode)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		n.logger.Warn().Err(err).
			Str("job_id", body.MessageID).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("callback delivery failed")
	}
	if err := backoff.RetryNotify(op, n.schedule(ctx), notify); err != nil {
		return fmt.Errorf("deliver callback for %s after %d attempts: %w", body.MessageID, attempt, err)
	}
	return nil
}
