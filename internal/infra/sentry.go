package infra

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// ErrorReporter forwards unexpected failures to an external tracker.
type ErrorReporter interface {
	Capture(err error, tags map[string]string)
	Flush(timeout time.Duration)
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) Capture(error, map[string]string) {}
func (NopReporter) Flush(time.Duration)              {}

// SentryReporter reports through a dedicated sentry hub.
type SentryReporter struct {
	hub *sentry.Hub
}

// NewErrorReporter returns a Sentry-backed reporter, or NopReporter when dsn is empty.
func NewErrorReporter(dsn, appEnv, release string) (ErrorReporter, error) {
	if dsn == "" {
		return NopReporter{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      appEnv,
		Release:          release,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry: init client: %w", err)
	}
	hub := sentry.NewHub(client, sentry.NewScope())
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("module", "dall-e")
	})
	return &SentryReporter{hub: hub}, nil
}

func (r *SentryReporter) Capture(err error, tags map[string]string) {
	if r == nil || r.hub == nil || err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
}

func (r *SentryReporter) Flush(timeout time.Duration) {
	if r == nil || r.hub == nil {
		return
	}
	r.hub.Flush(timeout)
}
