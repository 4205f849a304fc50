package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/drfengyu/dall-e/internal/dispatch"
	"github.com/drfengyu/dall-e/internal/storage"
)

var (
	ErrQueueFull         = errors.New("worker queue is full")
	ErrInvalidSubmission = errors.New("invalid submission")
)

// Submission is an accepted prompt waiting to be rendered.
type Submission struct {
	Prompt      string
	CallbackURL string
}

type task struct {
	id string
	Submission
}

// Options wires a Worker.
type Options struct {
	Generator   Generator
	Assets      *storage.FileStore
	Notifier    *Notifier
	Logger      zerolog.Logger
	Concurrency int
	QueueSize   int
}

// Worker renders accepted submissions on a fixed pool of goroutines.
type Worker struct {
	gen         Generator
	assets      *storage.FileStore
	notifier    *Notifier
	logger      zerolog.Logger
	concurrency int
	queue       chan task
	newID       func() string
}

func New(opts Options) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	return &Worker{
		gen:         opts.Generator,
		assets:      opts.Assets,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		concurrency: opts.Concurrency,
		queue:       make(chan task, opts.QueueSize),
		newID:       newMessageID,
	}
}

func newMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Accept validates sub, queues it and returns the message id the callback
// will carry. It never blocks.
func (w *Worker) Accept(sub Submission) (string, error) {
	prompt, err := dispatch.NormalizePrompt(sub.Prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	cb, err := url.Parse(strings.TrimSpace(sub.CallbackURL))
	if err != nil || (cb.Scheme != "http" && cb.Scheme != "https") || cb.Host == "" {
		return "", fmt.Errorf("%w: callback url must be absolute http(s)", ErrInvalidSubmission)
	}

	t := task{id: w.newID(), Submission: Submission{Prompt: prompt, CallbackURL: cb.String()}}
	select {
	case w.queue <- t:
	default:
		return "", ErrQueueFull
	}
	w.logger.Info().Str("job_id", t.id).Msg("submission accepted")
	return t.id, nil
}

// Run processes the queue until ctx is done. Queued submissions that were
// not started are dropped on shutdown.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t := <-w.queue:
					w.process(ctx, t)
				}
			}
		}()
	}
	w.logger.Info().Int("concurrency", w.concurrency).Msg("worker started")
	wg.Wait()
	if n := len(w.queue); n > 0 {
		w.logger.Warn().Int("dropped", n).Msg("worker stopped with queued submissions")
	}
	return ctx.Err()
}

func (w *Worker) process(ctx context.Context, t task) {
	log := w.logger.With().Str("job_id", t.id).Logger()
	log.Info().Msg("rendering")

	body := CallbackBody{MessageID: t.id}
	imageURL, err := w.render(ctx, t)
	if err != nil {
		log.Error().Err(err).Msg("render failed")
		body.Error = err.Error()
	} else {
		body.Data = []CallbackResult{{URL: imageURL}}
	}

	if err := w.notifier.Deliver(ctx, t.CallbackURL, body); err != nil {
		log.Error().Err(err).Msg("callback not delivered")
		return
	}
	log.Info().Bool("failed", body.Error != "").Msg("callback delivered")
}

func (w *Worker) render(ctx context.Context, t task) (string, error) {
	img, err := w.gen.Generate(ctx, t.Prompt, t.id)
	if err != nil {
		return "", err
	}
	if w.assets == nil {
		if img.SourceURL == "" {
			return "", errors.New("no asset storage configured")
		}
		return img.SourceURL, nil
	}
	key, err := w.assets.Write(ctx, "generated/"+t.id+extensionFor(img.Format), img.Data)
	if err != nil {
		return "", err
	}
	return w.assets.URL(key), nil
}

func extensionFor(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
