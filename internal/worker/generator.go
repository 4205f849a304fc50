// Package worker is a reference image worker. It accepts prompts over HTTP
// or NATS, acknowledges them with a message id, renders the image in the
// background and reports the outcome to the submitter's callback URL.
package worker

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// Image is a rendered result before it is persisted.
type Image struct {
	Data      []byte
	Format    string
	Width     int
	Height    int
	SourceURL string
}

// Generator renders one image for prompt. jobID seeds deterministic output.
type Generator interface {
	Generate(ctx context.Context, prompt, jobID string) (*Image, error)
}

// FallbackGenerator tries Primary and switches to Fallback when Primary has
// no credentials or fails transiently.
type FallbackGenerator struct {
	Primary  Generator
	Fallback Generator
	Logger   zerolog.Logger
}

func (g *FallbackGenerator) Generate(ctx context.Context, prompt, jobID string) (*Image, error) {
	if g.Primary == nil {
		return g.Fallback.Generate(ctx, prompt, jobID)
	}
	img, err := g.Primary.Generate(ctx, prompt, jobID)
	if err == nil || g.Fallback == nil || !shouldFallback(err) {
		return img, err
	}
	g.Logger.Warn().Err(err).Str("job_id", jobID).Msg("primary generator failed, using synthetic image")
	return g.Fallback.Generate(ctx, prompt, jobID)
}

func shouldFallback(err error) bool {
	if errors.Is(err, ErrMissingAPIKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"unauthorized", "forbidden", "internalerror", "internal error", "service unavailable", "timeout"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
