// Package dispatch forwards generation prompts to the external worker and
// relays the identifier it issues. Nothing here waits for job completion.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/drfengyu/dall-e/internal/domain"
)

// MaxPromptBytes caps prompts before they are placed in a URL path.
const MaxPromptBytes = 4000

// Request is one submission to the worker.
type Request struct {
	Prompt      string
	CallbackURL string
}

// Dispatcher hands a request to the worker and returns the worker-issued
// job identifier from its immediate acknowledgement.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (string, error)
}

// Ack is the acknowledgement body both transports expect.
type Ack struct {
	MessageID string `json:"messageId"`
}

// NormalizePrompt trims and NFC-normalises a prompt, rejecting empty or
// oversized input with domain.ErrInvalidPrompt.
func NormalizePrompt(prompt string) (string, error) {
	if !utf8.ValidString(prompt) {
		return "", fmt.Errorf("%w: not valid utf-8", domain.ErrInvalidPrompt)
	}
	prompt = norm.NFC.String(strings.TrimSpace(prompt))
	if prompt == "" {
		return "", fmt.Errorf("%w: prompt is required", domain.ErrInvalidPrompt)
	}
	if len(prompt) > MaxPromptBytes {
		return "", fmt.Errorf("%w: prompt exceeds %d bytes", domain.ErrInvalidPrompt, MaxPromptBytes)
	}
	return prompt, nil
}

func upstream(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrUpstreamUnavailable, fmt.Sprintf(format, args...))
}
