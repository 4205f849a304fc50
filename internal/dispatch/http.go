package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// HTTPOptions configures the queue-backed HTTP worker client.
type HTTPOptions struct {
	// BaseURL is the worker (or publishing queue) endpoint. GET requests
	// append the escaped prompt as the last path segment.
	BaseURL    string
	Token      string
	Method     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// HTTPDispatcher submits prompts over HTTP and reads the job id from the
// acknowledgement. The callback address travels in the Upstash-Callback
// header.
type HTTPDispatcher struct {
	httpClient *http.Client
	baseURL    string
	token      string
	method     string
}

func NewHTTPDispatcher(opts HTTPOptions) *HTTPDispatcher {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method != http.MethodPost {
		method = http.MethodGet
	}
	return &HTTPDispatcher{
		httpClient: client,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      strings.TrimSpace(opts.Token),
		method:     method,
	}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, req Request) (string, error) {
	prompt, err := NormalizePrompt(req.Prompt)
	if err != nil {
		return "", err
	}
	if d.baseURL == "" {
		return "", upstream("worker url not configured")
	}

	var httpReq *http.Request
	if d.method == http.MethodPost {
		body, err := json.Marshal(map[string]string{"prompt": prompt})
		if err != nil {
			return "", err
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL, bytes.NewReader(body))
		if err != nil {
			return "", upstream("build request: %v", err)
		}
	} else {
		endpoint := d.baseURL + "/" + url.PathEscape(prompt)
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return "", upstream("build request: %v", err)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.token)
	}
	if req.CallbackURL != "" {
		httpReq.Header.Set("Upstash-Callback", req.CallbackURL)
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return "", upstream("request worker: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", upstream("read ack: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", upstream("worker http %d: %s", resp.StatusCode, snippet(raw))
	}
	var out Ack
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", upstream("decode ack: %v", err)
	}
	if strings.TrimSpace(out.MessageID) == "" {
		return "", upstream("ack carries no messageId")
	}
	return out.MessageID, nil
}

const maxSnippetRunes = 200

// snippet shortens a response body for error text without splitting runes.
func snippet(b []byte) string {
	s := strings.ToValidUTF8(strings.TrimSpace(string(b)), "\uFFFD")
	if utf8.RuneCountInString(s) <= maxSnippetRunes {
		return s
	}
	return string([]rune(s)[:maxSnippetRunes]) + "..."
}

var _ Dispatcher = (*HTTPDispatcher)(nil)
