package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrSubmitRejected = errors.New("submission rejected")
	ErrPollRejected   = errors.New("poll rejected")
)

// PollStatus mirrors the status field of the poll endpoint.
type PollStatus string

const (
	PollPending  PollStatus = "pending"
	PollComplete PollStatus = "complete"
	PollFailed   PollStatus = "failed"
)

// PollResult is one answer from the poll endpoint.
type PollResult struct {
	Status       PollStatus
	Known        bool
	URL          string
	ErrorKind    string
	ErrorMessage string
}

// Backend is what a Loop needs from the server.
type Backend interface {
	Submit(ctx context.Context, prompt string) (string, error)
	Poll(ctx context.Context, jobID string) (PollResult, error)
}

// API talks to the image service over HTTP.
type API struct {
	baseURL string
	client  *http.Client
}

func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), client: httpClient}
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type submitReply struct {
	ID string `json:"id"`
}

type pollReply struct {
	Status PollStatus `json:"status"`
	Known  *bool      `json:"known"`
	Data   []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *apiError `json:"error"`
}

// Submit sends prompt and returns the job id.
func (a *API) Submit(ctx context.Context, prompt string) (string, error) {
	endpoint := a.baseURL + "/api/image?prompt=" + url.QueryEscape(prompt)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("submit: read body: %w", err)
	}

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		var e apiError
		if json.Unmarshal(body, &e) == nil && e.Message != "" {
			return "", fmt.Errorf("%w: %d %s", ErrSubmitRejected, resp.StatusCode, e.Message)
		}
		return "", fmt.Errorf("%w: status %d", ErrSubmitRejected, resp.StatusCode)
	}
	var reply submitReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrSubmitRejected, err)
	}
	if reply.ID == "" {
		return "", fmt.Errorf("%w: empty id", ErrSubmitRejected)
	}
	return reply.ID, nil
}

// Poll asks for the state of jobID. Transport failures and 5xx answers are
// returned as errors; callers treat them as still pending.
func (a *API) Poll(ctx context.Context, jobID string) (PollResult, error) {
	endpoint := a.baseURL + "/api/poll?id=" + url.QueryEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PollResult{}, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return PollResult{}, fmt.Errorf("poll: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return PollResult{}, fmt.Errorf("poll: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return PollResult{}, fmt.Errorf("%w: status %d", ErrPollRejected, resp.StatusCode)
	}

	var reply pollReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&reply); err != nil {
		return PollResult{}, fmt.Errorf("poll: decode: %w", err)
	}
	res := PollResult{Status: reply.Status, Known: reply.Known == nil || *reply.Known}
	switch reply.Status {
	case PollComplete:
		if len(reply.Data) == 0 || reply.Data[0].URL == "" {
			return PollResult{}, fmt.Errorf("poll: complete without url")
		}
		res.URL = reply.Data[0].URL
	case PollFailed:
		if reply.Error != nil {
			res.ErrorKind = reply.Error.Type
			res.ErrorMessage = reply.Error.Message
		}
	default:
		res.Status = PollPending
	}
	return res, nil
}

var _ Backend = (*API)(nil)
