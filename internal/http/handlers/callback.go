package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/drfengyu/dall-e/internal/domain"
)

const maxCallbackBody = 1 << 20

type callbackResult struct {
	URL string `json:"url"`
}

type callbackPayload struct {
	MessageID string           `json:"messageId"`
	Data      []callbackResult `json:"data"`
	Error     string           `json:"error"`
}

type callbackError struct {
	Error string `json:"error"`
}

// parseCallback validates a worker completion body. Only the first result
// is used.
func parseCallback(raw []byte) (domain.Callback, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return domain.Callback{}, fmt.Errorf("%w: body must be a json object", domain.ErrMalformedCallback)
	}
	var p callbackPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Callback{}, fmt.Errorf("%w: %v", domain.ErrMalformedCallback, err)
	}
	cb := domain.Callback{JobID: strings.TrimSpace(p.MessageID)}
	if cb.JobID == "" {
		return domain.Callback{}, fmt.Errorf("%w: messageId is required", domain.ErrMalformedCallback)
	}
	if len(p.Data) > 0 {
		cb.ResultURL = strings.TrimSpace(p.Data[0].URL)
		if cb.ResultURL == "" {
			return domain.Callback{}, fmt.Errorf("%w: data[0].url is empty", domain.ErrMalformedCallback)
		}
		return cb, nil
	}
	if cb.ErrorMessage = strings.TrimSpace(p.Error); cb.ErrorMessage != "" {
		return cb, nil
	}
	return domain.Callback{}, fmt.Errorf("%w: data is empty", domain.ErrMalformedCallback)
}

// Callback receives the worker's completion notification and stores it.
// Repeated deliveries answer 200 like the first one.
func (a *App) Callback(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
	if err != nil {
		a.callbackFailed(w, r, fmt.Errorf("%w: read body: %v", domain.ErrMalformedCallback, err))
		return
	}
	cb, err := parseCallback(raw)
	if err != nil {
		a.callbackFailed(w, r, err)
		return
	}
	if _, err := a.Jobs.OnCallback(r.Context(), cb); err != nil {
		a.callbackFailed(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if cb.Failed() {
		_, _ = io.WriteString(w, cb.ErrorMessage)
		return
	}
	_, _ = io.WriteString(w, cb.ResultURL)
}

func (a *App) callbackFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrMalformedCallback) {
		a.log(r).Warn().Err(err).Msg("callback rejected")
	} else {
		a.log(r).Error().Err(err).Msg("callback not stored")
		a.capture(r, err, "callback")
	}
	a.json(w, http.StatusInternalServerError, callbackError{Error: err.Error()})
}
