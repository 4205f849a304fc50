package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/drfengyu/dall-e/internal/domain"
)

const maxSubmitBody = 64 << 10

type submitRequest struct {
	Prompt string `json:"prompt"`
}

type submitResponse struct {
	ID string `json:"id"`
}

// ImageSubmit accepts a prompt via ?prompt= or a JSON body and replies 202
// with the worker-issued job id. It never waits for the image.
func (a *App) ImageSubmit(w http.ResponseWriter, r *http.Request) {
	prompt := r.URL.Query().Get("prompt")
	if r.Method == http.MethodPost && prompt == "" {
		var req submitRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody)).Decode(&req); err != nil {
			a.error(w, http.StatusBadRequest, domain.KindBadRequest, "invalid payload")
			return
		}
		prompt = req.Prompt
	}

	jobID, err := a.Jobs.Submit(r.Context(), prompt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPrompt) {
			a.error(w, http.StatusBadRequest, domain.KindBadRequest, err.Error())
			return
		}
		a.log(r).Error().Err(err).Msg("submit failed")
		a.capture(r, err, "submit")
		a.error(w, http.StatusInternalServerError, domain.KindUpstreamUnavailable, err.Error())
		return
	}
	a.json(w, http.StatusAccepted, submitResponse{ID: jobID})
}
