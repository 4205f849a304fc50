package handlers

import (
	"net/http"
	"strings"

	"github.com/drfengyu/dall-e/internal/domain"
)

type pollResponse struct {
	Status domain.JobStatus `json:"status"`
	Known  *bool            `json:"known,omitempty"`
	Data   []callbackResult `json:"data,omitempty"`
	Error  *errorBody       `json:"error,omitempty"`
}

// Poll reports job state. complete and failed answer 200; pending answers
// 202, including for identifiers the store has never seen.
func (a *App) Poll(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.URL.Query().Get("id"))
	if jobID == "" {
		a.error(w, http.StatusBadRequest, domain.KindBadRequest, "id required")
		return
	}

	res, err := a.Jobs.Poll(r.Context(), jobID)
	if err != nil {
		a.log(r).Error().Err(err).Str("job_id", jobID).Msg("poll failed")
		a.error(w, http.StatusServiceUnavailable, domain.KindStoreUnavailable, "status store unavailable")
		return
	}

	switch res.Status {
	case domain.JobStatusComplete:
		a.json(w, http.StatusOK, pollResponse{Status: res.Status, Data: []callbackResult{{URL: res.ResultURL}}})
	case domain.JobStatusFailed:
		a.json(w, http.StatusOK, pollResponse{
			Status: res.Status,
			Error:  &errorBody{Message: res.ErrorMessage, Type: res.ErrorKind},
		})
	default:
		known := res.Known
		a.json(w, http.StatusAccepted, pollResponse{Status: domain.JobStatusPending, Known: &known})
	}
}
