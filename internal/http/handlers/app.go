package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/drfengyu/dall-e/internal/domain"
	"github.com/drfengyu/dall-e/internal/infra"
	"github.com/drfengyu/dall-e/internal/middleware"
)

// JobService is the core the HTTP layer fronts.
type JobService interface {
	Submit(ctx context.Context, prompt string) (string, error)
	OnCallback(ctx context.Context, cb domain.Callback) (domain.WriteOutcome, error)
	Poll(ctx context.Context, jobID string) (domain.PollResult, error)
}

type App struct {
	Jobs     JobService
	Logger   zerolog.Logger
	Reporter infra.ErrorReporter
}

func NewApp(jobs JobService, logger zerolog.Logger, reporter infra.ErrorReporter) *App {
	if reporter == nil {
		reporter = infra.NopReporter{}
	}
	return &App{Jobs: jobs, Logger: logger, Reporter: reporter}
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, errorBody{Message: message, Type: kind})
}

// log returns the request scoped logger set by middleware.Logger, or the
// application logger.
func (a *App) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &a.Logger
}

func (a *App) capture(r *http.Request, err error, op string) {
	if a.Reporter == nil {
		return
	}
	a.Reporter.Capture(err, map[string]string{
		"op":         op,
		"request_id": middleware.RequestIDFromContext(r.Context()),
	})
}
