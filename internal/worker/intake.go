package worker

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/drfengyu/dall-e/internal/dispatch"
	"github.com/drfengyu/dall-e/internal/middleware"
	"github.com/drfengyu/dall-e/internal/storage"
)

// CallbackHeader carries the callback URL on HTTP submissions.
const CallbackHeader = "Upstash-Callback"

type intakeError struct {
	Error string `json:"error"`
}

// HTTPIntake exposes the worker the way the HTTP dispatcher expects:
// GET /{prompt} or POST / {"prompt"} with the callback URL in a header.
type HTTPIntake struct {
	worker *Worker
	token  string
	logger zerolog.Logger
}

func NewHTTPIntake(w *Worker, token string, logger zerolog.Logger) *HTTPIntake {
	return &HTTPIntake{worker: w, token: strings.TrimSpace(token), logger: logger}
}

// Router mounts the intake and, when assets is set, the rendered images
// under /assets.
func (h *HTTPIntake) Router(assets *storage.FileStore) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.Recoverer, middleware.Logger(h.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if assets != nil {
		r.Handle("/assets/*", http.StripPrefix("/assets", assets.Handler()))
	}
	r.Post("/", h.submitJSON)
	r.Get("/*", h.submitPath)
	return r
}

func (h *HTTPIntake) authorized(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

func (h *HTTPIntake) submitPath(w http.ResponseWriter, r *http.Request) {
	prompt, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, intakeError{Error: "invalid prompt encoding"})
		return
	}
	h.accept(w, r, prompt)
}

func (h *HTTPIntake) submitJSON(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, intakeError{Error: "invalid payload"})
		return
	}
	h.accept(w, r, body.Prompt)
}

func (h *HTTPIntake) accept(w http.ResponseWriter, r *http.Request, prompt string) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, intakeError{Error: "unauthorized"})
		return
	}
	id, err := h.worker.Accept(Submission{Prompt: prompt, CallbackURL: r.Header.Get(CallbackHeader)})
	if err != nil {
		writeJSON(w, statusFor(err), intakeError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, dispatch.Ack{MessageID: id})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidSubmission):
		return http.StatusBadRequest
	case errors.Is(err, ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Responder is the subset of a NATS message the intake replies through.
type Responder interface {
	RespondMsg(*nats.Msg) error
}

// NATSIntake answers dispatch requests published on a subject.
type NATSIntake struct {
	worker *Worker
	token  string
	logger zerolog.Logger
}

func NewNATSIntake(w *Worker, token string, logger zerolog.Logger) *NATSIntake {
	return &NATSIntake{worker: w, token: strings.TrimSpace(token), logger: logger}
}

// Subscribe joins queue group "workers" on subject so several workers share
// the load.
func (n *NATSIntake) Subscribe(conn *nats.Conn, subject string) (*nats.Subscription, error) {
	return conn.QueueSubscribe(subject, "workers", func(msg *nats.Msg) {
		if err := n.Handle(msg.Data, msg); err != nil {
			n.logger.Error().Err(err).Msg("nats reply failed")
		}
	})
}

// Handle decodes one submission and replies with an ack or a Status header
// describing the rejection.
func (n *NATSIntake) Handle(data []byte, reply Responder) error {
	var sub dispatch.NATSSubmission
	if err := json.Unmarshal(data, &sub); err != nil {
		return respond(reply, http.StatusBadRequest, intakeError{Error: "invalid payload"})
	}
	if n.token != "" && subtle.ConstantTimeCompare([]byte(sub.Token), []byte(n.token)) != 1 {
		return respond(reply, http.StatusUnauthorized, intakeError{Error: "unauthorized"})
	}
	id, err := n.worker.Accept(Submission{Prompt: sub.Prompt, CallbackURL: sub.CallbackURL})
	if err != nil {
		return respond(reply, statusFor(err), intakeError{Error: err.Error()})
	}
	return respond(reply, http.StatusOK, dispatch.Ack{MessageID: id})
}

func respond(reply Responder, status int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := nats.NewMsg("")
	msg.Data = data
	if status != http.StatusOK {
		msg.Header.Set("Status", strconv.Itoa(status))
		msg.Header.Set("Description", http.StatusText(status))
	}
	return reply.RespondMsg(msg)
}
