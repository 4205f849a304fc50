package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/drfengyu/dall-e/internal/http/handlers"
	"github.com/drfengyu/dall-e/internal/middleware"
)

// Options carries the cross-cutting collaborators of the router.
type Options struct {
	Logger         zerolog.Logger
	AllowedOrigins []string
	CountryLookup  middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Country(opts.CountryLookup),
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Route("/api", func(r chi.Router) {
		r.Get("/image", app.ImageSubmit)
		r.Post("/image", app.ImageSubmit)
		r.Post("/callback", app.Callback)
		r.Get("/poll", app.Poll)
	})

	return r
}
