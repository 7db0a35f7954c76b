package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"portraitgen/internal/http/handlers"
	"portraitgen/internal/middleware"
)

const staticPrefix = "/static/"

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID(app.Logger),
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger, "/v1/healthz", "/metrics"),
		middleware.CORS(app.Config.CORSAllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", app.Metrics())
	r.Method(http.MethodGet, staticPrefix+"*", app.Static(staticPrefix))

	r.Route("/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute)).
			Post("/portraits/generate", app.PortraitsGenerate)

		r.Route("/results/{result_id}", func(r chi.Router) {
			r.Get("/candidates", app.ResultCandidates)
			r.Delete("/candidates", app.ResultCandidatesDelete)
			r.Get("/profile", app.ResultProfile)
		})
	})

	return r
}
