package delivery

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the HTTP surface: rate-limited command endpoints,
// unthrottled health and metrics.
func NewRouter(h *Handlers, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Group(func(limited chi.Router) {
			limited.Use(httprate.LimitByIP(30, time.Minute))
			limited.Post("/evaluate", h.handleEvaluate)
			limited.Post("/transcribe", h.handleTranscribe)
			limited.Post("/synthesize", h.handleSynthesize)
			limited.Post("/listen", h.handleListen)
			limited.Post("/listen/stop", h.handleListenStop)
			limited.Post("/gesture", h.handleGesture)
		})
		api.Get("/audio/{runID}", h.handleAudio)
	})

	r.Get("/health", h.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
