package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DoyleJ11/match-setup-backend/internal/ws"
)

func SetupRoutes(d Deps, registry *prometheus.Registry) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	r.Get("/maps", ListMaps(d))
	r.Get("/ws", ws.Handler(d.Hub, d.Store, d.Logger))

	// Caller identified by X-User-ID
	r.Post("/users/steamid", RegisterSteamID(d))
	r.Route("/matches", func(r chi.Router) {
		r.Get("/", ListMatches(d))
		r.Post("/", CreateMatch(d))
		r.Put("/schedule", ScheduleMatch(d))
		r.Get("/{id}", GetMatch(d))
		r.Delete("/{id}", DeleteMatch(d))
	})
	r.Post("/setups", StartSetup(d))
	return r
}
