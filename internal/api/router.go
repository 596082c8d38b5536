package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/wordgroups/internal/api/apierr"
	"github.com/mcoot/wordgroups/internal/api/events"
	"github.com/mcoot/wordgroups/internal/api/handler"
	"github.com/mcoot/wordgroups/internal/api/middleware"
	"github.com/mcoot/wordgroups/internal/dependencies/clock"
	"github.com/mcoot/wordgroups/internal/services/accounts"
	"github.com/mcoot/wordgroups/internal/services/match"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	Clock       clock.Clock
	Accounts    *accounts.Service
	Registry    *match.Registry
	Connections handler.Gauge // Optional
	Subscribers handler.Gauge // Optional
	Events      *events.Hub   // Optional, enables /api/events
}

// NewRouter creates the read-only status API
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	statusHandler := handler.NewStatusHandler(cfg.Accounts, cfg.Registry, cfg.Clock, cfg.Connections, cfg.Subscribers)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Recovery(cfg.Logger))
	api.Use(middleware.Logging(cfg.Logger))

	api.HandleFunc("/health", statusHandler.Health).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard", statusHandler.Leaderboard).Methods(http.MethodGet)
	api.HandleFunc("/games/current", statusHandler.CurrentGame).Methods(http.MethodGet)
	api.HandleFunc("/games/{id}", statusHandler.Game).Methods(http.MethodGet)
	if cfg.Events != nil {
		api.HandleFunc("/events", events.Handler(cfg.Events)).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierr.WriteError(w, apierr.NewNotFoundError())
	})

	return r
}
