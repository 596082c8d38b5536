package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mcoot/wordgroups/internal/api/response"
	"github.com/mcoot/wordgroups/internal/dependencies/clock"
	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/services/accounts"
	"github.com/mcoot/wordgroups/internal/services/match"
)

// Gauge reports a live count, such as open connections
type Gauge func() int

// StatusHandler serves read-only views of the game server
type StatusHandler struct {
	accounts    *accounts.Service
	registry    *match.Registry
	clock       clock.Clock
	connections Gauge
	subscribers Gauge
}

// NewStatusHandler creates a new status handler; gauges may be nil
func NewStatusHandler(accounts *accounts.Service, registry *match.Registry, clock clock.Clock, connections, subscribers Gauge) *StatusHandler {
	return &StatusHandler{
		accounts:    accounts,
		registry:    registry,
		clock:       clock,
		connections: connections,
		subscribers: subscribers,
	}
}

// Health handles GET /api/health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := response.HealthResponse{Status: "ok"}
	if h.connections != nil {
		resp.Connections = h.connections()
	}
	if h.subscribers != nil {
		resp.Subscribers = h.subscribers()
	}
	if m, ok := h.registry.Current(); ok {
		id := m.ID()
		resp.CurrentGameID = &id
	}
	response.JSON(w, http.StatusOK, resp)
}

// Leaderboard handles GET /api/leaderboard?top=N
func (h *StatusHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	n := 0
	if raw := r.URL.Query().Get("top"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			WriteError(w, NewInvalidRequestError("top must be a positive integer"))
			return
		}
		n = parsed
	}

	response.JSON(w, http.StatusOK, response.LeaderboardFromStandings(h.accounts.Leaderboard(n)))
}

// CurrentGame handles GET /api/games/current
func (h *StatusHandler) CurrentGame(w http.ResponseWriter, r *http.Request) {
	m, ok := h.registry.Current()
	if !ok {
		WriteError(w, model.ErrNoActiveRound)
		return
	}
	response.JSON(w, http.StatusOK, response.GameFromMatch(m, h.clock.Now()))
}

// Game handles GET /api/games/{id}
func (h *StatusHandler) Game(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.Atoi(raw)
	if err != nil {
		WriteError(w, NewInvalidRequestError("game id must be an integer"))
		return
	}

	m, rec, err := h.registry.Lookup(model.RoundID(id))
	if err != nil {
		WriteError(w, err)
		return
	}
	if m != nil {
		response.JSON(w, http.StatusOK, response.GameFromMatch(m, h.clock.Now()))
		return
	}
	response.JSON(w, http.StatusOK, response.GameFromRecord(rec))
}
