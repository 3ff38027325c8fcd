package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/repository"
)

const serviceName = "tictactoe-multiplayer"

var routes = []string{
	"GET /",
	"GET /ping",
	"GET /health",
	"GET /api/matches/{gameId}",
	"GET /ws (socket port)",
}

type healthResponse struct {
	Status        string `json:"status"`
	ActiveGames   int    `json:"activeGames"`
	ActivePlayers int    `json:"activePlayers"`
	Timestamp     string `json:"timestamp"`
	Version       string `json:"version"`
}

type infoResponse struct {
	Service       string   `json:"service"`
	Version       string   `json:"version"`
	Endpoints     []string `json:"endpoints"`
	ActiveGames   int      `json:"activeGames"`
	ActivePlayers int      `json:"activePlayers"`
}

type errorResponse struct {
	Error  string   `json:"error"`
	Path   string   `json:"path,omitempty"`
	Routes []string `json:"routes,omitempty"`
}

func (that *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	games, players := that.stats.Stats()

	that.writeJSON(w, http.StatusOK, infoResponse{
		Service:       serviceName,
		Version:       that.version,
		Endpoints:     routes,
		ActiveGames:   games,
		ActivePlayers: players,
	})
}

func (that *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	games, players := that.stats.Stats()

	that.writeJSON(w, http.StatusOK, healthResponse{
		Status:        "OK",
		ActiveGames:   games,
		ActivePlayers: players,
		Timestamp:     that.now().UTC().Format(time.RFC3339),
		Version:       that.version,
	})
}

func (that *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleGetMatch")

	gameID := chi.URLParam(r, "gameId")

	match, err := that.archive.GetByID(r.Context(), gameID)
	if errors.Is(err, repository.ErrMatchNotFound) {
		that.writeJSON(w, http.StatusNotFound, errorResponse{Error: "match not found"})
		return
	}

	if err != nil {
		log.Error("failed to get match", "gameID", gameID, "error", err)
		that.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	that.writeJSON(w, http.StatusOK, match)
}

func (that *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	that.writeJSON(w, http.StatusNotFound, errorResponse{
		Error:  "not found",
		Path:   r.URL.Path,
		Routes: routes,
	})
}

func (that *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.Error("failed to write response", "error", err)
	}
}
