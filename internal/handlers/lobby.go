// internal/handlers/lobby.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/jason-s-yu/lobbyd/internal/models"
)

type lobbyList struct {
	Lobbies []models.LobbySnapshot `json:"lobbies"`
}

// ListLobbiesHandler returns a snapshot of every live lobby.
func ListLobbiesHandler(registry *lobby.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, lobbyList{Lobbies: registry.List(r.Context())})
	}
}

// GetLobbyHandler returns one lobby by id.
func GetLobbyHandler(registry *lobby.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "lobbyID"))
		if err != nil {
			http.Error(w, "invalid lobby id", http.StatusBadRequest)
			return
		}
		l, err := registry.Get(id)
		if err != nil {
			http.Error(w, "lobby not found", http.StatusNotFound)
			return
		}
		snap, err := l.Snapshot(r.Context())
		if errors.Is(err, lobby.ErrInvalidTransition) {
			http.Error(w, "lobby not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
