package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jason-s-yu/lobbyd/internal/auth"
	"github.com/jason-s-yu/lobbyd/internal/gateway"
	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/jason-s-yu/lobbyd/internal/middleware"
	"github.com/jason-s-yu/lobbyd/internal/session"
	"github.com/sirupsen/logrus"
)

// Server holds what the HTTP and WebSocket handlers need.
type Server struct {
	Registry       *lobby.Registry
	Sessions       *session.Manager
	Gateway        *gateway.Gateway
	Signer         *auth.Signer
	Logger         *logrus.Logger
	AllowedOrigins []string
	// PingInterval defaults to 30s.
	PingInterval time.Duration
}

func (s *Server) pingInterval() time.Duration {
	if s.PingInterval <= 0 {
		return 30 * time.Second
	}
	return s.PingInterval
}

func Routes(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.LogMiddleware(s.Logger))

	r.Get("/healthz", Healthz)
	r.Get("/lobbies", ListLobbiesHandler(s.Registry))
	r.Get("/lobbies/{lobbyID}", GetLobbyHandler(s.Registry))
	r.Get("/ws", LobbyWSHandler(s))
	return r
}
