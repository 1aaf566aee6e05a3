// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/lobbyd/internal/middleware"
	"github.com/jason-s-yu/lobbyd/internal/protocol"
	"github.com/jason-s-yu/lobbyd/internal/session"
	"github.com/sirupsen/logrus"
)

const (
	subprotocol  = "lobby"
	writeTimeout = 5 * time.Second
	pingTimeout  = 15 * time.Second
)

// LobbyWSHandler upgrades a client to the lobby protocol. A valid token
// (query "token" or cookie "lobby_token") restores the player's identity;
// otherwise a fresh player id is minted. Either way the client receives
// session:ready with a token to present on reconnect.
func LobbyWSHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, tokenErr := s.identify(r)

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{subprotocol},
			OriginPatterns: s.AllowedOrigins,
		})
		if err != nil {
			s.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != subprotocol {
			c.Close(BadSubprotocolError, "client must speak the lobby subprotocol")
			return
		}
		if tokenErr != nil {
			s.Logger.WithError(tokenErr).WithField("remote", r.RemoteAddr).Warn("rejected player token")
			c.Close(InvalidAuthTokenError, "invalid player token")
			return
		}

		token, err := s.Signer.IssueToken(playerID)
		if err != nil {
			s.Logger.WithError(err).Error("issue player token")
			c.Close(websocket.StatusInternalError, "could not issue session")
			return
		}

		middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path)
		conn := s.Sessions.Bind(playerID)
		log := s.Logger.WithFields(logrus.Fields{"player": playerID, "conn": conn.ID})

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		s.Sessions.SendConn(conn, protocol.SessionReady(playerID, token))
		s.Gateway.Connect(ctx, conn)

		go writePump(ctx, c, conn, s.pingInterval(), log)
		readErr := readPump(ctx, c, conn, s, log)

		s.Gateway.Disconnect(conn)
		middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, readErr)
	}
}

// identify resolves the player id for a new connection.
func (s *Server) identify(r *http.Request) (uuid.UUID, error) {
	token := requestToken(r)
	if token == "" {
		return uuid.New(), nil
	}
	return s.Signer.PlayerID(token)
}

// readPump feeds inbound frames to the gateway until the socket fails or the
// session is closed. Frames are handled in arrival order.
func readPump(ctx context.Context, c *websocket.Conn, conn *session.Conn, s *Server, log logrus.FieldLogger) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.WithError(err).Debug("read failed")
			return err
		}

		if typ != websocket.MessageText {
			s.Sessions.SendConn(conn, protocol.Error(protocol.CodeInvalidMessage, "only text frames are accepted", ""))
			continue
		}
		s.Gateway.Handle(ctx, conn, msg)
	}
}

// writePump drains the session outbox onto the socket and keeps the
// connection alive with pings. A dead session closes the socket, which in
// turn ends the read pump.
func writePump(ctx context.Context, c *websocket.Conn, conn *session.Conn, interval time.Duration, log logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			c.Close(websocket.StatusPolicyViolation, "session closed")
			return
		case frame := <-conn.Out():
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				log.WithError(err).Warn("write failed")
				conn.Close()
				c.Close(websocket.StatusGoingAway, "write failed")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				log.WithError(err).Warn("ping failed, assuming disconnect")
				conn.Close()
				c.Close(websocket.StatusGoingAway, "ping failed")
				return
			}
		}
	}
}
