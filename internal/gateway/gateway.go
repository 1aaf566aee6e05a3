// internal/gateway/gateway.go
package gateway

import (
	"context"
	"errors"

	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/jason-s-yu/lobbyd/internal/protocol"
	"github.com/jason-s-yu/lobbyd/internal/session"
	"github.com/sirupsen/logrus"
)

// Gateway turns decoded client frames into lobby commands. The sender is
// always the player bound to the connection; nothing in a payload can claim
// another identity.
type Gateway struct {
	registry *lobby.Registry
	sessions *session.Manager
	log      logrus.FieldLogger
}

func New(registry *lobby.Registry, sessions *session.Manager, logger logrus.FieldLogger) *Gateway {
	return &Gateway{registry: registry, sessions: sessions, log: logger}
}

// Connect resumes lobby membership for a player that came back on a new
// connection.
func (g *Gateway) Connect(ctx context.Context, c *session.Conn) {
	lobbyID, ok := g.sessions.LobbyOf(c.PlayerID)
	if !ok {
		return
	}
	l, err := g.registry.Get(lobbyID)
	if err != nil {
		g.sessions.Release(c.PlayerID, lobbyID)
		return
	}
	if err := l.Reconnect(ctx, lobby.Player{ID: c.PlayerID, ConnID: c.ID}); err != nil {
		g.log.WithError(err).WithFields(logrus.Fields{"player": c.PlayerID, "lobby": lobbyID}).Debug("reconnect rejected")
	}
}

// Disconnect reports a closed connection to the player's lobby. Connections
// that were already superseded are ignored.
func (g *Gateway) Disconnect(c *session.Conn) {
	if !g.sessions.Unbind(c) {
		return
	}
	lobbyID, ok := g.sessions.LobbyOf(c.PlayerID)
	if !ok {
		return
	}
	if l, err := g.registry.Get(lobbyID); err == nil {
		l.Disconnect(c.PlayerID, c.ID)
	}
}

// Handle processes one inbound frame from c.
func (g *Gateway) Handle(ctx context.Context, c *session.Conn, frame []byte) {
	req, err := protocol.Decode(frame)
	if err == nil {
		err = g.dispatch(ctx, c, req)
	}
	if err != nil {
		g.reply(c, req.ID, err)
	}
}

func (g *Gateway) dispatch(ctx context.Context, c *session.Conn, req protocol.Request) error {
	player := c.PlayerID
	switch cmd := req.Command.(type) {
	case protocol.CreateLobby:
		release, ok := g.sessions.Reserve(player)
		if !ok {
			return lobby.ErrAlreadyMember
		}
		defer release()
		_, err := g.registry.Create(cmd.Mode, lobby.Player{ID: player, Name: cmd.PlayerName, ConnID: c.ID}, req.ID)
		return err

	case protocol.JoinLobby:
		current, member := g.sessions.LobbyOf(player)
		if member && current != cmd.LobbyID {
			return lobby.ErrAlreadyMember
		}
		l, err := g.registry.Get(cmd.LobbyID)
		if err != nil {
			return err
		}
		p := lobby.Player{ID: player, Name: cmd.PlayerName, ConnID: c.ID}
		if member {
			// Rejoining the same lobby is a reconnect, decided by the actor.
			return l.Join(ctx, p, req.ID)
		}
		release, ok := g.sessions.Reserve(player)
		if !ok {
			return lobby.ErrAlreadyMember
		}
		defer release()
		return l.Join(ctx, p, req.ID)

	case protocol.LeaveLobby:
		l, err := g.registry.Get(cmd.LobbyID)
		if err != nil {
			return err
		}
		return l.Leave(ctx, player, req.ID)

	case protocol.ToggleReady:
		l, err := g.registry.Get(cmd.LobbyID)
		if err != nil {
			return err
		}
		ready, err := l.ToggleReady(ctx, player)
		if err != nil {
			return err
		}
		if req.ID != "" {
			g.sessions.SendConn(c, protocol.Ack(req.ID, &ready))
		}
		return nil

	case protocol.InitGame:
		l, err := g.registry.Get(cmd.LobbyID)
		if err != nil {
			return err
		}
		return l.AckHandoff(ctx, player)

	case protocol.GameAction:
		l, err := g.registry.Get(cmd.LobbyID)
		if err != nil {
			return err
		}
		return l.SubmitGameAction(ctx, player, cmd.Payload)
	}
	return &protocol.DecodeError{RequestID: req.ID, Reason: "unsupported command"}
}

// reply reports err to the originating connection only.
func (g *Gateway) reply(c *session.Conn, replyTo string, err error) {
	code, message := classify(err)
	fields := logrus.Fields{"player": c.PlayerID, "code": code}
	if code == protocol.CodeInternal {
		g.log.WithFields(fields).WithError(err).Error("command failed")
	} else {
		g.log.WithFields(fields).Debug(message)
	}
	g.sessions.SendConn(c, protocol.Error(code, message, replyTo))
}

func classify(err error) (code, message string) {
	var le *lobby.Error
	if errors.As(err, &le) {
		return le.Code, le.Message
	}
	var de *protocol.DecodeError
	if errors.As(err, &de) {
		return protocol.CodeInvalidMessage, de.Reason
	}
	return protocol.CodeInternal, "internal error"
}
