package lobby

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/protocol"
	"github.com/sirupsen/logrus"
)

// SlotAssignment is one entry of a frozen roster.
type SlotAssignment struct {
	Slot        int       `json:"slot"`
	PlayerID    uuid.UUID `json:"playerId"`
	DisplayName string    `json:"displayName"`
}

// Handoff is what the engine receives when a lobby leaves STARTING.
type Handoff struct {
	LobbyID   uuid.UUID         `json:"lobbyId"`
	Mode      models.GameMode   `json:"mode"`
	Slots     map[uuid.UUID]int `json:"playerSlotMap"`
	Players   []SlotAssignment  `json:"players"`
	StartedAt time.Time         `json:"startedAt"`
}

// Engine is the external game engine. Implementations must not block the
// calling actor; queue and return.
type Engine interface {
	Begin(h Handoff) error
	Deliver(lobbyID, playerID uuid.UUID, payload json.RawMessage) error
}

// LogEngine stands in for the engine when no broker is configured. It only
// logs what it would have forwarded.
type LogEngine struct {
	Logger logrus.FieldLogger
}

func (e LogEngine) Begin(h Handoff) error {
	e.Logger.WithFields(logrus.Fields{"lobby": h.LobbyID, "mode": h.Mode, "players": len(h.Players)}).Info("game handoff")
	return nil
}

func (e LogEngine) Deliver(lobbyID, playerID uuid.UUID, payload json.RawMessage) error {
	e.Logger.WithFields(logrus.Fields{"lobby": lobbyID, "player": playerID, "bytes": len(payload)}).Debug("game action")
	return nil
}

// beginHandoff freezes the roster, moves the lobby to STARTING and sends
// game:start to every connected member. Slots follow join order and skip
// members that are not connected.
func (l *Lobby) beginHandoff() {
	l.state = models.StateStarting
	h := &Handoff{
		LobbyID:   l.ID,
		Mode:      l.Mode,
		Slots:     make(map[uuid.UUID]int, len(l.members)),
		StartedAt: l.now(),
	}
	for _, m := range l.members {
		if !m.connected() {
			continue
		}
		slot := len(h.Players)
		m.slot = slot
		h.Slots[m.id] = slot
		h.Players = append(h.Players, SlotAssignment{Slot: slot, PlayerID: m.id, DisplayName: m.name})
	}
	l.handoff = h
	l.touch()

	snap := l.broadcast()
	start := protocol.GameStart(snap, h.Slots)
	for _, m := range l.members {
		if m.connected() {
			l.transport.Send(m.id, start)
		}
	}
}

func (l *Lobby) ackHandoff(playerID uuid.UUID) error {
	if l.state == models.StateInGame {
		if _, m := l.find(playerID); m == nil {
			return ErrNotAMember
		}
		return nil
	}
	if l.state != models.StateStarting {
		return invalidTransition("no game is starting")
	}
	_, m := l.find(playerID)
	if m == nil {
		return ErrNotAMember
	}
	if m.slot < 0 {
		return invalidTransition("player has no slot in this game")
	}

	if err := l.engine.Begin(*l.handoff); err != nil {
		l.log.WithError(err).Error("engine handoff failed")
		return ErrEngineUnavailable
	}
	l.state = models.StateInGame
	l.touch()
	l.broadcast()
	l.log.WithField("player", playerID).Info("game handed off")
	return nil
}
