package lobby

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/protocol"
)

// msg is anything the lobby actor accepts on its inbox.
type msg interface{ isLobbyMsg() }

type joinMsg struct {
	player  Player
	replyTo string
	reply   chan error
}

type reconnectMsg struct {
	player Player
	reply  chan error
}

type leaveMsg struct {
	playerID uuid.UUID
	replyTo  string
	reply    chan error
}

type readyMsg struct {
	playerID uuid.UUID
	reply    chan readyResult
}

type readyResult struct {
	ready bool
	err   error
}

type initMsg struct {
	playerID uuid.UUID
	reply    chan error
}

type actionMsg struct {
	playerID uuid.UUID
	payload  json.RawMessage
	reply    chan error
}

type snapshotMsg struct {
	reply chan models.LobbySnapshot
}

type disconnectMsg struct {
	playerID uuid.UUID
	connID   uuid.UUID
}

type relayMsg struct {
	typ  protocol.Type
	data json.RawMessage
}

type closeMsg struct {
	reason string
	reply  chan struct{}
}

// idleCloseMsg closes the lobby only if, when the actor reads it, no member
// is connected and nothing happened after cutoff.
type idleCloseMsg struct {
	cutoff time.Time
	reply  chan bool
}

// endGameMsg is the engine reporting that the game for this lobby finished.
type endGameMsg struct{}

// countdownTickMsg and graceExpiredMsg are posted by timers. The epoch lets
// the actor discard fires from timers it has already cancelled.
type countdownTickMsg struct {
	epoch uint64
}

type graceExpiredMsg struct {
	playerID uuid.UUID
	epoch    uint64
}

func (joinMsg) isLobbyMsg()          {}
func (reconnectMsg) isLobbyMsg()     {}
func (leaveMsg) isLobbyMsg()         {}
func (readyMsg) isLobbyMsg()         {}
func (initMsg) isLobbyMsg()          {}
func (actionMsg) isLobbyMsg()        {}
func (snapshotMsg) isLobbyMsg()      {}
func (disconnectMsg) isLobbyMsg()    {}
func (relayMsg) isLobbyMsg()         {}
func (closeMsg) isLobbyMsg()         {}
func (idleCloseMsg) isLobbyMsg()     {}
func (endGameMsg) isLobbyMsg()       {}
func (countdownTickMsg) isLobbyMsg() {}
func (graceExpiredMsg) isLobbyMsg()  {}
