// internal/protocol/messages.go
package protocol

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jason-s-yu/lobbyd/internal/models"
)

// Type is the wire tag carried in every frame's "type" field.
type Type string

// Client -> server.
const (
	TypeLobbyCreate Type = "lobby:create"
	TypeLobbyJoin   Type = "lobby:join"
	TypeLobbyLeave  Type = "lobby:leave"
	TypeLobbyReady  Type = "lobby:ready"
	TypeGameInit    Type = "game:init"
	TypeGameAction  Type = "game:action"
)

// Server -> client.
const (
	TypeSessionReady Type = "session:ready"
	TypeLobbyCreated Type = "lobby:created"
	TypeLobbyUpdated Type = "lobby:updated"
	TypeLobbyInfo    Type = "lobby:info"
	TypeLobbyLeft    Type = "lobby:left"
	TypeLobbyError   Type = "lobby:error"
	TypeAck          Type = "ack"
	TypeGameStart    Type = "game:start"
	TypeGameState    Type = "game:state"
)

// CodeInvalidMessage is reported for frames that fail decoding or shape
// validation. Lobby-level codes live in the lobby package.
const (
	CodeInvalidMessage = "InvalidMessage"
	CodeInternal       = "InternalError"
)

// Command is implemented by every decoded client message. Commands never
// carry the sender's identity; the gateway attaches it from the transport
// binding.
type Command interface {
	Type() Type
}

// CreateLobby asks for a new lobby with the sender as host.
type CreateLobby struct {
	Mode       models.GameMode
	PlayerName string
}

// JoinLobby asks to join (or rejoin) an existing lobby.
type JoinLobby struct {
	LobbyID    uuid.UUID
	PlayerName string
}

type LeaveLobby struct {
	LobbyID uuid.UUID
}

// ToggleReady flips the sender's ready flag; it never sets it.
type ToggleReady struct {
	LobbyID uuid.UUID
}

// InitGame acknowledges game:start and triggers the engine handoff.
type InitGame struct {
	LobbyID uuid.UUID
}

// GameAction is opaque gameplay input forwarded to the engine.
type GameAction struct {
	LobbyID uuid.UUID
	Payload json.RawMessage
}

func (CreateLobby) Type() Type { return TypeLobbyCreate }
func (JoinLobby) Type() Type   { return TypeLobbyJoin }
func (LeaveLobby) Type() Type  { return TypeLobbyLeave }
func (ToggleReady) Type() Type { return TypeLobbyReady }
func (InitGame) Type() Type    { return TypeGameInit }
func (GameAction) Type() Type  { return TypeGameAction }

// Request is one decoded inbound frame. ID is the client's optional
// correlation id; replies to the request echo it in ReplyTo.
type Request struct {
	ID      string
	Command Command
}

// Envelope is the outbound frame shape.
type Envelope struct {
	Type    Type   `json:"type"`
	ReplyTo string `json:"replyTo,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// LobbyPayload wraps a snapshot for lobby:created, lobby:updated and lobby:info.
type LobbyPayload struct {
	Lobby models.LobbySnapshot `json:"lobby"`
}

type LeftPayload struct {
	LobbyID uuid.UUID `json:"lobbyId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type AckPayload struct {
	OK    bool  `json:"ok"`
	Ready *bool `json:"ready,omitempty"`
}

// GameStartPayload is the one-time handoff signal.
type GameStartPayload struct {
	Lobby         models.LobbySnapshot `json:"lobby"`
	PlayerSlotMap map[uuid.UUID]int    `json:"playerSlotMap"`
}

type SessionPayload struct {
	PlayerID uuid.UUID `json:"playerId"`
	Token    string    `json:"token"`
}
