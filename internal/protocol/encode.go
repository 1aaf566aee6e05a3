package protocol

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jason-s-yu/lobbyd/internal/models"
)

func SessionReady(playerID uuid.UUID, token string) Envelope {
	return Envelope{Type: TypeSessionReady, Data: SessionPayload{PlayerID: playerID, Token: token}}
}

// LobbyCreated is the creator's point-to-point reply.
func LobbyCreated(s models.LobbySnapshot, replyTo string) Envelope {
	return Envelope{Type: TypeLobbyCreated, ReplyTo: replyTo, Data: LobbyPayload{Lobby: s}}
}

// LobbyUpdated is the lobby-wide broadcast emitted after every applied mutation.
func LobbyUpdated(s models.LobbySnapshot) Envelope {
	return Envelope{Type: TypeLobbyUpdated, Data: LobbyPayload{Lobby: s}}
}

// LobbyInfo is the point-to-point snapshot sent on join and reconnect.
func LobbyInfo(s models.LobbySnapshot, replyTo string) Envelope {
	return Envelope{Type: TypeLobbyInfo, ReplyTo: replyTo, Data: LobbyPayload{Lobby: s}}
}

func LobbyLeft(lobbyID uuid.UUID, replyTo string) Envelope {
	return Envelope{Type: TypeLobbyLeft, ReplyTo: replyTo, Data: LeftPayload{LobbyID: lobbyID}}
}

func Error(code, message, replyTo string) Envelope {
	return Envelope{Type: TypeLobbyError, ReplyTo: replyTo, Data: ErrorPayload{Code: code, Message: message}}
}

func Ack(replyTo string, ready *bool) Envelope {
	return Envelope{Type: TypeAck, ReplyTo: replyTo, Data: AckPayload{OK: true, Ready: ready}}
}

func GameStart(s models.LobbySnapshot, slots map[uuid.UUID]int) Envelope {
	return Envelope{Type: TypeGameStart, Data: GameStartPayload{Lobby: s, PlayerSlotMap: slots}}
}

// Relay passes engine output through untouched under the engine's own type.
func Relay(typ Type, data json.RawMessage) Envelope {
	return Envelope{Type: typ, Data: data}
}

// Marshal encodes an envelope for the wire.
func Marshal(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}
