// internal/protocol/decode.go
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/lobbyd/internal/models"
)

// MaxPlayerNameLength bounds display names in runes.
const MaxPlayerNameLength = 32

// DecodeError reports a frame that was rejected before reaching a lobby.
// RequestID is filled when the frame was at least a readable envelope.
type DecodeError struct {
	RequestID string
	Reason    string
}

func (e *DecodeError) Error() string {
	return "invalid message: " + e.Reason
}

type rawEnvelope struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Decode parses one inbound frame into a typed command. Anything that does
// not match a known tag and shape is rejected with a *DecodeError.
func Decode(frame []byte) (Request, error) {
	var env rawEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Request{}, &DecodeError{Reason: "malformed JSON envelope"}
	}
	req := Request{ID: env.ID}
	if env.Type == "" {
		return req, &DecodeError{RequestID: env.ID, Reason: "missing type"}
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = []byte("{}")
	}
	if data[0] != '{' {
		return req, &DecodeError{RequestID: env.ID, Reason: "data must be an object"}
	}

	cmd, err := decodeCommand(Type(env.Type), data)
	if err != nil {
		return req, &DecodeError{RequestID: env.ID, Reason: err.Error()}
	}
	req.Command = cmd
	return req, nil
}

func decodeCommand(typ Type, data []byte) (Command, error) {
	switch typ {
	case TypeLobbyCreate:
		var p struct {
			Mode       *string `json:"mode"`
			PlayerName *string `json:"playerName"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fieldTypeError(err)
		}
		if p.Mode == nil {
			return nil, fmt.Errorf("missing field mode")
		}
		mode, err := models.ParseGameMode(*p.Mode)
		if err != nil {
			return nil, err
		}
		name, err := playerName(p.PlayerName)
		if err != nil {
			return nil, err
		}
		return CreateLobby{Mode: mode, PlayerName: name}, nil

	case TypeLobbyJoin:
		var p struct {
			LobbyID    *string `json:"lobbyId"`
			PlayerName *string `json:"playerName"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fieldTypeError(err)
		}
		id, err := lobbyID(p.LobbyID)
		if err != nil {
			return nil, err
		}
		name, err := playerName(p.PlayerName)
		if err != nil {
			return nil, err
		}
		return JoinLobby{LobbyID: id, PlayerName: name}, nil

	case TypeLobbyLeave, TypeLobbyReady:
		var p struct {
			LobbyID *string `json:"lobbyId"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fieldTypeError(err)
		}
		id, err := lobbyID(p.LobbyID)
		if err != nil {
			return nil, err
		}
		if typ == TypeLobbyLeave {
			return LeaveLobby{LobbyID: id}, nil
		}
		return ToggleReady{LobbyID: id}, nil

	case TypeGameInit:
		// Clients echo the game:start payload, which names the lobby only
		// inside its snapshot. A top-level lobbyId wins when both are sent.
		var p struct {
			LobbyID *string `json:"lobbyId"`
			Lobby   *struct {
				ID *string `json:"id"`
			} `json:"lobby"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fieldTypeError(err)
		}
		ref := p.LobbyID
		if ref == nil && p.Lobby != nil {
			ref = p.Lobby.ID
		}
		if ref == nil {
			return nil, fmt.Errorf("missing field lobbyId or lobby.id")
		}
		id, err := lobbyID(ref)
		if err != nil {
			return nil, err
		}
		return InitGame{LobbyID: id}, nil

	case TypeGameAction:
		var p struct {
			LobbyID *string         `json:"lobbyId"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fieldTypeError(err)
		}
		id, err := lobbyID(p.LobbyID)
		if err != nil {
			return nil, err
		}
		if len(p.Payload) == 0 {
			return nil, fmt.Errorf("missing field payload")
		}
		return GameAction{LobbyID: id, Payload: p.Payload}, nil

	default:
		return nil, fmt.Errorf("unknown message type %q", typ)
	}
}

func lobbyID(s *string) (uuid.UUID, error) {
	if s == nil {
		return uuid.Nil, fmt.Errorf("missing field lobbyId")
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("lobbyId is not a valid id")
	}
	return id, nil
}

func playerName(s *string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("missing field playerName")
	}
	name := strings.TrimSpace(*s)
	if name == "" {
		return "", fmt.Errorf("playerName must not be empty")
	}
	if utf8.RuneCountInString(name) > MaxPlayerNameLength {
		return "", fmt.Errorf("playerName exceeds %d characters", MaxPlayerNameLength)
	}
	return name, nil
}

func fieldTypeError(err error) error {
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		return fmt.Errorf("field %s has the wrong type", te.Field)
	}
	return fmt.Errorf("malformed data")
}
