// internal/models/lobby.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// LobbyState is the lifecycle position of a lobby.
type LobbyState string

const (
	StateWaiting   LobbyState = "WAITING"
	StateCountdown LobbyState = "COUNTDOWN"
	StateStarting  LobbyState = "STARTING"
	StateInGame    LobbyState = "IN_GAME"
	StateClosed    LobbyState = "CLOSED"
)

// Terminal reports whether no further transitions are possible.
func (s LobbyState) Terminal() bool {
	return s == StateClosed
}

// Joinable reports whether new members may be admitted in this state.
func (s LobbyState) Joinable() bool {
	return s == StateWaiting || s == StateCountdown
}

// LobbySnapshot is the immutable view of a lobby that is sent to clients.
// Snapshots are produced inside the lobby actor and never shared mutably.
type LobbySnapshot struct {
	ID                 uuid.UUID  `json:"id"`
	Mode               GameMode   `json:"mode"`
	HostID             uuid.UUID  `json:"hostId"`
	State              LobbyState `json:"state"`
	Members            []Member   `json:"members"`
	CountdownRemaining *int       `json:"countdownRemaining,omitempty"`
	Version            int        `json:"version"`
	CreatedAt          time.Time  `json:"createdAt"`
	LastActivityAt     time.Time  `json:"lastActivityAt"`
}

// Member returns the member with the given id, if present.
func (s LobbySnapshot) Member(id uuid.UUID) (Member, bool) {
	for _, m := range s.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

// ConnectedCount is the number of members with a live transport binding.
func (s LobbySnapshot) ConnectedCount() int {
	n := 0
	for _, m := range s.Members {
		if m.Connected {
			n++
		}
	}
	return n
}
