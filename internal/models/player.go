package models

import "github.com/google/uuid"

// Member is the client-facing view of a player inside a lobby.
type Member struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"displayName"`
	Connected   bool      `json:"connected"`
	Ready       bool      `json:"ready"`
	// Slot is set once the lobby enters STARTING and is immutable afterwards.
	Slot *int `json:"slot,omitempty"`
}
