// internal/models/mode.go
package models

import "fmt"

// GameMode names one entry of the fixed mode catalogue. A lobby's mode is
// chosen at creation and never changes.
type GameMode string

const (
	ModeSolo  GameMode = "solo"
	ModeDuo   GameMode = "duo"
	ModeTrio  GameMode = "trio"
	ModeSquad GameMode = "squad"
	ModeParty GameMode = "party"
)

// ModeLimits bounds how many members a lobby of a given mode may hold.
// MinPlayers is the floor required to start a countdown.
type ModeLimits struct {
	MinPlayers int `json:"minPlayers"`
	MaxPlayers int `json:"maxPlayers"`
}

var modeCatalogue = map[GameMode]ModeLimits{
	ModeSolo:  {MinPlayers: 1, MaxPlayers: 1},
	ModeDuo:   {MinPlayers: 2, MaxPlayers: 2},
	ModeTrio:  {MinPlayers: 3, MaxPlayers: 3},
	ModeSquad: {MinPlayers: 2, MaxPlayers: 4},
	ModeParty: {MinPlayers: 3, MaxPlayers: 8},
}

// ParseGameMode validates a client-supplied mode string.
func ParseGameMode(s string) (GameMode, error) {
	m := GameMode(s)
	if _, ok := modeCatalogue[m]; !ok {
		return "", fmt.Errorf("unknown game mode %q", s)
	}
	return m, nil
}

// Limits returns the member bounds for m. Unknown modes report zero limits.
func (m GameMode) Limits() ModeLimits {
	return modeCatalogue[m]
}

// Valid reports whether m is part of the catalogue.
func (m GameMode) Valid() bool {
	_, ok := modeCatalogue[m]
	return ok
}
