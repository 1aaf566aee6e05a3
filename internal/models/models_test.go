package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGameMode(t *testing.T) {
	m, err := ParseGameMode("squad")
	require.NoError(t, err)
	assert.Equal(t, ModeSquad, m)
	assert.Equal(t, ModeLimits{MinPlayers: 2, MaxPlayers: 4}, m.Limits())

	_, err = ParseGameMode("battle-royale")
	assert.Error(t, err)
	assert.False(t, GameMode("battle-royale").Valid())
	assert.Zero(t, GameMode("battle-royale").Limits())
}

func TestLobbyState_Predicates(t *testing.T) {
	assert.True(t, StateWaiting.Joinable())
	assert.True(t, StateCountdown.Joinable())
	assert.False(t, StateStarting.Joinable())
	assert.False(t, StateInGame.Joinable())
	assert.True(t, StateClosed.Terminal())
	assert.False(t, StateInGame.Terminal())
}

func TestLobbySnapshot_Member(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	s := LobbySnapshot{Members: []Member{
		{ID: a, Connected: true},
		{ID: b},
	}}

	got, ok := s.Member(b)
	require.True(t, ok)
	assert.Equal(t, b, got.ID)
	_, ok = s.Member(uuid.New())
	assert.False(t, ok)
	assert.Equal(t, 1, s.ConnectedCount())
}
