package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	s, err := NewSigner(0)
	require.NoError(t, err)

	player := uuid.New()
	token, err := s.IssueToken(player)
	require.NoError(t, err)

	got, err := s.PlayerID(token)
	require.NoError(t, err)
	assert.Equal(t, player, got)
}

func TestTokenFromOtherSignerRejected(t *testing.T) {
	a, err := NewSigner(0)
	require.NoError(t, err)
	b, err := NewSigner(0)
	require.NoError(t, err)

	token, err := a.IssueToken(uuid.New())
	require.NoError(t, err)

	_, err = b.PlayerID(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenRejected(t *testing.T) {
	s, err := NewSigner(time.Minute)
	require.NoError(t, err)

	issued := time.Now()
	s.now = func() time.Time { return issued }
	token, err := s.IssueToken(uuid.New())
	require.NoError(t, err)

	s.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = s.PlayerID(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGarbageTokenRejected(t *testing.T) {
	s, err := NewSigner(0)
	require.NoError(t, err)

	_, err = s.PlayerID("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSeededSignersAgree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed")
	require.NoError(t, os.WriteFile(path, make([]byte, 32), 0o600))

	a, err := NewSignerFromSeed(path, 0)
	require.NoError(t, err)
	b, err := NewSignerFromSeed(path, 0)
	require.NoError(t, err)

	player := uuid.New()
	token, err := a.IssueToken(player)
	require.NoError(t, err)
	got, err := b.PlayerID(token)
	require.NoError(t, err)
	assert.Equal(t, player, got)
}
