package session

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/lobbyd/internal/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(outbox int) *Manager {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewManager(outbox, logger)
}

func TestSend_QueuesEncodedFrame(t *testing.T) {
	m := newTestManager(4)
	player := uuid.New()
	c := m.Bind(player)

	m.Send(player, protocol.Ack("r1", nil))

	select {
	case frame := <-c.Out():
		var got map[string]any
		require.NoError(t, json.Unmarshal(frame, &got))
		assert.Equal(t, "ack", got["type"])
		assert.Equal(t, "r1", got["replyTo"])
	default:
		t.Fatal("expected a queued frame")
	}
}

func TestSend_UnknownPlayerIsSkipped(t *testing.T) {
	m := newTestManager(4)
	assert.NotPanics(t, func() {
		m.Send(uuid.New(), protocol.Ack("", nil))
	})
}

func TestSend_FullOutboxClosesConnection(t *testing.T) {
	m := newTestManager(2)
	player := uuid.New()
	c := m.Bind(player)

	for i := 0; i < 3; i++ {
		m.Send(player, protocol.Ack("", nil))
	}

	select {
	case <-c.Done():
	default:
		t.Fatal("a full outbox should mark the connection dead")
	}
	assert.Len(t, c.Out(), 2)
}

func TestBind_SupersedesPreviousConnection(t *testing.T) {
	m := newTestManager(4)
	player := uuid.New()
	first := m.Bind(player)
	second := m.Bind(player)

	select {
	case <-first.Done():
	default:
		t.Fatal("first connection should be closed")
	}
	assert.NotEqual(t, first.ID, second.ID)

	assert.False(t, m.Unbind(first), "a superseded connection is not current")
	cur, ok := m.Current(player)
	require.True(t, ok)
	assert.Same(t, second, cur)

	assert.True(t, m.Unbind(second))
	assert.Equal(t, 0, m.Connections())
}

func TestMembershipIndex(t *testing.T) {
	m := newTestManager(1)
	player, lobbyA, lobbyB := uuid.New(), uuid.New(), uuid.New()

	m.Attach(player, lobbyA)
	got, ok := m.LobbyOf(player)
	require.True(t, ok)
	assert.Equal(t, lobbyA, got)

	m.Release(player, lobbyB)
	_, ok = m.LobbyOf(player)
	assert.True(t, ok, "releasing from another lobby keeps the membership")

	m.Release(player, lobbyA)
	_, ok = m.LobbyOf(player)
	assert.False(t, ok)
}

func TestReserve_OneClaimPerPlayer(t *testing.T) {
	m := newTestManager(1)
	player := uuid.New()

	release, ok := m.Reserve(player)
	require.True(t, ok)
	_, ok = m.Reserve(player)
	assert.False(t, ok, "a second create or join waits for the first")

	lobbyID := uuid.New()
	m.Attach(player, lobbyID)
	release()
	release()
	_, ok = m.Reserve(player)
	assert.False(t, ok, "members cannot claim another lobby")

	m.Release(player, lobbyID)
	release, ok = m.Reserve(player)
	require.True(t, ok)
	release()
}
