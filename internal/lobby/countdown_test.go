package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyAll(t *testing.T, l *Lobby, ids ...uuid.UUID) {
	t.Helper()
	for _, id := range ids {
		ready, err := l.toggleReady(id)
		require.NoError(t, err)
		require.True(t, ready)
	}
}

func TestCountdown_StartsWhenAllReadyAndMinimumMet(t *testing.T) {
	l, _, _, host := newTestLobby(t, models.ModeDuo)
	readyAll(t, l, host.ID)
	assert.Equal(t, models.StateWaiting, l.state, "duo needs two members")

	b := newPlayer("b")
	require.NoError(t, l.join(b, ""))
	readyAll(t, l, b.ID)

	assert.Equal(t, models.StateCountdown, l.state)
	snap := l.snapshot()
	require.NotNil(t, snap.CountdownRemaining)
	assert.Equal(t, 3, *snap.CountdownRemaining)
}

func TestCountdown_JoinCancelsAndRestartsFromScratch(t *testing.T) {
	l, _, _, host := newTestLobby(t, models.ModeSquad)
	b, c := newPlayer("b"), newPlayer("c")
	require.NoError(t, l.join(b, ""))
	readyAll(t, l, host.ID, b.ID)
	require.Equal(t, models.StateCountdown, l.state)

	epoch := l.countdown.epoch
	l.onCountdownTick(epoch)
	require.Equal(t, 2, l.countdown.remaining)

	l.startCountdown()
	assert.Equal(t, 2, l.countdown.remaining, "a running countdown is not restarted")
	epoch = l.countdown.epoch

	// A join cancels; the countdown only restarts from scratch once the
	// trigger holds again.
	require.NoError(t, l.join(c, ""))
	assert.Equal(t, models.StateWaiting, l.state)
	readyAll(t, l, c.ID)
	assert.Equal(t, models.StateCountdown, l.state)
	assert.Equal(t, 3, l.countdown.remaining)
	assert.NotEqual(t, epoch, l.countdown.epoch)
}

func TestCountdown_UnreadyCancelsAndStaleTickIsNoop(t *testing.T) {
	l, mt, _, host := newTestLobby(t, models.ModeDuo)
	b := newPlayer("b")
	require.NoError(t, l.join(b, ""))
	readyAll(t, l, host.ID, b.ID)
	epoch := l.countdown.epoch

	ready, err := l.toggleReady(host.ID)
	require.NoError(t, err)
	require.False(t, ready)
	assert.Equal(t, models.StateWaiting, l.state)

	versionBefore := l.version
	for i := 0; i < 5; i++ {
		l.onCountdownTick(epoch)
	}
	assert.Equal(t, models.StateWaiting, l.state, "a cancelled countdown never completes")
	assert.Equal(t, versionBefore, l.version)
	assert.Empty(t, mt.ofType(host.ID, protocol.TypeGameStart))
}

func TestCountdown_CompletesIntoStarting(t *testing.T) {
	l, mt, _, host := newTestLobby(t, models.ModeDuo)
	b := newPlayer("b")
	require.NoError(t, l.join(b, ""))
	readyAll(t, l, host.ID, b.ID)

	for l.state == models.StateCountdown {
		l.onCountdownTick(l.countdown.epoch)
	}

	require.Equal(t, models.StateStarting, l.state)
	for _, id := range []uuid.UUID{host.ID, b.ID} {
		start := mt.last(id, protocol.TypeGameStart)
		require.NotNil(t, start, "game:start for %s", id)
		payload := start.Data.(protocol.GameStartPayload)
		assert.Equal(t, map[uuid.UUID]int{host.ID: 0, b.ID: 1}, payload.PlayerSlotMap)
		assert.Equal(t, models.StateStarting, payload.Lobby.State)
	}
	assert.Len(t, mt.ofType(host.ID, protocol.TypeGameStart), 1, "start signal is emitted once")
}

func TestCountdown_TicksBroadcastRemaining(t *testing.T) {
	l, mt, _, host := newTestLobby(t, models.ModeSolo)
	readyAll(t, l, host.ID)
	mt.clear()

	l.onCountdownTick(l.countdown.epoch)
	l.onCountdownTick(l.countdown.epoch)

	updates := mt.ofType(host.ID, protocol.TypeLobbyUpdated)
	require.Len(t, updates, 2)
	assert.Equal(t, 2, *lobbyOf(t, &updates[0]).CountdownRemaining)
	assert.Equal(t, 1, *lobbyOf(t, &updates[1]).CountdownRemaining)
}

// Walks the duo scenario end to end with real timers: ready, un-ready,
// ready again, then let the countdown run out.
func TestActor_DuoScenario(t *testing.T) {
	reg, mt, _ := newTestRegistry(t, fastSettings())
	ctx := context.Background()
	a, b := newPlayer("a"), newPlayer("b")

	l, err := reg.Create(models.ModeDuo, a, "create")
	require.NoError(t, err)
	created := mt.last(a.ID, protocol.TypeLobbyCreated)
	require.NotNil(t, created)
	assert.Equal(t, "create", created.ReplyTo)
	assert.Equal(t, []uuid.UUID{a.ID}, memberIDs(lobbyOf(t, created)))
	assert.Equal(t, models.StateWaiting, lobbyOf(t, created).State)

	require.NoError(t, l.Join(ctx, b, ""))
	assert.Equal(t, models.StateWaiting, stateOf(t, l))

	_, err = l.ToggleReady(ctx, a.ID)
	require.NoError(t, err)
	_, err = l.ToggleReady(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCountdown, stateOf(t, l))

	_, err = l.ToggleReady(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateWaiting, stateOf(t, l))

	_, err = l.ToggleReady(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCountdown, stateOf(t, l))

	require.Eventually(t, func() bool {
		return stateOf(t, l) == models.StateStarting
	}, 2*time.Second, 10*time.Millisecond)

	snap, err := l.Snapshot(ctx)
	require.NoError(t, err)
	ma, _ := snap.Member(a.ID)
	mb, _ := snap.Member(b.ID)
	require.NotNil(t, ma.Slot)
	require.NotNil(t, mb.Slot)
	assert.Equal(t, 0, *ma.Slot)
	assert.Equal(t, 1, *mb.Slot)
	assert.Len(t, mt.ofType(a.ID, protocol.TypeGameStart), 1)
	assert.Len(t, mt.ofType(b.ID, protocol.TypeGameStart), 1)
}

func TestActor_HostDisconnectDuringCountdown(t *testing.T) {
	reg, _, _ := newTestRegistry(t, fastSettings())
	ctx := context.Background()
	a, b := newPlayer("a"), newPlayer("b")
	l, err := reg.Create(models.ModeDuo, a, "")
	require.NoError(t, err)
	require.NoError(t, l.Join(ctx, b, ""))
	_, _ = l.ToggleReady(ctx, a.ID)
	_, _ = l.ToggleReady(ctx, b.ID)
	require.Equal(t, models.StateCountdown, stateOf(t, l))

	l.Disconnect(a.ID, a.ConnID)

	snap, err := l.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StateWaiting, snap.State)
	assert.Equal(t, b.ID, snap.HostID)
	ma, ok := snap.Member(a.ID)
	require.True(t, ok, "disconnected host stays a member during grace")
	assert.False(t, ma.Connected)

	time.Sleep(5 * fastSettings().CountdownTick)
	assert.Equal(t, models.StateWaiting, stateOf(t, l), "the cancelled countdown must not fire")
}
