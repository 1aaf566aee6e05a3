package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	relayed []OutputMessage
	ended   []uuid.UUID
}

func (s *recordingSink) Relay(lobbyID uuid.UUID, typ protocol.Type, data json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relayed = append(s.relayed, OutputMessage{LobbyID: lobbyID, Type: typ, Data: data})
	return nil
}

func (s *recordingSink) EndGame(lobbyID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, lobbyID)
	return nil
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.relayed), len(s.ended)
}

func TestParseOutput(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"state", `{"lobbyId":"` + id.String() + `","type":"game:state","data":{"turn":2}}`, false},
		{"end", `{"lobbyId":"` + id.String() + `","type":"game:end"}`, false},
		{"unknown type", `{"lobbyId":"` + id.String() + `","type":"lobby:updated"}`, true},
		{"missing lobby", `{"type":"game:state"}`, true},
		{"garbage", `{{`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ParseOutput([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, out.LobbyID)
		})
	}
}

func TestDispatch_RoutesEndAndRelay(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	b := &Bridge{log: logger}
	sink := &recordingSink{}
	id := uuid.New()

	b.dispatch(sink, `{"lobbyId":"`+id.String()+`","type":"game:action","data":{"card":"7H"}}`)
	b.dispatch(sink, `{"lobbyId":"`+id.String()+`","type":"game:end"}`)
	b.dispatch(sink, `nonsense`)

	require.Len(t, sink.relayed, 1)
	assert.Equal(t, protocol.TypeGameAction, sink.relayed[0].Type)
	assert.JSONEq(t, `{"card":"7H"}`, string(sink.relayed[0].Data))
	assert.Equal(t, []uuid.UUID{id}, sink.ended)
}

func TestEnqueue_FullBufferFailsFast(t *testing.T) {
	b := &Bridge{pending: make(chan record, 1), opts: Options{ActionQueue: "q"}, now: time.Now}

	require.NoError(t, b.Deliver(uuid.New(), uuid.New(), json.RawMessage(`{}`)))
	assert.ErrorIs(t, b.Deliver(uuid.New(), uuid.New(), json.RawMessage(`{}`)), ErrBacklog)
}

type flakyRedis struct {
	mu     sync.Mutex
	fails  int
	calls  int
	pushed map[string][][]byte
}

func (f *flakyRedis) push(ctx context.Context, queue string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return errors.New("connection refused")
	}
	if f.pushed == nil {
		f.pushed = make(map[string][][]byte)
	}
	f.pushed[queue] = append(f.pushed[queue], data)
	return nil
}

func (f *flakyRedis) queue(name string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushed[name]
}

func newTestBridge(push func(context.Context, string, []byte) error) *Bridge {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	b := newBridge(Options{
		HandoffQueue: "handoffs",
		ActionQueue:  "actions",
		RetryInitial: time.Millisecond,
		RetryMax:     5 * time.Millisecond,
		Logger:       logger,
	}.withDefaults())
	b.push = push
	return b
}

func TestPublisher_RetriesHandoffUntilPushed(t *testing.T) {
	fake := &flakyRedis{fails: 3}
	b := newTestBridge(fake.push)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.RunPublisher(ctx)

	lobbyID := uuid.New()
	require.NoError(t, b.Begin(lobby.Handoff{LobbyID: lobbyID, Mode: models.ModeSolo}))
	require.NoError(t, b.Deliver(lobbyID, uuid.New(), json.RawMessage(`{"n":1}`)))

	require.Eventually(t, func() bool {
		return len(fake.queue("actions")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	handoffs := fake.queue("handoffs")
	require.Len(t, handoffs, 1, "the handoff survives failed pushes and is sent once")
	var got HandoffRecord
	require.NoError(t, json.Unmarshal(handoffs[0], &got))
	assert.Equal(t, lobbyID, got.LobbyID)
}

func TestPublisher_StopsRetryingOnCancel(t *testing.T) {
	b := newTestBridge(func(context.Context, string, []byte) error {
		return errors.New("connection refused")
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.RunPublisher(ctx) }()

	require.NoError(t, b.Begin(lobby.Handoff{LobbyID: uuid.New(), Mode: models.ModeSolo}))
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher kept retrying after cancel")
	}
}

// connectOrSkip returns a bridge on a live Redis, or skips the test.
func connectOrSkip(t *testing.T) *Bridge {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	suffix := uuid.NewString()
	b, err := Connect(context.Background(), Options{
		Addr:          addr,
		HandoffQueue:  "test_handoffs_" + suffix,
		ActionQueue:   "test_actions_" + suffix,
		OutputChannel: "test_output_" + suffix,
		Logger:        logger,
	})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() {
		b.rdb.Del(context.Background(), b.opts.HandoffQueue, b.opts.ActionQueue)
		_ = b.Close()
	})
	return b
}

func TestBridge_PublishesHandoff(t *testing.T) {
	b := connectOrSkip(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.RunPublisher(ctx)

	player := uuid.New()
	h := lobby.Handoff{
		LobbyID:   uuid.New(),
		Mode:      models.ModeDuo,
		Slots:     map[uuid.UUID]int{player: 0},
		Players:   []lobby.SlotAssignment{{Slot: 0, PlayerID: player, DisplayName: "ana"}},
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, b.Begin(h))

	res, err := b.rdb.BLPop(ctx, 2*time.Second, b.opts.HandoffQueue).Result()
	require.NoError(t, err)
	require.Len(t, res, 2)

	var got HandoffRecord
	require.NoError(t, json.Unmarshal([]byte(res[1]), &got))
	assert.Equal(t, h.LobbyID, got.LobbyID)
	assert.Equal(t, 0, got.Slots[player])
	assert.NotZero(t, got.Timestamp)
}

func TestBridge_RelaysEngineOutput(t *testing.T) {
	b := connectOrSkip(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &recordingSink{}
	go b.RunRelay(ctx, sink)

	id := uuid.New()
	msg := `{"lobbyId":"` + id.String() + `","type":"game:state","data":{}}`
	require.Eventually(t, func() bool {
		_ = b.rdb.Publish(ctx, b.opts.OutputChannel, msg).Err()
		relayed, _ := sink.counts()
		return relayed > 0
	}, 3*time.Second, 50*time.Millisecond)
}

var _ Sink = (*lobby.Registry)(nil)
var _ lobby.Engine = (*Bridge)(nil)
