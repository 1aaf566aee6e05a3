// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/jason-s-yu/lobbyd/internal/protocol"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// TypeGameEnd is published by the engine when a game is over.
const TypeGameEnd protocol.Type = "game:end"

// ErrBacklog is returned when the publish queue is full. Lobby actors never
// wait on Redis.
var ErrBacklog = errors.New("engine publish queue is full")

// Options configure the Redis bridge.
type Options struct {
	Addr          string
	DB            int
	HandoffQueue  string
	ActionQueue   string
	OutputChannel string
	// Buffer is the number of records that may wait for Redis. Defaults to 256.
	Buffer int
	// RetryInitial and RetryMax bound the backoff between failed pushes.
	// A record is retried until it is pushed or the publisher stops.
	RetryInitial time.Duration
	RetryMax     time.Duration
	Logger       logrus.FieldLogger
}

// HandoffRecord is pushed to the handoff queue once per started game.
type HandoffRecord struct {
	lobby.Handoff
	Timestamp int64 `json:"timestamp"`
}

// GameActionRecord is one forwarded game:action.
type GameActionRecord struct {
	LobbyID   uuid.UUID       `json:"lobbyId"`
	PlayerID  uuid.UUID       `json:"playerId"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// OutputMessage is what the engine publishes on the output channel.
type OutputMessage struct {
	LobbyID uuid.UUID       `json:"lobbyId"`
	Type    protocol.Type   `json:"type"`
	Data    json.RawMessage `json:"data"`
}

// Sink receives engine output. *lobby.Registry implements it.
type Sink interface {
	Relay(lobbyID uuid.UUID, typ protocol.Type, data json.RawMessage) error
	EndGame(lobbyID uuid.UUID) error
}

type record struct {
	queue string
	data  []byte
}

// Bridge is the game engine as seen from the lobby service: records go out
// through Redis lists, engine output comes back over pub/sub.
type Bridge struct {
	rdb     *redis.Client
	opts    Options
	pending chan record
	push    func(ctx context.Context, queue string, data []byte) error
	log     logrus.FieldLogger
	now     func() time.Time
}

// Connect dials Redis and verifies it answers.
func Connect(ctx context.Context, opts Options) (*Bridge, error) {
	opts = opts.withDefaults()
	rdb := redis.NewClient(&redis.Options{
		Addr: opts.Addr,
		DB:   opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}
	b := newBridge(opts)
	b.rdb = rdb
	b.push = func(ctx context.Context, queue string, data []byte) error {
		return rdb.RPush(ctx, queue, data).Err()
	}
	return b, nil
}

func (o Options) withDefaults() Options {
	if o.Buffer <= 0 {
		o.Buffer = 256
	}
	if o.RetryInitial <= 0 {
		o.RetryInitial = 100 * time.Millisecond
	}
	if o.RetryMax <= 0 {
		o.RetryMax = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

func newBridge(opts Options) *Bridge {
	return &Bridge{
		opts:    opts,
		pending: make(chan record, opts.Buffer),
		log:     opts.Logger,
		now:     time.Now,
	}
}

// Begin queues the handoff for the engine.
func (b *Bridge) Begin(h lobby.Handoff) error {
	data, err := json.Marshal(HandoffRecord{Handoff: h, Timestamp: b.now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("failed to marshal HandoffRecord: %w", err)
	}
	return b.enqueue(record{queue: b.opts.HandoffQueue, data: data})
}

// Deliver queues one game action for the engine.
func (b *Bridge) Deliver(lobbyID, playerID uuid.UUID, payload json.RawMessage) error {
	data, err := json.Marshal(GameActionRecord{
		LobbyID:   lobbyID,
		PlayerID:  playerID,
		Payload:   payload,
		Timestamp: b.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal GameActionRecord: %w", err)
	}
	return b.enqueue(record{queue: b.opts.ActionQueue, data: data})
}

func (b *Bridge) enqueue(r record) error {
	select {
	case b.pending <- r:
		return nil
	default:
		return ErrBacklog
	}
}

// RunPublisher pushes queued records to Redis in order until ctx is done.
// A failed push is retried with backoff; records are never skipped, since
// the engine sees each lobby's handoff exactly once.
func (b *Bridge) RunPublisher(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-b.pending:
			if err := b.publish(ctx, r); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				b.log.WithError(err).WithField("queue", r.queue).Error("failed to RPush engine record")
			}
		}
	}
}

func (b *Bridge) publish(ctx context.Context, r record) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.opts.RetryInitial
	policy.MaxInterval = b.opts.RetryMax
	policy.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		return b.push(ctx, r.queue, r.data)
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		b.log.WithError(err).WithFields(logrus.Fields{"queue": r.queue, "retryIn": wait}).Warn("engine record not pushed")
	})
}

// RunRelay subscribes to the engine output channel and forwards each message
// to sink until ctx is done.
func (b *Bridge) RunRelay(ctx context.Context, sink Sink) error {
	sub := b.rdb.Subscribe(ctx, b.opts.OutputChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", b.opts.OutputChannel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			b.dispatch(sink, m.Payload)
		}
	}
}

func (b *Bridge) dispatch(sink Sink, payload string) {
	out, err := ParseOutput([]byte(payload))
	if err != nil {
		b.log.WithError(err).Warn("dropping engine output")
		return
	}
	if out.Type == TypeGameEnd {
		err = sink.EndGame(out.LobbyID)
	} else {
		err = sink.Relay(out.LobbyID, out.Type, out.Data)
	}
	if err != nil {
		b.log.WithError(err).WithFields(logrus.Fields{"lobby": out.LobbyID, "type": out.Type}).Debug("engine output not delivered")
	}
}

// ParseOutput decodes and validates one engine output message. Only
// game:state, game:action and game:end are accepted.
func ParseOutput(data []byte) (OutputMessage, error) {
	var out OutputMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("malformed engine output: %w", err)
	}
	if out.LobbyID == uuid.Nil {
		return out, errors.New("engine output without lobbyId")
	}
	switch out.Type {
	case protocol.TypeGameState, protocol.TypeGameAction, TypeGameEnd:
		return out, nil
	}
	return out, fmt.Errorf("unexpected engine output type %q", out.Type)
}

// Close releases the Redis client.
func (b *Bridge) Close() error {
	return b.rdb.Close()
}
