// internal/lobby/lobby_store.go
package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/protocol"
	"github.com/sirupsen/logrus"
)

// maxIDAttempts bounds lobby id generation. Exhausting it means the uuid
// source is broken.
const maxIDAttempts = 8

// Options configure a Registry.
type Options struct {
	Settings Settings
	// IdleTimeout is how long a lobby with no connected members may sit
	// untouched before Sweep closes it.
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	Transport     Transport
	Engine        Engine
	Logger        logrus.FieldLogger
	Now           func() time.Time
}

// Registry owns every live lobby. The map is the only state shared between
// actors; lobby internals never leave their own goroutine.
type Registry struct {
	mu      sync.Mutex
	lobbies map[uuid.UUID]*Lobby

	ctx  context.Context
	opts Options
	log  logrus.FieldLogger
	wg   sync.WaitGroup
}

// NewRegistry builds a registry whose lobby actors live until ctx is
// cancelled or Shutdown is called.
func NewRegistry(ctx context.Context, opts Options) *Registry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Engine == nil {
		opts.Engine = LogEngine{Logger: opts.Logger}
	}
	if opts.Settings.InboxSize <= 0 {
		opts.Settings.InboxSize = DefaultSettings().InboxSize
	}
	if opts.Settings.CountdownTick <= 0 {
		opts.Settings.CountdownTick = time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	return &Registry{
		lobbies: make(map[uuid.UUID]*Lobby),
		ctx:     ctx,
		opts:    opts,
		log:     opts.Logger,
	}
}

// Create allocates a lobby with host as its first member and starts its
// actor. The host receives lobby:created before any other lobby traffic.
func (r *Registry) Create(mode models.GameMode, host Player, replyTo string) (*Lobby, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown game mode %q", mode)
	}

	r.mu.Lock()
	id, err := r.freshID()
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	l := newLobby(id, mode, host, lobbyDeps{
		transport: r.opts.Transport,
		engine:    r.opts.Engine,
		settings:  r.opts.Settings,
		log:       r.log,
		now:       r.opts.Now,
		onClosed:  r.remove,
	})
	r.lobbies[id] = l
	r.mu.Unlock()

	// The actor is not running yet, so these run on the caller's goroutine.
	r.opts.Transport.Attach(host.ID, id)
	r.opts.Transport.Send(host.ID, protocol.LobbyCreated(l.commit(), replyTo))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		l.run(r.ctx)
	}()

	r.log.WithFields(logrus.Fields{"lobby": id, "mode": mode, "host": host.ID}).Info("lobby created")
	return l, nil
}

func (r *Registry) freshID() (uuid.UUID, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id, err := uuid.NewV7()
		if err != nil {
			continue
		}
		if _, taken := r.lobbies[id]; !taken {
			return id, nil
		}
	}
	return uuid.Nil, fmt.Errorf("could not allocate a lobby id after %d attempts", maxIDAttempts)
}

// Get returns the lobby with id, or ErrLobbyNotFound.
func (r *Registry) Get(id uuid.UUID) (*Lobby, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lobbies[id]
	if !ok {
		return nil, ErrLobbyNotFound
	}
	return l, nil
}

// remove evicts id. Lobbies call it from their own actor when they close.
func (r *Registry) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lobbies[id]; !ok {
		return
	}
	delete(r.lobbies, id)
	r.log.WithField("lobby", id).Debug("lobby evicted")
}

// Len reports how many lobbies are registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lobbies)
}

func (r *Registry) all() []*Lobby {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Lobby, 0, len(r.lobbies))
	for _, l := range r.lobbies {
		out = append(out, l)
	}
	return out
}

// List snapshots every live lobby, oldest first. Lobbies that close while
// being listed are skipped.
func (r *Registry) List(ctx context.Context) []models.LobbySnapshot {
	lobbies := r.all()
	out := make([]models.LobbySnapshot, 0, len(lobbies))
	for _, l := range lobbies {
		snap, err := l.Snapshot(ctx)
		if err != nil {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Sweep closes lobbies that have had no connected member and no activity
// for longer than the idle timeout. It returns how many it closed.
func (r *Registry) Sweep(ctx context.Context) int {
	if r.opts.IdleTimeout <= 0 {
		return 0
	}
	cutoff := r.opts.Now().Add(-r.opts.IdleTimeout)
	closed := 0
	for _, l := range r.all() {
		ok, err := l.CloseIfIdle(ctx, cutoff)
		if err != nil {
			r.log.WithError(err).WithField("lobby", l.ID).Warn("idle close failed")
			continue
		}
		if ok {
			closed++
		}
	}
	if closed > 0 {
		r.log.WithField("closed", closed).Info("swept idle lobbies")
	}
	return closed
}

// Run sweeps on every interval until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Relay forwards engine output to a lobby's members.
func (r *Registry) Relay(lobbyID uuid.UUID, typ protocol.Type, data json.RawMessage) error {
	l, err := r.Get(lobbyID)
	if err != nil {
		return err
	}
	l.Relay(typ, data)
	return nil
}

// EndGame closes lobbyID if it is in game.
func (r *Registry) EndGame(lobbyID uuid.UUID) error {
	l, err := r.Get(lobbyID)
	if err != nil {
		return err
	}
	l.EndGame()
	return nil
}

// Shutdown closes every lobby and waits for their actors to exit.
func (r *Registry) Shutdown(ctx context.Context) error {
	for _, l := range r.all() {
		if err := l.Close(ctx, "shutdown"); err != nil {
			return err
		}
	}
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
