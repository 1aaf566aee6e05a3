// internal/lobby/lobby.go
package lobby

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Transport is the lobby's view of the session layer. Send must not block:
// a slow or dead recipient is the transport's problem, never the actor's.
type Transport interface {
	Send(playerID uuid.UUID, msg protocol.Envelope)
	// Attach records that playerID is now a member of lobbyID.
	Attach(playerID, lobbyID uuid.UUID)
	// Release tells the transport that playerID is no longer a member of lobbyID.
	Release(playerID, lobbyID uuid.UUID)
}

// Player identifies the sender of a membership command together with the
// connection it arrived on.
type Player struct {
	ID     uuid.UUID
	Name   string
	ConnID uuid.UUID
}

// Settings are the per-lobby timing knobs.
type Settings struct {
	CountdownSeconds int
	CountdownTick    time.Duration
	// DisconnectGrace is how long a disconnected member keeps its place.
	// Zero turns a disconnect into an immediate leave.
	DisconnectGrace time.Duration
	InboxSize       int
}

// DefaultSettings mirror the service defaults.
func DefaultSettings() Settings {
	return Settings{
		CountdownSeconds: 5,
		CountdownTick:    time.Second,
		DisconnectGrace:  15 * time.Second,
		InboxSize:        64,
	}
}

type member struct {
	id       uuid.UUID
	name     string
	connID   uuid.UUID // uuid.Nil while disconnected
	ready    bool
	slot     int // -1 until STARTING
	joinedAt time.Time

	graceTimer *time.Timer
	graceEpoch uint64
}

func (m *member) connected() bool {
	return m.connID != uuid.Nil
}

// Lobby is a single lobby actor. Every field below the immutable header is
// owned by the loop goroutine; other goroutines reach it only through the
// inbox.
type Lobby struct {
	ID   uuid.UUID
	Mode models.GameMode

	inbox     chan msg
	done      chan struct{}
	transport Transport
	engine    Engine
	settings  Settings
	log       logrus.FieldLogger
	now       func() time.Time
	onClosed  func(id uuid.UUID)

	hostID         uuid.UUID
	members        []*member
	state          models.LobbyState
	version        int
	createdAt      time.Time
	lastActivityAt time.Time
	countdown      countdown
	handoff        *Handoff
}

func newLobby(id uuid.UUID, mode models.GameMode, host Player, deps lobbyDeps) *Lobby {
	now := deps.now()
	l := &Lobby{
		ID:             id,
		Mode:           mode,
		inbox:          make(chan msg, deps.settings.InboxSize),
		done:           make(chan struct{}),
		transport:      deps.transport,
		engine:         deps.engine,
		settings:       deps.settings,
		log:            deps.log.WithField("lobby", id),
		now:            deps.now,
		onClosed:       deps.onClosed,
		hostID:         host.ID,
		state:          models.StateWaiting,
		createdAt:      now,
		lastActivityAt: now,
	}
	l.members = append(l.members, &member{
		id:       host.ID,
		name:     host.Name,
		connID:   host.ConnID,
		slot:     -1,
		joinedAt: now,
	})
	return l
}

type lobbyDeps struct {
	transport Transport
	engine    Engine
	settings  Settings
	log       logrus.FieldLogger
	now       func() time.Time
	onClosed  func(id uuid.UUID)
}

// Done is closed once the lobby has reached CLOSED and its actor has exited.
func (l *Lobby) Done() <-chan struct{} {
	return l.done
}

// Join admits p, or rebinds p if it is a disconnected member. The joiner
// receives lobby:info (tagged with replyTo) before the lobby-wide update.
func (l *Lobby) Join(ctx context.Context, p Player, replyTo string) error {
	reply := make(chan error, 1)
	return l.askErr(ctx, joinMsg{player: p, replyTo: replyTo, reply: reply}, reply)
}

// Reconnect rebinds an existing member to a new connection.
func (l *Lobby) Reconnect(ctx context.Context, p Player) error {
	reply := make(chan error, 1)
	return l.askErr(ctx, reconnectMsg{player: p, reply: reply}, reply)
}

// Leave removes playerID. The leaver receives lobby:left.
func (l *Lobby) Leave(ctx context.Context, playerID uuid.UUID, replyTo string) error {
	reply := make(chan error, 1)
	return l.askErr(ctx, leaveMsg{playerID: playerID, replyTo: replyTo, reply: reply}, reply)
}

// ToggleReady flips playerID's ready flag and returns the new value.
func (l *Lobby) ToggleReady(ctx context.Context, playerID uuid.UUID) (bool, error) {
	reply := make(chan readyResult, 1)
	res, err := ask(ctx, l, readyMsg{playerID: playerID, reply: reply}, reply)
	if err != nil {
		return false, err
	}
	return res.ready, res.err
}

// AckHandoff records a member's game:init. The first valid ack moves the
// lobby to IN_GAME; later acks are no-ops.
func (l *Lobby) AckHandoff(ctx context.Context, playerID uuid.UUID) error {
	reply := make(chan error, 1)
	return l.askErr(ctx, initMsg{playerID: playerID, reply: reply}, reply)
}

// SubmitGameAction forwards opaque gameplay input to the engine.
func (l *Lobby) SubmitGameAction(ctx context.Context, playerID uuid.UUID, payload json.RawMessage) error {
	reply := make(chan error, 1)
	return l.askErr(ctx, actionMsg{playerID: playerID, payload: payload, reply: reply}, reply)
}

// Snapshot returns the current view of the lobby.
func (l *Lobby) Snapshot(ctx context.Context) (models.LobbySnapshot, error) {
	reply := make(chan models.LobbySnapshot, 1)
	return ask(ctx, l, snapshotMsg{reply: reply}, reply)
}

// Disconnect notifies the lobby that connID, bound to playerID, went away.
// Notifications for connections that are no longer current are ignored.
func (l *Lobby) Disconnect(playerID, connID uuid.UUID) {
	l.post(disconnectMsg{playerID: playerID, connID: connID})
}

// Relay fans engine output out to connected members while IN_GAME.
func (l *Lobby) Relay(typ protocol.Type, data json.RawMessage) {
	l.post(relayMsg{typ: typ, data: data})
}

// EndGame closes an IN_GAME lobby once the engine reports the game over.
// It is ignored in any other state.
func (l *Lobby) EndGame() {
	l.post(endGameMsg{})
}

// Close moves the lobby to CLOSED and waits for the actor to exit.
func (l *Lobby) Close(ctx context.Context, reason string) error {
	reply := make(chan struct{}, 1)
	if _, err := ask(ctx, l, closeMsg{reason: reason, reply: reply}, reply); err != nil && err != errLobbyClosed {
		return err
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseIfIdle closes the lobby if it has no connected member and its last
// activity is not after cutoff. The check runs inside the actor, so a
// reconnect applied before it always keeps the lobby open.
func (l *Lobby) CloseIfIdle(ctx context.Context, cutoff time.Time) (bool, error) {
	reply := make(chan bool, 1)
	closed, err := ask(ctx, l, idleCloseMsg{cutoff: cutoff, reply: reply}, reply)
	if err == errLobbyClosed {
		return false, nil
	}
	return closed, err
}

func (l *Lobby) askErr(ctx context.Context, m msg, reply chan error) error {
	res, err := ask(ctx, l, m, reply)
	if err != nil {
		return err
	}
	return res
}

// ask delivers m to the actor and waits for its correlated reply. A reply
// written just before the actor exited still wins over the done signal.
func ask[T any](ctx context.Context, l *Lobby, m msg, reply chan T) (T, error) {
	var zero T
	select {
	case l.inbox <- m:
	case <-l.done:
		return zero, errLobbyClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r := <-reply:
		return r, nil
	case <-l.done:
		select {
		case r := <-reply:
			return r, nil
		default:
			return zero, errLobbyClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// post is the fire-and-forget path used by timers and transport notifications.
func (l *Lobby) post(m msg) {
	select {
	case l.inbox <- m:
	case <-l.done:
	}
}

func (l *Lobby) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.close("shutdown")
			close(l.done)
			return
		case m := <-l.inbox:
			// done closes only after handle has written its reply, so a
			// command that closes the lobby still gets its own answer.
			l.handle(m)
			if l.state == models.StateClosed {
				close(l.done)
				return
			}
		}
	}
}

func (l *Lobby) handle(m msg) {
	switch m := m.(type) {
	case joinMsg:
		m.reply <- l.join(m.player, m.replyTo)
	case reconnectMsg:
		m.reply <- l.reconnect(m.player, "")
	case leaveMsg:
		m.reply <- l.leave(m.playerID, m.replyTo)
	case readyMsg:
		ready, err := l.toggleReady(m.playerID)
		m.reply <- readyResult{ready: ready, err: err}
	case initMsg:
		m.reply <- l.ackHandoff(m.playerID)
	case actionMsg:
		m.reply <- l.gameAction(m.playerID, m.payload)
	case snapshotMsg:
		m.reply <- l.snapshot()
	case disconnectMsg:
		l.disconnect(m.playerID, m.connID)
	case relayMsg:
		l.relay(m.typ, m.data)
	case countdownTickMsg:
		l.onCountdownTick(m.epoch)
	case graceExpiredMsg:
		l.onGraceExpired(m.playerID, m.epoch)
	case endGameMsg:
		if l.state == models.StateInGame {
			l.close("game ended")
		}
	case closeMsg:
		l.close(m.reason)
		m.reply <- struct{}{}
	case idleCloseMsg:
		m.reply <- l.closeIfIdle(m.cutoff)
	}
}

func (l *Lobby) snapshot() models.LobbySnapshot {
	s := models.LobbySnapshot{
		ID:             l.ID,
		Mode:           l.Mode,
		HostID:         l.hostID,
		State:          l.state,
		Members:        make([]models.Member, 0, len(l.members)),
		Version:        l.version,
		CreatedAt:      l.createdAt,
		LastActivityAt: l.lastActivityAt,
	}
	for _, m := range l.members {
		v := models.Member{
			ID:          m.id,
			DisplayName: m.name,
			Connected:   m.connected(),
			Ready:       m.ready,
		}
		if m.slot >= 0 {
			slot := m.slot
			v.Slot = &slot
		}
		s.Members = append(s.Members, v)
	}
	if l.state == models.StateCountdown || l.state == models.StateStarting {
		remaining := l.countdown.remaining
		s.CountdownRemaining = &remaining
	}
	return s
}

// commit records an applied mutation: it bumps the version and returns the
// snapshot every recipient of this change will see.
func (l *Lobby) commit() models.LobbySnapshot {
	l.version++
	return l.snapshot()
}

// fanout sends snap to every connected member. Only the actor calls it, so
// all members observe versions in the same order.
func (l *Lobby) fanout(snap models.LobbySnapshot) {
	env := protocol.LobbyUpdated(snap)
	for _, m := range l.members {
		if m.connected() {
			l.transport.Send(m.id, env)
		}
	}
}

func (l *Lobby) broadcast() models.LobbySnapshot {
	snap := l.commit()
	l.fanout(snap)
	return snap
}

func (l *Lobby) sendTo(playerID uuid.UUID, env protocol.Envelope) {
	l.transport.Send(playerID, env)
}

func (l *Lobby) touch() {
	l.lastActivityAt = l.now()
}

func (l *Lobby) find(playerID uuid.UUID) (int, *member) {
	for i, m := range l.members {
		if m.id == playerID {
			return i, m
		}
	}
	return -1, nil
}
