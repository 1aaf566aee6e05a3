// internal/session/session.go
package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/lobbyd/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Conn is one live client connection. The write pump drains Out until Done
// is closed.
type Conn struct {
	ID       uuid.UUID
	PlayerID uuid.UUID

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(playerID uuid.UUID, outboxSize int) *Conn {
	return &Conn{
		ID:       uuid.New(),
		PlayerID: playerID,
		out:      make(chan []byte, outboxSize),
		done:     make(chan struct{}),
	}
}

// Out yields encoded frames queued for this connection.
func (c *Conn) Out() <-chan []byte { return c.out }

// Done is closed once the connection is considered dead.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close marks the connection dead. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// enqueue never blocks. A full outbox means the peer is not reading, and the
// connection is closed rather than letting it stall the sender.
func (c *Conn) enqueue(frame []byte) bool {
	if c.closed() {
		return false
	}
	select {
	case c.out <- frame:
		return true
	default:
		c.Close()
		return false
	}
}

// Manager binds players to their current connection and tracks which lobby
// each player belongs to. It implements lobby.Transport.
type Manager struct {
	mu      sync.Mutex
	conns   map[uuid.UUID]*Conn     // player -> current connection
	lobbies map[uuid.UUID]uuid.UUID // player -> lobby
	claims  map[uuid.UUID]struct{}  // players with a create or join in flight

	outboxSize int
	log        logrus.FieldLogger
}

func NewManager(outboxSize int, logger logrus.FieldLogger) *Manager {
	if outboxSize < 1 {
		outboxSize = 1
	}
	return &Manager{
		conns:      make(map[uuid.UUID]*Conn),
		lobbies:    make(map[uuid.UUID]uuid.UUID),
		claims:     make(map[uuid.UUID]struct{}),
		outboxSize: outboxSize,
		log:        logger,
	}
}

// Bind opens a new connection for playerID. A previous connection for the
// same player is closed; its later Unbind is then a no-op.
func (m *Manager) Bind(playerID uuid.UUID) *Conn {
	c := newConn(playerID, m.outboxSize)
	m.mu.Lock()
	prev := m.conns[playerID]
	m.conns[playerID] = c
	m.mu.Unlock()

	if prev != nil {
		prev.Close()
		m.log.WithFields(logrus.Fields{"player": playerID, "conn": prev.ID}).Info("connection superseded")
	}
	return c
}

// Unbind drops c and reports whether it was the player's current
// connection. Only then should the player be treated as disconnected.
func (m *Manager) Unbind(c *Conn) bool {
	c.Close()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conns[c.PlayerID] != c {
		return false
	}
	delete(m.conns, c.PlayerID)
	return true
}

// Current returns the player's live connection, if any.
func (m *Manager) Current(playerID uuid.UUID) (*Conn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[playerID]
	return c, ok
}

// Send queues env for the player's current connection. Players without a
// connection are skipped silently.
func (m *Manager) Send(playerID uuid.UUID, env protocol.Envelope) {
	c, ok := m.Current(playerID)
	if !ok {
		return
	}
	m.SendConn(c, env)
}

// SendConn queues env on a specific connection.
func (m *Manager) SendConn(c *Conn, env protocol.Envelope) {
	frame, err := protocol.Marshal(env)
	if err != nil {
		m.log.WithError(err).WithField("type", env.Type).Error("encode outbound message")
		return
	}
	if !c.enqueue(frame) {
		m.log.WithFields(logrus.Fields{"player": c.PlayerID, "conn": c.ID, "type": env.Type}).Warn("dropped message for dead connection")
	}
}

// Attach records lobby membership.
func (m *Manager) Attach(playerID, lobbyID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lobbies[playerID] = lobbyID
}

// Release clears membership, but only if the player is still recorded in
// lobbyID.
func (m *Manager) Release(playerID, lobbyID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lobbies[playerID] == lobbyID {
		delete(m.lobbies, playerID)
	}
}

// Reserve claims playerID for a create or join that is about to run. It
// fails while the player belongs to a lobby or holds another claim. The
// returned func drops the claim; call it once the lobby has attached the
// player (or refused to).
func (m *Manager) Reserve(playerID uuid.UUID) (release func(), ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, member := m.lobbies[playerID]; member {
		return nil, false
	}
	if _, claimed := m.claims[playerID]; claimed {
		return nil, false
	}
	m.claims[playerID] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.claims, playerID)
			m.mu.Unlock()
		})
	}, true
}

// LobbyOf returns the lobby the player currently belongs to.
func (m *Manager) LobbyOf(playerID uuid.UUID) (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.lobbies[playerID]
	return id, ok
}

// Connections reports how many players have a live connection.
func (m *Manager) Connections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}
