package lobby

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/protocol"
	"github.com/sirupsen/logrus"
)

// join admits a new member. A disconnected member joining again is treated
// as a reconnect.
func (l *Lobby) join(p Player, replyTo string) error {
	if _, m := l.find(p.ID); m != nil {
		if m.connected() {
			return ErrAlreadyMember
		}
		return l.reconnect(p, replyTo)
	}
	if !l.state.Joinable() {
		return invalidTransition("lobby is " + string(l.state) + ", not accepting players")
	}
	if len(l.members) >= l.Mode.Limits().MaxPlayers {
		return ErrLobbyFull
	}

	l.members = append(l.members, &member{
		id:       p.ID,
		name:     p.Name,
		connID:   p.ConnID,
		slot:     -1,
		joinedAt: l.now(),
	})
	l.transport.Attach(p.ID, l.ID)
	l.touch()
	if l.state == models.StateCountdown {
		l.abortCountdown("member joined")
	}

	snap := l.commit()
	l.sendTo(p.ID, protocol.LobbyInfo(snap, replyTo))
	l.fanout(snap)
	l.log.WithFields(logrus.Fields{"player": p.ID, "members": len(l.members)}).Info("player joined")
	return nil
}

// reconnect rebinds an existing member to a new connection. Slots and
// readiness survive; a STARTING lobby re-sends game:start so the member can
// still acknowledge it.
func (l *Lobby) reconnect(p Player, replyTo string) error {
	_, m := l.find(p.ID)
	if m == nil {
		return ErrNotAMember
	}
	l.stopGrace(m)
	m.connID = p.ConnID
	l.transport.Attach(p.ID, l.ID)
	l.touch()

	snap := l.commit()
	l.sendTo(p.ID, protocol.LobbyInfo(snap, replyTo))
	if l.state == models.StateStarting && m.slot >= 0 {
		l.sendTo(p.ID, protocol.GameStart(snap, l.handoff.Slots))
	}
	l.fanout(snap)
	l.log.WithField("player", p.ID).Info("player reconnected")
	return nil
}

// leave is the explicit lobby:leave path.
func (l *Lobby) leave(playerID uuid.UUID, replyTo string) error {
	_, m := l.find(playerID)
	if m == nil {
		return ErrNotAMember
	}
	if l.state == models.StateStarting {
		return invalidTransition("cannot leave while the game is starting")
	}
	l.sendTo(playerID, protocol.LobbyLeft(l.ID, replyTo))
	l.removeMember(playerID, "left")
	return nil
}

// removeMember drops a member, migrates the host, cancels any countdown and
// closes the lobby once it is empty.
func (l *Lobby) removeMember(playerID uuid.UUID, reason string) {
	idx, m := l.find(playerID)
	if m == nil {
		return
	}
	l.stopGrace(m)
	l.members = append(l.members[:idx], l.members[idx+1:]...)
	l.transport.Release(playerID, l.ID)
	l.touch()
	l.log.WithFields(logrus.Fields{"player": playerID, "reason": reason, "members": len(l.members)}).Info("player removed")

	if len(l.members) == 0 {
		l.close("empty")
		return
	}
	if l.hostID == playerID {
		l.migrateHost(false)
	}
	if l.state == models.StateCountdown {
		l.abortCountdown("member left")
	}
	l.broadcast()
}

func (l *Lobby) toggleReady(playerID uuid.UUID) (bool, error) {
	_, m := l.find(playerID)
	if m == nil {
		return false, ErrNotAMember
	}
	if l.state != models.StateWaiting && l.state != models.StateCountdown {
		return false, invalidTransition("ready can only change before the game starts")
	}

	m.ready = !m.ready
	l.touch()
	switch {
	case l.state == models.StateWaiting && l.triggerHolds():
		l.startCountdown()
	case l.state == models.StateCountdown && !l.triggerHolds():
		l.abortCountdown("member not ready")
	}
	l.broadcast()
	return m.ready, nil
}

// triggerHolds is the WAITING -> COUNTDOWN condition: enough members for the
// mode, and every member connected and ready.
func (l *Lobby) triggerHolds() bool {
	if len(l.members) < l.Mode.Limits().MinPlayers {
		return false
	}
	for _, m := range l.members {
		if !m.ready || !m.connected() {
			return false
		}
	}
	return true
}

func (l *Lobby) disconnect(playerID, connID uuid.UUID) {
	_, m := l.find(playerID)
	if m == nil || m.connID != connID {
		return
	}
	m.connID = uuid.Nil
	l.touch()
	l.log.WithField("player", playerID).Info("player disconnected")

	if l.hostID == playerID {
		l.migrateHost(true)
	}
	if l.state == models.StateCountdown {
		l.abortCountdown("member disconnected")
	}

	if l.settings.DisconnectGrace <= 0 && l.state != models.StateStarting {
		l.removeMember(playerID, "disconnected")
		return
	}
	l.armGrace(m)
	l.broadcast()
}

func (l *Lobby) armGrace(m *member) {
	l.stopGrace(m)
	grace := l.settings.DisconnectGrace
	if grace <= 0 {
		grace = l.settings.CountdownTick
	}
	m.graceEpoch++
	epoch, id := m.graceEpoch, m.id
	m.graceTimer = afterFunc(grace, func() {
		l.post(graceExpiredMsg{playerID: id, epoch: epoch})
	})
}

func (l *Lobby) stopGrace(m *member) {
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	m.graceEpoch++
}

func (l *Lobby) onGraceExpired(playerID uuid.UUID, epoch uint64) {
	_, m := l.find(playerID)
	if m == nil || m.graceEpoch != epoch || m.connected() {
		return
	}
	m.graceTimer = nil
	if l.state == models.StateStarting && m.slot >= 0 {
		// Membership may not shrink below the frozen slot count.
		l.armGrace(m)
		return
	}
	l.removeMember(playerID, "grace expired")
}

// migrateHost hands the host role to the oldest remaining member, or the
// oldest connected member when connectedOnly is set. The role stays put if
// nobody qualifies.
func (l *Lobby) migrateHost(connectedOnly bool) {
	for _, m := range l.members {
		if m.id == l.hostID {
			continue
		}
		if connectedOnly && !m.connected() {
			continue
		}
		l.log.WithFields(logrus.Fields{"from": l.hostID, "to": m.id}).Info("host migrated")
		l.hostID = m.id
		return
	}
}

func (l *Lobby) gameAction(playerID uuid.UUID, payload json.RawMessage) error {
	if _, m := l.find(playerID); m == nil {
		return ErrNotAMember
	}
	if l.state != models.StateInGame {
		return invalidTransition("game actions are only accepted in game")
	}
	l.touch()
	if err := l.engine.Deliver(l.ID, playerID, payload); err != nil {
		l.log.WithError(err).Warn("engine rejected game action")
		return ErrEngineUnavailable
	}
	return nil
}

func (l *Lobby) relay(typ protocol.Type, data json.RawMessage) {
	if l.state != models.StateInGame {
		l.log.WithField("type", typ).Debug("dropping engine output outside of game")
		return
	}
	env := protocol.Relay(typ, data)
	for _, m := range l.members {
		if m.connected() {
			l.transport.Send(m.id, env)
		}
	}
}

// close is the terminal transition. Members get a final CLOSED snapshot and
// are released; the registry evicts the lobby through onClosed.
func (l *Lobby) close(reason string) {
	if l.state == models.StateClosed {
		return
	}
	l.countdown.stop()
	for _, m := range l.members {
		l.stopGrace(m)
	}
	l.state = models.StateClosed
	l.broadcast()
	for _, m := range l.members {
		l.transport.Release(m.id, l.ID)
	}
	l.log.WithField("reason", reason).Info("lobby closed")
	if l.onClosed != nil {
		l.onClosed(l.ID)
	}
}

func (l *Lobby) closeIfIdle(cutoff time.Time) bool {
	if l.state.Terminal() || l.lastActivityAt.After(cutoff) {
		return false
	}
	for _, m := range l.members {
		if m.connected() {
			return false
		}
	}
	l.close("idle")
	return true
}
