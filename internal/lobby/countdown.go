package lobby

import (
	"time"

	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/sirupsen/logrus"
)

var afterFunc = time.AfterFunc

// countdown is the lobby's pre-game timer. Every tick and cancellation bumps
// epoch; a tick carrying an older epoch was scheduled for a countdown that no
// longer exists and is dropped.
type countdown struct {
	epoch     uint64
	remaining int
	timer     *time.Timer
	running   bool
}

func (c *countdown) stop() {
	c.epoch++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.running = false
}

func (l *Lobby) startCountdown() {
	if l.countdown.running {
		return
	}
	l.countdown.stop()
	l.countdown.running = true
	l.countdown.remaining = l.settings.CountdownSeconds
	l.state = models.StateCountdown
	l.scheduleTick()
	l.log.WithField("seconds", l.countdown.remaining).Info("countdown started")
}

func (l *Lobby) scheduleTick() {
	epoch := l.countdown.epoch
	l.countdown.timer = afterFunc(l.settings.CountdownTick, func() {
		l.post(countdownTickMsg{epoch: epoch})
	})
}

// abortCountdown cancels a running countdown and returns the lobby to WAITING.
// The caller broadcasts.
func (l *Lobby) abortCountdown(reason string) {
	l.countdown.stop()
	l.countdown.remaining = 0
	l.state = models.StateWaiting
	l.log.WithField("reason", reason).Info("countdown cancelled")
}

func (l *Lobby) onCountdownTick(epoch uint64) {
	if !l.countdown.running || epoch != l.countdown.epoch || l.state != models.StateCountdown {
		return
	}
	l.countdown.timer = nil
	l.countdown.remaining--
	if l.countdown.remaining > 0 {
		l.broadcast()
		l.scheduleTick()
		return
	}

	l.countdown.stop()
	if !l.triggerHolds() {
		l.abortCountdown("trigger lost at zero")
		l.broadcast()
		return
	}
	l.log.WithFields(logrus.Fields{"members": len(l.members)}).Info("countdown finished")
	l.beginHandoff()
}
