package game

import (
	"time"

	"go.uber.org/zap"

	"github.com/avasile/uttt-server/pkg/events"
)

// tickInterval is the clock loop cadence.
const tickInterval = time.Second

// runClockLoop debits the on-turn player's clock once per second until the
// session turns terminal. It is started when the session enters in-progress
// and torn down by the terminal transition closing the done channel.
func (s *Session) runClockLoop() {
	ticker := s.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.Chan():
			s.tick()
		}
	}
}

// tick applies one clock debit. The loop is the sole writer of clock values
// outside the increment-on-move credit.
func (s *Session) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusInProgress {
		return
	}

	now := s.clock.Now()
	if s.lastTick.IsZero() {
		// First tick only primes the timestamp; never debit across a gap
		// where no baseline exists.
		s.lastTick = now
		s.broadcastLocked()
		return
	}

	elapsed := now.Sub(s.lastTick).Milliseconds()
	s.lastTick = now

	if s.slots[s.turn] == nil {
		// No slot on turn; nothing to debit, still push the time.
		s.broadcastLocked()
		return
	}

	s.clocks[s.turn] -= elapsed
	if s.clocks[s.turn] <= 0 {
		s.clocks[s.turn] = 0
		flagged := s.turn
		s.decideLocked(symbolOf(1-flagged), ReasonTimeout)
		s.logger.Info("player flagged",
			zap.String("session_id", s.ID.String()),
			zap.Int("slot", flagged),
		)
	}

	s.publisher.Publish(events.Event{
		Type:      events.EventClockTick,
		SessionID: s.ID.String(),
	})

	s.broadcastLocked()
}
