package tracker

import (
	"context"

	"github.com/goodtune/snsdetox/internal/clock"
	"github.com/goodtune/snsdetox/internal/restriction"
)

// engageLocked evaluates s and moves it to the state its restriction and
// focus allow: Suppressed, Tracking (possibly after the arming delay) or
// Paused.
func (t *Tracker) engageLocked(ctx context.Context, s *TabSession) {
	effective := t.applyRestrictionsLocked(ctx, s)

	switch {
	case effective.SuppressesTracking():
		t.suppressLocked(ctx, s)
	case !s.IsActive || t.paused[s.Domain] || !t.windowFocusedLocked(s.WindowID):
		if s.state == StateTracking || s.arm != nil {
			t.pauseLocked(ctx, s)
		} else {
			s.state = StatePaused
		}
	case s.state == StateTracking || s.arm != nil:
		// Already counting or about to.
	case s.state == StateUninitialized && t.config.ArmingDelay > 0:
		t.scheduleArmLocked(s)
	default:
		t.startTrackingLocked(s)
	}
}

// scheduleArmLocked starts tracking s once the arming delay has passed.
func (t *Tracker) scheduleArmLocked(s *TabSession) {
	var timer clock.Timer
	timer = t.clock.AfterFunc(t.config.ArmingDelay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		if t.sessions[s.TabID] != s || s.arm != timer {
			return
		}
		s.arm = nil
		t.startTrackingLocked(s)
	})
	s.arm = timer
}

// startTrackingLocked arms s and starts its tick. lastTickAt is stamped here
// so only time after arming counts.
func (t *Tracker) startTrackingLocked(s *TabSession) {
	s.stopTimers()
	s.state = StateTracking
	s.IsTrackingArmed = true
	s.LastTickAt = t.now()
	s.tick = t.clock.Every(t.config.TickInterval, func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		if t.sessions[s.TabID] != s || s.state != StateTracking {
			return
		}
		t.tickLocked(context.Background(), s)
	})

	t.logger.Debug().
		Int("tab_id", s.TabID).
		Str("domain", s.Domain).
		Msg("Tracking started")
}

// tickLocked accrues the time since the last tick and re-evaluates.
func (t *Tracker) tickLocked(ctx context.Context, s *TabSession) {
	if !t.windowFocusedLocked(s.WindowID) {
		s.LastTickAt = t.now()
		return
	}

	t.flushLocked(ctx, s)

	if t.applyRestrictionsLocked(ctx, s).SuppressesTracking() {
		t.suppressLocked(ctx, s)
	}
}

// flushLocked moves the foreground time since lastTickAt into the ledger.
// When the ledger write fails the time stays in LocalAccumulatedMs and is
// retried on the next flush.
func (t *Tracker) flushLocked(ctx context.Context, s *TabSession) {
	now := t.now()
	if s.IsTrackingArmed && t.windowFocusedLocked(s.WindowID) {
		if elapsed := now.Sub(s.LastTickAt); elapsed > 0 {
			s.LocalAccumulatedMs += elapsed.Milliseconds()
		}
	}
	s.LastTickAt = now
	t.drainLocked(ctx, s)
}

func (t *Tracker) drainLocked(ctx context.Context, s *TabSession) {
	if s.LocalAccumulatedMs <= 0 {
		return
	}

	pending := s.LocalAccumulatedMs
	rec, err := t.ledger.Accrue(ctx, s.Domain, msDuration(pending))
	if err != nil {
		t.logger.Warn().
			Err(err).
			Int("tab_id", s.TabID).
			Str("domain", s.Domain).
			Int64("pending_ms", pending).
			Msg("Failed to accrue usage, keeping it in memory")
		return
	}

	s.LocalAccumulatedMs = 0
	s.knownTotalMs = rec.TotalActiveMs
	s.storedStatus = rec.Status
}

// pauseLocked flushes s and stops its timers.
func (t *Tracker) pauseLocked(ctx context.Context, s *TabSession) {
	if s.state == StateTracking {
		t.flushLocked(ctx, s)
	}
	s.stopTimers()
	s.IsTrackingArmed = false
	s.state = StatePaused

	t.logger.Debug().
		Int("tab_id", s.TabID).
		Str("domain", s.Domain).
		Msg("Tracking paused")
}

// suppressLocked stops accrual because of a restriction.
func (t *Tracker) suppressLocked(ctx context.Context, s *TabSession) {
	if s.state == StateTracking {
		t.flushLocked(ctx, s)
	}
	s.stopTimers()
	s.IsTrackingArmed = false
	s.state = StateSuppressed
}

// refreshLocked reloads the durable total for s. On failure the in-memory
// view is kept.
func (t *Tracker) refreshLocked(ctx context.Context, s *TabSession) {
	rec, err := t.ledger.Read(ctx, s.Domain)
	if err != nil {
		t.logger.Warn().Err(err).Str("domain", s.Domain).Msg("Failed to read usage, using in-memory total")
		return
	}
	s.knownTotalMs = rec.TotalActiveMs
	s.storedStatus = rec.Status
}

// resetSessionLocked forgets everything s knew about its domain's usage.
func resetSessionLocked(s *TabSession) {
	s.stopTimers()
	s.LocalAccumulatedMs = 0
	s.knownTotalMs = 0
	s.storedStatus = restriction.StatusNormal
	s.IsTrackingArmed = false
	s.state = StatePaused
}
