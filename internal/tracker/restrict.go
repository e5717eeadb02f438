package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/goodtune/snsdetox/internal/clock"
	"github.com/goodtune/snsdetox/internal/ledger"
	"github.com/goodtune/snsdetox/internal/metrics"
	"github.com/goodtune/snsdetox/internal/restriction"
)

// applyRestrictionsLocked computes the effective status for s. A changed
// automatic status is written to the ledger; a changed effective status is
// sent to this tab only.
func (t *Tracker) applyRestrictionsLocked(ctx context.Context, s *TabSession) restriction.Status {
	th := t.settings.ThresholdsFor(s.Domain)
	automatic := restriction.Evaluate(msDuration(s.totalMs()), th)

	if automatic != s.storedStatus {
		if err := t.ledger.SetStatus(ctx, s.Domain, automatic); err != nil {
			t.logger.Warn().Err(err).Str("domain", s.Domain).Msg("Failed to persist status")
		} else {
			s.storedStatus = automatic
		}
	}

	_, locked := t.activeOverrideLocked(ctx, s.Domain)
	effective := restriction.Effective(automatic, locked)

	if effective != s.LastStatus {
		t.logger.Info().
			Int("tab_id", s.TabID).
			Str("domain", s.Domain).
			Str("status", string(effective)).
			Int64("total_active_ms", s.totalMs()).
			Msg("Restriction changed")
		metrics.StatusTransitions.WithLabelValues(s.Domain, string(effective)).Inc()
		s.LastStatus = effective
		t.notifyLocked(s.TabID, Message{Action: ActionUpdateRestriction, Status: effective})
	}
	return effective
}

// activeOverrideLocked reports the in-force override for d and makes sure an
// expiry timer is pending for it.
func (t *Tracker) activeOverrideLocked(ctx context.Context, d string) (ledger.OverrideRecord, bool) {
	rec, ok, err := t.overrides.Active(ctx, d)
	if err != nil {
		t.logger.Warn().Err(err).Str("domain", d).Msg("Failed to read hard lock")
		return ledger.OverrideRecord{}, false
	}
	if !ok {
		return ledger.OverrideRecord{}, false
	}
	if _, scheduled := t.expiry[d]; !scheduled {
		t.scheduleExpiryLocked(d, rec)
	}
	return rec, true
}

// scheduleExpiryLocked re-evaluates every tab on d when its override ends.
func (t *Tracker) scheduleExpiryLocked(d string, rec ledger.OverrideRecord) {
	if timer, ok := t.expiry[d]; ok {
		timer.Stop()
	}

	var timer clock.Timer
	timer = t.clock.AfterFunc(rec.Remaining(t.now()), func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		if t.expiry[d] != timer {
			return
		}
		delete(t.expiry, d)

		t.logger.Info().Str("domain", d).Msg("Hard lock ended, re-evaluating tabs")
		ctx := context.Background()
		for _, s := range t.sessionsForLocked(d) {
			t.engageLocked(ctx, s)
		}
	})
	t.expiry[d] = timer
}

func (t *Tracker) cancelExpiryLocked(d string) {
	if timer, ok := t.expiry[d]; ok {
		timer.Stop()
		delete(t.expiry, d)
	}
}

// notifyLocked sends msg to a tab. Delivery failures are never fatal.
func (t *Tracker) notifyLocked(tabID int, msg Message) {
	err := t.notifier.Send(tabID, msg)
	switch {
	case err == nil:
		metrics.NotificationsTotal.WithLabelValues(msg.Action, "sent").Inc()
	case errors.Is(err, ErrTabUnreachable):
		metrics.NotificationsTotal.WithLabelValues(msg.Action, "unreachable").Inc()
		t.logger.Debug().Int("tab_id", tabID).Str("action", msg.Action).Msg("Tab unreachable")
	default:
		metrics.NotificationsTotal.WithLabelValues(msg.Action, "error").Inc()
		t.logger.Warn().Err(err).Int("tab_id", tabID).Str("action", msg.Action).Msg("Failed to notify tab")
	}
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
