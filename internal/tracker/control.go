package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/snsdetox/internal/ledger"
	"github.com/goodtune/snsdetox/internal/restriction"
	"github.com/goodtune/snsdetox/internal/settings"
)

// ResetDomain zeroes the ledger for d, clears any hard lock and page pause,
// and tells every tab on d to return to Normal.
func (t *Tracker) ResetDomain(ctx context.Context, d string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ledger.Reset(ctx, d); err != nil {
		return err
	}
	t.cancelExpiryLocked(d)
	delete(t.paused, d)

	for _, s := range t.sessionsForLocked(d) {
		t.announceResetLocked(ctx, s)
	}
	return nil
}

// ResetAll clears the whole local usage store and returns every tab to
// Normal.
func (t *Tracker) ResetAll(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ledger.Clear(ctx); err != nil {
		return err
	}
	for d := range t.expiry {
		t.cancelExpiryLocked(d)
	}
	t.paused = make(map[string]bool)

	for _, s := range t.sessions {
		t.announceResetLocked(ctx, s)
	}
	return nil
}

// announceResetLocked sends Normal then resetComplete, and resumes tracking
// without the arming delay.
func (t *Tracker) announceResetLocked(ctx context.Context, s *TabSession) {
	resetSessionLocked(s)
	s.LastStatus = restriction.StatusNormal
	t.notifyLocked(s.TabID, Message{Action: ActionUpdateRestriction, Status: restriction.StatusNormal})
	t.notifyLocked(s.TabID, Message{Action: ActionResetComplete})
	t.engageLocked(ctx, s)
}

// SettingsUpdated swaps in next and reconciles every known tab against it:
// sessions for domains no longer monitored are closed, newly monitored tabs
// get a session, and the rest are re-evaluated with their new thresholds.
func (t *Tracker) SettingsUpdated(ctx context.Context, next settings.Settings) error {
	if err := t.settings.Replace(next); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.sessions {
		if t.settings.IsMonitored(s.Domain) {
			continue
		}
		t.closeSessionLocked(ctx, s)
		t.notifyLocked(s.TabID, Message{Action: ActionUpdateRestriction, Status: restriction.StatusNormal})
	}

	for tabID := range t.tabs {
		if s, ok := t.sessions[tabID]; ok {
			if s.state == StateTracking {
				t.flushLocked(ctx, s)
			}
			t.engageLocked(ctx, s)
			continue
		}
		t.openSessionLocked(ctx, tabID)
	}
	return nil
}

// PauseDomain stops accrual on every tab of d until ResumeDomain.
func (t *Tracker) PauseDomain(ctx context.Context, d string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.paused[d] = true
	for _, s := range t.sessionsForLocked(d) {
		if s.state == StateTracking || s.arm != nil {
			t.pauseLocked(ctx, s)
		}
	}
	t.logger.Info().Str("domain", d).Msg("Tracking paused from page")
	return nil
}

// ResumeDomain lifts a page pause and re-evaluates the tabs of d.
func (t *Tracker) ResumeDomain(ctx context.Context, d string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.paused, d)
	for _, s := range t.sessionsForLocked(d) {
		t.refreshLocked(ctx, s)
		t.engageLocked(ctx, s)
	}
	t.logger.Info().Str("domain", d).Msg("Tracking resumed from page")
	return nil
}

// ArmOverride hard locks d for duration. Tabs on d are flushed and
// suppressed before this returns.
func (t *Tracker) ArmOverride(ctx context.Context, d string, duration time.Duration) (ledger.OverrideRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sessions := t.sessionsForLocked(d)
	for _, s := range sessions {
		if s.state == StateTracking {
			t.flushLocked(ctx, s)
		}
	}

	rec, err := t.overrides.Arm(ctx, d, duration)
	if err != nil {
		return ledger.OverrideRecord{}, fmt.Errorf("arm hard lock on %s: %w", d, err)
	}
	t.scheduleExpiryLocked(d, rec)

	for _, s := range sessions {
		t.engageLocked(ctx, s)
	}
	return rec, nil
}

// ClearOverride lifts a hard lock on d. The automatic status takes over and
// foreground tabs resume tracking.
func (t *Tracker) ClearOverride(ctx context.Context, d string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.overrides.Clear(ctx, d); err != nil {
		return fmt.Errorf("clear hard lock on %s: %w", d, err)
	}
	t.cancelExpiryLocked(d)

	for _, s := range t.sessionsForLocked(d) {
		t.refreshLocked(ctx, s)
		t.engageLocked(ctx, s)
	}
	return nil
}

// Status reports the effective status of the tab's domain with a fresh
// override check. Unmonitored tabs report Normal.
func (t *Tracker) Status(ctx context.Context, tabID int) (Report, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[tabID]; ok {
		if s.state == StateTracking {
			t.flushLocked(ctx, s)
		} else {
			t.refreshLocked(ctx, s)
		}
		return t.reportLocked(ctx, s.Domain, s.totalMs()), nil
	}

	if _, ok := t.tabs[tabID]; ok {
		return Report{Status: restriction.StatusNormal}, nil
	}
	return Report{Status: restriction.StatusNormal}, fmt.Errorf("%w: %d", ErrUnknownTab, tabID)
}

// DomainStatus reports the effective status of d from the ledger.
func (t *Tracker) DomainStatus(ctx context.Context, d string) Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.domainReportLocked(ctx, d)
}

// Sites lists every ledger record for a monitored domain.
func (t *Tracker) Sites(ctx context.Context) ([]Report, error) {
	domains, err := t.ledger.Domains(ctx)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	reports := make([]Report, 0, len(domains))
	for _, d := range domains {
		if !t.settings.IsMonitored(d) {
			continue
		}
		reports = append(reports, t.domainReportLocked(ctx, d))
	}
	return reports, nil
}

func (t *Tracker) domainReportLocked(ctx context.Context, d string) Report {
	var total int64
	rec, err := t.ledger.Read(ctx, d)
	if err != nil {
		t.logger.Warn().Err(err).Str("domain", d).Msg("Failed to read usage")
	} else {
		total = rec.TotalActiveMs
	}

	// Include time live sessions have not written yet.
	for _, s := range t.sessionsForLocked(d) {
		total += s.LocalAccumulatedMs
	}
	return t.reportLocked(ctx, d, total)
}

func (t *Tracker) reportLocked(ctx context.Context, d string, totalMs int64) Report {
	th := t.settings.ThresholdsFor(d)
	automatic := restriction.Evaluate(msDuration(totalMs), th)
	rec, locked := t.activeOverrideLocked(ctx, d)

	report := Report{
		Domain:        d,
		Status:        restriction.Effective(automatic, locked),
		TotalActiveMs: totalMs,
		GrayscaleMs:   th.Grayscale.Milliseconds(),
		BlockMs:       th.Block.Milliseconds(),
	}
	if locked {
		expires := rec.ExpiresAt
		report.OverrideExpiresAt = &expires
	}
	return report
}
