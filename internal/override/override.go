// Package override manages user-armed, time-boxed hard locks.
package override

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/snsdetox/internal/clock"
	"github.com/goodtune/snsdetox/internal/ledger"
	"github.com/goodtune/snsdetox/internal/metrics"
)

// Manager arms and inspects overrides stored in the ledger.
type Manager struct {
	ledger *ledger.Ledger
	clock  clock.Clock
	logger zerolog.Logger
}

// NewManager creates a new override manager.
func NewManager(l *ledger.Ledger, clk clock.Clock, logger zerolog.Logger) *Manager {
	return &Manager{
		ledger: l,
		clock:  clk,
		logger: logger.With().Str("component", "override").Logger(),
	}
}

// Arm persists a hard lock on domain lasting d and returns the stored record.
func (m *Manager) Arm(ctx context.Context, domain string, d time.Duration) (ledger.OverrideRecord, error) {
	if d <= 0 {
		return ledger.OverrideRecord{}, fmt.Errorf("override duration must be positive, got %s", d)
	}

	now := m.clock.Now()
	rec := ledger.OverrideRecord{
		ArmedAt:   now,
		ExpiresAt: now.Add(d),
	}
	if err := m.ledger.PutOverride(ctx, domain, rec); err != nil {
		return ledger.OverrideRecord{}, err
	}

	metrics.OverridesArmed.WithLabelValues(domain).Inc()
	m.logger.Info().
		Str("domain", domain).
		Time("expires_at", rec.ExpiresAt).
		Msg("Hard lock armed")

	return rec, nil
}

// Active returns the override for domain if one is in force. Expired records
// are deleted on the way out.
func (m *Manager) Active(ctx context.Context, domain string) (ledger.OverrideRecord, bool, error) {
	rec, ok, err := m.ledger.GetOverride(ctx, domain)
	if err != nil || !ok {
		return ledger.OverrideRecord{}, false, err
	}

	now := m.clock.Now()
	if rec.ActiveAt(now) {
		return rec, true, nil
	}

	deleted, err := m.ledger.DeleteOverrideIf(ctx, domain, func(current ledger.OverrideRecord) bool {
		return !current.ActiveAt(now)
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("domain", domain).Msg("Failed to delete expired hard lock")
	} else if deleted {
		m.logger.Info().Str("domain", domain).Msg("Hard lock expired")
	}
	return ledger.OverrideRecord{}, false, nil
}

// IsActive reports whether domain is hard locked right now. Storage failures
// read as "not locked".
func (m *Manager) IsActive(ctx context.Context, domain string) bool {
	_, ok, err := m.Active(ctx, domain)
	if err != nil {
		m.logger.Warn().Err(err).Str("domain", domain).Msg("Failed to read hard lock")
		return false
	}
	return ok
}

// Clear removes any hard lock on domain.
func (m *Manager) Clear(ctx context.Context, domain string) error {
	if err := m.ledger.DeleteOverride(ctx, domain); err != nil {
		return err
	}
	m.logger.Info().Str("domain", domain).Msg("Hard lock cleared")
	return nil
}
