// Package ledger persists per-domain usage totals and hard-lock records in the
// local storage scope. Every mutation for a domain runs under that domain's
// lock so concurrent read-modify-write cycles cannot drop an update.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/moby/locker"
	"github.com/rs/zerolog"

	"github.com/goodtune/snsdetox/internal/clock"
	"github.com/goodtune/snsdetox/internal/metrics"
	"github.com/goodtune/snsdetox/internal/restriction"
	"github.com/goodtune/snsdetox/internal/storage"
)

// Ledger is the durable usage record store.
type Ledger struct {
	bucket storage.Bucket
	clock  clock.Clock
	locks  *locker.Locker
	logger zerolog.Logger
}

// New creates a ledger over the local scope bucket.
func New(bucket storage.Bucket, clk clock.Clock, logger zerolog.Logger) *Ledger {
	return &Ledger{
		bucket: bucket,
		clock:  clk,
		locks:  locker.New(),
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// Read returns the record for domain, rolling it over first if it belongs to
// a previous day. A missing record reads as zero.
func (l *Ledger) Read(ctx context.Context, domain string) (UsageRecord, error) {
	unlock := l.lock(domain)
	defer unlock()

	rec, _, err := l.loadFresh(ctx, domain)
	return rec, err
}

// Accrue adds delta to the domain total and stamps the update time.
func (l *Ledger) Accrue(ctx context.Context, domain string, delta time.Duration) (UsageRecord, error) {
	unlock := l.lock(domain)
	defer unlock()

	rec, _, err := l.loadFresh(ctx, domain)
	if err != nil {
		return rec, err
	}

	if delta > 0 {
		rec.TotalActiveMs += delta.Milliseconds()
	}
	rec.LastUpdatedAt = l.clock.Now()

	if err := l.put(ctx, domain, rec); err != nil {
		return rec, err
	}
	if delta > 0 {
		metrics.ActiveSeconds.WithLabelValues(domain).Add(delta.Seconds())
	}
	return rec, nil
}

// SetStatus stores the automatic status without touching accumulated time.
// HardLocked is never stored here; see the override records.
func (l *Ledger) SetStatus(ctx context.Context, domain string, status restriction.Status) error {
	if !status.Automatic() {
		return fmt.Errorf("status %s cannot be stored in the ledger", status)
	}

	unlock := l.lock(domain)
	defer unlock()

	rec, _, err := l.loadFresh(ctx, domain)
	if err != nil {
		return err
	}
	if rec.Status == status {
		return nil
	}

	rec.Status = status
	if rec.LastUpdatedAt.IsZero() {
		rec.LastUpdatedAt = l.clock.Now()
	}
	return l.put(ctx, domain, rec)
}

// Reset zeroes the domain and removes its override.
func (l *Ledger) Reset(ctx context.Context, domain string) error {
	unlock := l.lock(domain)
	defer unlock()

	if err := l.bucket.Delete(ctx, domain); err != nil {
		metrics.StorageErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("reset %s: %w", domain, err)
	}
	if err := l.bucket.Delete(ctx, overrideKey(domain)); err != nil {
		metrics.StorageErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("reset %s override: %w", domain, err)
	}

	l.logger.Info().Str("domain", domain).Msg("Usage reset")
	return nil
}

// RolloverIfStale resets the domain when its last update fell on an earlier
// local calendar day. It reports whether a rollover happened.
func (l *Ledger) RolloverIfStale(ctx context.Context, domain string) (bool, error) {
	unlock := l.lock(domain)
	defer unlock()

	_, rolled, err := l.loadFresh(ctx, domain)
	return rolled, err
}

// Clear removes every usage and override record.
func (l *Ledger) Clear(ctx context.Context) error {
	if err := l.bucket.Clear(ctx); err != nil {
		metrics.StorageErrors.WithLabelValues("clear").Inc()
		return fmt.Errorf("clear ledger: %w", err)
	}
	l.logger.Info().Msg("All usage data cleared")
	return nil
}

// Domains lists every domain holding a usage record, sorted.
func (l *Ledger) Domains(ctx context.Context) ([]string, error) {
	keys, err := l.bucket.Keys(ctx)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("keys").Inc()
		return nil, fmt.Errorf("list ledger keys: %w", err)
	}

	var domains []string
	for _, key := range keys {
		if strings.HasSuffix(key, OverrideSuffix) {
			continue
		}
		domains = append(domains, key)
	}
	sort.Strings(domains)
	return domains, nil
}

// Sweep rolls over every stale record and drops expired overrides. It
// returns the number of records rolled over.
func (l *Ledger) Sweep(ctx context.Context) (int, error) {
	keys, err := l.bucket.Keys(ctx)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("keys").Inc()
		return 0, fmt.Errorf("list ledger keys: %w", err)
	}

	now := l.clock.Now()
	rolled := 0
	var errs []error
	for _, key := range keys {
		if domain, ok := strings.CutSuffix(key, OverrideSuffix); ok {
			if _, err := l.DeleteOverrideIf(ctx, domain, func(o OverrideRecord) bool {
				return !o.ActiveAt(now)
			}); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		ok, err := l.RolloverIfStale(ctx, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			rolled++
		}
	}
	return rolled, errors.Join(errs...)
}

// GetOverride returns the stored override for domain without checking expiry.
func (l *Ledger) GetOverride(ctx context.Context, domain string) (OverrideRecord, bool, error) {
	unlock := l.lock(domain)
	defer unlock()
	return l.getOverride(ctx, domain)
}

// PutOverride stores an override for domain.
func (l *Ledger) PutOverride(ctx context.Context, domain string, rec OverrideRecord) error {
	unlock := l.lock(domain)
	defer unlock()

	if err := storage.PutJSON(ctx, l.bucket, overrideKey(domain), rec); err != nil {
		metrics.StorageErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("store override for %s: %w", domain, err)
	}
	return nil
}

// DeleteOverride removes the override for domain, if any.
func (l *Ledger) DeleteOverride(ctx context.Context, domain string) error {
	unlock := l.lock(domain)
	defer unlock()

	if err := l.bucket.Delete(ctx, overrideKey(domain)); err != nil {
		metrics.StorageErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("delete override for %s: %w", domain, err)
	}
	return nil
}

// DeleteOverrideIf removes the override for domain when pred accepts it. The
// check and the delete happen under the domain lock.
func (l *Ledger) DeleteOverrideIf(ctx context.Context, domain string, pred func(OverrideRecord) bool) (bool, error) {
	unlock := l.lock(domain)
	defer unlock()

	rec, ok, err := l.getOverride(ctx, domain)
	if err != nil || !ok || !pred(rec) {
		return false, err
	}
	if err := l.bucket.Delete(ctx, overrideKey(domain)); err != nil {
		metrics.StorageErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("delete override for %s: %w", domain, err)
	}
	return true, nil
}

func (l *Ledger) getOverride(ctx context.Context, domain string) (OverrideRecord, bool, error) {
	rec, err := storage.GetJSON[OverrideRecord](ctx, l.bucket, overrideKey(domain))
	if errors.Is(err, storage.ErrNotFound) {
		return OverrideRecord{}, false, nil
	}
	if err != nil {
		metrics.StorageErrors.WithLabelValues("get").Inc()
		return OverrideRecord{}, false, fmt.Errorf("read override for %s: %w", domain, err)
	}
	return *rec, true, nil
}

// loadFresh reads the record and applies the daily rollover. Callers hold the
// domain lock.
func (l *Ledger) loadFresh(ctx context.Context, domain string) (UsageRecord, bool, error) {
	stored, err := storage.GetJSON[UsageRecord](ctx, l.bucket, domain)
	if errors.Is(err, storage.ErrNotFound) {
		return zeroRecord(), false, nil
	}
	if err != nil {
		metrics.StorageErrors.WithLabelValues("get").Inc()
		return zeroRecord(), false, fmt.Errorf("read usage for %s: %w", domain, err)
	}

	rec := *stored
	if rec.Status == "" {
		rec.Status = restriction.StatusNormal
	}

	now := l.clock.Now()
	if !l.isStale(rec, now) {
		return rec, false, nil
	}

	if err := l.bucket.Delete(ctx, domain); err != nil {
		metrics.StorageErrors.WithLabelValues("delete").Inc()
		return rec, false, fmt.Errorf("roll over %s: %w", domain, err)
	}

	midnight := startOfDay(now, now.Location())
	override, ok, err := l.getOverride(ctx, domain)
	if err != nil {
		l.logger.Warn().Err(err).Str("domain", domain).Msg("Failed to read override during rollover")
	} else if ok && override.ArmedAt.Before(midnight) {
		if err := l.bucket.Delete(ctx, overrideKey(domain)); err != nil {
			metrics.StorageErrors.WithLabelValues("delete").Inc()
			l.logger.Warn().Err(err).Str("domain", domain).Msg("Failed to drop stale override")
		}
	}

	metrics.RolloversTotal.Inc()
	l.logger.Info().
		Str("domain", domain).
		Int64("total_active_ms", rec.TotalActiveMs).
		Time("last_updated_at", rec.LastUpdatedAt).
		Msg("Daily rollover")

	return zeroRecord(), true, nil
}

func (l *Ledger) isStale(rec UsageRecord, now time.Time) bool {
	if rec.LastUpdatedAt.IsZero() {
		return false
	}
	loc := now.Location()
	return startOfDay(rec.LastUpdatedAt, loc).Before(startOfDay(now, loc))
}

func (l *Ledger) put(ctx context.Context, domain string, rec UsageRecord) error {
	if err := storage.PutJSON(ctx, l.bucket, domain, rec); err != nil {
		metrics.StorageErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("write usage for %s: %w", domain, err)
	}
	return nil
}
