package ledger

import (
	"time"

	"github.com/goodtune/snsdetox/internal/restriction"
)

// OverrideSuffix is appended to a domain to form its override key.
const OverrideSuffix = "_restriction"

// UsageRecord is the durable per-domain usage total.
type UsageRecord struct {
	TotalActiveMs int64              `json:"totalActiveMs"`
	LastUpdatedAt time.Time          `json:"lastUpdatedAt"`
	Status        restriction.Status `json:"status"`
}

// Total returns the accumulated time as a duration.
func (r UsageRecord) Total() time.Duration {
	return time.Duration(r.TotalActiveMs) * time.Millisecond
}

// OverrideRecord is a persisted hard lock.
type OverrideRecord struct {
	ExpiresAt time.Time `json:"expiresAt"`
	ArmedAt   time.Time `json:"armedAt"`
}

// ActiveAt reports whether the override still applies at now.
func (o OverrideRecord) ActiveAt(now time.Time) bool {
	return now.Before(o.ExpiresAt)
}

// Remaining returns the time left before expiry, never negative.
func (o OverrideRecord) Remaining(now time.Time) time.Duration {
	if d := o.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

func zeroRecord() UsageRecord {
	return UsageRecord{Status: restriction.StatusNormal}
}

func overrideKey(domain string) string {
	return domain + OverrideSuffix
}

// startOfDay returns local midnight for t in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
