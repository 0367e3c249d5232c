// Package staleness decides when cached catalog data is old enough to refresh.
package staleness

import "time"

// DefaultTTL is used when no positive TTL is configured.
const DefaultTTL = 60 * time.Minute

// IsExpired reports whether data last refreshed at lastRefreshedAt is past ttl at now.
// Data that was never refreshed is always expired.
func IsExpired(lastRefreshedAt *time.Time, ttl time.Duration, now time.Time) bool {
	if lastRefreshedAt == nil {
		return true
	}
	return now.After(lastRefreshedAt.Add(ttl))
}

// Policy binds a TTL and a clock.
type Policy struct {
	ttl time.Duration
	now func() time.Time
}

// NewPolicy creates a Policy using the wall clock.
func NewPolicy(ttl time.Duration) *Policy {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Policy{ttl: ttl, now: time.Now}
}

// WithClock returns a copy of p that reads time from now.
func (p *Policy) WithClock(now func() time.Time) *Policy {
	cp := *p
	cp.now = now
	return &cp
}

// TTL returns the configured maximum age.
func (p *Policy) TTL() time.Duration {
	return p.ttl
}

// IsExpired applies IsExpired with the policy's TTL and clock.
func (p *Policy) IsExpired(lastRefreshedAt *time.Time) bool {
	return IsExpired(lastRefreshedAt, p.ttl, p.now())
}

// AnyExpired reports whether at least one of the timestamps is expired.
func (p *Policy) AnyExpired(timestamps ...*time.Time) bool {
	now := p.now()
	for _, ts := range timestamps {
		if IsExpired(ts, p.ttl, now) {
			return true
		}
	}
	return false
}
