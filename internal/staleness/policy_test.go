package staleness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsExpired_NeverScraped(t *testing.T) {
	now := time.Now()
	for _, ttl := range []time.Duration{0, time.Minute, 60 * time.Minute, 24 * time.Hour} {
		assert.True(t, IsExpired(nil, ttl, now), "ttl=%s", ttl)
	}
}

func TestIsExpired_AroundTTL(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	ttl := 60 * time.Minute

	older := now.Add(-(ttl + time.Minute))
	younger := now.Add(-(ttl - time.Minute))
	exact := now.Add(-ttl)

	assert.True(t, IsExpired(&older, ttl, now))
	assert.False(t, IsExpired(&younger, ttl, now))
	assert.False(t, IsExpired(&exact, ttl, now), "expiry is strictly after ttl")
}

func TestPolicy_DefaultsAndClock(t *testing.T) {
	p := NewPolicy(0)
	assert.Equal(t, DefaultTTL, p.TTL())

	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	p = NewPolicy(30 * time.Minute).WithClock(func() time.Time { return fixed })

	fresh := fixed.Add(-10 * time.Minute)
	stale := fixed.Add(-2 * time.Hour)

	assert.False(t, p.IsExpired(&fresh))
	assert.True(t, p.IsExpired(&stale))
	assert.False(t, p.AnyExpired(&fresh, &fresh))
	assert.True(t, p.AnyExpired(&fresh, nil))
	assert.False(t, p.AnyExpired())
}
