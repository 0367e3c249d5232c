// Package queue delivers scrape job payloads to handlers at least once, with a
// dispatch delay, exponential retry backoff and an exhaustion hook.
package queue

import (
	"context"
	"time"

	"github.com/user/catalog-service/internal/entity"
)

// Envelope is the queue's delivery record around a payload.
type Envelope struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Payload     entity.JobPayload `json:"payload"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"maxAttempts"`
	Backoff     time.Duration     `json:"backoff"`
	EnqueuedAt  time.Time         `json:"enqueuedAt"`
	LastError   string            `json:"lastError,omitempty"`
}

// Store persists envelopes between submission and acknowledgement.
// Implementations must be safe for concurrent use.
type Store interface {
	// Add stores env to become due at runAt. It returns false without changing
	// anything when an envelope with the same ID is already stored.
	Add(ctx context.Context, env *Envelope, runAt time.Time) (bool, error)
	// Claim hands out up to limit envelopes due at now. Claimed envelopes are not
	// handed out again until rescheduled, or until the store's visibility timeout lapses.
	Claim(ctx context.Context, now time.Time, limit int) ([]*Envelope, error)
	// Reschedule stores the updated env and makes it due again at runAt.
	Reschedule(ctx context.Context, env *Envelope, runAt time.Time) error
	// Remove acknowledges an envelope.
	Remove(ctx context.Context, id string) error
	// Len returns the number of stored envelopes, claimed or not.
	Len(ctx context.Context) (int64, error)
}
