package repository

import (
	"context"
	"time"
)

// TriggerGuard debounces background refresh triggers.
type TriggerGuard interface {
	// Acquire returns true if no trigger for key fired within window.
	Acquire(ctx context.Context, key string, window time.Duration) (bool, error)
	// Release drops key so the next trigger for it runs.
	Release(ctx context.Context, key string) error
}
