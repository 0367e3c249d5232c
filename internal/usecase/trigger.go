package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/metrics"
)

const (
	defaultTriggerTimeout = 30 * time.Second
	guardReleaseTimeout   = 2 * time.Second
)

type triggerFailure struct {
	operation string
	key       string
	err       error
}

// Trigger runs background refreshes for read paths. Each call gets its own
// goroutine and context, detached from the request that fired it; failures go
// to an error channel that only the logger reads.
type Trigger struct {
	guard    repository.TriggerGuard
	debounce time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	errs    chan triggerFailure
	drained chan struct{}
}

// TriggerOption configures a Trigger.
type TriggerOption func(*Trigger)

// WithTriggerGuard skips triggers for a key already fired within window.
// Guard errors let the trigger through, and a failed refresh releases its key.
func WithTriggerGuard(guard repository.TriggerGuard, window time.Duration) TriggerOption {
	return func(t *Trigger) {
		t.guard = guard
		t.debounce = window
	}
}

// WithTriggerTimeout bounds each background call.
func WithTriggerTimeout(d time.Duration) TriggerOption {
	return func(t *Trigger) {
		if d > 0 {
			t.timeout = d
		}
	}
}

func NewTrigger(logger *zap.Logger, opts ...TriggerOption) *Trigger {
	t := &Trigger{
		timeout: defaultTriggerTimeout,
		logger:  logger.Named("trigger"),
		errs:    make(chan triggerFailure, 64),
		drained: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.logFailures()
	return t
}

// Fire runs fn in the background and returns at once. ctx only contributes
// its values; its cancellation does not reach fn.
func (t *Trigger) Fire(ctx context.Context, operation, key string, fn func(ctx context.Context) error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		t.logger.Warn("Trigger closed, dropping background refresh", zap.String("operation", operation), zap.String("key", key))
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
		defer cancel()

		if err := t.run(bgCtx, operation, key, fn); err != nil {
			t.errs <- triggerFailure{operation: operation, key: key, err: err}
		}
	}()
}

func (t *Trigger) run(ctx context.Context, operation, key string, fn func(ctx context.Context) error) (err error) {
	if t.guard == nil {
		return callRecovered(ctx, fn)
	}

	guardKey := operation + ":" + key
	ok, gerr := t.guard.Acquire(ctx, guardKey, t.debounce)
	switch {
	case gerr != nil:
		t.logger.Warn("Trigger guard unavailable", zap.String("operation", operation), zap.Error(gerr))
		return callRecovered(ctx, fn)
	case !ok:
		t.logger.Debug("Background refresh debounced", zap.String("operation", operation), zap.String("key", key))
		return nil
	}

	defer func() {
		if err == nil {
			return
		}
		// A failed refresh must not hold the key for the rest of the window.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), guardReleaseTimeout)
		defer cancel()
		if rerr := t.guard.Release(relCtx, guardKey); rerr != nil {
			t.logger.Warn("Failed to release trigger guard", zap.String("operation", operation), zap.Error(rerr))
		}
	}()
	return callRecovered(ctx, fn)
}

func callRecovered(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("background refresh panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (t *Trigger) logFailures() {
	defer close(t.drained)
	for f := range t.errs {
		metrics.BackgroundTriggerErrors.WithLabelValues(f.operation).Inc()
		t.logger.Error("Background refresh failed",
			zap.String("operation", f.operation),
			zap.String("key", f.key),
			zap.Error(f.err),
		)
	}
}

// Wait blocks until every fired refresh has returned.
func (t *Trigger) Wait() {
	t.wg.Wait()
}

// Close stops accepting triggers, waits for running ones and flushes the error log.
func (t *Trigger) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.wg.Wait()
	close(t.errs)
	<-t.drained
}
