package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/pkg/metrics"
)

const (
	defaultAttempts     = 3
	defaultBackoff      = 5 * time.Second
	defaultConcurrency  = 1
	defaultPollInterval = 500 * time.Millisecond
)

// Handler processes one delivered payload. A returned error makes the queue
// retry the payload, or report it as exhausted once attempts run out.
type Handler func(ctx context.Context, payload entity.JobPayload) error

// ExhaustedFunc is called once per payload whose attempts ran out.
type ExhaustedFunc func(ctx context.Context, payload entity.JobPayload, err error)

// Options configures a Queue. Zero values fall back to defaults.
type Options struct {
	// Attempts is the total number of deliveries, including the first one.
	Attempts int
	// Backoff is the base of the exponential retry delay.
	Backoff time.Duration
	// Concurrency bounds the number of handlers running at once.
	Concurrency int
	// PollInterval is how often Run looks for due envelopes.
	PollInterval time.Duration
	// JobTimeout bounds a single handler call. Zero means no limit.
	JobTimeout time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = defaultAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = defaultBackoff
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// SubmitOptions controls a single submission.
type SubmitOptions struct {
	// ID keys the envelope. Submitting an ID that is still queued is a no-op.
	ID string
	// Delay postpones the first delivery.
	Delay time.Duration
}

// Queue schedules payloads on a Store and delivers them to registered handlers.
type Queue struct {
	name   string
	store  Store
	opts   Options
	logger *zap.Logger

	mu          sync.RWMutex
	handlers    map[string]Handler
	onError     func(error)
	onExhausted ExhaustedFunc

	sem chan struct{}
	wg  sync.WaitGroup
}

// New creates a queue named name on top of store.
func New(name string, store Store, opts Options, logger *zap.Logger) *Queue {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		name:     name,
		store:    store,
		opts:     opts,
		logger:   logger.Named("queue").With(zap.String("queue", name)),
		handlers: make(map[string]Handler),
		sem:      make(chan struct{}, opts.Concurrency),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Handle registers h for envelopes named name (a target type).
func (q *Queue) Handle(name string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = h
}

// OnError sets the hook for storage and bookkeeping errors.
func (q *Queue) OnError(fn func(error)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onError = fn
}

// OnExhausted sets the hook for payloads that will not be retried again.
func (q *Queue) OnExhausted(fn ExhaustedFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onExhausted = fn
}

// Submit queues payload under opts.ID. It reports false when that ID was already queued.
func (q *Queue) Submit(ctx context.Context, payload entity.JobPayload, opts SubmitOptions) (bool, error) {
	if opts.ID == "" {
		return false, errors.New("queue: submission id is required")
	}
	now := q.opts.Now()
	env := &Envelope{
		ID:          opts.ID,
		Name:        string(payload.TargetType),
		Payload:     payload,
		MaxAttempts: q.opts.Attempts,
		Backoff:     q.opts.Backoff,
		EnqueuedAt:  now,
	}
	added, err := q.store.Add(ctx, env, now.Add(opts.Delay))
	if err != nil {
		return false, fmt.Errorf("failed to add envelope %s: %w", opts.ID, err)
	}
	if !added {
		q.logger.Debug("Envelope already queued", zap.String("id", opts.ID))
	}
	return added, nil
}

// Run polls for due envelopes until ctx is cancelled, then waits for running handlers.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.Info("Queue workers started",
		zap.Int("concurrency", q.opts.Concurrency),
		zap.Int("attempts", q.opts.Attempts),
		zap.Duration("backoff", q.opts.Backoff),
	)

	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		q.poll(ctx)
		select {
		case <-ctx.Done():
			q.wg.Wait()
			q.logger.Info("Queue workers stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessDue claims what is due now, handles it and returns once every claimed
// envelope has been acked, rescheduled or exhausted.
func (q *Queue) ProcessDue(ctx context.Context) (int, error) {
	envs, err := q.store.Claim(ctx, q.opts.Now(), q.opts.Concurrency)
	if err != nil {
		return 0, fmt.Errorf("failed to claim envelopes: %w", err)
	}

	var wg sync.WaitGroup
	for _, env := range envs {
		wg.Add(1)
		go func(env *Envelope) {
			defer wg.Done()
			q.execute(ctx, env)
		}(env)
	}
	wg.Wait()
	q.observeDepth(ctx)
	return len(envs), nil
}

func (q *Queue) poll(ctx context.Context) {
	free := cap(q.sem) - len(q.sem)
	if free <= 0 {
		return
	}

	envs, err := q.store.Claim(ctx, q.opts.Now(), free)
	if err != nil {
		if ctx.Err() == nil {
			q.reportError(fmt.Errorf("failed to claim envelopes: %w", err))
		}
		return
	}

	for _, env := range envs {
		q.sem <- struct{}{}
		q.wg.Add(1)
		go func(env *Envelope) {
			defer func() {
				<-q.sem
				q.wg.Done()
			}()
			q.execute(ctx, env)
		}(env)
	}
	q.observeDepth(ctx)
}

func (q *Queue) execute(ctx context.Context, env *Envelope) {
	// Bookkeeping must finish even while the worker loop shuts down.
	bookCtx := context.WithoutCancel(ctx)

	env.Attempts++
	err := q.invoke(ctx, env)
	if err == nil {
		if rmErr := q.store.Remove(bookCtx, env.ID); rmErr != nil {
			q.reportError(fmt.Errorf("failed to ack envelope %s: %w", env.ID, rmErr))
		}
		return
	}

	if IsPermanent(err) || env.Attempts >= env.MaxAttempts {
		if rmErr := q.store.Remove(bookCtx, env.ID); rmErr != nil {
			q.reportError(fmt.Errorf("failed to remove exhausted envelope %s: %w", env.ID, rmErr))
		}
		q.logger.Warn("Envelope exhausted",
			zap.String("id", env.ID),
			zap.String("name", env.Name),
			zap.Int("attempts", env.Attempts),
			zap.Error(err),
		)
		q.exhausted(bookCtx, env.Payload, err)
		return
	}

	env.LastError = err.Error()
	delay := ExponentialBackoff(env.Backoff, env.Attempts)
	if rsErr := q.store.Reschedule(bookCtx, env, q.opts.Now().Add(delay)); rsErr != nil {
		q.reportError(fmt.Errorf("failed to reschedule envelope %s: %w", env.ID, rsErr))
		return
	}
	q.logger.Info("Envelope scheduled for retry",
		zap.String("id", env.ID),
		zap.Int("attempt", env.Attempts),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
}

func (q *Queue) invoke(ctx context.Context, env *Envelope) (err error) {
	q.mu.RLock()
	h := q.handlers[env.Name]
	q.mu.RUnlock()
	if h == nil {
		return Permanent(fmt.Errorf("%w: %q", ErrNoHandler, env.Name))
	}

	// Handlers run to completion across shutdown; Run drains them.
	hctx := context.WithoutCancel(ctx)
	if q.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(hctx, q.opts.JobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(hctx, env.Payload)
}

func (q *Queue) exhausted(ctx context.Context, payload entity.JobPayload, err error) {
	q.mu.RLock()
	fn := q.onExhausted
	q.mu.RUnlock()
	if fn != nil {
		fn(ctx, payload, err)
	}
}

func (q *Queue) reportError(err error) {
	q.mu.RLock()
	fn := q.onError
	q.mu.RUnlock()
	if fn != nil {
		fn(err)
		return
	}
	q.logger.Error("Queue error", zap.Error(err))
}

func (q *Queue) observeDepth(ctx context.Context) {
	n, err := q.store.Len(context.WithoutCancel(ctx))
	if err != nil {
		return
	}
	metrics.QueueDepth.WithLabelValues(q.name).Set(float64(n))
}
