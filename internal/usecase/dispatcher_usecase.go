package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/queue"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/internal/scraper"
	"github.com/user/catalog-service/pkg/metrics"
)

// Dispatcher runs the scrape routine for each delivered job and keeps the job
// record in step: processing while it runs, completed on success, and failed
// once the queue gives up on it.
type Dispatcher struct {
	jobs   repository.ScrapeJobRepository
	logger *zap.Logger

	mu       sync.RWMutex
	routines map[entity.TargetType]scraper.Scraper
}

func NewDispatcher(jobs repository.ScrapeJobRepository, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		jobs:     jobs,
		logger:   logger.Named("dispatcher"),
		routines: make(map[entity.TargetType]scraper.Scraper),
	}
}

// Register sets the routine for a target type.
func (d *Dispatcher) Register(targetType entity.TargetType, routine scraper.Scraper) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routines[targetType] = routine
}

// Bind registers the dispatcher with q for every target type, plus the
// exhaustion and error hooks.
func (d *Dispatcher) Bind(q *queue.Queue) {
	for _, t := range entity.TargetTypes() {
		q.Handle(string(t), d.Handle)
	}
	q.OnExhausted(d.OnExhausted)
	q.OnError(func(err error) {
		d.logger.Error("Queue error", zap.Error(err))
	})
}

// Handle processes one delivery. A returned error asks the queue to retry.
func (d *Dispatcher) Handle(ctx context.Context, payload entity.JobPayload) error {
	log := d.logger.With(
		zap.String("job_id", payload.JobID),
		zap.String("target_type", string(payload.TargetType)),
	)

	job, err := d.jobs.FindByID(ctx, payload.JobID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("Scrape job record missing, dropping delivery")
		metrics.JobsProcessed.WithLabelValues(string(payload.TargetType), "skipped").Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", payload.JobID, err)
	}
	if job.Status.IsTerminal() {
		log.Debug("Scrape job already finished, ignoring re-delivery", zap.String("status", string(job.Status)))
		metrics.JobsProcessed.WithLabelValues(string(payload.TargetType), "skipped").Inc()
		return nil
	}

	d.mu.RLock()
	routine := d.routines[payload.TargetType]
	d.mu.RUnlock()
	if routine == nil {
		return queue.Permanent(fmt.Errorf("%w: no routine for %q", ErrInvalidTargetType, payload.TargetType))
	}

	if err := d.jobs.UpdateStatus(ctx, job.ID, entity.ScrapeJobStatusProcessing, ""); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			log.Debug("Scrape job finished concurrently, ignoring delivery")
			return nil
		}
		return fmt.Errorf("failed to mark job %s processing: %w", job.ID, err)
	}

	start := time.Now()
	err = runRoutine(ctx, routine, payload)
	metrics.JobDuration.WithLabelValues(string(payload.TargetType)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.JobsProcessed.WithLabelValues(string(payload.TargetType), "retry").Inc()
		if incErr := d.jobs.IncrementRetryCount(ctx, job.ID); incErr != nil {
			log.Error("Failed to increment retry count", zap.Error(incErr))
		}
		log.Warn("Scrape routine failed", zap.String("url", payload.TargetURL), zap.Error(err))
		return fmt.Errorf("%s scrape of %s failed: %w", payload.TargetType, payload.TargetURL, err)
	}

	if err := d.jobs.UpdateStatus(ctx, job.ID, entity.ScrapeJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to mark job %s completed: %w", job.ID, err)
	}
	metrics.JobsProcessed.WithLabelValues(string(payload.TargetType), "completed").Inc()
	log.Info("Scrape job completed", zap.Duration("duration", time.Since(start)))
	return nil
}

// OnExhausted records the final failure of a job the queue will not retry.
func (d *Dispatcher) OnExhausted(ctx context.Context, payload entity.JobPayload, cause error) {
	log := d.logger.With(zap.String("job_id", payload.JobID))
	metrics.JobsProcessed.WithLabelValues(string(payload.TargetType), "failed").Inc()

	err := d.jobs.UpdateStatus(ctx, payload.JobID, entity.ScrapeJobStatusFailed, cause.Error())
	switch {
	case err == nil:
		log.Error("Scrape job failed", zap.Error(cause))
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrInvalidTransition):
		log.Warn("Could not record scrape job failure", zap.Error(err))
	default:
		log.Error("Failed to mark scrape job failed", zap.Error(err), zap.NamedError("cause", cause))
	}
}

// runRoutine turns a routine panic into an ordinary, retryable error.
func runRoutine(ctx context.Context, routine scraper.Scraper, payload entity.JobPayload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scrape routine panic: %v", r)
		}
	}()
	return routine.Scrape(ctx, payload)
}
