package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/queue"
	"github.com/user/catalog-service/internal/repository"
)

const maintenanceTimeout = 2 * time.Minute

// Maintenance rebuilds the queue from the job table and prunes old jobs.
type Maintenance struct {
	jobs       repository.ScrapeJobRepository
	submitter  JobSubmitter
	staleAfter time.Duration
	retention  time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewMaintenance creates a Maintenance. Processing jobs idle for longer than
// staleAfter are requeued; finished jobs older than retention are deleted.
func NewMaintenance(jobs repository.ScrapeJobRepository, submitter JobSubmitter, staleAfter, retention time.Duration, logger *zap.Logger) *Maintenance {
	return &Maintenance{
		jobs:       jobs,
		submitter:  submitter,
		staleAfter: staleAfter,
		retention:  retention,
		logger:     logger.Named("maintenance"),
		now:        time.Now,
	}
}

// RecoverQueue resubmits pending and stuck processing jobs by id. Jobs whose
// envelope is still queued collapse into it, so only lost ones are added.
func (m *Maintenance) RecoverQueue(ctx context.Context) (int, error) {
	pending, err := m.jobs.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	stuck, err := m.jobs.ListStaleProcessing(ctx, m.now().Add(-m.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("failed to list stale processing jobs: %w", err)
	}

	requeued := 0
	for _, job := range append(pending, stuck...) {
		added, err := m.submitter.Submit(ctx, job.Payload(), queue.SubmitOptions{ID: job.ID})
		if err != nil {
			return requeued, fmt.Errorf("failed to resubmit job %s: %w", job.ID, err)
		}
		if added {
			requeued++
			m.logger.Info("Requeued scrape job",
				zap.String("job_id", job.ID),
				zap.String("status", string(job.Status)),
			)
		}
	}
	return requeued, nil
}

// PruneFinished deletes completed and failed jobs older than the retention.
func (m *Maintenance) PruneFinished(ctx context.Context) (int64, error) {
	n, err := m.jobs.DeleteFinishedBefore(ctx, m.now().Add(-m.retention))
	if err != nil {
		return 0, fmt.Errorf("failed to prune finished jobs: %w", err)
	}
	if n > 0 {
		m.logger.Info("Pruned finished scrape jobs", zap.Int64("deleted", n))
	}
	return n, nil
}

// Schedule adds both tasks to c. Each run gets its own bounded context.
func (m *Maintenance) Schedule(c *cron.Cron, recoverySpec, retentionSpec string) error {
	if _, err := c.AddFunc(recoverySpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
		defer cancel()
		if _, err := m.RecoverQueue(ctx); err != nil {
			m.logger.Error("Queue recovery failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid recovery schedule %q: %w", recoverySpec, err)
	}

	if _, err := c.AddFunc(retentionSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
		defer cancel()
		if _, err := m.PruneFinished(ctx); err != nil {
			m.logger.Error("Job pruning failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", retentionSpec, err)
	}
	return nil
}
