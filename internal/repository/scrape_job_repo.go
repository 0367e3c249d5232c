package repository

import (
	"context"
	"time"

	"github.com/user/catalog-service/internal/entity"
)

// ScrapeJobRepository is the durable source of truth for scrape jobs.
type ScrapeJobRepository interface {
	// Create inserts a new pending job. It returns ErrPendingJobExists when a
	// non-forced pending job for the same target URL is already stored.
	Create(ctx context.Context, job *entity.ScrapeJob) error
	// FindByID returns ErrNotFound for unknown ids.
	FindByID(ctx context.Context, id string) (*entity.ScrapeJob, error)
	// FindPendingByTarget returns the oldest pending job for a URL, or ErrNotFound.
	FindPendingByTarget(ctx context.Context, targetURL string) (*entity.ScrapeJob, error)
	// UpdateStatus moves a job to status, stamping started_at / finished_at.
	// A non-empty errorLog is persisted.
	UpdateStatus(ctx context.Context, id string, status entity.ScrapeJobStatus, errorLog string) error
	// IncrementRetryCount atomically adds one to retry_count.
	IncrementRetryCount(ctx context.Context, id string) error
	// ListPending returns pending jobs, oldest first.
	ListPending(ctx context.Context) ([]*entity.ScrapeJob, error)
	// ListRecent returns the newest jobs first.
	ListRecent(ctx context.Context, limit int) ([]*entity.ScrapeJob, error)
	// ListStaleProcessing returns processing jobs not updated since before.
	ListStaleProcessing(ctx context.Context, before time.Time) ([]*entity.ScrapeJob, error)
	// DeleteFinishedBefore prunes completed and failed jobs created before the cutoff.
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}
