package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/queue"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/internal/staleness"
	"github.com/user/catalog-service/pkg/metrics"
)

var (
	ErrInvalidTargetType = errors.New("invalid scrape target type")
	// ErrEnqueueFailed wraps failures to store a job or hand it to the queue.
	ErrEnqueueFailed = errors.New("failed to enqueue scrape job")
	ErrInvalidInput  = errors.New("invalid input")
)

const defaultRecentJobs = 50

// JobSubmitter hands job payloads to the delivery queue.
type JobSubmitter interface {
	Submit(ctx context.Context, payload entity.JobPayload, opts queue.SubmitOptions) (bool, error)
}

// ScrapeService creates scrape jobs and reports on them.
type ScrapeService interface {
	// EnqueueScrapeJob returns the pending job for targetURL when one exists and
	// forceRefresh is false; otherwise it stores and queues a new job.
	EnqueueScrapeJob(ctx context.Context, targetURL string, targetType entity.TargetType, referenceID string, forceRefresh bool) (*entity.ScrapeJob, error)
	IsCacheExpired(lastScrapedAt *time.Time) bool
	// AnyCacheExpired reports whether at least one timestamp is past the TTL.
	AnyCacheExpired(lastScrapedAt ...*time.Time) bool
	GetJobStatus(ctx context.Context, id string) (*entity.ScrapeJob, error)
	GetRecentJobs(ctx context.Context, limit int) ([]*entity.ScrapeJob, error)
	GetPendingJobs(ctx context.Context) ([]*entity.ScrapeJob, error)
	UpdateJobStatus(ctx context.Context, id string, status entity.ScrapeJobStatus, errorLog string) error
	IncrementRetryCount(ctx context.Context, id string) error
}

type scrapeUseCase struct {
	jobs          repository.ScrapeJobRepository
	submitter     JobSubmitter
	policy        *staleness.Policy
	dispatchDelay time.Duration
	logger        *zap.Logger
}

// NewScrapeService creates a ScrapeService. dispatchDelay postpones the first
// delivery of every new job.
func NewScrapeService(
	jobs repository.ScrapeJobRepository,
	submitter JobSubmitter,
	policy *staleness.Policy,
	dispatchDelay time.Duration,
	logger *zap.Logger,
) ScrapeService {
	return &scrapeUseCase{
		jobs:          jobs,
		submitter:     submitter,
		policy:        policy,
		dispatchDelay: dispatchDelay,
		logger:        logger.Named("scrape"),
	}
}

func (uc *scrapeUseCase) EnqueueScrapeJob(ctx context.Context, targetURL string, targetType entity.TargetType, referenceID string, forceRefresh bool) (*entity.ScrapeJob, error) {
	if !targetType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTargetType, targetType)
	}
	if targetURL == "" {
		return nil, fmt.Errorf("%w: target url is required", ErrInvalidInput)
	}

	if !forceRefresh {
		existing, err := uc.jobs.FindPendingByTarget(ctx, targetURL)
		if err == nil {
			metrics.JobsEnqueued.WithLabelValues(string(targetType), "deduplicated").Inc()
			uc.logger.Debug("Reusing pending scrape job", zap.String("job_id", existing.ID), zap.String("url", targetURL))
			return existing, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			metrics.JobsEnqueued.WithLabelValues(string(targetType), "failed").Inc()
			return nil, fmt.Errorf("%w: looking up pending job for %s: %w", ErrEnqueueFailed, targetURL, err)
		}
	}

	job := &entity.ScrapeJob{
		TargetURL:    targetURL,
		TargetType:   targetType,
		ForceRefresh: forceRefresh,
	}
	if referenceID != "" {
		job.ReferenceID = &referenceID
	}

	if err := uc.jobs.Create(ctx, job); err != nil {
		if errors.Is(err, repository.ErrPendingJobExists) {
			// Lost the race against a concurrent enqueue for the same URL.
			existing, findErr := uc.jobs.FindPendingByTarget(ctx, targetURL)
			if findErr == nil {
				metrics.JobsEnqueued.WithLabelValues(string(targetType), "deduplicated").Inc()
				return existing, nil
			}
			err = findErr
		}
		metrics.JobsEnqueued.WithLabelValues(string(targetType), "failed").Inc()
		return nil, fmt.Errorf("%w: storing job for %s: %w", ErrEnqueueFailed, targetURL, err)
	}

	if _, err := uc.submitter.Submit(ctx, job.Payload(), queue.SubmitOptions{ID: job.ID, Delay: uc.dispatchDelay}); err != nil {
		metrics.JobsEnqueued.WithLabelValues(string(targetType), "failed").Inc()
		uc.logger.Error("Scrape job stored but not queued",
			zap.String("job_id", job.ID),
			zap.String("url", targetURL),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: queueing job %s: %w", ErrEnqueueFailed, job.ID, err)
	}

	metrics.JobsEnqueued.WithLabelValues(string(targetType), "created").Inc()
	uc.logger.Info("Scrape job enqueued",
		zap.String("job_id", job.ID),
		zap.String("url", targetURL),
		zap.String("target_type", string(targetType)),
		zap.Bool("force_refresh", forceRefresh),
	)
	return job, nil
}

func (uc *scrapeUseCase) IsCacheExpired(lastScrapedAt *time.Time) bool {
	return uc.policy.IsExpired(lastScrapedAt)
}

func (uc *scrapeUseCase) AnyCacheExpired(lastScrapedAt ...*time.Time) bool {
	return uc.policy.AnyExpired(lastScrapedAt...)
}

func (uc *scrapeUseCase) GetJobStatus(ctx context.Context, id string) (*entity.ScrapeJob, error) {
	return uc.jobs.FindByID(ctx, id)
}

func (uc *scrapeUseCase) GetRecentJobs(ctx context.Context, limit int) ([]*entity.ScrapeJob, error) {
	if limit <= 0 {
		limit = defaultRecentJobs
	}
	return uc.jobs.ListRecent(ctx, limit)
}

func (uc *scrapeUseCase) GetPendingJobs(ctx context.Context) ([]*entity.ScrapeJob, error) {
	return uc.jobs.ListPending(ctx)
}

func (uc *scrapeUseCase) UpdateJobStatus(ctx context.Context, id string, status entity.ScrapeJobStatus, errorLog string) error {
	return uc.jobs.UpdateStatus(ctx, id, status, errorLog)
}

func (uc *scrapeUseCase) IncrementRetryCount(ctx context.Context, id string) error {
	return uc.jobs.IncrementRetryCount(ctx, id)
}
