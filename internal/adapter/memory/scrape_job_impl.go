// Package memory implements the repository contracts in process memory. It
// backs STORAGE_DRIVER=memory and the use case tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
)

// ScrapeJobRepo keeps scrape jobs in a map and enforces the same constraints
// as the PostgreSQL schema: one unforced pending job per target URL and
// forward-only status transitions.
type ScrapeJobRepo struct {
	mu   sync.RWMutex
	jobs map[string]*entity.ScrapeJob
	now  func() time.Time
}

// NewScrapeJobRepo creates an empty ScrapeJobRepo.
func NewScrapeJobRepo() *ScrapeJobRepo {
	return &ScrapeJobRepo{jobs: make(map[string]*entity.ScrapeJob), now: time.Now}
}

// WithClock replaces the clock used for timestamps.
func (r *ScrapeJobRepo) WithClock(now func() time.Time) *ScrapeJobRepo {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	return r
}

func (r *ScrapeJobRepo) Create(_ context.Context, job *entity.ScrapeJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !job.ForceRefresh {
		for _, existing := range r.jobs {
			if existing.TargetURL == job.TargetURL && existing.Status == entity.ScrapeJobStatusPending && !existing.ForceRefresh {
				return repository.ErrPendingJobExists
			}
		}
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if _, ok := r.jobs[job.ID]; ok {
		return fmt.Errorf("scrape job %s already exists", job.ID)
	}
	now := r.now()
	job.Status = entity.ScrapeJobStatusPending
	job.RetryCount = 0
	job.CreatedAt = now
	job.UpdatedAt = now

	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *ScrapeJobRepo) FindByID(_ context.Context, id string) (*entity.ScrapeJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *ScrapeJobRepo) FindPendingByTarget(_ context.Context, targetURL string) (*entity.ScrapeJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var oldest *entity.ScrapeJob
	for _, job := range r.jobs {
		if job.TargetURL != targetURL || job.Status != entity.ScrapeJobStatusPending {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, repository.ErrNotFound
	}
	return cloneJob(oldest), nil
}

func (r *ScrapeJobRepo) UpdateStatus(_ context.Context, id string, status entity.ScrapeJobStatus, errorLog string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		if len(entity.AllowedPredecessors(status)) == 0 {
			return fmt.Errorf("%w: to %q", repository.ErrInvalidTransition, status)
		}
		return repository.ErrNotFound
	}
	if !job.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, job.Status, status)
	}

	now := r.now()
	job.Status = status
	switch status {
	case entity.ScrapeJobStatusProcessing:
		job.StartedAt = &now
	case entity.ScrapeJobStatusCompleted, entity.ScrapeJobStatusFailed:
		job.FinishedAt = &now
	}
	if errorLog != "" {
		job.ErrorLog = &errorLog
	}
	job.UpdatedAt = now
	return nil
}

func (r *ScrapeJobRepo) IncrementRetryCount(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	job.RetryCount++
	job.UpdatedAt = r.now()
	return nil
}

func (r *ScrapeJobRepo) ListPending(_ context.Context) ([]*entity.ScrapeJob, error) {
	jobs := r.filter(func(j *entity.ScrapeJob) bool { return j.Status == entity.ScrapeJobStatusPending })
	sortByCreated(jobs, false)
	return jobs, nil
}

func (r *ScrapeJobRepo) ListRecent(_ context.Context, limit int) ([]*entity.ScrapeJob, error) {
	jobs := r.filter(func(*entity.ScrapeJob) bool { return true })
	sortByCreated(jobs, true)
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (r *ScrapeJobRepo) ListStaleProcessing(_ context.Context, before time.Time) ([]*entity.ScrapeJob, error) {
	jobs := r.filter(func(j *entity.ScrapeJob) bool {
		return j.Status == entity.ScrapeJobStatusProcessing && j.UpdatedAt.Before(before)
	})
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].UpdatedAt.Before(jobs[j].UpdatedAt) })
	return jobs, nil
}

func (r *ScrapeJobRepo) DeleteFinishedBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, job := range r.jobs {
		if job.Status.IsTerminal() && job.CreatedAt.Before(before) {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}

func (r *ScrapeJobRepo) filter(keep func(*entity.ScrapeJob) bool) []*entity.ScrapeJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.ScrapeJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		if keep(job) {
			out = append(out, cloneJob(job))
		}
	}
	return out
}

// sortByCreated orders by creation time, breaking ties on id so listings are stable.
func sortByCreated(jobs []*entity.ScrapeJob, desc bool) {
	sort.Slice(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		if desc {
			a, b = b, a
		}
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func cloneJob(j *entity.ScrapeJob) *entity.ScrapeJob {
	cp := *j
	cp.ReferenceID = cloneString(j.ReferenceID)
	cp.ErrorLog = cloneString(j.ErrorLog)
	cp.StartedAt = cloneTime(j.StartedAt)
	cp.FinishedAt = cloneTime(j.FinishedAt)
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

var _ repository.ScrapeJobRepository = (*ScrapeJobRepo)(nil)
