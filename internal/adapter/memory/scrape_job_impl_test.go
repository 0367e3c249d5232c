package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
)

func newJob(url string) *entity.ScrapeJob {
	return &entity.ScrapeJob{TargetURL: url, TargetType: entity.TargetTypeCategory}
}

func TestScrapeJobRepo_PendingUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewScrapeJobRepo()

	require.NoError(t, repo.Create(ctx, newJob("https://example.com/c")))
	assert.ErrorIs(t, repo.Create(ctx, newJob("https://example.com/c")), repository.ErrPendingJobExists)

	forced := newJob("https://example.com/c")
	forced.ForceRefresh = true
	require.NoError(t, repo.Create(ctx, forced))

	// Another target is unaffected.
	require.NoError(t, repo.Create(ctx, newJob("https://example.com/d")))
}

func TestScrapeJobRepo_PendingFreedAfterProcessing(t *testing.T) {
	ctx := context.Background()
	repo := NewScrapeJobRepo()

	first := newJob("https://example.com/c")
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.UpdateStatus(ctx, first.ID, entity.ScrapeJobStatusProcessing, ""))

	_, err := repo.FindPendingByTarget(ctx, "https://example.com/c")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, repo.Create(ctx, newJob("https://example.com/c")))
}

func TestScrapeJobRepo_StatusTimestamps(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	repo := NewScrapeJobRepo().WithClock(func() time.Time { return now })

	job := newJob("https://example.com/p/1")
	require.NoError(t, repo.Create(ctx, job))
	assert.Equal(t, entity.ScrapeJobStatusPending, job.Status)
	assert.Zero(t, job.RetryCount)

	require.NoError(t, repo.UpdateStatus(ctx, job.ID, entity.ScrapeJobStatusProcessing, ""))
	now = now.Add(3 * time.Second)
	require.NoError(t, repo.UpdateStatus(ctx, job.ID, entity.ScrapeJobStatusFailed, "timeout"))

	got, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, 3*time.Second, got.FinishedAt.Sub(*got.StartedAt))
	require.NotNil(t, got.ErrorLog)
	assert.Equal(t, "timeout", *got.ErrorLog)
}

func TestScrapeJobRepo_RejectsInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	repo := NewScrapeJobRepo()

	job := newJob("https://example.com/c")
	require.NoError(t, repo.Create(ctx, job))

	assert.ErrorIs(t, repo.UpdateStatus(ctx, job.ID, entity.ScrapeJobStatusCompleted, ""), repository.ErrInvalidTransition)
	require.NoError(t, repo.UpdateStatus(ctx, job.ID, entity.ScrapeJobStatusProcessing, ""))
	require.NoError(t, repo.UpdateStatus(ctx, job.ID, entity.ScrapeJobStatusProcessing, ""))
	require.NoError(t, repo.UpdateStatus(ctx, job.ID, entity.ScrapeJobStatusCompleted, ""))

	assert.ErrorIs(t, repo.UpdateStatus(ctx, job.ID, entity.ScrapeJobStatusProcessing, ""), repository.ErrInvalidTransition)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, job.ID, entity.ScrapeJobStatusFailed, "late"), repository.ErrInvalidTransition)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", entity.ScrapeJobStatusProcessing, ""), repository.ErrNotFound)
	assert.ErrorIs(t, repo.IncrementRetryCount(ctx, "missing"), repository.ErrNotFound)
}

func TestScrapeJobRepo_Listings(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	repo := NewScrapeJobRepo().WithClock(func() time.Time { return now })

	var ids []string
	for _, u := range []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"} {
		j := newJob(u)
		require.NoError(t, repo.Create(ctx, j))
		ids = append(ids, j.ID)
		now = now.Add(time.Minute)
	}
	require.NoError(t, repo.UpdateStatus(ctx, ids[1], entity.ScrapeJobStatusProcessing, ""))

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[0], pending[0].ID)
	assert.Equal(t, ids[2], pending[1].ID)

	recent, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[2], recent[0].ID)
	assert.Equal(t, ids[1], recent[1].ID)

	stale, err := repo.ListStaleProcessing(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, ids[1], stale[0].ID)
}

func TestScrapeJobRepo_DeleteFinishedBefore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	repo := NewScrapeJobRepo().WithClock(func() time.Time { return now })

	done := newJob("https://example.com/a")
	require.NoError(t, repo.Create(ctx, done))
	require.NoError(t, repo.UpdateStatus(ctx, done.ID, entity.ScrapeJobStatusProcessing, ""))
	require.NoError(t, repo.UpdateStatus(ctx, done.ID, entity.ScrapeJobStatusCompleted, ""))
	waiting := newJob("https://example.com/b")
	require.NoError(t, repo.Create(ctx, waiting))

	n, err := repo.DeleteFinishedBefore(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.FindByID(ctx, waiting.ID)
	assert.NoError(t, err)
	_, err = repo.FindByID(ctx, done.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
