package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/user/catalog-service/internal/adapter/memory"
	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/queue"
)

func newMaintenance(t *testing.T, clock *testClock, jobs *memory.ScrapeJobRepo, sub JobSubmitter) *Maintenance {
	t.Helper()
	m := NewMaintenance(jobs, sub, 10*time.Minute, 24*time.Hour, zaptest.NewLogger(t))
	m.now = clock.Now
	return m
}

func TestRecoverQueue_ResubmitsLostJobsOnce(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	jobs := memory.NewScrapeJobRepo().WithClock(clock.Now)
	q := queue.New("scrape", queue.NewMemoryStore(0), queue.Options{Now: clock.Now}, zaptest.NewLogger(t))

	lost := &entity.ScrapeJob{TargetURL: "https://shop.example/c/a", TargetType: entity.TargetTypeCategory}
	require.NoError(t, jobs.Create(ctx, lost))
	stuck := &entity.ScrapeJob{TargetURL: "https://shop.example/c/b", TargetType: entity.TargetTypeCategory}
	require.NoError(t, jobs.Create(ctx, stuck))
	require.NoError(t, jobs.UpdateStatus(ctx, stuck.ID, entity.ScrapeJobStatusProcessing, ""))
	busy := &entity.ScrapeJob{TargetURL: "https://shop.example/c/c", TargetType: entity.TargetTypeCategory}
	require.NoError(t, jobs.Create(ctx, busy))

	clock.Advance(15 * time.Minute)
	require.NoError(t, jobs.UpdateStatus(ctx, busy.ID, entity.ScrapeJobStatusProcessing, ""))

	m := newMaintenance(t, clock, jobs, q)
	n, err := m.RecoverQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "pending and stuck processing jobs are requeued")

	again, err := m.RecoverQueue(ctx)
	require.NoError(t, err)
	assert.Zero(t, again, "envelopes already queued collapse by id")
}

func TestRecoverQueue_PropagatesSubmitErrors(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	jobs := memory.NewScrapeJobRepo().WithClock(clock.Now)
	require.NoError(t, jobs.Create(ctx, &entity.ScrapeJob{TargetURL: "https://shop.example/", TargetType: entity.TargetTypeNavigation}))

	m := newMaintenance(t, clock, jobs, &spySubmitter{err: assert.AnError})
	_, err := m.RecoverQueue(ctx)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestPruneFinished_DeletesOnlyOldTerminalJobs(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	jobs := memory.NewScrapeJobRepo().WithClock(clock.Now)

	old := &entity.ScrapeJob{TargetURL: "https://shop.example/old", TargetType: entity.TargetTypeCategory}
	require.NoError(t, jobs.Create(ctx, old))
	require.NoError(t, jobs.UpdateStatus(ctx, old.ID, entity.ScrapeJobStatusProcessing, ""))
	require.NoError(t, jobs.UpdateStatus(ctx, old.ID, entity.ScrapeJobStatusCompleted, ""))
	oldPending := &entity.ScrapeJob{TargetURL: "https://shop.example/waiting", TargetType: entity.TargetTypeCategory}
	require.NoError(t, jobs.Create(ctx, oldPending))

	clock.Advance(48 * time.Hour)
	recent := &entity.ScrapeJob{TargetURL: "https://shop.example/new", TargetType: entity.TargetTypeCategory}
	require.NoError(t, jobs.Create(ctx, recent))
	require.NoError(t, jobs.UpdateStatus(ctx, recent.ID, entity.ScrapeJobStatusFailed, "boom"))

	m := newMaintenance(t, clock, jobs, &spySubmitter{})
	n, err := m.PruneFinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = jobs.FindByID(ctx, old.ID)
	assert.Error(t, err)
	_, err = jobs.FindByID(ctx, oldPending.ID)
	assert.NoError(t, err)
	_, err = jobs.FindByID(ctx, recent.ID)
	assert.NoError(t, err)
}

func TestMaintenanceSchedule_RejectsBadSpec(t *testing.T) {
	m := NewMaintenance(memory.NewScrapeJobRepo(), &spySubmitter{}, time.Minute, time.Hour, zaptest.NewLogger(t))
	c := cron.New()

	require.NoError(t, m.Schedule(c, "@every 1m", "0 3 * * *"))
	assert.Len(t, c.Entries(), 2)
	assert.Error(t, m.Schedule(cron.New(), "not a schedule", "0 3 * * *"))
}
