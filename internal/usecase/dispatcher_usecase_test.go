package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/user/catalog-service/internal/adapter/memory"
	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/queue"
	"github.com/user/catalog-service/internal/staleness"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// spyRoutine counts calls and answers with the configured error.
type spyRoutine struct {
	calls atomic.Int32
	err   error
	panic bool
}

func (r *spyRoutine) Scrape(context.Context, entity.JobPayload) error {
	r.calls.Add(1)
	if r.panic {
		panic("selector exploded")
	}
	return r.err
}

type pipeline struct {
	clock *testClock
	jobs  *memory.ScrapeJobRepo
	queue *queue.Queue
	svc   ScrapeService
	disp  *Dispatcher
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clock := newTestClock()
	jobs := memory.NewScrapeJobRepo()
	q := queue.New("scrape", queue.NewMemoryStore(0), queue.Options{
		Attempts:    3,
		Backoff:     5 * time.Second,
		Concurrency: 4,
		Now:         clock.Now,
	}, logger)
	d := NewDispatcher(jobs, logger)
	d.Bind(q)
	svc := NewScrapeService(jobs, q, staleness.NewPolicy(time.Hour), 2*time.Second, logger)
	return &pipeline{clock: clock, jobs: jobs, queue: q, svc: svc, disp: d}
}

func (p *pipeline) process(t *testing.T) int {
	t.Helper()
	n, err := p.queue.ProcessDue(context.Background())
	require.NoError(t, err)
	return n
}

func TestDispatcher_SuccessCompletesJob(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	routine := &spyRoutine{}
	p.disp.Register(entity.TargetTypeCategory, routine)

	job, err := p.svc.EnqueueScrapeJob(ctx, "https://shop.example/c/fiction", entity.TargetTypeCategory, "", false)
	require.NoError(t, err)

	assert.Equal(t, 0, p.process(t), "dispatch delay holds the first delivery")
	p.clock.Advance(2 * time.Second)
	assert.Equal(t, 1, p.process(t))

	got, err := p.jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ScrapeJobStatusCompleted, got.Status)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
	assert.False(t, got.FinishedAt.Before(*got.StartedAt))
	assert.Zero(t, got.RetryCount)
	assert.Nil(t, got.ErrorLog)
	assert.Equal(t, int32(1), routine.calls.Load())
}

func TestDispatcher_ExhaustedRetriesFailJob(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	routine := &spyRoutine{err: errors.New("selector not found")}
	p.disp.Register(entity.TargetTypeProductList, routine)

	job, err := p.svc.EnqueueScrapeJob(ctx, "https://shop.example/c/fiction", entity.TargetTypeProductList, "cat-1", false)
	require.NoError(t, err)

	p.clock.Advance(2 * time.Second)
	assert.Equal(t, 1, p.process(t))

	mid, err := p.jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ScrapeJobStatusProcessing, mid.Status, "still retrying")

	p.clock.Advance(5 * time.Second)
	assert.Equal(t, 1, p.process(t))
	p.clock.Advance(9 * time.Second)
	assert.Equal(t, 0, p.process(t), "second backoff is 10s")
	p.clock.Advance(time.Second)
	assert.Equal(t, 1, p.process(t))

	got, err := p.jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ScrapeJobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorLog)
	assert.Contains(t, *got.ErrorLog, "selector not found")
	assert.GreaterOrEqual(t, got.RetryCount, 1)
	assert.Equal(t, 3, got.RetryCount)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, int32(3), routine.calls.Load())

	// Nothing is left to deliver.
	p.clock.Advance(time.Hour)
	assert.Equal(t, 0, p.process(t))
}

func TestDispatcher_PanicIsRetried(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	p.disp.Register(entity.TargetTypeCategory, &spyRoutine{panic: true})

	job, err := p.svc.EnqueueScrapeJob(ctx, "https://shop.example/c", entity.TargetTypeCategory, "", false)
	require.NoError(t, err)
	p.clock.Advance(2 * time.Second)
	p.process(t)

	got, err := p.jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ScrapeJobStatusProcessing, got.Status)
	assert.Equal(t, 1, got.RetryCount)
}

func TestDispatcher_RedeliveryOfFinishedJobIsNoop(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	routine := &spyRoutine{}
	p.disp.Register(entity.TargetTypeCategory, routine)

	job, err := p.svc.EnqueueScrapeJob(ctx, "https://shop.example/c", entity.TargetTypeCategory, "", false)
	require.NoError(t, err)
	p.clock.Advance(2 * time.Second)
	p.process(t)
	before, err := p.jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, entity.ScrapeJobStatusCompleted, before.Status)

	require.NoError(t, p.disp.Handle(ctx, job.Payload()))

	after, err := p.jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), routine.calls.Load())
	assert.Equal(t, entity.ScrapeJobStatusCompleted, after.Status)
	assert.Equal(t, before.FinishedAt, after.FinishedAt)
}

func TestDispatcher_MissingJobIsAcked(t *testing.T) {
	p := newPipeline(t)
	routine := &spyRoutine{}
	p.disp.Register(entity.TargetTypeCategory, routine)

	err := p.disp.Handle(context.Background(), entity.JobPayload{JobID: "gone", TargetType: entity.TargetTypeCategory})
	assert.NoError(t, err)
	assert.Zero(t, routine.calls.Load())
}

func TestDispatcher_UnknownRoutineFailsWithoutRetry(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)

	job, err := p.svc.EnqueueScrapeJob(ctx, "https://shop.example/", entity.TargetTypeNavigation, "", false)
	require.NoError(t, err)
	p.clock.Advance(2 * time.Second)
	p.process(t)

	got, err := p.jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ScrapeJobStatusFailed, got.Status)
	assert.Zero(t, got.RetryCount)
	require.NotNil(t, got.ErrorLog)
	assert.Contains(t, *got.ErrorLog, "no routine")
}

func TestDispatcher_OnExhaustedIgnoresFinishedJob(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	p.disp.Register(entity.TargetTypeCategory, &spyRoutine{})

	job, err := p.svc.EnqueueScrapeJob(ctx, "https://shop.example/c", entity.TargetTypeCategory, "", false)
	require.NoError(t, err)
	p.clock.Advance(2 * time.Second)
	p.process(t)

	p.disp.OnExhausted(ctx, job.Payload(), errors.New("late failure"))

	got, err := p.jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ScrapeJobStatusCompleted, got.Status)
	assert.Nil(t, got.ErrorLog)
}
