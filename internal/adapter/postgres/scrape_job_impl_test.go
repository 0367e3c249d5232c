package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
)

var scrapeJobTestColumns = []string{
	"id", "target_url", "target_type", "status", "reference_id", "force_refresh",
	"started_at", "finished_at", "error_log", "retry_count", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "pgx"), mock
}

func TestScrapeJobRepo_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScrapeJobRepo(db)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO scrape_job").
		WithArgs(sqlmock.AnyArg(), "https://example.com/c/fiction", "category", "pending", nil, false).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	job := &entity.ScrapeJob{TargetURL: "https://example.com/c/fiction", TargetType: entity.TargetTypeCategory}
	require.NoError(t, repo.Create(context.Background(), job))

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, entity.ScrapeJobStatusPending, job.Status)
	assert.Zero(t, job.RetryCount)
	assert.Equal(t, now, job.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScrapeJobRepo_Create_PendingExists(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScrapeJobRepo(db)

	mock.ExpectQuery("INSERT INTO scrape_job").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: pendingTargetIndex})

	err := repo.Create(context.Background(), &entity.ScrapeJob{
		TargetURL:  "https://example.com/",
		TargetType: entity.TargetTypeNavigation,
	})
	assert.ErrorIs(t, err, repository.ErrPendingJobExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScrapeJobRepo_FindPendingByTarget(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScrapeJobRepo(db)
	now := time.Now()

	mock.ExpectQuery("SELECT .+ FROM scrape_job WHERE target_url = \\$1 AND status = 'pending'").
		WithArgs("https://example.com/c").
		WillReturnRows(sqlmock.NewRows(scrapeJobTestColumns).AddRow(
			"job-1", "https://example.com/c", "category", "pending", "cat-1", false,
			nil, nil, nil, 0, now, now,
		))

	job, err := repo.FindPendingByTarget(context.Background(), "https://example.com/c")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, entity.TargetTypeCategory, job.TargetType)
	require.NotNil(t, job.ReferenceID)
	assert.Equal(t, "cat-1", *job.ReferenceID)
	assert.Nil(t, job.StartedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScrapeJobRepo_FindByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScrapeJobRepo(db)

	mock.ExpectQuery("SELECT .+ FROM scrape_job WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(scrapeJobTestColumns))

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScrapeJobRepo_UpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScrapeJobRepo(db)

	mock.ExpectExec("UPDATE scrape_job SET").
		WithArgs("job-1", "processing", "", "pending", "processing").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "job-1", entity.ScrapeJobStatusProcessing, ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScrapeJobRepo_UpdateStatus_InvalidTransition(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScrapeJobRepo(db)

	mock.ExpectExec("UPDATE scrape_job SET").
		WithArgs("job-1", "processing", "", "pending", "processing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM scrape_job WHERE id").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))

	err := repo.UpdateStatus(context.Background(), "job-1", entity.ScrapeJobStatusProcessing, "")
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScrapeJobRepo_UpdateStatus_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScrapeJobRepo(db)

	mock.ExpectExec("UPDATE scrape_job SET").
		WithArgs("nope", "failed", "boom", "pending", "processing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM scrape_job WHERE id").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	err := repo.UpdateStatus(context.Background(), "nope", entity.ScrapeJobStatusFailed, "boom")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScrapeJobRepo_UpdateStatus_ToPendingRejected(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScrapeJobRepo(db)

	err := repo.UpdateStatus(context.Background(), "job-1", entity.ScrapeJobStatusPending, "")
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScrapeJobRepo_IncrementRetryCount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScrapeJobRepo(db)

	mock.ExpectExec("UPDATE scrape_job SET retry_count = retry_count \\+ 1").
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE scrape_job SET retry_count = retry_count \\+ 1").
		WithArgs("job-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.IncrementRetryCount(context.Background(), "job-1"))
	assert.ErrorIs(t, repo.IncrementRetryCount(context.Background(), "job-2"), repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScrapeJobRepo_ListRecent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScrapeJobRepo(db)
	now := time.Now()

	mock.ExpectQuery("SELECT .+ FROM scrape_job ORDER BY created_at DESC LIMIT").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(scrapeJobTestColumns).
			AddRow("job-2", "https://example.com/b", "product_detail", "completed", nil, false, now, now, nil, 0, now, now).
			AddRow("job-1", "https://example.com/a", "category", "failed", nil, true, now, now, "timeout", 2, now.Add(-time.Minute), now))

	jobs, err := repo.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-2", jobs[0].ID)
	assert.Equal(t, entity.ScrapeJobStatusFailed, jobs[1].Status)
	require.NotNil(t, jobs[1].ErrorLog)
	assert.Equal(t, "timeout", *jobs[1].ErrorLog)
	assert.True(t, jobs[1].ForceRefresh)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScrapeJobRepo_DeleteFinishedBefore(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScrapeJobRepo(db)
	cutoff := time.Now().Add(-168 * time.Hour)

	mock.ExpectExec("DELETE FROM scrape_job WHERE status IN").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteFinishedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
