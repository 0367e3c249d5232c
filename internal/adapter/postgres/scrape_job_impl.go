package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
)

const (
	pendingTargetIndex = "uq_scrape_job_pending_target"

	scrapeJobColumns = `id, target_url, target_type, status, reference_id, force_refresh,
	started_at, finished_at, error_log, retry_count, created_at, updated_at`
)

type scrapeJobRow struct {
	ID           string     `db:"id"`
	TargetURL    string     `db:"target_url"`
	TargetType   string     `db:"target_type"`
	Status       string     `db:"status"`
	ReferenceID  *string    `db:"reference_id"`
	ForceRefresh bool       `db:"force_refresh"`
	StartedAt    *time.Time `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
	ErrorLog     *string    `db:"error_log"`
	RetryCount   int        `db:"retry_count"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

func (r *scrapeJobRow) toEntity() *entity.ScrapeJob {
	return &entity.ScrapeJob{
		ID:           r.ID,
		TargetURL:    r.TargetURL,
		TargetType:   entity.TargetType(r.TargetType),
		Status:       entity.ScrapeJobStatus(r.Status),
		ReferenceID:  r.ReferenceID,
		ForceRefresh: r.ForceRefresh,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		ErrorLog:     r.ErrorLog,
		RetryCount:   r.RetryCount,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// ScrapeJobRepoImpl stores scrape jobs in the `scrape_job` table.
type ScrapeJobRepoImpl struct {
	db *sqlx.DB
}

// NewScrapeJobRepo creates a new instance of ScrapeJobRepoImpl.
func NewScrapeJobRepo(db *sqlx.DB) *ScrapeJobRepoImpl {
	return &ScrapeJobRepoImpl{db: db}
}

// Create inserts job as pending with a zero retry count. The partial unique
// index on pending targets turns a concurrent duplicate into ErrPendingJobExists.
func (r *ScrapeJobRepoImpl) Create(ctx context.Context, job *entity.ScrapeJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = entity.ScrapeJobStatusPending
	job.RetryCount = 0

	query := `
		INSERT INTO scrape_job (id, target_url, target_type, status, reference_id, force_refresh, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, 0)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		job.ID,
		job.TargetURL,
		string(job.TargetType),
		string(job.Status),
		job.ReferenceID,
		job.ForceRefresh,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, pendingTargetIndex) {
			return repository.ErrPendingJobExists
		}
		return fmt.Errorf("failed to insert scrape job: %w", err)
	}
	return nil
}

func (r *ScrapeJobRepoImpl) FindByID(ctx context.Context, id string) (*entity.ScrapeJob, error) {
	query := `SELECT ` + scrapeJobColumns + ` FROM scrape_job WHERE id = $1`

	var row scrapeJobRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, lookupErr(err, "scrape job")
	}
	return row.toEntity(), nil
}

func (r *ScrapeJobRepoImpl) FindPendingByTarget(ctx context.Context, targetURL string) (*entity.ScrapeJob, error) {
	query := `SELECT ` + scrapeJobColumns + `
		FROM scrape_job
		WHERE target_url = $1 AND status = 'pending'
		ORDER BY created_at ASC
		LIMIT 1`

	var row scrapeJobRow
	if err := r.db.GetContext(ctx, &row, query, targetURL); err != nil {
		return nil, lookupErr(err, "pending scrape job")
	}
	return row.toEntity(), nil
}

// UpdateStatus applies the transition only when the stored status is an
// allowed predecessor of status, so concurrent workers cannot regress a job.
func (r *ScrapeJobRepoImpl) UpdateStatus(ctx context.Context, id string, status entity.ScrapeJobStatus, errorLog string) error {
	from := entity.AllowedPredecessors(status)
	if len(from) == 0 {
		return fmt.Errorf("%w: to %q", repository.ErrInvalidTransition, status)
	}

	args := []any{id, string(status), errorLog}
	placeholders := make([]string, 0, len(from))
	for _, s := range from {
		args = append(args, string(s))
		placeholders = append(placeholders, "$"+strconv.Itoa(len(args)))
	}

	query := `
		UPDATE scrape_job SET
			status = $2,
			started_at = CASE WHEN $2 = 'processing' THEN NOW() ELSE started_at END,
			finished_at = CASE WHEN $2 IN ('completed', 'failed') THEN NOW() ELSE finished_at END,
			error_log = COALESCE(NULLIF($3, ''), error_log),
			updated_at = NOW()
		WHERE id = $1 AND status IN (` + strings.Join(placeholders, ", ") + `)`

	result, err := r.db.ExecContext(ctx, query, args...)
	err = execRequireRows(result, err, "scrape job status")
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	// Nothing matched: either the job is unknown or its status rules the move out.
	var current string
	if lookup := r.db.GetContext(ctx, &current, `SELECT status FROM scrape_job WHERE id = $1`, id); lookup != nil {
		return lookupErr(lookup, "scrape job")
	}
	return fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, current, status)
}

func (r *ScrapeJobRepoImpl) IncrementRetryCount(ctx context.Context, id string) error {
	query := `UPDATE scrape_job SET retry_count = retry_count + 1, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	return execRequireRows(result, err, "scrape job retry count")
}

func (r *ScrapeJobRepoImpl) ListPending(ctx context.Context) ([]*entity.ScrapeJob, error) {
	query := `SELECT ` + scrapeJobColumns + ` FROM scrape_job WHERE status = 'pending' ORDER BY created_at ASC`
	return r.list(ctx, query)
}

func (r *ScrapeJobRepoImpl) ListRecent(ctx context.Context, limit int) ([]*entity.ScrapeJob, error) {
	query := `SELECT ` + scrapeJobColumns + ` FROM scrape_job ORDER BY created_at DESC LIMIT $1`
	return r.list(ctx, query, limit)
}

func (r *ScrapeJobRepoImpl) ListStaleProcessing(ctx context.Context, before time.Time) ([]*entity.ScrapeJob, error) {
	query := `SELECT ` + scrapeJobColumns + `
		FROM scrape_job
		WHERE status = 'processing' AND updated_at < $1
		ORDER BY updated_at ASC`
	return r.list(ctx, query, before)
}

func (r *ScrapeJobRepoImpl) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM scrape_job WHERE status IN ('completed', 'failed') AND created_at < $1`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune scrape jobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func (r *ScrapeJobRepoImpl) list(ctx context.Context, query string, args ...any) ([]*entity.ScrapeJob, error) {
	var rows []scrapeJobRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list scrape jobs: %w", err)
	}
	jobs := make([]*entity.ScrapeJob, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, rows[i].toEntity())
	}
	return jobs, nil
}

var _ repository.ScrapeJobRepository = (*ScrapeJobRepoImpl)(nil)
