package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
)

const viewHistoryColumns = `id, session_id, user_id, entity_type, entity_id, path, path_json, created_at`

type viewHistoryRow struct {
	ID         string    `db:"id"`
	SessionID  string    `db:"session_id"`
	UserID     *string   `db:"user_id"`
	EntityType string    `db:"entity_type"`
	EntityID   string    `db:"entity_id"`
	Path       *string   `db:"path"`
	PathJSON   []byte    `db:"path_json"`
	CreatedAt  time.Time `db:"created_at"`
}

// ViewHistoryRepoImpl stores page views in the `view_history` table.
type ViewHistoryRepoImpl struct {
	db *sqlx.DB
}

// NewViewHistoryRepo creates a new instance of ViewHistoryRepoImpl.
func NewViewHistoryRepo(db *sqlx.DB) *ViewHistoryRepoImpl {
	return &ViewHistoryRepoImpl{db: db}
}

func (r *ViewHistoryRepoImpl) Create(ctx context.Context, v *entity.ViewHistory) error {
	var pathJSON []byte
	if v.PathJSON != nil {
		var err error
		if pathJSON, err = json.Marshal(v.PathJSON); err != nil {
			return err
		}
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}

	query := `
		INSERT INTO view_history (id, session_id, user_id, entity_type, entity_id, path, path_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRowxContext(ctx, query,
		v.ID, v.SessionID, v.UserID, v.EntityType, v.EntityID, v.Path, pathJSON,
	).Scan(&v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert view history: %w", err)
	}
	return nil
}

func (r *ViewHistoryRepoImpl) ListBySession(ctx context.Context, sessionID string, limit int) ([]*entity.ViewHistory, error) {
	return r.list(ctx, `SELECT `+viewHistoryColumns+` FROM view_history WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2`, sessionID, limit)
}

func (r *ViewHistoryRepoImpl) ListByUser(ctx context.Context, userID string, limit int) ([]*entity.ViewHistory, error) {
	return r.list(ctx, `SELECT `+viewHistoryColumns+` FROM view_history WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
}

func (r *ViewHistoryRepoImpl) DeleteBySession(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM view_history WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to clear view history: %w", err)
	}
	return nil
}

func (r *ViewHistoryRepoImpl) list(ctx context.Context, query string, args ...any) ([]*entity.ViewHistory, error) {
	var rows []viewHistoryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		if code, _ := pgErrorCode(err); code == pgInvalidTextInput {
			return []*entity.ViewHistory{}, nil
		}
		return nil, fmt.Errorf("failed to list view history: %w", err)
	}

	out := make([]*entity.ViewHistory, 0, len(rows))
	for _, row := range rows {
		v := &entity.ViewHistory{
			ID:         row.ID,
			SessionID:  row.SessionID,
			UserID:     row.UserID,
			EntityType: row.EntityType,
			EntityID:   row.EntityID,
			Path:       row.Path,
			CreatedAt:  row.CreatedAt,
		}
		if len(row.PathJSON) > 0 {
			if err := json.Unmarshal(row.PathJSON, &v.PathJSON); err != nil {
				return nil, fmt.Errorf("failed to decode path_json: %w", err)
			}
		}
		out = append(out, v)
	}
	return out, nil
}

var _ repository.ViewHistoryRepository = (*ViewHistoryRepoImpl)(nil)
