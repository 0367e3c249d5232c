package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
)

const navigationColumns = `id, title, slug, source_url, last_scraped_at, created_at, updated_at`

type navigationRow struct {
	ID            string     `db:"id"`
	Title         string     `db:"title"`
	Slug          string     `db:"slug"`
	SourceURL     string     `db:"source_url"`
	LastScrapedAt *time.Time `db:"last_scraped_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

func (r *navigationRow) toEntity() *entity.Navigation {
	return &entity.Navigation{
		ID:            r.ID,
		Title:         r.Title,
		Slug:          r.Slug,
		SourceURL:     r.SourceURL,
		LastScrapedAt: r.LastScrapedAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// NavigationRepoImpl stores the navigation tree in the `navigation` table.
type NavigationRepoImpl struct {
	db         *sqlx.DB
	categories *CategoryRepoImpl
}

// NewNavigationRepo creates a new instance of NavigationRepoImpl.
func NewNavigationRepo(db *sqlx.DB) *NavigationRepoImpl {
	return &NavigationRepoImpl{db: db, categories: NewCategoryRepo(db)}
}

func (r *NavigationRepoImpl) List(ctx context.Context) ([]*entity.Navigation, error) {
	var rows []navigationRow
	query := `SELECT ` + navigationColumns + ` FROM navigation ORDER BY title ASC`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list navigation: %w", err)
	}
	navs := make([]*entity.Navigation, 0, len(rows))
	for i := range rows {
		navs = append(navs, rows[i].toEntity())
	}
	return navs, nil
}

func (r *NavigationRepoImpl) FindByID(ctx context.Context, id string) (*entity.Navigation, error) {
	return r.findOne(ctx, `SELECT `+navigationColumns+` FROM navigation WHERE id = $1`, id)
}

func (r *NavigationRepoImpl) FindBySlug(ctx context.Context, slug string) (*entity.Navigation, error) {
	return r.findOne(ctx, `SELECT `+navigationColumns+` FROM navigation WHERE slug = $1`, slug)
}

// findOne loads a navigation item together with its categories.
func (r *NavigationRepoImpl) findOne(ctx context.Context, query string, arg any) (*entity.Navigation, error) {
	var row navigationRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		return nil, lookupErr(err, "navigation")
	}
	nav := row.toEntity()

	categories, err := r.categories.ListByNavigation(ctx, nav.ID)
	if err != nil {
		return nil, err
	}
	nav.Categories = categories
	return nav, nil
}

func (r *NavigationRepoImpl) Upsert(ctx context.Context, nav *entity.Navigation) error {
	query := `
		INSERT INTO navigation (id, title, slug, source_url, last_scraped_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_url) DO UPDATE SET
			title = EXCLUDED.title,
			slug = EXCLUDED.slug,
			last_scraped_at = EXCLUDED.last_scraped_at,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		uuid.NewString(),
		nav.Title,
		nav.Slug,
		nav.SourceURL,
		nav.LastScrapedAt,
	).Scan(&nav.ID, &nav.CreatedAt, &nav.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert navigation %s: %w", nav.SourceURL, err)
	}
	return nil
}

var _ repository.NavigationRepository = (*NavigationRepoImpl)(nil)
