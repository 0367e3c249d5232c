package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
)

const categoryColumns = `id, navigation_id, parent_id, title, slug, source_url, product_count,
	image_url, last_scraped_at, created_at, updated_at`

type categoryRow struct {
	ID            string     `db:"id"`
	NavigationID  *string    `db:"navigation_id"`
	ParentID      *string    `db:"parent_id"`
	Title         string     `db:"title"`
	Slug          string     `db:"slug"`
	SourceURL     string     `db:"source_url"`
	ProductCount  *int       `db:"product_count"`
	ImageURL      *string    `db:"image_url"`
	LastScrapedAt *time.Time `db:"last_scraped_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

func (r *categoryRow) toEntity() *entity.Category {
	return &entity.Category{
		ID:            r.ID,
		NavigationID:  r.NavigationID,
		ParentID:      r.ParentID,
		Title:         r.Title,
		Slug:          r.Slug,
		SourceURL:     r.SourceURL,
		ProductCount:  r.ProductCount,
		ImageURL:      r.ImageURL,
		LastScrapedAt: r.LastScrapedAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func toCategories(rows []categoryRow) []*entity.Category {
	out := make([]*entity.Category, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toEntity())
	}
	return out
}

// CategoryRepoImpl stores categories in the `category` table.
type CategoryRepoImpl struct {
	db *sqlx.DB
}

// NewCategoryRepo creates a new instance of CategoryRepoImpl.
func NewCategoryRepo(db *sqlx.DB) *CategoryRepoImpl {
	return &CategoryRepoImpl{db: db}
}

func (r *CategoryRepoImpl) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM category`); err != nil {
		return 0, fmt.Errorf("failed to count categories: %w", err)
	}
	return n, nil
}

func (r *CategoryRepoImpl) List(ctx context.Context, filter repository.CategoryFilter) ([]*entity.Category, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.NavigationID != "" {
		args = append(args, filter.NavigationID)
		conds = append(conds, "navigation_id = $"+strconv.Itoa(len(args)))
	}
	if filter.ParentID != "" {
		args = append(args, filter.ParentID)
		conds = append(conds, "parent_id = $"+strconv.Itoa(len(args)))
	} else if filter.TopLevel {
		conds = append(conds, "parent_id IS NULL")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM category`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count categories: %w", err)
	}

	pageArgs := append(append([]any{}, args...), filter.Limit, filter.Offset)
	query := `SELECT ` + categoryColumns + ` FROM category` + where +
		` ORDER BY title ASC LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)

	var rows []categoryRow
	if err := r.db.SelectContext(ctx, &rows, query, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list categories: %w", err)
	}
	return toCategories(rows), total, nil
}

func (r *CategoryRepoImpl) FindByID(ctx context.Context, id string) (*entity.Category, error) {
	c, err := r.findOne(ctx, `SELECT `+categoryColumns+` FROM category WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return c, r.loadRelations(ctx, c)
}

func (r *CategoryRepoImpl) FindBySlug(ctx context.Context, slug string) (*entity.Category, error) {
	c, err := r.findOne(ctx, `SELECT `+categoryColumns+` FROM category WHERE slug = $1 ORDER BY created_at ASC LIMIT 1`, slug)
	if err != nil {
		return nil, err
	}
	return c, r.loadRelations(ctx, c)
}

func (r *CategoryRepoImpl) FindBySourceURL(ctx context.Context, sourceURL string) (*entity.Category, error) {
	return r.findOne(ctx, `SELECT `+categoryColumns+` FROM category WHERE source_url = $1`, sourceURL)
}

func (r *CategoryRepoImpl) ListChildren(ctx context.Context, parentID string) ([]*entity.Category, error) {
	return r.list(ctx, `SELECT `+categoryColumns+` FROM category WHERE parent_id = $1 ORDER BY title ASC`, parentID)
}

func (r *CategoryRepoImpl) ListByNavigation(ctx context.Context, navigationID string) ([]*entity.Category, error) {
	return r.list(ctx, `SELECT `+categoryColumns+` FROM category WHERE navigation_id = $1 ORDER BY title ASC`, navigationID)
}

// Upsert keys on source_url. Optional fields left nil keep their stored value.
func (r *CategoryRepoImpl) Upsert(ctx context.Context, c *entity.Category) (bool, error) {
	query := `
		INSERT INTO category (id, navigation_id, parent_id, title, slug, source_url, product_count, image_url, last_scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source_url) DO UPDATE SET
			navigation_id = COALESCE(EXCLUDED.navigation_id, category.navigation_id),
			parent_id = COALESCE(EXCLUDED.parent_id, category.parent_id),
			title = EXCLUDED.title,
			slug = EXCLUDED.slug,
			product_count = COALESCE(EXCLUDED.product_count, category.product_count),
			image_url = COALESCE(EXCLUDED.image_url, category.image_url),
			last_scraped_at = EXCLUDED.last_scraped_at,
			updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0) AS inserted`

	var inserted bool
	err := r.db.QueryRowxContext(ctx, query,
		uuid.NewString(),
		c.NavigationID,
		c.ParentID,
		c.Title,
		c.Slug,
		c.SourceURL,
		c.ProductCount,
		c.ImageURL,
		c.LastScrapedAt,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert category %s: %w", c.SourceURL, err)
	}
	return inserted, nil
}

func (r *CategoryRepoImpl) findOne(ctx context.Context, query string, arg any) (*entity.Category, error) {
	var row categoryRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		return nil, lookupErr(err, "category")
	}
	return row.toEntity(), nil
}

func (r *CategoryRepoImpl) list(ctx context.Context, query string, args ...any) ([]*entity.Category, error) {
	var rows []categoryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return toCategories(rows), nil
}

// loadRelations fills parent, navigation and children.
func (r *CategoryRepoImpl) loadRelations(ctx context.Context, c *entity.Category) error {
	children, err := r.ListChildren(ctx, c.ID)
	if err != nil {
		return err
	}
	c.Children = children

	if c.ParentID != nil {
		parent, err := r.findOne(ctx, `SELECT `+categoryColumns+` FROM category WHERE id = $1`, *c.ParentID)
		if err != nil && err != repository.ErrNotFound {
			return err
		}
		c.Parent = parent
	}

	if c.NavigationID != nil {
		var row navigationRow
		err := r.db.GetContext(ctx, &row, `SELECT `+navigationColumns+` FROM navigation WHERE id = $1`, *c.NavigationID)
		switch lookup := err; {
		case lookup == nil:
			c.Navigation = row.toEntity()
		case lookupErr(lookup, "navigation") != repository.ErrNotFound:
			return lookupErr(lookup, "navigation")
		}
	}
	return nil
}

var _ repository.CategoryRepository = (*CategoryRepoImpl)(nil)
