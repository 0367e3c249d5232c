package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
)

const productColumns = `id, source_id, title, author, price, currency, original_price, image_url,
	source_url, category_id, condition, in_stock, last_scraped_at, created_at, updated_at`

const productDetailColumns = `id, product_id, description, specs, isbn, publisher, publication_date,
	format, language, pages, ratings_avg, reviews_count, related_product_ids`

// productSortColumns whitelists the columns a listing may be ordered by.
var productSortColumns = map[string]string{
	"title":     "title",
	"price":     "price",
	"author":    "author",
	"createdAt": "created_at",
}

type productRow struct {
	ID            string     `db:"id"`
	SourceID      string     `db:"source_id"`
	Title         string     `db:"title"`
	Author        *string    `db:"author"`
	Price         float64    `db:"price"`
	Currency      string     `db:"currency"`
	OriginalPrice *float64   `db:"original_price"`
	ImageURL      *string    `db:"image_url"`
	SourceURL     string     `db:"source_url"`
	CategoryID    *string    `db:"category_id"`
	Condition     *string    `db:"condition"`
	InStock       bool       `db:"in_stock"`
	LastScrapedAt *time.Time `db:"last_scraped_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

func (r *productRow) toEntity() *entity.Product {
	return &entity.Product{
		ID:            r.ID,
		SourceID:      r.SourceID,
		Title:         r.Title,
		Author:        r.Author,
		Price:         r.Price,
		Currency:      r.Currency,
		OriginalPrice: r.OriginalPrice,
		ImageURL:      r.ImageURL,
		SourceURL:     r.SourceURL,
		CategoryID:    r.CategoryID,
		Condition:     r.Condition,
		InStock:       r.InStock,
		LastScrapedAt: r.LastScrapedAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func toProducts(rows []productRow) []*entity.Product {
	out := make([]*entity.Product, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toEntity())
	}
	return out
}

type productDetailRow struct {
	ID                string   `db:"id"`
	ProductID         string   `db:"product_id"`
	Description       *string  `db:"description"`
	Specs             []byte   `db:"specs"`
	ISBN              *string  `db:"isbn"`
	Publisher         *string  `db:"publisher"`
	PublicationDate   *string  `db:"publication_date"`
	Format            *string  `db:"format"`
	Language          *string  `db:"language"`
	Pages             *int     `db:"pages"`
	RatingsAvg        *float64 `db:"ratings_avg"`
	ReviewsCount      int      `db:"reviews_count"`
	RelatedProductIDs []byte   `db:"related_product_ids"`
}

func (r *productDetailRow) toEntity() (*entity.ProductDetail, error) {
	d := &entity.ProductDetail{
		ID:              r.ID,
		ProductID:       r.ProductID,
		Description:     r.Description,
		ISBN:            r.ISBN,
		Publisher:       r.Publisher,
		PublicationDate: r.PublicationDate,
		Format:          r.Format,
		Language:        r.Language,
		Pages:           r.Pages,
		RatingsAvg:      r.RatingsAvg,
		ReviewsCount:    r.ReviewsCount,
	}
	if len(r.Specs) > 0 {
		if err := json.Unmarshal(r.Specs, &d.Specs); err != nil {
			return nil, fmt.Errorf("failed to decode specs for product %s: %w", r.ProductID, err)
		}
	}
	if len(r.RelatedProductIDs) > 0 {
		if err := json.Unmarshal(r.RelatedProductIDs, &d.RelatedProductIDs); err != nil {
			return nil, fmt.Errorf("failed to decode related products for product %s: %w", r.ProductID, err)
		}
	}
	return d, nil
}

type reviewRow struct {
	ID         string    `db:"id"`
	ProductID  string    `db:"product_id"`
	Author     *string   `db:"author"`
	Rating     int       `db:"rating"`
	Text       *string   `db:"text"`
	Title      *string   `db:"title"`
	ReviewDate *string   `db:"review_date"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r *reviewRow) toEntity() *entity.Review {
	return &entity.Review{
		ID:         r.ID,
		ProductID:  r.ProductID,
		Author:     r.Author,
		Rating:     r.Rating,
		Text:       r.Text,
		Title:      r.Title,
		ReviewDate: r.ReviewDate,
		CreatedAt:  r.CreatedAt,
	}
}

// ProductRepoImpl stores products in the `product`, `product_detail` and `review` tables.
type ProductRepoImpl struct {
	db *sqlx.DB
}

// NewProductRepo creates a new instance of ProductRepoImpl.
func NewProductRepo(db *sqlx.DB) *ProductRepoImpl {
	return &ProductRepoImpl{db: db}
}

func (r *ProductRepoImpl) List(ctx context.Context, filter repository.ProductFilter) ([]*entity.Product, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		conds = append(conds, "category_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		conds = append(conds, "(title ILIKE $"+n+" OR author ILIKE $"+n+")")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM product`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	column, ok := productSortColumns[filter.SortBy]
	if !ok {
		column = "title"
	}
	order := "ASC"
	if filter.SortDesc {
		order = "DESC"
	}

	pageArgs := append(append([]any{}, args...), filter.Limit, filter.Offset)
	query := `SELECT ` + productColumns + ` FROM product` + where +
		` ORDER BY ` + column + ` ` + order + `, id ASC` +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)

	var rows []productRow
	if err := r.db.SelectContext(ctx, &rows, query, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return toProducts(rows), total, nil
}

// FindByID loads a product with its category, detail and reviews.
func (r *ProductRepoImpl) FindByID(ctx context.Context, id string) (*entity.Product, error) {
	p, err := r.findOne(ctx, `SELECT `+productColumns+` FROM product WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return p, r.loadRelations(ctx, p)
}

func (r *ProductRepoImpl) FindBySourceID(ctx context.Context, sourceID string) (*entity.Product, error) {
	p, err := r.findOne(ctx, `SELECT `+productColumns+` FROM product WHERE source_id = $1`, sourceID)
	if err != nil {
		return nil, err
	}
	return p, r.loadRelations(ctx, p)
}

func (r *ProductRepoImpl) FindBySourceURL(ctx context.Context, sourceURL string) (*entity.Product, error) {
	return r.findOne(ctx, `SELECT `+productColumns+` FROM product WHERE source_url = $1`, sourceURL)
}

func (r *ProductRepoImpl) ListBySourceIDs(ctx context.Context, sourceIDs []string, limit int) ([]*entity.Product, error) {
	if len(sourceIDs) == 0 {
		return []*entity.Product{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+productColumns+` FROM product WHERE source_id IN (?) ORDER BY title ASC LIMIT ?`, sourceIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build related products query: %w", err)
	}

	var rows []productRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list products by source id: %w", err)
	}
	return toProducts(rows), nil
}

// Upsert keys on source_id. Optional fields left nil keep their stored value.
func (r *ProductRepoImpl) Upsert(ctx context.Context, p *entity.Product) error {
	if p.Currency == "" {
		p.Currency = "GBP"
	}
	query := `
		INSERT INTO product (id, source_id, title, author, price, currency, original_price, image_url,
			source_url, category_id, condition, in_stock, last_scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (source_id) DO UPDATE SET
			title = EXCLUDED.title,
			author = COALESCE(EXCLUDED.author, product.author),
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			original_price = COALESCE(EXCLUDED.original_price, product.original_price),
			image_url = COALESCE(EXCLUDED.image_url, product.image_url),
			source_url = EXCLUDED.source_url,
			category_id = COALESCE(EXCLUDED.category_id, product.category_id),
			condition = COALESCE(EXCLUDED.condition, product.condition),
			in_stock = EXCLUDED.in_stock,
			last_scraped_at = COALESCE(EXCLUDED.last_scraped_at, product.last_scraped_at),
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		uuid.NewString(),
		p.SourceID,
		p.Title,
		p.Author,
		p.Price,
		p.Currency,
		p.OriginalPrice,
		p.ImageURL,
		p.SourceURL,
		p.CategoryID,
		p.Condition,
		p.InStock,
		p.LastScrapedAt,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.SourceID, err)
	}
	return nil
}

func (r *ProductRepoImpl) MarkScraped(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE product SET last_scraped_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	return execRequireRows(result, err, "product")
}

func (r *ProductRepoImpl) GetDetail(ctx context.Context, productID string) (*entity.ProductDetail, error) {
	var row productDetailRow
	query := `SELECT ` + productDetailColumns + ` FROM product_detail WHERE product_id = $1`
	if err := r.db.GetContext(ctx, &row, query, productID); err != nil {
		return nil, lookupErr(err, "product detail")
	}
	return row.toEntity()
}

// UpsertDetail keys on product_id.
func (r *ProductRepoImpl) UpsertDetail(ctx context.Context, d *entity.ProductDetail) error {
	specs, err := json.Marshal(d.Specs)
	if err != nil {
		return err
	}
	related := d.RelatedProductIDs
	if related == nil {
		related = []string{}
	}
	relatedJSON, err := json.Marshal(related)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO product_detail (id, product_id, description, specs, isbn, publisher, publication_date,
			format, language, pages, ratings_avg, reviews_count, related_product_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (product_id) DO UPDATE SET
			description = EXCLUDED.description,
			specs = EXCLUDED.specs,
			isbn = EXCLUDED.isbn,
			publisher = EXCLUDED.publisher,
			publication_date = EXCLUDED.publication_date,
			format = EXCLUDED.format,
			language = EXCLUDED.language,
			pages = EXCLUDED.pages,
			ratings_avg = EXCLUDED.ratings_avg,
			reviews_count = EXCLUDED.reviews_count,
			related_product_ids = EXCLUDED.related_product_ids,
			updated_at = NOW()
		RETURNING id`

	err = r.db.QueryRowxContext(ctx, query,
		uuid.NewString(),
		d.ProductID,
		d.Description,
		specs,
		d.ISBN,
		d.Publisher,
		d.PublicationDate,
		d.Format,
		d.Language,
		d.Pages,
		d.RatingsAvg,
		d.ReviewsCount,
		relatedJSON,
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert product detail %s: %w", d.ProductID, err)
	}
	return nil
}

func (r *ProductRepoImpl) ListReviews(ctx context.Context, productID string) ([]*entity.Review, error) {
	var rows []reviewRow
	query := `SELECT id, product_id, author, rating, text, title, review_date, created_at
		FROM review WHERE product_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &rows, query, productID); err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	reviews := make([]*entity.Review, 0, len(rows))
	for i := range rows {
		reviews = append(reviews, rows[i].toEntity())
	}
	return reviews, nil
}

// AddReviews inserts the reviews in one transaction, skipping any whose author
// and text already exist for the product.
func (r *ProductRepoImpl) AddReviews(ctx context.Context, productID string, reviews []*entity.Review) (int, error) {
	if len(reviews) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin review transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO review (id, product_id, author, rating, text, title, review_date)
		SELECT $1, $2, $3, $4, $5, $6, $7
		WHERE NOT EXISTS (
			SELECT 1 FROM review
			WHERE product_id = $2 AND author IS NOT DISTINCT FROM $3 AND text IS NOT DISTINCT FROM $5
		)`

	added := 0
	for _, rv := range reviews {
		rv.ProductID = productID
		if rv.ID == "" {
			rv.ID = uuid.NewString()
		}
		result, err := tx.ExecContext(ctx, query, rv.ID, productID, rv.Author, rv.Rating, rv.Text, rv.Title, rv.ReviewDate)
		if err != nil {
			return 0, fmt.Errorf("failed to insert review: %w", err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit reviews: %w", err)
	}
	return added, nil
}

func (r *ProductRepoImpl) findOne(ctx context.Context, query string, arg any) (*entity.Product, error) {
	var row productRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		return nil, lookupErr(err, "product")
	}
	return row.toEntity(), nil
}

func (r *ProductRepoImpl) loadRelations(ctx context.Context, p *entity.Product) error {
	detail, err := r.GetDetail(ctx, p.ID)
	switch {
	case err == nil:
		p.Detail = detail
	case err != repository.ErrNotFound:
		return err
	}

	reviews, err := r.ListReviews(ctx, p.ID)
	if err != nil {
		return err
	}
	p.Reviews = reviews

	if p.CategoryID != nil {
		var row categoryRow
		err := r.db.GetContext(ctx, &row, `SELECT `+categoryColumns+` FROM category WHERE id = $1`, *p.CategoryID)
		if err == nil {
			p.Category = row.toEntity()
		} else if lerr := lookupErr(err, "category"); lerr != repository.ErrNotFound {
			return lerr
		}
	}
	return nil
}

var _ repository.ProductRepository = (*ProductRepoImpl)(nil)
