package entity

import "time"

// Product mirrors the `product` PostgreSQL table schema.
type Product struct {
	ID            string
	SourceID      string
	Title         string
	Author        *string
	Price         float64
	Currency      string
	OriginalPrice *float64
	ImageURL      *string
	SourceURL     string
	CategoryID    *string
	Condition     *string
	InStock       bool
	LastScrapedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Category *Category
	Detail   *ProductDetail
	Reviews  []*Review
}

// ProductDetail holds the data only available on a product's own page.
type ProductDetail struct {
	ID                string
	ProductID         string
	Description       *string
	Specs             map[string]string // Stored as JSONB in PostgreSQL
	ISBN              *string
	Publisher         *string
	PublicationDate   *string
	Format            *string
	Language          *string
	Pages             *int
	RatingsAvg        *float64
	ReviewsCount      int
	RelatedProductIDs []string // Source ids, stored as JSONB in PostgreSQL
}

// Review is a customer review attached to a product.
type Review struct {
	ID         string
	ProductID  string
	Author     *string
	Rating     int
	Text       *string
	Title      *string
	ReviewDate *string
	CreatedAt  time.Time
}
