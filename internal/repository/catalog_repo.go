package repository

import (
	"context"
	"time"

	"github.com/user/catalog-service/internal/entity"
)

// NavigationRepository stores the navigation tree.
type NavigationRepository interface {
	// List returns all navigation items ordered by title.
	List(ctx context.Context) ([]*entity.Navigation, error)
	FindByID(ctx context.Context, id string) (*entity.Navigation, error)
	FindBySlug(ctx context.Context, slug string) (*entity.Navigation, error)
	// Upsert inserts or updates by source URL and fills nav.ID.
	Upsert(ctx context.Context, nav *entity.Navigation) error
}

// CategoryFilter narrows a category listing.
type CategoryFilter struct {
	NavigationID string
	ParentID     string
	// TopLevel restricts the listing to categories without a parent.
	TopLevel bool
	Offset   int
	Limit    int
}

// CategoryRepository stores categories.
type CategoryRepository interface {
	Count(ctx context.Context) (int, error)
	// List returns one page ordered by title plus the total matching the filter.
	List(ctx context.Context, filter CategoryFilter) ([]*entity.Category, int, error)
	FindByID(ctx context.Context, id string) (*entity.Category, error)
	FindBySlug(ctx context.Context, slug string) (*entity.Category, error)
	FindBySourceURL(ctx context.Context, sourceURL string) (*entity.Category, error)
	ListChildren(ctx context.Context, parentID string) ([]*entity.Category, error)
	ListByNavigation(ctx context.Context, navigationID string) ([]*entity.Category, error)
	// Upsert inserts or updates by source URL, fills c.ID and reports whether a row was inserted.
	Upsert(ctx context.Context, c *entity.Category) (bool, error)
}

// ProductFilter narrows a product listing.
type ProductFilter struct {
	CategoryID string
	// Search matches title or author, case insensitive.
	Search   string
	SortBy   string
	SortDesc bool
	Offset   int
	Limit    int
}

// ProductRepository stores products, their details and reviews.
type ProductRepository interface {
	List(ctx context.Context, filter ProductFilter) ([]*entity.Product, int, error)
	FindByID(ctx context.Context, id string) (*entity.Product, error)
	FindBySourceID(ctx context.Context, sourceID string) (*entity.Product, error)
	FindBySourceURL(ctx context.Context, sourceURL string) (*entity.Product, error)
	ListBySourceIDs(ctx context.Context, sourceIDs []string, limit int) ([]*entity.Product, error)
	// Upsert inserts or updates by source id and fills p.ID.
	Upsert(ctx context.Context, p *entity.Product) error
	MarkScraped(ctx context.Context, id string, at time.Time) error

	// GetDetail returns ErrNotFound when the product has no detail row yet.
	GetDetail(ctx context.Context, productID string) (*entity.ProductDetail, error)
	UpsertDetail(ctx context.Context, d *entity.ProductDetail) error
	// ListReviews returns reviews newest first.
	ListReviews(ctx context.Context, productID string) ([]*entity.Review, error)
	// AddReviews stores reviews not already present for the product (same author and text).
	AddReviews(ctx context.Context, productID string, reviews []*entity.Review) (int, error)
}

// ViewHistoryRepository stores per-session browsing history.
type ViewHistoryRepository interface {
	Create(ctx context.Context, v *entity.ViewHistory) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*entity.ViewHistory, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*entity.ViewHistory, error)
	DeleteBySession(ctx context.Context, sessionID string) error
}
