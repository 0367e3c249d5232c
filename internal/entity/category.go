package entity

import "time"

// Category mirrors the `category` PostgreSQL table schema.
type Category struct {
	ID            string
	NavigationID  *string
	ParentID      *string
	Title         string
	Slug          string
	SourceURL     string
	ProductCount  *int
	ImageURL      *string
	LastScrapedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Relations, filled by FindOne-style lookups.
	Navigation *Navigation
	Parent     *Category
	Children   []*Category
}
