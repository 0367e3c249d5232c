package entity

import "time"

// Navigation is a top-level entry of the target site's navigation tree.
type Navigation struct {
	ID            string
	Title         string
	Slug          string
	SourceURL     string
	LastScrapedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Categories is populated only by lookups that load the relation.
	Categories []*Category
}
