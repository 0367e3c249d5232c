package entity

import "time"

// ViewHistory records a page view for a browsing session.
type ViewHistory struct {
	ID         string
	SessionID  string
	UserID     *string
	EntityType string
	EntityID   string
	Path       *string
	PathJSON   map[string]any
	CreatedAt  time.Time
}
