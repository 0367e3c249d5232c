package request

type SubmitScrapeRequest struct {
	TargetURL    string `json:"targetUrl"`
	TargetType   string `json:"targetType"` // "navigation", "category", "product_list" or "product_detail"
	ReferenceID  string `json:"referenceId"`
	ForceRefresh bool   `json:"forceRefresh"`
}

type RefreshCategoryRequest struct {
	SourceURL    string `json:"sourceUrl"`
	NavigationID string `json:"navigationId"`
}

type RefreshProductsRequest struct {
	SourceURL  string `json:"sourceUrl"`
	CategoryID string `json:"categoryId"`
}

type CreateViewHistoryRequest struct {
	SessionID  string         `json:"sessionId"`
	UserID     string         `json:"userId"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Path       string         `json:"path"`
	PathJSON   map[string]any `json:"pathJson"`
}
