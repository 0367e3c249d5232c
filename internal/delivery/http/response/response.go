package response

import (
	"time"

	"github.com/user/catalog-service/internal/entity"
)

// ScrapeJobResponse is the DTO for a scrape job.
type ScrapeJobResponse struct {
	ID           string     `json:"id"`
	TargetURL    string     `json:"targetUrl"`
	TargetType   string     `json:"targetType"`
	Status       string     `json:"status"` // "pending", "processing", "completed", "failed"
	ReferenceID  *string    `json:"referenceId,omitempty"`
	ForceRefresh bool       `json:"forceRefresh"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
	ErrorLog     *string    `json:"errorLog,omitempty"`
	RetryCount   int        `json:"retryCount"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// SubmitScrapeResponse acknowledges an accepted scrape request.
type SubmitScrapeResponse struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	Job     *ScrapeJobResponse `json:"job"`
}

type NavigationResponse struct {
	ID            string             `json:"id"`
	Title         string             `json:"title"`
	Slug          string             `json:"slug"`
	SourceURL     string             `json:"sourceUrl"`
	LastScrapedAt *time.Time         `json:"lastScrapedAt"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
	Categories    []CategoryResponse `json:"categories,omitempty"`
}

type CategoryResponse struct {
	ID            string              `json:"id"`
	NavigationID  *string             `json:"navigationId"`
	ParentID      *string             `json:"parentId"`
	Title         string              `json:"title"`
	Slug          string              `json:"slug"`
	SourceURL     string              `json:"sourceUrl"`
	ProductCount  *int                `json:"productCount"`
	ImageURL      *string             `json:"imageUrl"`
	LastScrapedAt *time.Time          `json:"lastScrapedAt"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
	Navigation    *NavigationResponse `json:"navigation,omitempty"`
	Parent        *CategoryResponse   `json:"parent,omitempty"`
	Children      []CategoryResponse  `json:"children,omitempty"`
}

type ProductResponse struct {
	ID            string                 `json:"id"`
	SourceID      string                 `json:"sourceId"`
	Title         string                 `json:"title"`
	Author        *string                `json:"author"`
	Price         float64                `json:"price"`
	Currency      string                 `json:"currency"`
	OriginalPrice *float64               `json:"originalPrice"`
	ImageURL      *string                `json:"imageUrl"`
	SourceURL     string                 `json:"sourceUrl"`
	CategoryID    *string                `json:"categoryId"`
	Condition     *string                `json:"condition"`
	InStock       bool                   `json:"inStock"`
	LastScrapedAt *time.Time             `json:"lastScrapedAt"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
	Category      *CategoryResponse      `json:"category,omitempty"`
	Detail        *ProductDetailResponse `json:"detail,omitempty"`
	Reviews       []ReviewResponse       `json:"reviews,omitempty"`
}

type ProductDetailResponse struct {
	ID                string            `json:"id"`
	ProductID         string            `json:"productId"`
	Description       *string           `json:"description"`
	Specs             map[string]string `json:"specs"`
	ISBN              *string           `json:"isbn"`
	Publisher         *string           `json:"publisher"`
	PublicationDate   *string           `json:"publicationDate"`
	Format            *string           `json:"format"`
	Language          *string           `json:"language"`
	Pages             *int              `json:"pages"`
	RatingsAvg        *float64          `json:"ratingsAvg"`
	ReviewsCount      int               `json:"reviewsCount"`
	RelatedProductIDs []string          `json:"relatedProductIds"`
}

type ReviewResponse struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"productId"`
	Author     *string   `json:"author"`
	Rating     int       `json:"rating"`
	Text       *string   `json:"text"`
	Title      *string   `json:"title"`
	ReviewDate *string   `json:"reviewDate"`
	CreatedAt  time.Time `json:"createdAt"`
}

type ViewHistoryResponse struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"sessionId"`
	UserID     *string        `json:"userId"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Path       *string        `json:"path"`
	PathJSON   map[string]any `json:"pathJson"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// PageResponse wraps one page of a listing.
type PageResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type SyncResponse struct {
	Synced int `json:"synced"`
	Total  int `json:"total"`
}

func NewScrapeJob(j *entity.ScrapeJob) *ScrapeJobResponse {
	return &ScrapeJobResponse{
		ID:           j.ID,
		TargetURL:    j.TargetURL,
		TargetType:   string(j.TargetType),
		Status:       string(j.Status),
		ReferenceID:  j.ReferenceID,
		ForceRefresh: j.ForceRefresh,
		StartedAt:    j.StartedAt,
		FinishedAt:   j.FinishedAt,
		ErrorLog:     j.ErrorLog,
		RetryCount:   j.RetryCount,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

func NewNavigation(n *entity.Navigation) NavigationResponse {
	return NavigationResponse{
		ID:            n.ID,
		Title:         n.Title,
		Slug:          n.Slug,
		SourceURL:     n.SourceURL,
		LastScrapedAt: n.LastScrapedAt,
		CreatedAt:     n.CreatedAt,
		UpdatedAt:     n.UpdatedAt,
		Categories:    Map(n.Categories, NewCategory),
	}
}

func NewCategory(c *entity.Category) CategoryResponse {
	resp := CategoryResponse{
		ID:            c.ID,
		NavigationID:  c.NavigationID,
		ParentID:      c.ParentID,
		Title:         c.Title,
		Slug:          c.Slug,
		SourceURL:     c.SourceURL,
		ProductCount:  c.ProductCount,
		ImageURL:      c.ImageURL,
		LastScrapedAt: c.LastScrapedAt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
		Children:      Map(c.Children, NewCategory),
	}
	if c.Navigation != nil {
		nav := NewNavigation(c.Navigation)
		resp.Navigation = &nav
	}
	if c.Parent != nil {
		parent := NewCategory(c.Parent)
		resp.Parent = &parent
	}
	return resp
}

func NewProduct(p *entity.Product) ProductResponse {
	resp := ProductResponse{
		ID:            p.ID,
		SourceID:      p.SourceID,
		Title:         p.Title,
		Author:        p.Author,
		Price:         p.Price,
		Currency:      p.Currency,
		OriginalPrice: p.OriginalPrice,
		ImageURL:      p.ImageURL,
		SourceURL:     p.SourceURL,
		CategoryID:    p.CategoryID,
		Condition:     p.Condition,
		InStock:       p.InStock,
		LastScrapedAt: p.LastScrapedAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		Reviews:       Map(p.Reviews, NewReview),
	}
	if p.Category != nil {
		c := NewCategory(p.Category)
		resp.Category = &c
	}
	if p.Detail != nil {
		resp.Detail = NewProductDetail(p.Detail)
	}
	return resp
}

func NewProductDetail(d *entity.ProductDetail) *ProductDetailResponse {
	related := d.RelatedProductIDs
	if related == nil {
		related = []string{}
	}
	return &ProductDetailResponse{
		ID:                d.ID,
		ProductID:         d.ProductID,
		Description:       d.Description,
		Specs:             d.Specs,
		ISBN:              d.ISBN,
		Publisher:         d.Publisher,
		PublicationDate:   d.PublicationDate,
		Format:            d.Format,
		Language:          d.Language,
		Pages:             d.Pages,
		RatingsAvg:        d.RatingsAvg,
		ReviewsCount:      d.ReviewsCount,
		RelatedProductIDs: related,
	}
}

func NewReview(r *entity.Review) ReviewResponse {
	return ReviewResponse{
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

func NewViewHistory(v *entity.ViewHistory) ViewHistoryResponse {
	return ViewHistoryResponse{
		ID:         v.ID,
		SessionID:  v.SessionID,
		UserID:     v.UserID,
		EntityType: v.EntityType,
		EntityID:   v.EntityID,
		Path:       v.Path,
		PathJSON:   v.PathJSON,
		CreatedAt:  v.CreatedAt,
	}
}

// Map converts a slice of entities. A nil input gives nil so omitempty drops it.
func Map[E any, R any](in []E, fn func(E) R) []R {
	if in == nil {
		return nil
	}
	out := make([]R, 0, len(in))
	for _, e := range in {
		out = append(out, fn(e))
	}
	return out
}

// List converts a slice of entities and never returns nil, so lists encode as [].
func List[E any, R any](in []E, fn func(E) R) []R {
	out := Map(in, fn)
	if out == nil {
		out = []R{}
	}
	return out
}
