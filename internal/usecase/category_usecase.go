package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
)

const (
	defaultCategoryLimit = 50
	maxPageLimit         = 100
)

// CategoryQuery filters a category listing. ParentID wins over TopLevel.
type CategoryQuery struct {
	NavigationID string
	ParentID     string
	TopLevel     bool
	Page         int
	Limit        int
}

// Page is one page of a listing plus the total across all pages.
type Page[T any] struct {
	Data  []T
	Total int
	Page  int
	Limit int
}

// SyncResult reports a navigation to category sync.
type SyncResult struct {
	Synced int
	Total  int
}

// CategoryService serves categories and keeps them fresh.
type CategoryService interface {
	// FindAll populates categories from navigation first when none exist, so the
	// returned total already counts them.
	FindAll(ctx context.Context, q CategoryQuery) (*Page[*entity.Category], error)
	FindOne(ctx context.Context, id string) (*entity.Category, error)
	FindBySlug(ctx context.Context, slug string) (*entity.Category, error)
	// GetBreadcrumbs returns the chain from the root down to id.
	GetBreadcrumbs(ctx context.Context, id string) ([]*entity.Category, error)
	TriggerScrape(ctx context.Context, sourceURL, navigationID string) (*entity.ScrapeJob, error)
	SyncFromNavigation(ctx context.Context) (*SyncResult, error)
}

type categoryUseCase struct {
	categories repository.CategoryRepository
	navs       repository.NavigationRepository
	scrape     ScrapeService
	trigger    *Trigger
	logger     *zap.Logger
}

func NewCategoryService(
	categories repository.CategoryRepository,
	navs repository.NavigationRepository,
	scrape ScrapeService,
	trigger *Trigger,
	logger *zap.Logger,
) CategoryService {
	return &categoryUseCase{
		categories: categories,
		navs:       navs,
		scrape:     scrape,
		trigger:    trigger,
		logger:     logger.Named("category"),
	}
}

func (uc *categoryUseCase) FindAll(ctx context.Context, q CategoryQuery) (*Page[*entity.Category], error) {
	page, limit := normalizePage(q.Page, q.Limit, defaultCategoryLimit)

	count, err := uc.categories.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}
	if count == 0 {
		uc.logger.Info("No categories found, syncing from navigation")
		if _, err := uc.SyncFromNavigation(ctx); err != nil {
			return nil, err
		}
	}

	data, total, err := uc.categories.List(ctx, repository.CategoryFilter{
		NavigationID: q.NavigationID,
		ParentID:     q.ParentID,
		TopLevel:     q.TopLevel && q.ParentID == "",
		Offset:       (page - 1) * limit,
		Limit:        limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	if len(data) > 0 && data[0].SourceURL != "" {
		scrapedAt := make([]*time.Time, len(data))
		for i, c := range data {
			scrapedAt[i] = c.LastScrapedAt
		}
		if uc.scrape.AnyCacheExpired(scrapedAt...) {
			uc.refreshInBackground(ctx, data[0])
		}
	}

	return &Page[*entity.Category]{Data: data, Total: total, Page: page, Limit: limit}, nil
}

func (uc *categoryUseCase) FindOne(ctx context.Context, id string) (*entity.Category, error) {
	c, err := uc.categories.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if uc.scrape.IsCacheExpired(c.LastScrapedAt) {
		uc.refreshInBackground(ctx, c)
	}
	return c, nil
}

func (uc *categoryUseCase) refreshInBackground(ctx context.Context, c *entity.Category) {
	sourceURL, navigationID := c.SourceURL, deref(c.NavigationID)
	uc.trigger.Fire(ctx, "category", sourceURL, func(ctx context.Context) error {
		_, err := uc.TriggerScrape(ctx, sourceURL, navigationID)
		return err
	})
}

func (uc *categoryUseCase) FindBySlug(ctx context.Context, slug string) (*entity.Category, error) {
	return uc.categories.FindBySlug(ctx, slug)
}

func (uc *categoryUseCase) GetBreadcrumbs(ctx context.Context, id string) ([]*entity.Category, error) {
	var crumbs []*entity.Category
	seen := make(map[string]bool)
	for next := id; next != "" && !seen[next]; {
		seen[next] = true
		c, err := uc.categories.FindByID(ctx, next)
		if errors.Is(err, repository.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load category %s: %w", next, err)
		}
		crumbs = append([]*entity.Category{c}, crumbs...)
		next = deref(c.ParentID)
	}
	if crumbs == nil {
		crumbs = []*entity.Category{}
	}
	return crumbs, nil
}

func (uc *categoryUseCase) TriggerScrape(ctx context.Context, sourceURL, navigationID string) (*entity.ScrapeJob, error) {
	return uc.scrape.EnqueueScrapeJob(ctx, sourceURL, entity.TargetTypeCategory, navigationID, false)
}

func (uc *categoryUseCase) SyncFromNavigation(ctx context.Context) (*SyncResult, error) {
	navs, err := uc.navs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list navigation: %w", err)
	}

	res := &SyncResult{Total: len(navs)}
	for _, n := range navs {
		c := &entity.Category{
			NavigationID:  &n.ID,
			Title:         n.Title,
			Slug:          n.Slug,
			SourceURL:     n.SourceURL,
			LastScrapedAt: n.LastScrapedAt,
		}
		inserted, err := uc.categories.Upsert(ctx, c)
		if err != nil {
			uc.logger.Error("Failed to sync category from navigation", zap.String("title", n.Title), zap.Error(err))
			continue
		}
		if inserted {
			res.Synced++
		}
	}

	uc.logger.Info("Synced categories from navigation", zap.Int("synced", res.Synced), zap.Int("total", res.Total))
	return res, nil
}

func normalizePage(page, limit, defaultLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
