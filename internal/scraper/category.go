package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/utils"
)

// CategoryScraper reads the sub-category links of a category page. When the
// page itself is a known category, the links become its children and it is
// stamped as scraped.
type CategoryScraper struct {
	fetcher    repository.PageFetcher
	categories repository.CategoryRepository
	sel        Selectors
	logger     *zap.Logger
	now        clock
}

func NewCategoryScraper(fetcher repository.PageFetcher, categories repository.CategoryRepository, sel Selectors, logger *zap.Logger) *CategoryScraper {
	return &CategoryScraper{
		fetcher:    fetcher,
		categories: categories,
		sel:        sel,
		logger:     logger.Named("category_scraper"),
		now:        time.Now,
	}
}

func (s *CategoryScraper) Scrape(ctx context.Context, payload entity.JobPayload) error {
	doc, base, err := loadDocument(ctx, s.fetcher, payload.TargetURL)
	if err != nil {
		return err
	}

	page, err := s.categories.FindBySourceURL(ctx, payload.TargetURL)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to look up category %s: %w", payload.TargetURL, err)
	}

	var navigationID, parentID *string
	if payload.ReferenceID != "" {
		navigationID = &payload.ReferenceID
	}
	if page != nil {
		parentID = &page.ID
		if page.NavigationID != nil {
			navigationID = page.NavigationID
		}
	}

	now := s.now()
	found, saved := 0, 0
	for _, l := range collectLinks(doc, base, s.sel.CategoryLinks, s.sel.ExcludeLinkKeywords) {
		if l.Title == "" || l.URL == payload.TargetURL {
			continue
		}
		found++
		c := &entity.Category{
			NavigationID:  navigationID,
			ParentID:      parentID,
			Title:         l.Title,
			Slug:          utils.SlugFromURL(l.URL),
			SourceURL:     l.URL,
			ImageURL:      imageSource(l.Node, s.sel.CategoryImage),
			LastScrapedAt: &now,
		}
		if n, ok := categoryCount(l.Node, s.sel.CategoryCount); ok {
			c.ProductCount = &n
		}
		if _, err := s.categories.Upsert(ctx, c); err != nil {
			s.logger.Error("Failed to save category", zap.String("title", l.Title), zap.Error(err))
			continue
		}
		saved++
	}

	if page != nil {
		page.LastScrapedAt = &now
		if _, err := s.categories.Upsert(ctx, page); err != nil {
			return fmt.Errorf("failed to stamp category %s: %w", page.ID, err)
		}
	}
	if found == 0 {
		s.logger.Warn("No sub-categories found", zap.String("url", payload.TargetURL))
	}

	s.logger.Info("Category scrape completed",
		zap.String("url", payload.TargetURL),
		zap.Int("saved", saved),
		zap.Int("found", found),
	)
	return nil
}

// categoryCount looks for a product count inside the link, then beside it.
func categoryCount(node *goquery.Selection, selector string) (int, bool) {
	if selector == "" {
		return 0, false
	}
	if text := findText(node, selector); text != "" {
		return parseInt(text)
	}
	if text := findText(node.Parent(), selector); text != "" {
		return parseInt(text)
	}
	return 0, false
}
