package scraper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/utils"
)

// NavigationScraper reads the site's top-level navigation links.
type NavigationScraper struct {
	fetcher repository.PageFetcher
	navs    repository.NavigationRepository
	sel     Selectors
	logger  *zap.Logger
	now     clock
}

func NewNavigationScraper(fetcher repository.PageFetcher, navs repository.NavigationRepository, sel Selectors, logger *zap.Logger) *NavigationScraper {
	return &NavigationScraper{
		fetcher: fetcher,
		navs:    navs,
		sel:     sel,
		logger:  logger.Named("navigation_scraper"),
		now:     time.Now,
	}
}

func (s *NavigationScraper) Scrape(ctx context.Context, payload entity.JobPayload) error {
	doc, base, err := loadDocument(ctx, s.fetcher, payload.TargetURL)
	if err != nil {
		return err
	}

	var links []link
	for _, selector := range s.sel.NavigationLinks {
		for _, l := range collectLinks(doc, base, selector, s.sel.ExcludeLinkKeywords) {
			if len(l.Title) < 2 || len(l.Title) >= 50 || containsURL(links, l.URL) {
				continue
			}
			links = append(links, l)
		}
		if len(links) >= s.sel.MinNavigationLinks {
			break
		}
	}
	if s.sel.MaxNavigationLinks > 0 && len(links) > s.sel.MaxNavigationLinks {
		links = links[:s.sel.MaxNavigationLinks]
	}
	if len(links) == 0 {
		return fmt.Errorf("%w: no navigation links on %s", repository.ErrExtractionFailed, payload.TargetURL)
	}

	now := s.now()
	saved := 0
	for _, l := range links {
		nav := &entity.Navigation{
			Title:         l.Title,
			Slug:          utils.SlugFromURL(l.URL),
			SourceURL:     l.URL,
			LastScrapedAt: &now,
		}
		if err := s.navs.Upsert(ctx, nav); err != nil {
			s.logger.Error("Failed to save navigation item", zap.String("title", l.Title), zap.Error(err))
			continue
		}
		saved++
	}
	if saved == 0 {
		return fmt.Errorf("failed to save any of %d navigation items", len(links))
	}

	s.logger.Info("Navigation scrape completed", zap.Int("saved", saved), zap.Int("found", len(links)))
	return nil
}

func containsURL(links []link, u string) bool {
	for _, l := range links {
		if l.URL == u {
			return true
		}
	}
	return false
}
