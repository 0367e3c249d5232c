package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
)

// NavigationService serves the navigation tree and keeps it fresh.
type NavigationService interface {
	// FindAll enqueues a navigation scrape and waits for the enqueue when the
	// tree is empty, and fires one in the background when any item is stale.
	FindAll(ctx context.Context) ([]*entity.Navigation, error)
	FindOne(ctx context.Context, id string) (*entity.Navigation, error)
	FindBySlug(ctx context.Context, slug string) (*entity.Navigation, error)
	TriggerScrape(ctx context.Context) (*entity.ScrapeJob, error)
}

type navigationUseCase struct {
	navs    repository.NavigationRepository
	scrape  ScrapeService
	trigger *Trigger
	rootURL string
	logger  *zap.Logger
}

// NewNavigationService creates a NavigationService. rootURL is the page the
// navigation routine starts from.
func NewNavigationService(navs repository.NavigationRepository, scrape ScrapeService, trigger *Trigger, rootURL string, logger *zap.Logger) NavigationService {
	return &navigationUseCase{
		navs:    navs,
		scrape:  scrape,
		trigger: trigger,
		rootURL: rootURL,
		logger:  logger.Named("navigation"),
	}
}

func (uc *navigationUseCase) FindAll(ctx context.Context) ([]*entity.Navigation, error) {
	navs, err := uc.navs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list navigation: %w", err)
	}

	if len(navs) == 0 {
		uc.logger.Info("No navigation data found, enqueueing scrape")
		if _, err := uc.TriggerScrape(ctx); err != nil {
			return nil, err
		}
		return navs, nil
	}

	scrapedAt := make([]*time.Time, len(navs))
	for i, n := range navs {
		scrapedAt[i] = n.LastScrapedAt
	}
	if uc.scrape.AnyCacheExpired(scrapedAt...) {
		uc.logger.Debug("Navigation data is stale, refreshing in background")
		uc.trigger.Fire(ctx, "navigation", uc.rootURL, func(ctx context.Context) error {
			_, err := uc.TriggerScrape(ctx)
			return err
		})
	}
	return navs, nil
}

func (uc *navigationUseCase) FindOne(ctx context.Context, id string) (*entity.Navigation, error) {
	return uc.navs.FindByID(ctx, id)
}

func (uc *navigationUseCase) FindBySlug(ctx context.Context, slug string) (*entity.Navigation, error) {
	return uc.navs.FindBySlug(ctx, slug)
}

func (uc *navigationUseCase) TriggerScrape(ctx context.Context) (*entity.ScrapeJob, error) {
	return uc.scrape.EnqueueScrapeJob(ctx, uc.rootURL, entity.TargetTypeNavigation, "", false)
}
