package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
)

const (
	defaultProductLimit = 20
	maxRelatedProducts  = 10
)

var productSortFields = map[string]bool{"title": true, "price": true, "author": true, "createdAt": true}

// ProductQuery filters and orders a product listing.
type ProductQuery struct {
	CategoryID string
	Search     string
	SortBy     string
	SortOrder  string
	Page       int
	Limit      int
}

// ProductService serves products and keeps their details fresh.
type ProductService interface {
	FindAll(ctx context.Context, q ProductQuery) (*Page[*entity.Product], error)
	// FindOne returns the product as stored and refreshes its detail in the
	// background when it is missing or stale.
	FindOne(ctx context.Context, id string) (*entity.Product, error)
	FindBySourceID(ctx context.Context, sourceID string) (*entity.Product, error)
	GetProductDetail(ctx context.Context, productID string) (*entity.ProductDetail, error)
	GetProductReviews(ctx context.Context, productID string) ([]*entity.Review, error)
	GetRelatedProducts(ctx context.Context, productID string) ([]*entity.Product, error)
	TriggerListScrape(ctx context.Context, sourceURL, categoryID string) (*entity.ScrapeJob, error)
	// TriggerDetailScrape looks the source URL up when sourceURL is empty.
	TriggerDetailScrape(ctx context.Context, productID, sourceURL string) (*entity.ScrapeJob, error)
}

type productUseCase struct {
	products repository.ProductRepository
	scrape   ScrapeService
	trigger  *Trigger
	logger   *zap.Logger
}

func NewProductService(products repository.ProductRepository, scrape ScrapeService, trigger *Trigger, logger *zap.Logger) ProductService {
	return &productUseCase{
		products: products,
		scrape:   scrape,
		trigger:  trigger,
		logger:   logger.Named("product"),
	}
}

func (uc *productUseCase) FindAll(ctx context.Context, q ProductQuery) (*Page[*entity.Product], error) {
	page, limit := normalizePage(q.Page, q.Limit, defaultProductLimit)
	sortBy := q.SortBy
	if !productSortFields[sortBy] {
		sortBy = "title"
	}

	data, total, err := uc.products.List(ctx, repository.ProductFilter{
		CategoryID: q.CategoryID,
		Search:     strings.TrimSpace(q.Search),
		SortBy:     sortBy,
		SortDesc:   strings.EqualFold(q.SortOrder, "DESC"),
		Offset:     (page - 1) * limit,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return &Page[*entity.Product]{Data: data, Total: total, Page: page, Limit: limit}, nil
}

func (uc *productUseCase) FindOne(ctx context.Context, id string) (*entity.Product, error) {
	p, err := uc.products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Detail == nil || uc.scrape.IsCacheExpired(p.LastScrapedAt) {
		productID, sourceURL := p.ID, p.SourceURL
		uc.trigger.Fire(ctx, "product_detail", sourceURL, func(ctx context.Context) error {
			_, err := uc.TriggerDetailScrape(ctx, productID, sourceURL)
			return err
		})
	}
	return p, nil
}

func (uc *productUseCase) FindBySourceID(ctx context.Context, sourceID string) (*entity.Product, error) {
	return uc.products.FindBySourceID(ctx, sourceID)
}

func (uc *productUseCase) GetProductDetail(ctx context.Context, productID string) (*entity.ProductDetail, error) {
	return uc.products.GetDetail(ctx, productID)
}

func (uc *productUseCase) GetProductReviews(ctx context.Context, productID string) ([]*entity.Review, error) {
	return uc.products.ListReviews(ctx, productID)
}

func (uc *productUseCase) GetRelatedProducts(ctx context.Context, productID string) ([]*entity.Product, error) {
	detail, err := uc.products.GetDetail(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return []*entity.Product{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load detail for product %s: %w", productID, err)
	}
	if len(detail.RelatedProductIDs) == 0 {
		return []*entity.Product{}, nil
	}
	return uc.products.ListBySourceIDs(ctx, detail.RelatedProductIDs, maxRelatedProducts)
}

func (uc *productUseCase) TriggerListScrape(ctx context.Context, sourceURL, categoryID string) (*entity.ScrapeJob, error) {
	return uc.scrape.EnqueueScrapeJob(ctx, sourceURL, entity.TargetTypeProductList, categoryID, false)
}

func (uc *productUseCase) TriggerDetailScrape(ctx context.Context, productID, sourceURL string) (*entity.ScrapeJob, error) {
	if sourceURL == "" {
		p, err := uc.products.FindByID(ctx, productID)
		if err != nil {
			return nil, err
		}
		sourceURL = p.SourceURL
	}
	return uc.scrape.EnqueueScrapeJob(ctx, sourceURL, entity.TargetTypeProductDetail, productID, false)
}
