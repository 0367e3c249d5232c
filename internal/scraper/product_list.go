package scraper

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/utils"
)

// ProductListScraper reads the product cards of a listing page. The payload's
// reference id, when set, is the category the products belong to.
type ProductListScraper struct {
	fetcher  repository.PageFetcher
	products repository.ProductRepository
	sel      Selectors
	logger   *zap.Logger
	now      clock
}

func NewProductListScraper(fetcher repository.PageFetcher, products repository.ProductRepository, sel Selectors, logger *zap.Logger) *ProductListScraper {
	return &ProductListScraper{
		fetcher:  fetcher,
		products: products,
		sel:      sel,
		logger:   logger.Named("product_list_scraper"),
		now:      time.Now,
	}
}

func (s *ProductListScraper) Scrape(ctx context.Context, payload entity.JobPayload) error {
	doc, base, err := loadDocument(ctx, s.fetcher, payload.TargetURL)
	if err != nil {
		return err
	}

	var categoryID *string
	if payload.ReferenceID != "" {
		categoryID = &payload.ReferenceID
	}

	now := s.now()
	var found, saved int
	seen := make(map[string]bool)
	doc.Find(s.sel.ProductCard).Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find(s.sel.ProductLink).First().Attr("href")
		if !ok {
			href, ok = card.Attr("href")
		}
		if !ok || !usableHref(href, nil) {
			return
		}
		sourceURL, err := utils.ToAbsoluteURL(base, href)
		if err != nil {
			return
		}
		sourceID := utils.LastPathSegment(sourceURL)
		title := findText(card, s.sel.ProductTitle)
		if sourceID == "" || title == "" || seen[sourceID] {
			return
		}
		seen[sourceID] = true
		found++

		p := &entity.Product{
			SourceID:      sourceID,
			Title:         title,
			Author:        optional(findText(card, s.sel.ProductAuthor)),
			SourceURL:     sourceURL,
			CategoryID:    categoryID,
			ImageURL:      imageSource(card, s.sel.ProductImage),
			Condition:     optional(findText(card, s.sel.ProductCondition)),
			InStock:       true,
			LastScrapedAt: &now,
		}
		if price, currency, ok := parsePrice(findText(card, s.sel.ProductPrice)); ok {
			p.Price, p.Currency = price, currency
		}
		if orig, _, ok := parsePrice(findText(card, s.sel.ProductOriginalPrice)); ok {
			p.OriginalPrice = &orig
		}

		if err := s.products.Upsert(ctx, p); err != nil {
			s.logger.Error("Failed to save product", zap.String("source_id", sourceID), zap.Error(err))
			return
		}
		saved++
	})

	if found == 0 {
		s.logger.Warn("No products found", zap.String("url", payload.TargetURL))
	}
	s.logger.Info("Product list scrape completed",
		zap.String("url", payload.TargetURL),
		zap.Int("saved", saved),
		zap.Int("found", found),
	)
	return nil
}
