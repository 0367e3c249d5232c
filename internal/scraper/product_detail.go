package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/utils"
)

// ProductDetailScraper reads a product page: description, spec table, reviews
// and related product links. The product is resolved by the payload's
// reference id, then by source URL.
type ProductDetailScraper struct {
	fetcher  repository.PageFetcher
	products repository.ProductRepository
	sel      Selectors
	logger   *zap.Logger
	now      clock
}

func NewProductDetailScraper(fetcher repository.PageFetcher, products repository.ProductRepository, sel Selectors, logger *zap.Logger) *ProductDetailScraper {
	return &ProductDetailScraper{
		fetcher:  fetcher,
		products: products,
		sel:      sel,
		logger:   logger.Named("product_detail_scraper"),
		now:      time.Now,
	}
}

func (s *ProductDetailScraper) Scrape(ctx context.Context, payload entity.JobPayload) error {
	doc, base, err := loadDocument(ctx, s.fetcher, payload.TargetURL)
	if err != nil {
		return err
	}

	product, err := s.resolveProduct(ctx, payload)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("Product not found for detail page", zap.String("url", payload.TargetURL))
		return nil
	}
	if err != nil {
		return err
	}

	detail := s.extractDetail(doc, product.ID)
	reviews := s.extractReviews(doc)
	detail.ReviewsCount = len(reviews)
	detail.RatingsAvg = averageRating(reviews)
	for _, l := range collectLinks(doc, base, s.sel.RelatedLinks, s.sel.ExcludeLinkKeywords) {
		if id := utils.LastPathSegment(l.URL); id != "" && id != product.SourceID {
			detail.RelatedProductIDs = append(detail.RelatedProductIDs, id)
		}
	}

	if err := s.products.UpsertDetail(ctx, detail); err != nil {
		return fmt.Errorf("failed to save detail for product %s: %w", product.ID, err)
	}
	added, err := s.products.AddReviews(ctx, product.ID, reviews)
	if err != nil {
		return fmt.Errorf("failed to save reviews for product %s: %w", product.ID, err)
	}
	if err := s.products.MarkScraped(ctx, product.ID, s.now()); err != nil {
		return fmt.Errorf("failed to stamp product %s: %w", product.ID, err)
	}

	s.logger.Info("Product detail scrape completed",
		zap.String("product_id", product.ID),
		zap.Int("specs", len(detail.Specs)),
		zap.Int("new_reviews", added),
	)
	return nil
}

func (s *ProductDetailScraper) resolveProduct(ctx context.Context, payload entity.JobPayload) (*entity.Product, error) {
	if payload.ReferenceID != "" {
		p, err := s.products.FindByID(ctx, payload.ReferenceID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up product %s: %w", payload.ReferenceID, err)
		}
	}
	p, err := s.products.FindBySourceURL(ctx, payload.TargetURL)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up product by url %s: %w", payload.TargetURL, err)
	}
	return p, err
}

func (s *ProductDetailScraper) extractDetail(doc *goquery.Document, productID string) *entity.ProductDetail {
	d := &entity.ProductDetail{
		ProductID:   productID,
		Description: optional(findText(doc.Selection, s.sel.DetailDescription)),
		Specs:       make(map[string]string),
	}
	if s.sel.DetailSpecRows == "" {
		return d
	}
	doc.Find(s.sel.DetailSpecRows).Each(func(_ int, row *goquery.Selection) {
		key := strings.TrimSuffix(findText(row, s.sel.DetailSpecKey), ":")
		value := findText(row, s.sel.DetailSpecValue)
		if key == "" || value == "" {
			return
		}
		d.Specs[key] = value
		applySpec(d, strings.ToLower(key), value)
	})
	return d
}

// applySpec copies well-known spec rows into their own columns.
func applySpec(d *entity.ProductDetail, key, value string) {
	switch {
	case strings.Contains(key, "isbn"):
		d.ISBN = &value
	case strings.Contains(key, "publisher"):
		d.Publisher = &value
	case strings.Contains(key, "publication") || strings.Contains(key, "published"):
		d.PublicationDate = &value
	case strings.Contains(key, "format") || strings.Contains(key, "binding"):
		d.Format = &value
	case strings.Contains(key, "language"):
		d.Language = &value
	case strings.Contains(key, "pages"):
		if n, ok := parseInt(value); ok {
			d.Pages = &n
		}
	}
}

func (s *ProductDetailScraper) extractReviews(doc *goquery.Document) []*entity.Review {
	if s.sel.ReviewItem == "" {
		return nil
	}
	var reviews []*entity.Review
	doc.Find(s.sel.ReviewItem).Each(func(_ int, item *goquery.Selection) {
		r := &entity.Review{
			Author:     optional(findText(item, s.sel.ReviewAuthor)),
			Title:      optional(findText(item, s.sel.ReviewTitle)),
			Text:       optional(findText(item, s.sel.ReviewText)),
			ReviewDate: optional(findText(item, s.sel.ReviewDate)),
			Rating:     reviewRating(item, s.sel.ReviewRating),
		}
		if r.Text == nil && r.Title == nil {
			return
		}
		reviews = append(reviews, r)
	})
	return reviews
}

// reviewRating reads data-rating when present, else the first number in the
// text, clamped to 0..5.
func reviewRating(item *goquery.Selection, selector string) int {
	if selector == "" {
		return 0
	}
	node := item.Find(selector).First()
	text, ok := node.Attr("data-rating")
	if !ok {
		text = node.Text()
	}
	v, ok := parseNumber(text)
	if !ok {
		return 0
	}
	n := int(v + 0.5)
	if n > 5 {
		n = 5
	}
	return n
}

func averageRating(reviews []*entity.Review) *float64 {
	var sum, n int
	for _, r := range reviews {
		if r.Rating > 0 {
			sum += r.Rating
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := float64(sum) / float64(n)
	return &avg
}
