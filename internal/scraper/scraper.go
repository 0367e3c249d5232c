// Package scraper holds the routines that turn a fetched page into catalog rows.
// Every routine is driven by CSS selectors so the markup it understands is
// configuration rather than code.
package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/utils"
)

// Selectors configures what the routines look for on a page. Empty selectors
// skip the corresponding field.
type Selectors struct {
	// NavigationLinks are tried in order until one yields MinNavigationLinks links.
	NavigationLinks    []string
	MinNavigationLinks int
	MaxNavigationLinks int
	// ExcludeLinkKeywords drops links whose href contains any of the words.
	ExcludeLinkKeywords []string

	CategoryLinks string
	CategoryCount string
	CategoryImage string

	ProductCard          string
	ProductLink          string
	ProductTitle         string
	ProductAuthor        string
	ProductPrice         string
	ProductOriginalPrice string
	ProductImage         string
	ProductCondition     string

	DetailDescription string
	// DetailSpecRows selects one element per spec; the key and value are read
	// from DetailSpecKey and DetailSpecValue inside it.
	DetailSpecRows  string
	DetailSpecKey   string
	DetailSpecValue string

	ReviewItem   string
	ReviewAuthor string
	ReviewRating string
	ReviewTitle  string
	ReviewText   string
	ReviewDate   string

	RelatedLinks string
}

// DefaultSelectors matches common storefront markup.
func DefaultSelectors() Selectors {
	return Selectors{
		NavigationLinks: []string{
			`a[href*="/category/"]`,
			`a[href*="/collections/"]`,
			`nav a`,
			`header a`,
		},
		MinNavigationLinks:  5,
		MaxNavigationLinks:  20,
		ExcludeLinkKeywords: []string{"login", "account", "cart", "wishlist"},

		CategoryLinks: `a[href*="/category"]`,
		CategoryCount: `.count, .product-count`,
		CategoryImage: `img`,

		ProductCard:          `.product-card, .product-item, [data-product]`,
		ProductLink:          `a[href]`,
		ProductTitle:         `.title, .product-title, h3, h2`,
		ProductAuthor:        `.author, .product-author`,
		ProductPrice:         `.price, .product-price`,
		ProductOriginalPrice: `.original-price, .was-price`,
		ProductImage:         `img`,
		ProductCondition:     `.condition`,

		DetailDescription: `.description, [itemprop="description"]`,
		DetailSpecRows:    `table tr, dl > div`,
		DetailSpecKey:     `th, dt`,
		DetailSpecValue:   `td, dd`,

		ReviewItem:   `.review`,
		ReviewAuthor: `.review-author, .author`,
		ReviewRating: `.rating`,
		ReviewTitle:  `.review-title`,
		ReviewText:   `.review-text, .review-body`,
		ReviewDate:   `.review-date, time`,

		RelatedLinks: `.related a[href], .recommendations a[href]`,
	}
}

// Scraper runs the routine for one job payload.
type Scraper interface {
	Scrape(ctx context.Context, payload entity.JobPayload) error
}

// loadDocument fetches rawURL and parses the rendered HTML.
func loadDocument(ctx context.Context, fetcher repository.PageFetcher, rawURL string) (*goquery.Document, *url.URL, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid target url %q: %w", rawURL, err)
	}
	page, err := fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", repository.ErrExtractionFailed, err)
	}
	return doc, base, nil
}

// link is an anchor resolved against the page URL.
type link struct {
	Title string
	URL   string
	Node  *goquery.Selection
}

// collectLinks returns the distinct usable anchors under sel.
func collectLinks(doc *goquery.Document, base *url.URL, selector string, exclude []string) []link {
	var out []link
	seen := make(map[string]bool)
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || !usableHref(href, exclude) {
			return
		}
		abs, err := utils.ToAbsoluteURL(base, href)
		if err != nil || seen[abs] {
			return
		}
		seen[abs] = true
		out = append(out, link{Title: cleanText(s.Text()), URL: abs, Node: s})
	})
	return out
}

func usableHref(href string, exclude []string) bool {
	if href == "" || strings.Contains(href, "#") || strings.HasPrefix(href, "javascript:") {
		return false
	}
	lower := strings.ToLower(href)
	for _, word := range exclude {
		if strings.Contains(lower, word) {
			return false
		}
	}
	return true
}

var spaces = regexp.MustCompile(`\s+`)

func cleanText(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// findText returns the cleaned text of the first match of selector inside s.
func findText(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return cleanText(s.Find(selector).First().Text())
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var (
	numberPattern  = regexp.MustCompile(`\d+(?:[.,]\d+)*`)
	integerPattern = regexp.MustCompile(`\d+`)
)

func parseNumber(text string) (float64, bool) {
	m := numberPattern.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(normalizeDecimal(m), 64)
	return v, err == nil
}

// normalizeDecimal rewrites a number with grouping separators into plain
// "1234.56" form. When both separators appear the last one is the decimal
// point. A lone separator followed by exactly three digits groups thousands.
func normalizeDecimal(m string) string {
	lastDot, lastComma := strings.LastIndex(m, "."), strings.LastIndex(m, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			return strings.ReplaceAll(m, ",", "")
		}
		return strings.ReplaceAll(strings.ReplaceAll(m, ".", ""), ",", ".")
	case lastComma >= 0:
		return groupedOrDecimal(m, ",")
	case lastDot >= 0:
		return groupedOrDecimal(m, ".")
	}
	return m
}

func groupedOrDecimal(m, sep string) string {
	parts := strings.Split(m, sep)
	if len(parts) > 2 || len(parts[1]) == 3 {
		return strings.Join(parts, "")
	}
	return parts[0] + "." + parts[1]
}

// parsePrice reads the first number in text and the currency from its symbol.
func parsePrice(text string) (float64, string, bool) {
	v, ok := parseNumber(text)
	if !ok {
		return 0, "", false
	}
	currency := "GBP"
	switch {
	case strings.Contains(text, "$"):
		currency = "USD"
	case strings.Contains(text, "€"):
		currency = "EUR"
	}
	return v, currency, true
}

func parseInt(text string) (int, bool) {
	m := integerPattern.FindString(strings.ReplaceAll(text, ",", ""))
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	return n, err == nil
}

func imageSource(s *goquery.Selection, selector string) *string {
	if selector == "" {
		return nil
	}
	img := s.Find(selector).First()
	if src, ok := img.Attr("src"); ok && src != "" {
		return &src
	}
	if src, ok := img.Attr("data-src"); ok && src != "" {
		return &src
	}
	return nil
}

// clock is swapped in tests.
type clock func() time.Time
