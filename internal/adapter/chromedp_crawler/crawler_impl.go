package chromedp_crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/user/catalog-service/internal/repository"
)

const userAgent = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36`

// ChromedpFetcher renders pages in headless Chrome. Requests are spaced out by
// a shared rate limiter so all workers together stay polite to the target site.
type ChromedpFetcher struct {
	allocatorPool *sync.Pool
	timeout       time.Duration
	limiter       *rate.Limiter
	logger        *zap.Logger
}

// NewChromedpFetcher creates a fetcher with maxConcurrency pre-warmed browser
// allocators, a per-page timeout and a limit of rps page loads per second.
func NewChromedpFetcher(maxConcurrency int, pageLoadTimeout time.Duration, rps float64, logger *zap.Logger) *ChromedpFetcher {
	pool := &sync.Pool{
		New: func() interface{} {
			opts := append(chromedp.DefaultExecAllocatorOptions[:],
				chromedp.Flag("headless", true),
				chromedp.Flag("disable-gpu", true),
				chromedp.Flag("no-sandbox", true),
				chromedp.Flag("disable-dev-shm-usage", true),
				chromedp.UserAgent(userAgent),
			)
			allocCtx, _ := chromedp.NewExecAllocator(context.Background(), opts...)
			return allocCtx
		},
	}

	// Pre-warm the pool
	for i := 0; i < maxConcurrency; i++ {
		allocCtx := pool.Get().(context.Context)
		pool.Put(allocCtx)
	}

	return &ChromedpFetcher{
		allocatorPool: pool,
		timeout:       pageLoadTimeout,
		limiter:       rate.NewLimiter(rate.Limit(rps), 1),
		logger:        logger.Named("fetcher"),
	}
}

// Fetch loads url and returns the rendered document.
func (c *ChromedpFetcher) Fetch(ctx context.Context, url string) (*repository.Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: waiting for rate limiter: %v", repository.ErrCrawlTimeout, err)
	}

	allocCtx := c.allocatorPool.Get().(context.Context)
	defer c.allocatorPool.Put(allocCtx)

	taskCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(c.logger.Sugar().Debugf))
	defer cancel()

	// Stop with the caller as well as on our own timeout.
	taskCtx, cancel = context.WithTimeout(taskCtx, c.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var (
		statusMu   sync.Mutex
		statusCode int
	)
	chromedp.ListenTarget(taskCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		statusMu.Lock()
		defer statusMu.Unlock()
		if statusCode == 0 {
			statusCode = int(resp.Response.Status)
		}
	})

	var html string
	startTime := time.Now()
	err := chromedp.Run(taskCtx,
		network.Enable(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	responseTime := time.Since(startTime).Milliseconds()

	statusMu.Lock()
	code := statusCode
	statusMu.Unlock()

	if err != nil {
		c.logger.Warn("Failed to fetch URL", zap.String("url", url), zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", repository.ErrCrawlTimeout, url, c.timeout)
		}
		return nil, fmt.Errorf("%w: %s: %v", repository.ErrNavigationFailed, url, err)
	}
	if err := classifyStatus(code); err != nil {
		return nil, err
	}

	c.logger.Debug("Fetched URL",
		zap.String("url", url),
		zap.Int("status", code),
		zap.Int64("response_time_ms", responseTime),
	)
	return &repository.Page{
		URL:            url,
		HTML:           html,
		HTTPStatusCode: code,
		ResponseTimeMS: responseTime,
	}, nil
}

// classifyStatus maps a document status code to a fetch error. Zero means no
// response event was seen, which happens for cached pages and is accepted.
func classifyStatus(code int) error {
	switch {
	case code == 0 || code < http.StatusBadRequest:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: received status code %d", repository.ErrContentRestricted, code)
	default:
		return fmt.Errorf("%w: received status code %d", repository.ErrNavigationFailed, code)
	}
}

var _ repository.PageFetcher = (*ChromedpFetcher)(nil)
