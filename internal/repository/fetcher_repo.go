package repository

import "context"

// Page is the rendered result of fetching a URL.
type Page struct {
	URL            string
	HTML           string
	HTTPStatusCode int
	ResponseTimeMS int64
}

// PageFetcher defines the contract for the actual web page fetching mechanism.
type PageFetcher interface {
	// Fetch loads a URL and returns its rendered HTML.
	Fetch(ctx context.Context, url string) (*Page, error)
}
