package repository

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrPendingJobExists is returned when a non-forced pending job already exists for a target URL.
	ErrPendingJobExists = errors.New("pending scrape job already exists for target")
	// ErrInvalidTransition is returned when a job status update would move backwards
	// or leave a terminal status.
	ErrInvalidTransition = errors.New("invalid scrape job status transition")
)

// Page fetch failures. Routines wrap these so callers can classify with errors.Is.
var (
	ErrCrawlTimeout      = errors.New("crawl timed out")
	ErrNavigationFailed  = errors.New("navigation failed")
	ErrExtractionFailed  = errors.New("extraction failed")
	ErrContentRestricted = errors.New("content is restricted or requires authentication")
)
