package entity

import "time"

// ScrapeJobStatus is the lifecycle state of a ScrapeJob.
type ScrapeJobStatus string

const (
	ScrapeJobStatusPending    ScrapeJobStatus = "pending"
	ScrapeJobStatusProcessing ScrapeJobStatus = "processing"
	ScrapeJobStatusCompleted  ScrapeJobStatus = "completed"
	ScrapeJobStatusFailed     ScrapeJobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s ScrapeJobStatus) IsTerminal() bool {
	return s == ScrapeJobStatusCompleted || s == ScrapeJobStatusFailed
}

// CanTransitionTo reports whether a job in status s may move to next.
// processing -> processing is a retry attempt re-entering the routine.
func (s ScrapeJobStatus) CanTransitionTo(next ScrapeJobStatus) bool {
	for _, from := range AllowedPredecessors(next) {
		if from == s {
			return true
		}
	}
	return false
}

// AllowedPredecessors lists the statuses a job may be in before moving to next.
func AllowedPredecessors(next ScrapeJobStatus) []ScrapeJobStatus {
	switch next {
	case ScrapeJobStatusProcessing:
		return []ScrapeJobStatus{ScrapeJobStatusPending, ScrapeJobStatusProcessing}
	case ScrapeJobStatusCompleted:
		return []ScrapeJobStatus{ScrapeJobStatusProcessing}
	case ScrapeJobStatusFailed:
		return []ScrapeJobStatus{ScrapeJobStatusPending, ScrapeJobStatusProcessing}
	default:
		return nil
	}
}

// TargetType selects which scrape routine handles a job.
type TargetType string

const (
	TargetTypeNavigation    TargetType = "navigation"
	TargetTypeCategory      TargetType = "category"
	TargetTypeProductList   TargetType = "product_list"
	TargetTypeProductDetail TargetType = "product_detail"
)

// TargetTypes returns every known target type.
func TargetTypes() []TargetType {
	return []TargetType{
		TargetTypeNavigation,
		TargetTypeCategory,
		TargetTypeProductList,
		TargetTypeProductDetail,
	}
}

// Valid reports whether t is one of the known target types.
func (t TargetType) Valid() bool {
	for _, known := range TargetTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ScrapeJob mirrors the `scrape_job` PostgreSQL table schema.
type ScrapeJob struct {
	ID           string
	TargetURL    string
	TargetType   TargetType
	Status       ScrapeJobStatus
	ReferenceID  *string
	ForceRefresh bool
	StartedAt    *time.Time
	FinishedAt   *time.Time
	ErrorLog     *string
	RetryCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Payload builds the queue payload for the job.
func (j *ScrapeJob) Payload() JobPayload {
	p := JobPayload{
		JobID:        j.ID,
		TargetURL:    j.TargetURL,
		TargetType:   j.TargetType,
		ForceRefresh: j.ForceRefresh,
	}
	if j.ReferenceID != nil {
		p.ReferenceID = *j.ReferenceID
	}
	return p
}

// JobPayload is the data handed to the delivery queue and, from there, to a scrape routine.
type JobPayload struct {
	JobID        string     `json:"jobId"`
	TargetURL    string     `json:"targetUrl"`
	TargetType   TargetType `json:"targetType"`
	ReferenceID  string     `json:"referenceId,omitempty"`
	ForceRefresh bool       `json:"forceRefresh,omitempty"`
}
