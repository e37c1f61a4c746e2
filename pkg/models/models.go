package models

import "time"

// URLRecord tracks a single catalog URL through the acquisition pipeline.
// Records are created at sitemap discovery and never deleted; re-acquisition
// resets Status back to pending.
type URLRecord struct {
	URL           string    `json:"url"`
	Status        URLStatus `json:"status"`
	AttemptCount  int       `json:"attempt_count"`
	LastError     string    `json:"last_error,omitempty"` // Categorized reason from the last failure
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
	LeasedAt      time.Time `json:"leased_at,omitempty"` // When the current in_progress lease was taken
}

// RawPage is the transient fetch result for one URL. It is owned exclusively
// by the worker processing that URL and discarded after extraction.
type RawPage struct {
	URL          string
	HTML         []byte
	EmbeddedJSON []string // Ordered ld+json script blobs, document order
}

// Resource is a supporting document linked from a product page (spec sheets,
// installation guides).
type Resource struct {
	Name string `json:"name" bson:"name"`
	URL  string `json:"url" bson:"url"`
}

// CandidateRecord is a structured product record extracted from one page.
type CandidateRecord struct {
	SKU                 string            `json:"sku"`
	Title               string            `json:"title"`
	Category            string            `json:"category"`
	Specifications      map[string]string `json:"specifications"` // Only validated values are present
	Pricing             Pricing           `json:"pricing"`
	Images              []string          `json:"images,omitempty"`
	Resources           []Resource        `json:"resources,omitempty"`
	DescriptionMarkdown string            `json:"description_markdown,omitempty"`
	QualityScore        float64           `json:"quality_score"`
	Flagged             bool              `json:"flagged"` // Below acceptance threshold; stored but eligible for re-acquisition
	SourceURL           string            `json:"source_url"`
}

// Checkpoint is a durable snapshot of pipeline progress. It carries counters
// for reporting only; URL state durability belongs to the sitemap store.
type Checkpoint struct {
	SessionID      string    `json:"session_id"`
	ProcessedCount int64     `json:"processed_count"`
	SuccessCount   int64     `json:"success_count"`
	FailureCount   int64     `json:"failure_count"`
	LastFlushedAt  time.Time `json:"last_flushed_at"`
}

// Outcome is a worker's terminal report for one leased URL.
type Outcome struct {
	Success  bool
	Reason   string // Categorized error reason when Success is false
	Terminal bool   // Failure is permanent (404/410/malformed URL); fail now instead of re-queueing
}
