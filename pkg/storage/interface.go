package storage

import (
	"context"

	"catalog-scraper/pkg/models"
)

// URLStore is the durable backing for the sitemap manager's URL records.
type URLStore interface {
	// PutRecord upserts a URL record.
	PutRecord(rec *models.URLRecord) error

	// GetRecord fetches one record; the bool reports existence.
	GetRecord(url string) (*models.URLRecord, bool, error)

	// LoadAll returns every stored record. Called once at startup to seed
	// the manager's in-memory state.
	LoadAll() ([]models.URLRecord, error)

	// Count returns the number of stored URL records.
	Count() int

	Close() error
}

// RecordStore is the structured product store consumed by the search/chat
// collaborators. Writes are upserts keyed by source URL.
type RecordStore interface {
	// Upsert writes a record, updating in place when the source URL exists.
	Upsert(ctx context.Context, rec *models.CandidateRecord) error

	// MarkIndexRequested flips the record's index state after the secondary
	// index request has been emitted.
	MarkIndexRequested(ctx context.Context, sourceURL string) error

	// QualityDistribution buckets stored quality scores for status reporting.
	QualityDistribution(ctx context.Context) (map[string]int, error)

	Close(ctx context.Context) error
}
