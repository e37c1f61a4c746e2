package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"catalog-scraper/pkg/extract"
	"catalog-scraper/pkg/index"
	"catalog-scraper/pkg/models"
	"catalog-scraper/pkg/pricing"
	"catalog-scraper/pkg/quality"
	"catalog-scraper/pkg/storage"
	"catalog-scraper/pkg/utils"
)

// Fetcher is the slice of the fetch layer a worker needs.
type Fetcher interface {
	FetchPage(ctx context.Context, pageURL string) (*models.RawPage, error)
}

// Worker executes the full per-URL pipeline: Fetch, Extract, Normalize, Gate,
// Persist, then the index request. It holds no mutable state of its own, so
// one Worker is shared safely across all pool goroutines.
type Worker struct {
	fetcher        Fetcher
	extractor      *extract.Extractor
	gate           *quality.Gate
	records        storage.RecordStore
	indexer        index.RequestProducer
	persistRetries int
	persistDelay   time.Duration
	baseLog        *logrus.Logger
	log            *logrus.Entry
}

// NewWorker wires the pipeline stages together.
func NewWorker(
	fetcher Fetcher,
	extractor *extract.Extractor,
	gate *quality.Gate,
	records storage.RecordStore,
	indexer index.RequestProducer,
	persistRetries int,
	logger *logrus.Logger,
) *Worker {
	if persistRetries < 1 {
		persistRetries = 1
	}
	return &Worker{
		fetcher:        fetcher,
		extractor:      extractor,
		gate:           gate,
		records:        records,
		indexer:        indexer,
		persistRetries: persistRetries,
		persistDelay:   500 * time.Millisecond,
		baseLog:        logger,
		log:            logger.WithField("component", "worker"),
	}
}

// Process runs one leased URL through the pipeline and returns the outcome to
// report. Per-URL failures, record-scoped store rejections included, are
// absorbed into the outcome; the returned error is non-nil only for
// storage-subsystem failures (database unreachable after retries), and those
// halt the batch.
func (w *Worker) Process(ctx context.Context, pageURL string) (models.Outcome, error) {
	taskLog := w.log.WithField("url", pageURL)
	start := time.Now()

	page, err := w.fetcher.FetchPage(ctx, pageURL)
	if err != nil {
		reason := utils.CategorizeError(err)
		taskLog.WithField("reason", reason).Warnf("Fetch failed: %v", err)
		// A 404/410/malformed URL will not get better on a retry; skip the
		// attempt cap and fail it now.
		return models.Outcome{
			Success:  false,
			Reason:   reason,
			Terminal: errors.Is(err, utils.ErrFetchPermanent),
		}, nil
	}

	rec := w.extractor.Extract(page, titleHintFromURL(pageURL))
	pricing.Normalize(rec, w.baseLog)
	score, accept := w.gate.Score(rec)

	// Flagged records are persisted too; the flag keeps them out of the index
	// and eligible for re-acquisition, it never discards extracted data.
	if err := w.persistWithRetry(ctx, rec); err != nil {
		reason := utils.CategorizeError(err)
		// The store rejecting this one document is a per-URL failure like any
		// other; only a store that is down aborts the batch.
		if errors.Is(err, utils.ErrRecordRejected) {
			taskLog.WithField("reason", reason).Errorf("Store rejected record: %v", err)
			return models.Outcome{Success: false, Reason: reason}, nil
		}
		taskLog.WithField("reason", reason).Errorf("Persist failed after %d attempts: %v", w.persistRetries, err)
		return models.Outcome{Success: false, Reason: reason}, err
	}

	if accept {
		// The record is already durable; a failed index request only leaves
		// index_state at pending for a later sweep, it does not fail the URL.
		if err := w.indexer.RequestIndex(ctx, rec); err != nil {
			taskLog.Warnf("Index request failed, record stays pending for re-index: %v", err)
		} else if err := w.records.MarkIndexRequested(ctx, rec.SourceURL); err != nil {
			taskLog.Warnf("Failed to record index request state: %v", err)
		}
	}

	taskLog.WithFields(logrus.Fields{
		"sku":      rec.SKU,
		"category": rec.Category,
		"quality":  fmt.Sprintf("%.2f", score),
		"flagged":  rec.Flagged,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("Record processed")
	return models.Outcome{Success: true}, nil
}

// persistWithRetry retries the upsert on transient database trouble with a
// linear backoff. A record-scoped rejection is deterministic and returned
// immediately without burning retries.
func (w *Worker) persistWithRetry(ctx context.Context, rec *models.CandidateRecord) error {
	var lastErr error
	for attempt := 1; attempt <= w.persistRetries; attempt++ {
		lastErr = w.records.Upsert(ctx, rec)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, utils.ErrRecordRejected) {
			return lastErr
		}
		if attempt < w.persistRetries {
			w.log.WithField("url", rec.SourceURL).Warnf("Upsert attempt %d/%d failed, retrying: %v", attempt, w.persistRetries, lastErr)
			select {
			case <-time.After(time.Duration(attempt) * w.persistDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("%w: upsert exhausted %d attempts: %w", utils.ErrPersistFailed, w.persistRetries, lastErr)
}

// titleHintFromURL derives a last-resort title from the URL slug, e.g.
// "/tile/zenobia-grey-12x24" becomes "zenobia grey 12x24".
func titleHintFromURL(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	slug := strings.Trim(parsed.Path, "/")
	if idx := strings.LastIndex(slug, "/"); idx >= 0 {
		slug = slug[idx+1:]
	}
	return strings.ReplaceAll(slug, "-", " ")
}
