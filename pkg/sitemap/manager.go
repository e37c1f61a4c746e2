package sitemap

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"catalog-scraper/pkg/config"
	"catalog-scraper/pkg/models"
	"catalog-scraper/pkg/storage"
	"catalog-scraper/pkg/utils"
)

// PageFetcher is the slice of the fetcher the manager needs for pulling
// sitemap documents.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (*models.RawPage, error)
}

// Manager owns all URLRecord state. Workers interact with it only through
// NextBatch and Report, so a URL can never be leased twice and every status
// transition is serialized under one mutex. Mutations are written through to
// the URL store before the in-memory state changes, so a crash never leaves
// the durable state ahead of what a worker observed.
type Manager struct {
	mu      sync.Mutex
	records map[string]*models.URLRecord

	store       storage.URLStore
	fetcher     PageFetcher
	allowedHost string
	maxAttempts int
	maxURLs     int
	log         *logrus.Entry
}

// NewManager builds a Manager seeded from the URL store, so a restarted run
// picks up exactly where the previous one stopped.
func NewManager(store storage.URLStore, fetcher PageFetcher, cfg *config.AppConfig, logger *logrus.Logger) (*Manager, error) {
	m := &Manager{
		records:     make(map[string]*models.URLRecord),
		store:       store,
		fetcher:     fetcher,
		allowedHost: strings.ToLower(cfg.AllowedDomain),
		maxAttempts: cfg.MaxAttempts,
		maxURLs:     cfg.MaxURLs,
		log:         logger.WithField("component", "sitemap_manager"),
	}

	existing, err := store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("seeding sitemap manager: %w", err)
	}
	for i := range existing {
		rec := existing[i]
		m.records[rec.URL] = &rec
	}
	if len(existing) > 0 {
		m.log.Infof("Restored %d URL records from state store", len(existing))
	}
	return m, nil
}

// Discover fetches the sitemap tree rooted at rootSitemapURL, walking nested
// sitemap indexes breadth-first, and merges every in-scope page URL into the
// record set. Already-known URLs keep their status untouched; only genuinely
// new URLs get a fresh pending record. Returns the number of new records.
func (m *Manager) Discover(ctx context.Context, rootSitemapURL string) (int, error) {
	queue := []string{rootSitemapURL}
	seen := map[string]bool{rootSitemapURL: true}
	added := 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		smURL := queue[0]
		queue = queue[1:]
		smLog := m.log.WithField("sitemap_url", smURL)
		smLog.Info("Processing sitemap")

		page, err := m.fetcher.FetchPage(ctx, smURL)
		if err != nil {
			smLog.Errorf("Sitemap fetch failed: %v", err)
			// A broken nested sitemap should not abort discovery of siblings,
			// but a dead root means there is nothing to work with.
			if smURL == rootSitemapURL {
				return added, fmt.Errorf("fetching root sitemap %q: %w", smURL, err)
			}
			continue
		}

		pageURLs, nested, parseErr := parseSitemapXML(page.HTML)
		if parseErr != nil {
			smLog.Errorf("Sitemap parse failed: %v", parseErr)
			if smURL == rootSitemapURL {
				return added, parseErr
			}
			continue
		}

		for _, nestedURL := range nested {
			if !seen[nestedURL] {
				seen[nestedURL] = true
				queue = append(queue, nestedURL)
			}
		}

		n, mergeErr := m.merge(pageURLs, smLog)
		added += n
		if mergeErr != nil {
			return added, mergeErr
		}
	}

	m.log.Infof("Sitemap discovery complete: %d new URLs (total known: %d)", added, m.Total())
	return added, nil
}

// merge folds a batch of discovered page URLs into the record set.
func (m *Manager) merge(pageURLs []string, smLog *logrus.Entry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	added := 0
	skippedScope := 0
	for _, raw := range pageURLs {
		normalized, parsed, err := ParseAndNormalize(raw)
		if err != nil {
			smLog.Warnf("Skipping malformed sitemap URL %q: %v", raw, err)
			continue
		}
		if m.allowedHost != "" && strings.ToLower(parsed.Hostname()) != m.allowedHost {
			skippedScope++
			continue
		}
		if _, known := m.records[normalized]; known {
			continue
		}
		if m.maxURLs > 0 && len(m.records) >= m.maxURLs {
			smLog.Warnf("URL cap (%d) reached, ignoring remaining sitemap entries", m.maxURLs)
			break
		}

		rec := &models.URLRecord{URL: normalized, Status: models.URLStatusPending}
		if err := m.store.PutRecord(rec); err != nil {
			return added, fmt.Errorf("persisting discovered URL %q: %w", normalized, err)
		}
		m.records[normalized] = rec
		added++
	}

	if skippedScope > 0 {
		smLog.Debugf("Skipped %d out-of-scope URLs", skippedScope)
	}
	return added, nil
}

// NextBatch atomically leases up to n pending URLs, transitioning them to
// in_progress. Leased URLs are returned in lexical order so batching is
// reproducible run to run. Records already in_progress are never handed out.
func (m *Manager) NextBatch(n int) ([]models.URLRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []string
	for u, rec := range m.records {
		if rec.Status == models.URLStatusPending {
			pending = append(pending, u)
		}
	}
	sort.Strings(pending)
	if len(pending) > n {
		pending = pending[:n]
	}

	now := time.Now().UTC()
	batch := make([]models.URLRecord, 0, len(pending))
	for _, u := range pending {
		rec := m.records[u]
		rec.Status = models.URLStatusInProgress
		rec.LeasedAt = now
		rec.LastAttemptAt = now
		if err := m.store.PutRecord(rec); err != nil {
			// Undo the in-memory transition; the URL stays pending and will be
			// leased again later.
			rec.Status = models.URLStatusPending
			rec.LeasedAt = time.Time{}
			return batch, fmt.Errorf("persisting lease for %q: %w", u, err)
		}
		batch = append(batch, *rec)
	}

	if len(batch) > 0 {
		m.log.Debugf("Leased batch of %d URLs", len(batch))
	}
	return batch, nil
}

// Report records a worker's terminal outcome for a leased URL. Success moves
// the record to completed. Failure increments attempt_count and either
// re-queues the URL as pending or, once the attempt cap is reached, marks it
// terminally failed so it cannot cycle forever. A failure the worker marked
// Terminal (permanent fetch errors) skips the re-queue entirely; refetching a
// known-dead URL just burns attempts.
func (m *Manager) Report(url string, outcome models.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[url]
	if !ok {
		return fmt.Errorf("%w: report for unknown URL %q", utils.ErrLeaseViolation, url)
	}
	if rec.Status != models.URLStatusInProgress {
		return fmt.Errorf("%w: report for URL %q in status %q (expected in_progress)", utils.ErrLeaseViolation, url, rec.Status)
	}

	prev := *rec
	rec.LeasedAt = time.Time{}

	if outcome.Success {
		rec.Status = models.URLStatusCompleted
		rec.LastError = ""
	} else {
		rec.AttemptCount++
		rec.LastError = outcome.Reason
		if outcome.Terminal || rec.AttemptCount >= m.maxAttempts {
			rec.Status = models.URLStatusFailed
			m.log.WithFields(logrus.Fields{
				"url":      url,
				"attempts": rec.AttemptCount,
				"reason":   outcome.Reason,
				"terminal": outcome.Terminal,
			}).Warn("URL failed terminally")
		} else {
			rec.Status = models.URLStatusPending
		}
	}

	if err := m.store.PutRecord(rec); err != nil {
		*rec = prev
		return fmt.Errorf("persisting report for %q: %w", url, err)
	}
	return nil
}

// ReclaimStale scans for in_progress leases older than leaseTimeout and moves
// them back to pending. A crashed worker's URL re-enters the queue this way
// instead of being stuck forever. Returns the number reclaimed.
func (m *Manager) ReclaimStale(leaseTimeout time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-leaseTimeout)
	reclaimed := 0
	for u, rec := range m.records {
		if rec.Status != models.URLStatusInProgress || rec.LeasedAt.After(cutoff) {
			continue
		}
		prev := *rec
		rec.Status = models.URLStatusPending
		rec.LeasedAt = time.Time{}
		if err := m.store.PutRecord(rec); err != nil {
			*rec = prev
			m.log.Errorf("Failed to persist reclaimed lease for %q: %v", u, err)
			continue
		}
		m.log.WithField("url", u).Warn("Reclaimed stale lease")
		reclaimed++
	}
	return reclaimed
}

// ResetAll moves every record back to pending and zeroes attempt counts. This
// is the intentional start-over operation; no record is ever deleted.
func (m *Manager) ResetAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for u, rec := range m.records {
		prev := *rec
		rec.Status = models.URLStatusPending
		rec.AttemptCount = 0
		rec.LastError = ""
		rec.LeasedAt = time.Time{}
		if err := m.store.PutRecord(rec); err != nil {
			*rec = prev
			return fmt.Errorf("persisting reset for %q: %w", u, err)
		}
	}
	m.log.Infof("Reset %d URL records to pending", len(m.records))
	return nil
}

// Counts returns the number of records in each status.
func (m *Manager) Counts() map[models.URLStatus]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[models.URLStatus]int, 4)
	for _, rec := range m.records {
		counts[rec.Status]++
	}
	return counts
}

// Total returns the number of known URL records.
func (m *Manager) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// PendingCount is a convenience for the orchestrator's drain check.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.records {
		if rec.Status == models.URLStatusPending {
			n++
		}
	}
	return n
}

// InFlightCount reports how many URLs are currently leased.
func (m *Manager) InFlightCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.records {
		if rec.Status == models.URLStatusInProgress {
			n++
		}
	}
	return n
}
