package sitemap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-scraper/pkg/config"
	"catalog-scraper/pkg/models"
	"catalog-scraper/pkg/utils"
)

// memStore is an in-memory URLStore so manager tests don't need BadgerDB.
type memStore struct {
	mu      sync.Mutex
	records map[string]models.URLRecord
	puts    int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]models.URLRecord)}
}

func (s *memStore) PutRecord(rec *models.URLRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.URL] = *rec
	s.puts++
	return nil
}

func (s *memStore) GetRecord(url string) (*models.URLRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[url]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (s *memStore) LoadAll() ([]models.URLRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.URLRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (s *memStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *memStore) Close() error { return nil }

// fakeFetcher serves canned sitemap bodies by URL.
type fakeFetcher struct {
	pages map[string][]byte
}

func (f *fakeFetcher) FetchPage(_ context.Context, pageURL string) (*models.RawPage, error) {
	body, ok := f.pages[pageURL]
	if !ok {
		return nil, fmt.Errorf("%w: HTTP status 404", utils.ErrFetchPermanent)
	}
	return &models.RawPage{URL: pageURL, HTML: body}, nil
}

func urlsetXML(locs ...string) []byte {
	body := `<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`
	for _, loc := range locs {
		body += "<url><loc>" + loc + "</loc></url>"
	}
	return []byte(body + "</urlset>")
}

func indexXML(locs ...string) []byte {
	body := `<?xml version="1.0" encoding="UTF-8"?><sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`
	for _, loc := range locs {
		body += "<sitemap><loc>" + loc + "</loc></sitemap>"
	}
	return []byte(body + "</sitemapindex>")
}

func testManager(t *testing.T, store *memStore, fetcher PageFetcher, mutate func(*config.AppConfig)) *Manager {
	t.Helper()
	cfg := &config.AppConfig{
		AllowedDomain: "shop.example.com",
		MaxAttempts:   3,
	}
	if mutate != nil {
		mutate(cfg)
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	m, err := NewManager(store, fetcher, cfg, logger)
	require.NoError(t, err)
	return m
}

func TestDiscoverWalksNestedIndex(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]byte{
		"https://shop.example.com/sitemap.xml": indexXML(
			"https://shop.example.com/sitemap-tile.xml",
			"https://shop.example.com/sitemap-materials.xml",
		),
		"https://shop.example.com/sitemap-tile.xml": urlsetXML(
			"https://shop.example.com/tile/zenobia",
			"https://shop.example.com/tile/aurelia",
		),
		"https://shop.example.com/sitemap-materials.xml": urlsetXML(
			"https://shop.example.com/mortar/polymer-50lb",
		),
	}}
	m := testManager(t, newMemStore(), fetcher, nil)

	added, err := m.Discover(context.Background(), "https://shop.example.com/sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, 3, added)
	assert.Equal(t, 3, m.Total())
	assert.Equal(t, 3, m.Counts()[models.URLStatusPending])
}

func TestDiscoverMergePreservesKnownStatus(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.PutRecord(&models.URLRecord{
		URL:    "https://shop.example.com/tile/zenobia",
		Status: models.URLStatusCompleted,
	}))

	fetcher := &fakeFetcher{pages: map[string][]byte{
		"https://shop.example.com/sitemap.xml": urlsetXML(
			"https://shop.example.com/tile/zenobia",
			"https://shop.example.com/tile/aurelia",
		),
	}}
	m := testManager(t, store, fetcher, nil)

	added, err := m.Discover(context.Background(), "https://shop.example.com/sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	counts := m.Counts()
	assert.Equal(t, 1, counts[models.URLStatusCompleted])
	assert.Equal(t, 1, counts[models.URLStatusPending])
}

func TestDiscoverScopeAndNormalization(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]byte{
		"https://shop.example.com/sitemap.xml": urlsetXML(
			"https://shop.example.com/tile/zenobia/",            // trailing slash
			"https://SHOP.example.com/tile/zenobia?utm=promo",   // host case + query
			"https://other.example.net/tile/offsite",            // out of scope
			"not a url",                                          // malformed
		),
	}}
	m := testManager(t, newMemStore(), fetcher, nil)

	added, err := m.Discover(context.Background(), "https://shop.example.com/sitemap.xml")
	require.NoError(t, err)
	// Both in-scope variants normalize to the same record
	assert.Equal(t, 1, added)

	batch, err := m.NextBatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "https://shop.example.com/tile/zenobia", batch[0].URL)
}

func TestDiscoverRootFetchFailure(t *testing.T) {
	m := testManager(t, newMemStore(), &fakeFetcher{pages: map[string][]byte{}}, nil)

	_, err := m.Discover(context.Background(), "https://shop.example.com/sitemap.xml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrFetchPermanent))
}

func TestDiscoverURLCap(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]byte{
		"https://shop.example.com/sitemap.xml": urlsetXML(
			"https://shop.example.com/tile/a",
			"https://shop.example.com/tile/b",
			"https://shop.example.com/tile/c",
		),
	}}
	m := testManager(t, newMemStore(), fetcher, func(cfg *config.AppConfig) { cfg.MaxURLs = 2 })

	added, err := m.Discover(context.Background(), "https://shop.example.com/sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, 2, m.Total())
}

func seedManager(t *testing.T, urls ...string) (*Manager, *memStore) {
	t.Helper()
	store := newMemStore()
	m := testManager(t, store, &fakeFetcher{}, nil)
	fetcher := &fakeFetcher{pages: map[string][]byte{
		"https://shop.example.com/sitemap.xml": urlsetXML(urls...),
	}}
	m.fetcher = fetcher
	_, err := m.Discover(context.Background(), "https://shop.example.com/sitemap.xml")
	require.NoError(t, err)
	return m, store
}

func TestNextBatchLeasesInOrderWithoutDoubleLease(t *testing.T) {
	m, _ := seedManager(t,
		"https://shop.example.com/tile/c",
		"https://shop.example.com/tile/a",
		"https://shop.example.com/tile/b",
	)

	first, err := m.NextBatch(2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "https://shop.example.com/tile/a", first[0].URL)
	assert.Equal(t, "https://shop.example.com/tile/b", first[1].URL)
	assert.Equal(t, models.URLStatusInProgress, first[0].Status)
	assert.False(t, first[0].LeasedAt.IsZero())

	// The leased URLs must not be handed out again
	second, err := m.NextBatch(10)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "https://shop.example.com/tile/c", second[0].URL)

	third, err := m.NextBatch(10)
	require.NoError(t, err)
	assert.Empty(t, third)
}

func TestReportSuccess(t *testing.T) {
	m, store := seedManager(t, "https://shop.example.com/tile/a")

	batch, err := m.NextBatch(1)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	require.NoError(t, m.Report(batch[0].URL, models.Outcome{Success: true}))
	assert.Equal(t, 1, m.Counts()[models.URLStatusCompleted])

	// Write-through to the store
	rec, ok, err := store.GetRecord(batch[0].URL)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.URLStatusCompleted, rec.Status)
	assert.True(t, rec.LeasedAt.IsZero())
}

func TestReportFailureRequeuesThenTerminal(t *testing.T) {
	m, _ := seedManager(t, "https://shop.example.com/tile/a")
	url := "https://shop.example.com/tile/a"

	// MaxAttempts is 3: two failures re-queue, the third is terminal
	for attempt := 1; attempt <= 3; attempt++ {
		batch, err := m.NextBatch(1)
		require.NoError(t, err)
		require.Len(t, batch, 1, "attempt %d should get a lease", attempt)

		require.NoError(t, m.Report(url, models.Outcome{Success: false, Reason: "RetryFailed_HTTPServer"}))

		counts := m.Counts()
		if attempt < 3 {
			assert.Equal(t, 1, counts[models.URLStatusPending], "attempt %d", attempt)
		} else {
			assert.Equal(t, 1, counts[models.URLStatusFailed], "attempt %d", attempt)
		}
	}

	// Terminally failed records are not leased again
	batch, err := m.NextBatch(1)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestReportTerminalFailureFailsImmediately(t *testing.T) {
	m, store := seedManager(t, "https://shop.example.com/tile/gone")
	url := "https://shop.example.com/tile/gone"

	batch, err := m.NextBatch(1)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	// A permanent failure skips the attempt cap entirely
	require.NoError(t, m.Report(url, models.Outcome{Success: false, Reason: "HTTP_404", Terminal: true}))
	assert.Equal(t, 1, m.Counts()[models.URLStatusFailed])

	rec, ok, err := store.GetRecord(url)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.URLStatusFailed, rec.Status)
	assert.Equal(t, 1, rec.AttemptCount)

	batch, err = m.NextBatch(1)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestReportLeaseViolations(t *testing.T) {
	m, _ := seedManager(t, "https://shop.example.com/tile/a")

	err := m.Report("https://shop.example.com/tile/unknown", models.Outcome{Success: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrLeaseViolation))

	// Reporting a pending (never leased) URL is also a violation
	err = m.Report("https://shop.example.com/tile/a", models.Outcome{Success: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrLeaseViolation))
}

func TestReclaimStale(t *testing.T) {
	m, _ := seedManager(t,
		"https://shop.example.com/tile/a",
		"https://shop.example.com/tile/b",
	)

	batch, err := m.NextBatch(2)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	// Backdate one lease past the staleness cutoff
	m.mu.Lock()
	m.records["https://shop.example.com/tile/a"].LeasedAt = time.Now().UTC().Add(-10 * time.Minute)
	m.mu.Unlock()

	reclaimed := m.ReclaimStale(5 * time.Minute)
	assert.Equal(t, 1, reclaimed)

	counts := m.Counts()
	assert.Equal(t, 1, counts[models.URLStatusPending])
	assert.Equal(t, 1, counts[models.URLStatusInProgress])

	// The reclaimed URL is leasable again
	again, err := m.NextBatch(10)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "https://shop.example.com/tile/a", again[0].URL)
}

func TestResetAll(t *testing.T) {
	m, _ := seedManager(t,
		"https://shop.example.com/tile/a",
		"https://shop.example.com/tile/b",
		"https://shop.example.com/tile/c",
	)

	// Drive records into mixed states
	batch, err := m.NextBatch(3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	require.NoError(t, m.Report("https://shop.example.com/tile/a", models.Outcome{Success: true}))
	for range 3 {
		_ = m.Report("https://shop.example.com/tile/b", models.Outcome{Success: false, Reason: "HTTP_404"})
		b, _ := m.NextBatch(1)
		if len(b) == 0 {
			break
		}
	}

	require.NoError(t, m.ResetAll())

	counts := m.Counts()
	assert.Equal(t, 3, counts[models.URLStatusPending])
	assert.Equal(t, 0, counts[models.URLStatusCompleted])
	assert.Equal(t, 0, counts[models.URLStatusFailed])

	all, err := m.store.LoadAll()
	require.NoError(t, err)
	for _, rec := range all {
		assert.Equal(t, models.URLStatusPending, rec.Status)
		assert.Zero(t, rec.AttemptCount)
		assert.Empty(t, rec.LastError)
	}
}

func TestManagerRestoresFromStore(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.PutRecord(&models.URLRecord{URL: "https://shop.example.com/tile/a", Status: models.URLStatusCompleted}))
	require.NoError(t, store.PutRecord(&models.URLRecord{URL: "https://shop.example.com/tile/b", Status: models.URLStatusPending}))

	m := testManager(t, store, &fakeFetcher{}, nil)
	assert.Equal(t, 2, m.Total())

	batch, err := m.NextBatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "https://shop.example.com/tile/b", batch[0].URL)
}
