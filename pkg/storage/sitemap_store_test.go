package storage

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-scraper/pkg/models"
)

func newTestURLStore(t *testing.T, dir string, reset bool) *BadgerURLStore {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	store, err := NewBadgerURLStore(context.Background(), dir, "shop.example.com", reset, logrus.NewEntry(logger))
	require.NoError(t, err)
	return store
}

func TestBadgerURLStorePutGet(t *testing.T) {
	dir := t.TempDir()
	store := newTestURLStore(t, dir, false)
	defer store.Close()

	rec := &models.URLRecord{
		URL:          "https://shop.example.com/tile/zenobia",
		Status:       models.URLStatusPending,
		AttemptCount: 0,
	}
	require.NoError(t, store.PutRecord(rec))

	got, ok, err := store.GetRecord(rec.URL)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.URL, got.URL)
	assert.Equal(t, models.URLStatusPending, got.Status)

	_, ok, err = store.GetRecord("https://shop.example.com/tile/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBadgerURLStoreUpdateExisting(t *testing.T) {
	dir := t.TempDir()
	store := newTestURLStore(t, dir, false)
	defer store.Close()

	url := "https://shop.example.com/tile/zenobia"
	require.NoError(t, store.PutRecord(&models.URLRecord{URL: url, Status: models.URLStatusPending}))
	assert.Equal(t, 1, store.Count())

	updated := &models.URLRecord{
		URL:           url,
		Status:        models.URLStatusCompleted,
		AttemptCount:  1,
		LastAttemptAt: time.Now().UTC(),
	}
	require.NoError(t, store.PutRecord(updated))

	// Overwrite should not inflate the count
	assert.Equal(t, 1, store.Count())

	got, ok, err := store.GetRecord(url)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.URLStatusCompleted, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
}

func TestBadgerURLStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store := newTestURLStore(t, dir, false)
	require.NoError(t, store.PutRecord(&models.URLRecord{URL: "https://shop.example.com/a", Status: models.URLStatusCompleted}))
	require.NoError(t, store.PutRecord(&models.URLRecord{URL: "https://shop.example.com/b", Status: models.URLStatusFailed, AttemptCount: 3, LastError: "HTTP_404"}))
	require.NoError(t, store.Close())

	reopened := newTestURLStore(t, dir, false)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Count())

	records, err := reopened.LoadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	// LoadAll returns records sorted by URL
	assert.Equal(t, "https://shop.example.com/a", records[0].URL)
	assert.Equal(t, models.URLStatusCompleted, records[0].Status)
	assert.Equal(t, "https://shop.example.com/b", records[1].URL)
	assert.Equal(t, "HTTP_404", records[1].LastError)
}

func TestBadgerURLStoreResetWipesState(t *testing.T) {
	dir := t.TempDir()

	store := newTestURLStore(t, dir, false)
	require.NoError(t, store.PutRecord(&models.URLRecord{URL: "https://shop.example.com/a", Status: models.URLStatusCompleted}))
	require.NoError(t, store.Close())

	wiped := newTestURLStore(t, dir, true)
	defer wiped.Close()

	assert.Equal(t, 0, wiped.Count())
	records, err := wiped.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBadgerURLStoreLoadAllEmpty(t *testing.T) {
	store := newTestURLStore(t, t.TempDir(), false)
	defer store.Close()

	records, err := store.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, records)
}
