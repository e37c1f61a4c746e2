package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-scraper/pkg/utils"
)

func newTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewStore(dir, logrus.NewEntry(logger))
}

func TestOpenFreshSession(t *testing.T) {
	store := newTestStore(t, t.TempDir())

	cp, err := store.Open(false)
	require.NoError(t, err)
	assert.NotEmpty(t, cp.SessionID)
	assert.Zero(t, cp.ProcessedCount)
	assert.Zero(t, cp.SuccessCount)
	assert.Zero(t, cp.FailureCount)
}

func TestResumeWithoutCheckpointStartsFresh(t *testing.T) {
	store := newTestStore(t, t.TempDir())

	cp, err := store.Open(true)
	require.NoError(t, err)
	assert.NotEmpty(t, cp.SessionID)
	assert.Zero(t, cp.ProcessedCount)
}

func TestFlushAndResume(t *testing.T) {
	dir := t.TempDir()

	store := newTestStore(t, dir)
	first, err := store.Open(false)
	require.NoError(t, err)

	store.RecordOutcome(true)
	store.RecordOutcome(true)
	store.RecordOutcome(false)
	require.NoError(t, store.Flush())

	// A new store over the same directory resumes the session
	resumed := newTestStore(t, dir)
	cp, err := resumed.Open(true)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, cp.SessionID)
	assert.Equal(t, int64(3), cp.ProcessedCount)
	assert.Equal(t, int64(2), cp.SuccessCount)
	assert.Equal(t, int64(1), cp.FailureCount)
}

func TestFreshOpenIgnoresPriorCheckpoint(t *testing.T) {
	dir := t.TempDir()

	store := newTestStore(t, dir)
	first, err := store.Open(false)
	require.NoError(t, err)
	store.RecordOutcome(true)
	require.NoError(t, store.Flush())

	fresh := newTestStore(t, dir)
	cp, err := fresh.Open(false)
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, cp.SessionID)
	assert.Zero(t, cp.ProcessedCount)
}

func TestResumeCorruptCheckpoint(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkpoint.json"), []byte("{not json"), 0644))

	store := newTestStore(t, dir)

	_, err := store.Resume()
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrCheckpointCorrupt))

	// Open reports the corruption but still yields a usable fresh session
	cp, err := store.Open(true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrCheckpointCorrupt))
	assert.NotEmpty(t, cp.SessionID)
	assert.Zero(t, cp.ProcessedCount)
}

func TestResumeRejectsMissingSessionID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkpoint.json"), []byte(`{"processed_count": 5}`), 0644))

	store := newTestStore(t, dir)
	_, err := store.Resume()
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrCheckpointCorrupt))
}

func TestFlushLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, dir)
	_, err := store.Open(false)
	require.NoError(t, err)

	for range 5 {
		store.RecordOutcome(true)
		require.NoError(t, store.Flush())
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "checkpoint.json", entries[0].Name())
}

func TestSnapshotReflectsCounters(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	_, err := store.Open(false)
	require.NoError(t, err)

	store.RecordOutcome(false)
	store.RecordOutcome(false)

	cp := store.Snapshot()
	assert.Equal(t, int64(2), cp.ProcessedCount)
	assert.Equal(t, int64(2), cp.FailureCount)
	assert.Zero(t, cp.SuccessCount)
	assert.True(t, cp.LastFlushedAt.IsZero())
}
