package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"catalog-scraper/pkg/models"
	"catalog-scraper/pkg/utils"
)

const checkpointFilename = "checkpoint.json"

// Store is the durable progress snapshot for one acquisition session. It
// carries reporting counters only; URL state durability belongs to the
// sitemap store. Flushes are atomic (write-to-temp-then-rename) so a crash
// mid-write never clobbers the prior valid checkpoint.
type Store struct {
	mu        sync.Mutex
	path      string
	sessionID string
	processed int64
	successes int64
	failures  int64
	log       *logrus.Entry
}

// NewStore creates a checkpoint store rooted in stateDir. No file is touched
// until Open or Flush.
func NewStore(stateDir string, logger *logrus.Entry) *Store {
	return &Store{
		path: filepath.Join(stateDir, checkpointFilename),
		log:  logger,
	}
}

// Resume loads the prior checkpoint if one exists. Returns (nil, nil) when no
// checkpoint file is present. A file that exists but does not decode returns
// ErrCheckpointCorrupt; the caller must start a fresh session rather than
// trust partial counters.
func (s *Store) Resume() (*models.Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint %s: %w", s.path, err)
	}

	var cp models.Checkpoint
	if errJson := json.Unmarshal(data, &cp); errJson != nil {
		return nil, fmt.Errorf("%w: %s: %w", utils.ErrCheckpointCorrupt, s.path, errJson)
	}
	if cp.SessionID == "" {
		return nil, fmt.Errorf("%w: %s: missing session_id", utils.ErrCheckpointCorrupt, s.path)
	}
	return &cp, nil
}

// Open establishes the session this store tracks. With resume true it adopts
// the prior checkpoint's identity and counters when a valid one exists;
// otherwise (or on a fresh start) it mints a new session. A corrupt
// checkpoint is reported but never resumed from: the session starts fresh
// with zeroed counters, leaving sitemap state untouched.
func (s *Store) Open(resume bool) (models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if resume {
		prior, err := s.Resume()
		if err != nil {
			if errors.Is(err, utils.ErrCheckpointCorrupt) {
				s.log.Warnf("Checkpoint is corrupt, starting a fresh session: %v", err)
				s.startFreshLocked()
				return s.snapshotLocked(), err
			}
			return models.Checkpoint{}, err
		}
		if prior != nil {
			s.sessionID = prior.SessionID
			s.processed = prior.ProcessedCount
			s.successes = prior.SuccessCount
			s.failures = prior.FailureCount
			s.log.WithFields(logrus.Fields{
				"session_id": s.sessionID,
				"processed":  s.processed,
			}).Info("Resumed from checkpoint")
			return s.snapshotLocked(), nil
		}
	}

	s.startFreshLocked()
	s.log.WithField("session_id", s.sessionID).Info("Started fresh session")
	return s.snapshotLocked(), nil
}

func (s *Store) startFreshLocked() {
	s.sessionID = uuid.NewString()
	s.processed = 0
	s.successes = 0
	s.failures = 0
}

// RecordOutcome folds one worker result into the counters.
func (s *Store) RecordOutcome(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	if success {
		s.successes++
	} else {
		s.failures++
	}
}

// Snapshot returns the current progress counters.
func (s *Store) Snapshot() models.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() models.Checkpoint {
	return models.Checkpoint{
		SessionID:      s.sessionID,
		ProcessedCount: s.processed,
		SuccessCount:   s.successes,
		FailureCount:   s.failures,
	}
}

// Flush durably writes the current snapshot. The temp file lands in the same
// directory as the checkpoint so the rename is atomic on the same filesystem.
func (s *Store) Flush() error {
	s.mu.Lock()
	cp := s.snapshotLocked()
	s.mu.Unlock()
	cp.LastFlushedAt = time.Now().UTC()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating checkpoint directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, checkpointFilename+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp checkpoint: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing checkpoint: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"processed": cp.ProcessedCount,
		"success":   cp.SuccessCount,
		"failure":   cp.FailureCount,
	}).Debug("Checkpoint flushed")
	return nil
}
