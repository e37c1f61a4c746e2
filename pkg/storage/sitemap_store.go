package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"catalog-scraper/pkg/log"
	"catalog-scraper/pkg/models"
	"catalog-scraper/pkg/utils"
)

const (
	urlKeyPrefix = "url:"       // Prefix for URL record keys in DB
	sitemapDBDir = "sitemap_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerURLStore implements the URLStore interface using BadgerDB. Each URL
// record is stored as a JSON value under a prefixed key, so crawl state
// survives process restarts without any recovery pass.
type BadgerURLStore struct {
	db       *badger.DB
	log      *logrus.Entry
	ctx      context.Context // Parent context
	keyCount atomic.Int64    // Cached key count for O(1) Count
}

// NewBadgerURLStore initializes and returns a new BadgerURLStore. With reset
// true, any existing state directory for the domain is removed first.
func NewBadgerURLStore(ctx context.Context, stateDir, siteDomain string, reset bool, logger *logrus.Entry) (*BadgerURLStore, error) {
	store := &BadgerURLStore{
		log: logger,
		ctx: ctx,
	}

	// Create a unique directory path for this site's DB within the base state directory
	dbDirName := utils.SanitizeFilename(siteDomain) + "_" + sitemapDBDir
	dbPath := filepath.Join(stateDir, dbDirName)

	if reset {
		logger.Warnf("Reset requested. REMOVING existing state directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			// Log error but attempt to continue; Badger might recover or create new files
			logger.Errorf("Failed to remove existing state directory %s: %v", dbPath, err)
		}
	}

	logger.Infof("Initializing URL state database at: %s (Reset: %v)", dbPath, reset)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dbPath, err)
	}

	// Configure Badger options
	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger). // Use custom logrus adapter
		WithNumVersionsToKeep(1)  // Only keep the latest record state

	// Open the database
	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", dbPath, err)
	}

	// Initialize key count from existing data (matters for resumed runs)
	count, err := store.countKeys()
	if err != nil {
		logger.Warnf("Failed to count existing keys: %v", err)
	} else {
		store.keyCount.Store(int64(count))
		if count > 0 {
			logger.Infof("Loaded existing URL record count: %d", count)
		}
	}

	logger.Info("URL state database initialized successfully.")
	return store, nil
}

// countKeys performs a one-time full key scan (used only during initialization).
func (s *BadgerURLStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(urlKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerURLStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// PutRecord implements the URLStore interface. The record is written whole;
// callers own the read-modify-write cycle through the sitemap manager, which
// serializes updates per URL.
func (s *BadgerURLStore) PutRecord(rec *models.URLRecord) error {
	if s.db == nil {
		return errors.New("url state DB not initialized")
	}
	key := []byte(urlKeyPrefix + rec.URL)

	recBytes, errJson := json.Marshal(rec)
	if errJson != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal URLRecord for key '%s': %w", utils.ErrParsing, string(key), errJson)
		s.log.Error(wrappedErr)
		return wrappedErr
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			isNew = true
		}
		e := badger.NewEntry(key, recBytes)
		return txn.SetEntry(e)
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in PutRecord: %v", err)
		return fmt.Errorf("%w: failed setting record for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}

	s.log.Debugf("Stored URL record '%s' with status '%s'", rec.URL, rec.Status)
	return nil
}

// GetRecord implements the URLStore interface.
func (s *BadgerURLStore) GetRecord(url string) (*models.URLRecord, bool, error) {
	var rec *models.URLRecord
	key := []byte(urlKeyPrefix + url)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil // Absence is not an error here
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting record key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}

		return item.Value(func(val []byte) error {
			var decoded models.URLRecord
			if errJson := json.Unmarshal(val, &decoded); errJson != nil {
				s.log.Warnf("Failed to unmarshal URLRecord for key '%s': %v. Treating as absent.", string(key), errJson)
				return nil
			}
			rec = &decoded
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in GetRecord for key '%s': %v", string(key), errView)
		return nil, false, errView
	}
	return rec, rec != nil, nil
}

// LoadAll implements the URLStore interface. Records are returned sorted by
// URL so the manager's startup state is deterministic.
func (s *BadgerURLStore) LoadAll() ([]models.URLRecord, error) {
	var records []models.URLRecord
	decodeErrors := 0

	errView := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(urlKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-s.ctx.Done():
				s.log.Warnf("LoadAll scan interrupted by context cancellation: %v", s.ctx.Err())
				return s.ctx.Err()
			default:
			}

			item := it.Item()
			errVal := item.Value(func(val []byte) error {
				var rec models.URLRecord
				if errJson := json.Unmarshal(val, &rec); errJson != nil {
					keyCopy := item.KeyCopy(nil)
					s.log.Errorf("LoadAll: failed to unmarshal URLRecord for key '%s': %v. Skipping.", string(keyCopy), errJson)
					decodeErrors++
					return nil // Continue iteration
				}
				records = append(records, rec)
				return nil
			})
			if errVal != nil {
				return errVal
			}
		}
		return nil
	})

	if errView != nil {
		return nil, fmt.Errorf("%w: loading URL records: %w", utils.ErrDatabase, errView)
	}
	if decodeErrors > 0 {
		s.log.Warnf("LoadAll completed with %d undecodable records skipped", decodeErrors)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].URL < records[j].URL })
	s.log.Infof("Loaded %d URL records from state database", len(records))
	return records, nil
}

// Count implements the URLStore interface.
// Returns the cached key count (O(1)) maintained by atomic increments on writes.
func (s *BadgerURLStore) Count() int {
	return int(s.keyCount.Load())
}

// RunGC runs BadgerDB's value log garbage collection periodically.
func (s *BadgerURLStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute // Default interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Info("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			s.log.Debug("Running BadgerDB value log garbage collection...")
			var err error
			for {
				// Run GC if log is at least 50% reclaimable space
				err = s.db.RunValueLogGC(0.5)
				if err != nil {
					break
				}
			}

			if errors.Is(err, badger.ErrNoRewrite) {
				s.log.Debug("BadgerDB GC finished (no rewrite needed).")
			} else {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Infof("Stopping BadgerDB garbage collection goroutine: %v", ctx.Err())
			return
		}
	}
}

// Close implements the URLStore interface.
func (s *BadgerURLStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing URL state DB...")
		err := s.db.Close()
		if err != nil {
			s.log.Errorf("Error closing URL state DB: %v", err)
			return err
		}
		s.log.Info("URL state DB closed.")
		return nil
	}
	s.log.Info("URL state DB already closed or was not initialized.")
	return nil
}
