// Package recordstore implements the share-record table on BadgerDB:
// rows keyed by code fingerprint, with a secondary id index for the
// burn/delete path and a passive sweep for expired rows.
//
// The store never sees a raw share code. The `code` column of a row
// holds the fingerprint hex, matching the schema of the remote table it
// stands in for.
package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/sealdrop/sealdrop/pkg/sharecode"
)

const (
	prefixRecord = "rec:"
	prefixID     = "id:"
)

var (
	// ErrNotFound indicates no row exists for the fingerprint or id.
	ErrNotFound = errors.New("recordstore: record not found")

	// ErrExpiredRecord is returned together with the row when its
	// expiry timestamp has passed. The row is best-effort removed on
	// observation.
	ErrExpiredRecord = errors.New("recordstore: record expired")

	// ErrDuplicateFingerprint indicates an insert collided with an
	// existing row.
	ErrDuplicateFingerprint = errors.New("recordstore: fingerprint already registered")
)

// Record is one row of the share table.
type Record struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"` // fingerprint hex, never the raw code
	FilePath  string    `json:"file_path"`
	Type      string    `json:"type"`
	MimeType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Stats is a best-effort aggregate over the live rows.
type Stats struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
}

// Config configures the store.
type Config struct {
	// Path is the badger data directory.
	Path string
	// Logger is optional; a default logrus logger is used when nil.
	Logger *logrus.Logger
	// SweepInterval drives the expired-row sweeper started by
	// StartSweeper. Defaults to 15 minutes.
	SweepInterval time.Duration
}

// Store is a badger-backed record table.
type Store struct {
	db   *badger.DB
	log  *logrus.Logger
	stop chan struct{}
}

// Open opens (or creates) the store at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	return &Store{
		db:   db,
		log:  cfg.Logger,
		stop: make(chan struct{}),
	}, nil
}

// Close stops the sweeper and closes the database.
func (s *Store) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	return s.db.Close()
}

func recordKey(fingerprintHex string) []byte {
	return []byte(prefixRecord + fingerprintHex)
}

func idKey(id string) []byte {
	return []byte(prefixID + id)
}

// Insert registers a new row. The fingerprint must not be registered
// yet.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" || rec.Code == "" {
		return fmt.Errorf("recordstore: id and code are required")
	}

	row, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		key := recordKey(rec.Code)
		if _, err := txn.Get(key); err == nil {
			return ErrDuplicateFingerprint
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(key, row); err != nil {
			return err
		}
		return txn.Set(idKey(rec.ID), []byte(rec.Code))
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateFingerprint) {
			return err
		}
		return fmt.Errorf("persist record: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"id":   rec.ID,
		"type": rec.Type,
	}).Debug("record inserted")
	return nil
}

// GetByFingerprint returns the row for a fingerprint. Expired rows are
// returned together with ErrExpiredRecord and removed best-effort.
func (s *Store) GetByFingerprint(ctx context.Context, fp sharecode.Fingerprint) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(fp.Hex()))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("read record: %w", err)
	}

	if !rec.ExpiresAt.IsZero() && !time.Now().Before(rec.ExpiresAt) {
		if delErr := s.deleteRow(rec); delErr != nil {
			s.log.WithError(delErr).Warn("failed to remove expired record")
		}
		return rec, ErrExpiredRecord
	}

	return rec, nil
}

// Exists reports whether a fingerprint is registered. Expired rows
// still count as registered until swept, so a fresh code can never
// collide with a row that is about to disappear.
func (s *Store) Exists(ctx context.Context, fp sharecode.Fingerprint) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(recordKey(fp.Hex()))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("existence check: %w", err)
	}
	return found, nil
}

// GetByID resolves a row through the id index. Unlike
// GetByFingerprint it does not apply expiry semantics; the burn path
// needs the row regardless.
func (s *Store) GetByID(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var fingerprintHex string
		if err := item.Value(func(val []byte) error {
			fingerprintHex = string(val)
			return nil
		}); err != nil {
			return err
		}

		row, err := txn.Get(recordKey(fingerprintHex))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return row.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("read record: %w", err)
	}
	return rec, nil
}

// DeleteByID removes the row with the given id, along with its
// fingerprint key. Used by the burn path.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(idKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var fingerprintHex string
		if err := item.Value(func(val []byte) error {
			fingerprintHex = string(val)
			return nil
		}); err != nil {
			return err
		}

		if err := txn.Delete(recordKey(fingerprintHex)); err != nil {
			return err
		}
		return txn.Delete(idKey(id))
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete record: %w", err)
	}

	s.log.WithField("id", id).Info("record deleted")
	return nil
}

func (s *Store) deleteRow(rec Record) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(recordKey(rec.Code)); err != nil {
			return err
		}
		return txn.Delete(idKey(rec.ID))
	})
}

// DeleteExpired removes every row whose expiry has passed and returns
// the number removed.
func (s *Store) DeleteExpired(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := time.Now()
	var stale []Record

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixRecord)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if !rec.ExpiresAt.IsZero() && !now.Before(rec.ExpiresAt) {
				stale = append(stale, rec)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan expired: %w", err)
	}

	removed := 0
	for _, rec := range stale {
		if err := s.deleteRow(rec); err != nil {
			s.log.WithError(err).WithField("id", rec.ID).Warn("sweep delete failed")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.log.WithField("count", removed).Info("swept expired records")
	}
	return removed, nil
}

// StartSweeper runs DeleteExpired on the configured interval until the
// store is closed.
func (s *Store) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if _, err := s.DeleteExpired(context.Background()); err != nil {
					s.log.WithError(err).Warn("expiry sweep failed")
				}
			}
		}
	}()
}

// Stats aggregates live rows by declared type. Read-only and
// best-effort; expired rows not yet swept are skipped.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	now := time.Now()
	stats := Stats{ByType: make(map[string]int)}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixRecord)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if !rec.ExpiresAt.IsZero() && !now.Before(rec.ExpiresAt) {
				continue
			}
			stats.Total++
			stats.ByType[rec.Type]++
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("aggregate records: %w", err)
	}
	return stats, nil
}
