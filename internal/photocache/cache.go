// Package photocache keeps inspection photos on the kiosk, keyed by
// inspection and indexed by plate, so they can be shown again without the
// record store or the network.
package photocache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Eskedar21/VIMS-sub000/internal/store"
)

// ErrNotFound is returned when no bundle exists for an inspection.
var ErrNotFound = errors.New("photo bundle not found")

const (
	bundlePrefix = "bundle:"
	platePrefix  = "plate:"
)

// Bundle is the set of photos captured for one inspection.
type Bundle struct {
	InspectionID string        `json:"inspection_id"`
	Plate        string        `json:"plate"`
	Photos       []store.Photo `json:"photos"`
	SavedAt      time.Time     `json:"saved_at"`
}

// IndexEntry is the plate index record for one bundle.
type IndexEntry struct {
	Plate        string    `json:"plate"`
	InspectionID string    `json:"inspection_id"`
	Count        int       `json:"count"`
	Bytes        int64     `json:"bytes"`
	SavedAt      time.Time `json:"saved_at"`
}

// Cache is a badger-backed photo cache.
type Cache struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens the cache in dir. An empty dir keeps everything in memory.
func Open(dir string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open photo cache: %w", err)
	}

	logger.Info("photo cache opened", "dir", dir, "in_memory", dir == "")
	return &Cache{db: db, logger: logger, now: time.Now}, nil
}

// Close flushes and closes the cache.
func (c *Cache) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close photo cache: %w", err)
	}
	return nil
}

func normalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

func bundleKey(inspectionID string) []byte {
	return []byte(bundlePrefix + inspectionID)
}

func plateKey(plate, inspectionID string) []byte {
	return []byte(platePrefix + plate + ":" + inspectionID)
}

// Put stores a bundle, replacing any earlier bundle for the same inspection.
func (c *Cache) Put(b Bundle) error {
	if b.InspectionID == "" {
		return fmt.Errorf("inspection id is required")
	}
	b.Plate = normalizePlate(b.Plate)
	if b.SavedAt.IsZero() {
		b.SavedAt = c.now()
	}

	var total int64
	for _, p := range b.Photos {
		total += p.Size
	}

	bundleJSON, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode photo bundle: %w", err)
	}
	entryJSON, err := json.Marshal(IndexEntry{
		Plate:        b.Plate,
		InspectionID: b.InspectionID,
		Count:        len(b.Photos),
		Bytes:        total,
		SavedAt:      b.SavedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode plate index entry: %w", err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		// The plate may have been corrected since the last save
		prev, err := getBundle(txn, b.InspectionID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if prev != nil && prev.Plate != b.Plate {
			if err := txn.Delete(plateKey(prev.Plate, prev.InspectionID)); err != nil {
				return err
			}
		}

		if err := txn.Set(bundleKey(b.InspectionID), bundleJSON); err != nil {
			return err
		}
		return txn.Set(plateKey(b.Plate, b.InspectionID), entryJSON)
	})
	if err != nil {
		return fmt.Errorf("failed to store photo bundle: %w", err)
	}

	c.logger.Debug("photo bundle cached", "inspection_id", b.InspectionID, "plate", b.Plate, "photos", len(b.Photos))
	return nil
}

// Get returns the bundle for an inspection.
func (c *Cache) Get(inspectionID string) (*Bundle, error) {
	var b *Bundle
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		b, err = getBundle(txn, inspectionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func getBundle(txn *badger.Txn, inspectionID string) (*Bundle, error) {
	item, err := txn.Get(bundleKey(inspectionID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("inspection %s: %w", inspectionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read photo bundle: %w", err)
	}

	var b Bundle
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &b)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode photo bundle: %w", err)
	}
	return &b, nil
}

// FindByPlate returns index entries for an exact plate, newest first.
func (c *Cache) FindByPlate(plate string) ([]IndexEntry, error) {
	plate = normalizePlate(plate)
	if plate == "" {
		return nil, nil
	}
	return c.scanIndex(platePrefix+plate+":", nil)
}

// Search returns index entries whose plate contains query, newest first.
func (c *Cache) Search(query string) ([]IndexEntry, error) {
	q := normalizePlate(query)
	if q == "" {
		return nil, nil
	}
	return c.scanIndex(platePrefix, func(e IndexEntry) bool {
		return strings.Contains(e.Plate, q)
	})
}

// Index returns every index entry, newest first.
func (c *Cache) Index() ([]IndexEntry, error) {
	return c.scanIndex(platePrefix, nil)
}

func (c *Cache) scanIndex(prefix string, match func(IndexEntry) bool) ([]IndexEntry, error) {
	var entries []IndexEntry

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var e IndexEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return fmt.Errorf("failed to decode plate index entry %s: %w", it.Item().Key(), err)
			}
			if match == nil || match(e) {
				entries = append(entries, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].SavedAt.Equal(entries[j].SavedAt) {
			return entries[i].SavedAt.After(entries[j].SavedAt)
		}
		return entries[i].InspectionID < entries[j].InspectionID
	})
	return entries, nil
}

// Delete removes the bundle for an inspection and its index entry.
func (c *Cache) Delete(inspectionID string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		b, err := getBundle(txn, inspectionID)
		if err != nil {
			return err
		}
		if err := txn.Delete(plateKey(b.Plate, inspectionID)); err != nil {
			return err
		}
		return txn.Delete(bundleKey(inspectionID))
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete photo bundle: %w", err)
	}
	return nil
}

// Size returns the on-disk size of the cache in bytes.
func (c *Cache) Size() int64 {
	lsm, vlog := c.db.Size()
	return lsm + vlog
}

// badgerLogger routes badger's internal logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}
