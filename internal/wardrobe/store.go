package wardrobe

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

const (
	itemsBucketName = "items"
	scansBucketName = "scans"
	metaBucketName  = "meta"

	metaTotalScannedKey  = "total_scanned"
	metaBrandIconKey     = "brand_icon"
	metaBrandIconTypeKey = "brand_icon_type"

	// maxScanHistory bounds the scan history; the oldest record is evicted
	// first. Eviction drops the history record only, never its items.
	maxScanHistory = 20
)

// Store is the only mutable shared state in the app. All mutation of the
// persisted collection goes through this interface.
type Store interface {
	// Append adds items and records one scan as an atomic unit.
	Append(items []*Item, scanTimestamp int64) error

	// DeleteScanGroup removes the scan with that timestamp and every item
	// whose ID appears in its item list.
	DeleteScanGroup(timestamp int64) error

	// Reset clears all items, scans, counters, and branding state.
	Reset() error

	// Items returns all committed items, oldest first.
	Items() []*Item

	// Item returns one committed item by ID.
	Item(id string) (*Item, bool)

	// Scans returns the scan history, newest first.
	Scans() []*Scan

	// TotalScanned returns the cumulative lifetime-scanned counter.
	TotalScanned() int

	// BrandIcon returns the optional branding image.
	BrandIcon() ([]byte, string)

	// SetBrandIcon stores the branding image.
	SetBrandIcon(data []byte, contentType string)

	// LastWarning returns the most recent persistence warning, if any.
	LastWarning() string

	// Close closes the underlying database.
	Close() error
}

// Inventory implements Store with in-memory state as the authority for the
// running session and bbolt as best-effort durable storage. A failed write
// is logged and surfaced as a non-fatal warning; it never fails the
// mutation itself.
type Inventory struct {
	mu            sync.RWMutex
	items         []*Item
	scans         []*Scan // newest first
	totalScanned  int
	brandIcon     []byte
	brandIconType string
	warning       string

	db *bbolt.DB
}

// NewInventory opens (or creates) the inventory database at path and loads
// the persisted state into memory.
func NewInventory(path string) (*Inventory, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{itemsBucketName, scansBucketName, metaBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	inv := &Inventory{db: db}
	if err := inv.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading inventory: %w", err)
	}
	return inv, nil
}

// load reads the persisted state into memory at open time.
func (inv *Inventory) load() error {
	return inv.db.View(func(tx *bbolt.Tx) error {
		items := tx.Bucket([]byte(itemsBucketName))
		err := items.ForEach(func(k, v []byte) error {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling item: %w", err)
			}
			inv.items = append(inv.items, &item)
			return nil
		})
		if err != nil {
			return err
		}
		sort.Slice(inv.items, func(i, j int) bool {
			if inv.items[i].CreatedAt.Equal(inv.items[j].CreatedAt) {
				return inv.items[i].ID < inv.items[j].ID
			}
			return inv.items[i].CreatedAt.Before(inv.items[j].CreatedAt)
		})

		scans := tx.Bucket([]byte(scansBucketName))
		err = scans.ForEach(func(k, v []byte) error {
			var scan Scan
			if err := json.Unmarshal(v, &scan); err != nil {
				return fmt.Errorf("unmarshaling scan: %w", err)
			}
			inv.scans = append(inv.scans, &scan)
			return nil
		})
		if err != nil {
			return err
		}
		sort.Slice(inv.scans, func(i, j int) bool {
			return inv.scans[i].Timestamp > inv.scans[j].Timestamp
		})

		meta := tx.Bucket([]byte(metaBucketName))
		if v := meta.Get([]byte(metaTotalScannedKey)); v != nil {
			if n, err := strconv.Atoi(string(v)); err == nil {
				inv.totalScanned = n
			}
		}
		if v := meta.Get([]byte(metaBrandIconKey)); v != nil {
			inv.brandIcon = append([]byte(nil), v...)
		}
		if v := meta.Get([]byte(metaBrandIconTypeKey)); v != nil {
			inv.brandIconType = string(v)
		}
		return nil
	})
}

// Append adds items and one scan record as an atomic unit: either the
// in-memory mutation happens entirely or not at all, and the durable write
// covers all of it in a single transaction.
func (inv *Inventory) Append(items []*Item, scanTimestamp int64) error {
	if len(items) == 0 {
		return fmt.Errorf("at least one item is required")
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	for _, item := range items {
		for _, existing := range inv.items {
			if existing.ID == item.ID {
				// Unique within the lifetime of the store; a collision is a
				// correctness bug, not a recoverable condition.
				return fmt.Errorf("duplicate item id: %s", item.ID)
			}
		}
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	scan := &Scan{Timestamp: scanTimestamp, ItemIDs: ids, ImageRef: items[0].ImageRef}

	inv.items = append(inv.items, items...)
	inv.scans = append([]*Scan{scan}, inv.scans...)
	var evicted *Scan
	if len(inv.scans) > maxScanHistory {
		evicted = inv.scans[maxScanHistory]
		inv.scans = inv.scans[:maxScanHistory]
	}
	inv.totalScanned += len(items)

	inv.persist(func(tx *bbolt.Tx) error {
		itemsBucket := tx.Bucket([]byte(itemsBucketName))
		for _, item := range items {
			data, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("marshaling item: %w", err)
			}
			if err := itemsBucket.Put([]byte(item.ID), data); err != nil {
				return err
			}
		}

		scansBucket := tx.Bucket([]byte(scansBucketName))
		data, err := json.Marshal(scan)
		if err != nil {
			return fmt.Errorf("marshaling scan: %w", err)
		}
		if err := scansBucket.Put(scanKey(scan.Timestamp), data); err != nil {
			return err
		}
		if evicted != nil {
			if err := scansBucket.Delete(scanKey(evicted.Timestamp)); err != nil {
				return err
			}
		}

		meta := tx.Bucket([]byte(metaBucketName))
		return meta.Put([]byte(metaTotalScannedKey), []byte(strconv.Itoa(inv.totalScanned)))
	})

	return nil
}

// DeleteScanGroup removes the scan record and exactly the items whose IDs
// were recorded in it. Items from other scans are unaffected even when
// they share attribute values.
func (inv *Inventory) DeleteScanGroup(timestamp int64) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	var scan *Scan
	remaining := inv.scans[:0]
	for _, s := range inv.scans {
		if s.Timestamp == timestamp {
			scan = s
			continue
		}
		remaining = append(remaining, s)
	}
	if scan == nil {
		return fmt.Errorf("scan not found: %d", timestamp)
	}
	inv.scans = remaining

	doomed := make(map[string]bool, len(scan.ItemIDs))
	for _, id := range scan.ItemIDs {
		doomed[id] = true
	}
	kept := inv.items[:0]
	for _, item := range inv.items {
		if !doomed[item.ID] {
			kept = append(kept, item)
		}
	}
	inv.items = kept

	inv.persist(func(tx *bbolt.Tx) error {
		itemsBucket := tx.Bucket([]byte(itemsBucketName))
		for id := range doomed {
			if err := itemsBucket.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return tx.Bucket([]byte(scansBucketName)).Delete(scanKey(timestamp))
	})

	return nil
}

// Reset clears all items, scan records, the lifetime counter, and the
// branding state. Calling it twice leaves the store in the same empty
// state as calling it once.
func (inv *Inventory) Reset() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.items = nil
	inv.scans = nil
	inv.totalScanned = 0
	inv.brandIcon = nil
	inv.brandIconType = ""

	inv.persist(func(tx *bbolt.Tx) error {
		for _, name := range []string{itemsBucketName, scansBucketName, metaBucketName} {
			if err := tx.DeleteBucket([]byte(name)); err != nil {
				return err
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})

	return nil
}

// Items returns all committed items, oldest first.
func (inv *Inventory) Items() []*Item {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make([]*Item, len(inv.items))
	copy(out, inv.items)
	return out
}

// Item returns one committed item by ID.
func (inv *Inventory) Item(id string) (*Item, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	for _, item := range inv.items {
		if item.ID == id {
			return item, true
		}
	}
	return nil, false
}

// Scans returns the scan history, newest first.
func (inv *Inventory) Scans() []*Scan {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make([]*Scan, len(inv.scans))
	copy(out, inv.scans)
	return out
}

// TotalScanned returns the cumulative lifetime-scanned counter.
func (inv *Inventory) TotalScanned() int {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.totalScanned
}

// BrandIcon returns the optional branding image and its content type.
func (inv *Inventory) BrandIcon() ([]byte, string) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	if inv.brandIcon == nil {
		return nil, ""
	}
	return append([]byte(nil), inv.brandIcon...), inv.brandIconType
}

// SetBrandIcon stores the branding image.
func (inv *Inventory) SetBrandIcon(data []byte, contentType string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.brandIcon = append([]byte(nil), data...)
	inv.brandIconType = contentType

	inv.persist(func(tx *bbolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucketName))
		if err := meta.Put([]byte(metaBrandIconKey), data); err != nil {
			return err
		}
		return meta.Put([]byte(metaBrandIconTypeKey), []byte(contentType))
	})
}

// LastWarning returns the most recent persistence warning, or empty.
func (inv *Inventory) LastWarning() string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.warning
}

// Close closes the database.
func (inv *Inventory) Close() error {
	return inv.db.Close()
}

// persist applies a durable write. Failures do not fail the caller: memory
// is authoritative for the running session, so a failed write is logged
// and kept as a warning (e.g. disk full) rather than crashing the scan.
// Callers must hold inv.mu.
func (inv *Inventory) persist(fn func(tx *bbolt.Tx) error) {
	if err := inv.db.Update(fn); err != nil {
		slog.Warn("Failed to persist inventory state", "error", err)
		inv.warning = fmt.Sprintf("changes may not survive a restart: %v", err)
		return
	}
	inv.warning = ""
}

func scanKey(timestamp int64) []byte {
	return []byte(strconv.FormatInt(timestamp, 10))
}
