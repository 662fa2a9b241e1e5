package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/1broseidon/vitalstream/internal/logging"
	"github.com/1broseidon/vitalstream/pkg/vitals"
)

// BadgerStore persists readings in BadgerDB. Keys carry a monotonic arrival
// sequence so key order is arrival order; the dual-ceiling FIFO eviction is
// driven by counters rebuilt from the key space on open. A retention TTL
// additionally ages readings out even when the ceilings are never reached.
type BadgerStore struct {
	db            *badger.DB
	logger        *logging.Logger
	retentionDays int

	mu         sync.Mutex
	nextSeq    uint64
	firstSeq   uint64
	records    int
	bytes      int64
	evictions  uint64
	maxRecords int
	maxBytes   int64

	stopGC chan struct{}
}

const (
	readingKeyPrefix = "reading"
	seqKeyWidth      = 20
)

func readingKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s:%0*d", readingKeyPrefix, seqKeyWidth, seq))
}

// NewBadgerStore creates a BadgerDB-backed history store
func NewBadgerStore(path string, maxRecords int, maxBytes int64, retentionDays int, logger *logging.Logger) (*BadgerStore, error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if maxRecords <= 0 {
		maxRecords = 360
	}
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = &badgerLogger{logger: logger}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	bs := &BadgerStore{
		db:            db,
		logger:        logger,
		retentionDays: retentionDays,
		maxRecords:    maxRecords,
		maxBytes:      maxBytes,
		stopGC:        make(chan struct{}),
	}

	if err := bs.loadCounters(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to scan existing readings: %w", err)
	}

	go bs.runGC()

	logger.WithComponent(logging.ComponentStore).
		WithFields(map[string]interface{}{
			"path":          path,
			"maxRecords":    maxRecords,
			"maxBytes":      maxBytes,
			"retentionDays": retentionDays,
			"records":       bs.records,
		}).
		Info("BadgerDB history store initialized")

	return bs, nil
}

// loadCounters rebuilds sequence bounds and occupancy from the key space
func (bs *BadgerStore) loadCounters() error {
	return bs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(readingKeyPrefix + ":")
		first := true
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			var seq uint64
			if _, err := fmt.Sscanf(string(item.Key()[len(prefix):]), "%d", &seq); err != nil {
				continue
			}

			if first {
				bs.firstSeq = seq
				first = false
			}
			bs.nextSeq = seq + 1
			bs.records++
			bs.bytes += item.ValueSize()
		}

		return nil
	})
}

// Append implements HistoryStore. The insert and any evictions happen in one
// transaction so a reader never observes a partially appended reading.
func (bs *BadgerStore) Append(reading vitals.Reading) error {
	value, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	ttl := time.Duration(bs.retentionDays) * 24 * time.Hour

	bs.mu.Lock()
	defer bs.mu.Unlock()

	seq := bs.nextSeq
	records := bs.records + 1
	bytes := bs.bytes + int64(len(value))
	firstSeq := bs.firstSeq
	evicted := 0

	err = bs.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(readingKey(seq), value).WithTTL(ttl)
		if err := txn.SetEntry(entry); err != nil {
			return err
		}

		for records > 0 && (records > bs.maxRecords || bytes > bs.maxBytes) {
			key := readingKey(firstSeq)
			item, err := txn.Get(key)
			if err == badger.ErrKeyNotFound {
				// Aged out by TTL; the counters still cover it.
				firstSeq++
				records--
				continue
			}
			if err != nil {
				return err
			}

			size := item.ValueSize()
			if err := txn.Delete(key); err != nil {
				return err
			}

			firstSeq++
			records--
			bytes -= size
			evicted++
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store reading: %w", err)
	}

	bs.nextSeq = seq + 1
	bs.firstSeq = firstSeq
	bs.records = records
	bs.bytes = bytes
	bs.evictions += uint64(evicted)

	if evicted > 0 {
		bs.logger.WithComponent(logging.ComponentStore).
			WithEvent(logging.EventEviction).
			WithFields(map[string]interface{}{
				"evicted": evicted,
				"records": records,
			}).
			Debug("Evicted oldest readings")
	}

	return nil
}

// Query implements HistoryStore. Keys are scanned in arrival order, which
// matches timestamp order for the generation cadence.
func (bs *BadgerStore) Query(patientID string, from, to time.Time) ([]vitals.Reading, error) {
	results := make([]vitals.Reading, 0)

	err := bs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(readingKeyPrefix + ":")
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var reading vitals.Reading
				if err := json.Unmarshal(val, &reading); err != nil {
					return err
				}

				if reading.PatientID != patientID {
					return nil
				}
				if reading.Timestamp.Before(from) {
					return nil
				}
				if !to.IsZero() && reading.Timestamp.After(to) {
					return nil
				}

				results = append(results, reading)
				return nil
			})
			if err != nil {
				bs.logger.WithComponent(logging.ComponentStore).
					WithError(err).
					Warn("Failed to unmarshal reading")
			}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}

	return results, nil
}

// Stats implements HistoryStore
func (bs *BadgerStore) Stats() Stats {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	return Stats{
		Records:    bs.records,
		Bytes:      bs.bytes,
		Evictions:  bs.evictions,
		MaxRecords: bs.maxRecords,
		MaxBytes:   bs.maxBytes,
	}
}

// Close gracefully closes the database
func (bs *BadgerStore) Close() error {
	bs.logger.WithComponent(logging.ComponentStore).Info("Closing BadgerDB")
	close(bs.stopGC)
	return bs.db.Close()
}

// runGC runs value log garbage collection periodically
func (bs *BadgerStore) runGC() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-bs.stopGC:
			return
		case <-ticker.C:
			err := bs.db.RunValueLogGC(0.5)
			if err != nil && err != badger.ErrNoRewrite {
				bs.logger.WithComponent(logging.ComponentStore).
					WithError(err).
					Debug("Garbage collection completed with notice")
			}
		}
	}
}

// badgerLogger adapts our logger to badger's logger interface
type badgerLogger struct {
	logger *logging.Logger
}

func (bl *badgerLogger) Errorf(format string, args ...interface{}) {
	bl.logger.WithComponent(logging.ComponentStore).Errorf(format, args...)
}

func (bl *badgerLogger) Warningf(format string, args ...interface{}) {
	bl.logger.WithComponent(logging.ComponentStore).Warnf(format, args...)
}

func (bl *badgerLogger) Infof(format string, args ...interface{}) {
	bl.logger.WithComponent(logging.ComponentStore).Debugf(format, args...)
}

func (bl *badgerLogger) Debugf(format string, args ...interface{}) {
	bl.logger.WithComponent(logging.ComponentStore).Debugf(format, args...)
}
