package store

import (
	"sync"
	"time"

	"github.com/1broseidon/vitalstream/internal/logging"
	"github.com/1broseidon/vitalstream/pkg/vitals"
)

// MemoryStore is the default history backend: a mutex-guarded slice deque
// with dual count/byte ceilings and strict FIFO eviction across patients.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    []memoryEntry
	bytes      int64
	evictions  uint64
	maxRecords int
	maxBytes   int64
	closed     bool
	logger     *logging.Logger
}

type memoryEntry struct {
	reading vitals.Reading
	size    int64
}

// NewMemoryStore creates an in-memory history store with the given ceilings
func NewMemoryStore(maxRecords int, maxBytes int64, logger *logging.Logger) *MemoryStore {
	if maxRecords <= 0 {
		maxRecords = 360
	}
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}

	logger.WithComponent(logging.ComponentStore).
		WithFields(map[string]interface{}{
			"maxRecords": maxRecords,
			"maxBytes":   maxBytes,
		}).
		Info("In-memory history store initialized")

	return &MemoryStore{
		entries:    make([]memoryEntry, 0, maxRecords),
		maxRecords: maxRecords,
		maxBytes:   maxBytes,
		logger:     logger,
	}
}

// Append implements HistoryStore. The size of the new reading is computed
// before the lock is taken so the critical section stays short.
func (ms *MemoryStore) Append(reading vitals.Reading) error {
	size := int64(reading.EncodedSize())

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return ErrClosed
	}

	ms.entries = append(ms.entries, memoryEntry{reading: reading, size: size})
	ms.bytes += size

	evicted := 0
	for len(ms.entries) > 0 && (len(ms.entries) > ms.maxRecords || ms.bytes > ms.maxBytes) {
		ms.bytes -= ms.entries[0].size
		ms.entries[0] = memoryEntry{}
		ms.entries = ms.entries[1:]
		ms.evictions++
		evicted++
	}

	// Reclaim the backing array once the live window has drifted far enough.
	if cap(ms.entries) > 2*ms.maxRecords && len(ms.entries) <= ms.maxRecords {
		compact := make([]memoryEntry, len(ms.entries), ms.maxRecords)
		copy(compact, ms.entries)
		ms.entries = compact
	}

	if evicted > 0 {
		ms.logger.WithComponent(logging.ComponentStore).
			WithEvent(logging.EventEviction).
			WithFields(map[string]interface{}{
				"evicted": evicted,
				"records": len(ms.entries),
				"bytes":   ms.bytes,
			}).
			Debug("Evicted oldest readings")
	}

	return nil
}

// Query implements HistoryStore
func (ms *MemoryStore) Query(patientID string, from, to time.Time) ([]vitals.Reading, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if ms.closed {
		return nil, ErrClosed
	}

	results := make([]vitals.Reading, 0)
	for _, entry := range ms.entries {
		if entry.reading.PatientID != patientID {
			continue
		}
		if entry.reading.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && entry.reading.Timestamp.After(to) {
			continue
		}
		results = append(results, entry.reading)
	}

	return results, nil
}

// Stats implements HistoryStore
func (ms *MemoryStore) Stats() Stats {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	return Stats{
		Records:    len(ms.entries),
		Bytes:      ms.bytes,
		Evictions:  ms.evictions,
		MaxRecords: ms.maxRecords,
		MaxBytes:   ms.maxBytes,
	}
}

// Close implements HistoryStore
func (ms *MemoryStore) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.closed = true
	ms.entries = nil
	ms.bytes = 0
	return nil
}
