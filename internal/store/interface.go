// Package store provides the bounded history store for vitals readings.
// Every backend enforces the same capacity model: appends never fail for
// fullness, the oldest readings are evicted first when either the record
// count or byte footprint ceiling is exceeded.
package store

import (
	"errors"
	"time"

	"github.com/1broseidon/vitalstream/pkg/vitals"
)

// HistoryStore is the interface all history backends must implement
type HistoryStore interface {
	// Append inserts a reading at the logical end and evicts from the front
	// until both ceilings hold again. Safe for concurrent use.
	Append(reading vitals.Reading) error

	// Query returns readings for a patient with timestamp >= from (and <= to
	// unless to is the zero time), in non-decreasing timestamp order. An empty
	// result is not an error.
	Query(patientID string, from, to time.Time) ([]vitals.Reading, error)

	// Stats reports current occupancy and cumulative evictions.
	Stats() Stats

	// Lifecycle
	Close() error
}

// Stats describes the current state of a history store
type Stats struct {
	Records    int    `json:"records"`
	Bytes      int64  `json:"bytes"`
	Evictions  uint64 `json:"evictions"`
	MaxRecords int    `json:"max_records"`
	MaxBytes   int64  `json:"max_bytes"`
}

// ErrClosed is returned for operations on a closed store
var ErrClosed = errors.New("history store is closed")
