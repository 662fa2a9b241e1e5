package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"

	"github.com/1broseidon/vitalstream/internal/logging"
	"github.com/1broseidon/vitalstream/pkg/vitals"
)

func newStoreTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	prevLevel := zerolog.GlobalLevel()
	prevLogger := zerologlog.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prevLevel)
		zerologlog.Logger = prevLogger
	})

	logger, err := logging.InitLogger(logging.Config{Level: "error", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}
	return logger
}

func testReading(patientID string, heartRate int, ts time.Time) vitals.Reading {
	return vitals.Reading{
		PatientID:        patientID,
		Temperature:      36.5,
		HeartRate:        heartRate,
		BloodPressure:    &vitals.BloodPressure{Systolic: 120, Diastolic: 80},
		OxygenSaturation: 97,
		RespiratoryRate:  15,
		BloodGlucose:     5.0,
		Timestamp:        ts,
	}
}

func TestMemoryStoreAppendAndQuery(t *testing.T) {
	ms := NewMemoryStore(100, 1<<20, newStoreTestLogger(t))
	defer ms.Close()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := ms.Append(testReading("p1", 60+i, base.Add(time.Duration(i)*3*time.Second))); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	if err := ms.Append(testReading("p2", 90, base)); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	results, err := ms.Query("p1", base, time.Time{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	if len(results) != 5 {
		t.Fatalf("expected 5 readings for p1, got %d", len(results))
	}

	for i := 1; i < len(results); i++ {
		if results[i].Timestamp.Before(results[i-1].Timestamp) {
			t.Fatal("expected non-decreasing timestamp order")
		}
	}

	for _, r := range results {
		if r.PatientID != "p1" {
			t.Fatalf("unexpected patient in result set: %s", r.PatientID)
		}
	}
}

func TestMemoryStoreQueryWindow(t *testing.T) {
	ms := NewMemoryStore(100, 1<<20, newStoreTestLogger(t))
	defer ms.Close()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		if err := ms.Append(testReading("p1", 60, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	from := base.Add(3 * time.Minute)
	to := base.Add(6 * time.Minute)

	results, err := ms.Query("p1", from, to)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	if len(results) != 4 {
		t.Fatalf("expected 4 readings in [3m,6m], got %d", len(results))
	}

	for _, r := range results {
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			t.Fatalf("reading outside window: %v", r.Timestamp)
		}
	}
}

func TestMemoryStoreQueryNoMatches(t *testing.T) {
	ms := NewMemoryStore(100, 1<<20, newStoreTestLogger(t))
	defer ms.Close()

	results, err := ms.Query("missing", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty result, got %d readings", len(results))
	}
}

func TestMemoryStoreRecordCeilingFIFO(t *testing.T) {
	ms := NewMemoryStore(3, 1<<20, newStoreTestLogger(t))
	defer ms.Close()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Append A, B, C, D; A must be evicted.
	for i, hr := range []int{60, 61, 62, 63} {
		if err := ms.Append(testReading("p1", hr, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	stats := ms.Stats()
	if stats.Records != 3 {
		t.Fatalf("expected 3 records after eviction, got %d", stats.Records)
	}
	if stats.Evictions != 1 {
		t.Fatalf("expected 1 eviction, got %d", stats.Evictions)
	}

	results, err := ms.Query("p1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(results))
	}
	// Survivors must be the contiguous suffix B, C, D.
	for i, hr := range []int{61, 62, 63} {
		if results[i].HeartRate != hr {
			t.Fatalf("expected heart rate %d at index %d, got %d", hr, i, results[i].HeartRate)
		}
	}
}

func TestMemoryStoreByteCeiling(t *testing.T) {
	logger := newStoreTestLogger(t)
	sample := testReading("p1", 60, time.Now())
	size := int64(sample.EncodedSize())

	// Room for roughly two readings.
	ms := NewMemoryStore(100, 2*size+size/2, logger)
	defer ms.Close()

	for i := 0; i < 10; i++ {
		if err := ms.Append(testReading("p1", 60, time.Now())); err != nil {
			t.Fatalf("append failed: %v", err)
		}

		stats := ms.Stats()
		if stats.Bytes > stats.MaxBytes {
			t.Fatalf("byte footprint %d exceeds ceiling %d after append", stats.Bytes, stats.MaxBytes)
		}
		if stats.Records > stats.MaxRecords {
			t.Fatalf("record count %d exceeds ceiling %d after append", stats.Records, stats.MaxRecords)
		}
	}

	if got := ms.Stats().Records; got != 2 {
		t.Fatalf("expected 2 surviving readings under byte ceiling, got %d", got)
	}
}

func TestMemoryStoreConcurrentAppends(t *testing.T) {
	ms := NewMemoryStore(500, 10<<20, newStoreTestLogger(t))
	defer ms.Close()

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			patient := fmt.Sprintf("p%d", w)
			for i := 0; i < perWriter; i++ {
				if err := ms.Append(testReading(patient, 60, time.Now())); err != nil {
					t.Errorf("append failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	stats := ms.Stats()
	if stats.Records != writers*perWriter {
		t.Fatalf("expected %d records, got %d (lost or duplicated appends)", writers*perWriter, stats.Records)
	}

	for w := 0; w < writers; w++ {
		results, err := ms.Query(fmt.Sprintf("p%d", w), time.Time{}, time.Time{})
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(results) != perWriter {
			t.Fatalf("expected %d readings for p%d, got %d", perWriter, w, len(results))
		}
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	ms := NewMemoryStore(10, 1<<20, newStoreTestLogger(t))
	if err := ms.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if err := ms.Append(testReading("p1", 60, time.Now())); err != ErrClosed {
		t.Fatalf("expected ErrClosed on append, got %v", err)
	}
	if _, err := ms.Query("p1", time.Time{}, time.Time{}); err != ErrClosed {
		t.Fatalf("expected ErrClosed on query, got %v", err)
	}
}
