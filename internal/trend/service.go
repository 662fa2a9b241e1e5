// Package trend answers metric trend queries over the bounded history store:
// resolve the requested window, project the requested metric from each
// reading, and downsample the series for display.
package trend

import (
	"context"
	"fmt"
	"time"

	"github.com/1broseidon/vitalstream/internal/logging"
	"github.com/1broseidon/vitalstream/internal/store"
	"github.com/1broseidon/vitalstream/pkg/vitals"
)

// Service serves trend queries against a history store
type Service struct {
	store  store.HistoryStore
	logger *logging.Logger
	now    func() time.Time
}

// NewService creates a trend query service
func NewService(historyStore store.HistoryStore, logger *logging.Logger) *Service {
	return &Service{
		store:  historyStore,
		logger: logger,
		now:    time.Now,
	}
}

// Trend returns the (timestamp, value) series for one metric of one patient
// over the requested range, in non-decreasing timestamp order. Readings that
// lack the requested metric are silently skipped.
func (s *Service) Trend(ctx context.Context, patientID, metricName, rangeName string) (points []vitals.TrendPoint, err error) {
	if patientID == "" {
		return nil, &RequestError{Param: "patientId", Reason: "is required"}
	}
	if metricName == "" {
		return nil, &RequestError{Param: "metric", Reason: "is required"}
	}

	metric, parseErr := vitals.ParseMetric(metricName)
	if parseErr != nil {
		return nil, &RequestError{Param: "metric", Reason: fmt.Sprintf("%q is not a supported metric", metricName)}
	}

	// Projection walks store-owned data; a fault here must surface as an
	// internal error with no partial result, not take the caller down.
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithComponent(logging.ComponentTrend).
				WithEvent(logging.EventQueryFailed).
				WithFields(map[string]interface{}{
					"patient_id": patientID,
					"metric":     metricName,
					"panic":      fmt.Sprint(r),
				}).
				Error("Trend query panicked")
			points = nil
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}

	trendRange := ParseRange(rangeName)
	started := s.now()
	from := started.Add(-trendRange.Window())

	readings, queryErr := s.store.Query(patientID, from, time.Time{})
	if queryErr != nil {
		s.logger.WithComponent(logging.ComponentTrend).
			WithEvent(logging.EventQueryFailed).
			WithError(queryErr).
			WithFields(map[string]interface{}{
				"patient_id": patientID,
				"metric":     metricName,
			}).
			Error("History store query failed")
		return nil, &StoreError{Op: "query", Err: queryErr}
	}

	points = make([]vitals.TrendPoint, 0, len(readings))
	for _, reading := range readings {
		value, ok := metric.Project(reading)
		if !ok {
			continue
		}
		points = append(points, vitals.TrendPoint{
			Timestamp: reading.Timestamp,
			Value:     value,
		})
	}

	s.logger.QueryServed(patientID, metricName, string(trendRange), len(points), s.now().Sub(started))

	return points, nil
}
