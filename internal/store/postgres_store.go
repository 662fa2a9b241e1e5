package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/1broseidon/vitalstream/internal/logging"
	"github.com/1broseidon/vitalstream/pkg/vitals"
)

// PostgresStore implements HistoryStore using PostgreSQL. Arrival order is the
// serial primary key; eviction deletes the lowest ids inside the append
// transaction so readers never see the store above its ceilings.
type PostgresStore struct {
	pool       *pgxpool.Pool
	logger     *logging.Logger
	ctx        context.Context
	maxRecords int
	maxBytes   int64
	evictions  atomic.Uint64
}

// NewPostgresStore creates a PostgreSQL-backed history store
func NewPostgresStore(connString string, maxRecords int, maxBytes int64, logger *logging.Logger) (*PostgresStore, error) {
	ctx := context.Background()

	if maxRecords <= 0 {
		maxRecords = 360
	}
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ps := &PostgresStore{
		pool:       pool,
		logger:     logger,
		ctx:        ctx,
		maxRecords: maxRecords,
		maxBytes:   maxBytes,
	}

	if err := ps.initSchema(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.WithComponent(logging.ComponentStore).
		WithFields(map[string]interface{}{
			"maxRecords": maxRecords,
			"maxBytes":   maxBytes,
		}).
		Info("PostgreSQL history store initialized")

	return ps, nil
}

func (ps *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vitals_readings (
		id BIGSERIAL PRIMARY KEY,
		patient_id VARCHAR(255) NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL,
		byte_size INTEGER NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_vitals_readings_patient ON vitals_readings(patient_id, captured_at);
	`

	_, err := ps.pool.Exec(ps.ctx, schema)
	return err
}

// Append implements HistoryStore
func (ps *PostgresStore) Append(reading vitals.Reading) error {
	payload, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	tx, err := ps.pool.Begin(ps.ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ps.ctx)

	_, err = tx.Exec(ps.ctx,
		`INSERT INTO vitals_readings (patient_id, captured_at, byte_size, payload) VALUES ($1, $2, $3, $4)`,
		reading.PatientID, reading.Timestamp, len(payload), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}

	var records int
	var bytes int64
	err = tx.QueryRow(ps.ctx,
		`SELECT count(*), coalesce(sum(byte_size), 0) FROM vitals_readings`,
	).Scan(&records, &bytes)
	if err != nil {
		return fmt.Errorf("failed to read store occupancy: %w", err)
	}

	evicted := 0
	for records > 0 && (records > ps.maxRecords || bytes > ps.maxBytes) {
		var size int64
		err = tx.QueryRow(ps.ctx,
			`DELETE FROM vitals_readings WHERE id = (SELECT min(id) FROM vitals_readings) RETURNING byte_size`,
		).Scan(&size)
		if err != nil {
			return fmt.Errorf("failed to evict oldest reading: %w", err)
		}

		records--
		bytes -= size
		evicted++
	}

	if err := tx.Commit(ps.ctx); err != nil {
		return fmt.Errorf("failed to commit append: %w", err)
	}

	if evicted > 0 {
		ps.evictions.Add(uint64(evicted))
		ps.logger.WithComponent(logging.ComponentStore).
			WithEvent(logging.EventEviction).
			WithFields(map[string]interface{}{
				"evicted": evicted,
				"records": records,
			}).
			Debug("Evicted oldest readings")
	}

	return nil
}

// Query implements HistoryStore
func (ps *PostgresStore) Query(patientID string, from, to time.Time) ([]vitals.Reading, error) {
	query := `SELECT payload FROM vitals_readings WHERE patient_id = $1 AND captured_at >= $2`
	args := []interface{}{patientID, from}
	if !to.IsZero() {
		query += ` AND captured_at <= $3`
		args = append(args, to)
	}
	query += ` ORDER BY id ASC`

	rows, err := ps.pool.Query(ps.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	results := make([]vitals.Reading, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}

		var reading vitals.Reading
		if err := json.Unmarshal(payload, &reading); err != nil {
			ps.logger.WithComponent(logging.ComponentStore).
				WithError(err).
				Warn("Failed to unmarshal reading")
			continue
		}
		results = append(results, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}

	return results, nil
}

// Stats implements HistoryStore
func (ps *PostgresStore) Stats() Stats {
	stats := Stats{
		MaxRecords: ps.maxRecords,
		MaxBytes:   ps.maxBytes,
		Evictions:  ps.evictions.Load(),
	}

	err := ps.pool.QueryRow(ps.ctx,
		`SELECT count(*), coalesce(sum(byte_size), 0) FROM vitals_readings`,
	).Scan(&stats.Records, &stats.Bytes)
	if err != nil && err != pgx.ErrNoRows {
		ps.logger.WithComponent(logging.ComponentStore).
			WithError(err).
			Warn("Failed to read store occupancy")
	}

	return stats
}

// Close closes the connection pool
func (ps *PostgresStore) Close() error {
	ps.logger.WithComponent(logging.ComponentStore).Info("Closing PostgreSQL pool")
	ps.pool.Close()
	return nil
}
