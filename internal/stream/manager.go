// Package stream runs the live telemetry sessions: one goroutine per
// subscriber producing a synthetic reading on every tick, delivering it to
// the subscriber's sink and appending it to the shared history store.
package stream

import (
	"sort"
	"sync"
	"time"

	"github.com/1broseidon/vitalstream/internal/logging"
	"github.com/1broseidon/vitalstream/internal/metrics"
	"github.com/1broseidon/vitalstream/internal/simulator"
	"github.com/1broseidon/vitalstream/internal/store"
)

// Manager owns all live sessions and the resources they share
type Manager struct {
	generator *simulator.Generator
	store     store.HistoryStore
	logger    *logging.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	sessions map[uint64]*Session
	nextID   uint64
}

// NewManager creates a session manager. interval is the tick period between
// consecutive readings for every session.
func NewManager(generator *simulator.Generator, st store.HistoryStore, logger *logging.Logger, m *metrics.Metrics, interval time.Duration) *Manager {
	return &Manager{
		generator: generator,
		store:     st,
		logger:    logger,
		metrics:   m,
		interval:  interval,
		now:       time.Now,
		sessions:  make(map[uint64]*Session),
	}
}

// Open starts a new session streaming readings for patientID into sink.
// An empty patientID is normalized to "unknown". The returned session is
// already streaming; the caller stops it with Session.Close.
func (m *Manager) Open(sink Sink, patientID string) *Session {
	if patientID == "" {
		patientID = "unknown"
	}

	m.mu.Lock()
	m.nextID++
	sess := &Session{
		id:        m.nextID,
		patientID: patientID,
		sink:      sink,
		startedAt: m.now(),
		manager:   m,
		state:     StateIdle,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	m.sessions[sess.id] = sess
	m.mu.Unlock()

	m.metrics.SessionOpened()
	m.logger.SessionEvent(logging.EventSessionStarted, sess.id, sess.patientID, "Session started")

	go m.run(sess)

	return sess
}

// run is the session tick loop. It exits only when the session is closed.
func (m *Manager) run(sess *Session) {
	// Keep a crashing sink from taking the server down with it, and make
	// sure close accounting runs on every exit path.
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithComponent(logging.ComponentSession).
				WithSession(sess.id, sess.patientID).
				WithFields(map[string]interface{}{"panic": r}).
				Error("Session panic recovered")
		}
		sess.setState(StateClosed)
		m.remove(sess.id)
		m.metrics.SessionClosed()
		m.logger.SessionEvent(logging.EventSessionClosed, sess.id, sess.patientID, "Session closed")
		close(sess.doneCh)
	}()

	sess.setState(StateStreaming)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.stopCh:
			return
		case <-ticker.C:
			m.tick(sess)
		}
	}
}

// tick produces one reading and fans it out. Emit and append are independent:
// a sink failure never blocks persistence and a store failure never blocks
// delivery.
func (m *Manager) tick(sess *Session) {
	reading := m.generator.Generate(sess.patientID, m.now())
	m.metrics.RecordReading(sess.patientID)

	if err := sess.sink.WriteReading(reading); err != nil {
		m.metrics.EmitFailures.Inc()
		m.logger.WithComponent(logging.ComponentSession).
			WithSession(sess.id, sess.patientID).
			WithEvent(logging.EventEmitFailed).
			WithError(err).
			Warn("Failed to deliver reading to subscriber")
	}

	if err := m.store.Append(reading); err != nil {
		m.metrics.AppendFailures.Inc()
		m.logger.WithComponent(logging.ComponentSession).
			WithSession(sess.id, sess.patientID).
			WithEvent(logging.EventAppendFailed).
			WithError(err).
			Warn("Failed to append reading to history store")
	}

	stats := m.store.Stats()
	m.metrics.UpdateStoreStats(stats.Records, stats.Bytes, stats.Evictions)
}

func (m *Manager) remove(id uint64) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Snapshot returns a stable view of all live sessions ordered by id
func (m *Manager) Snapshot() []SessionInfo {
	m.mu.Lock()
	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, sess := range m.sessions {
		infos = append(infos, SessionInfo{
			ID:        sess.id,
			PatientID: sess.patientID,
			State:     sess.State(),
			StartedAt: sess.startedAt,
		})
	}
	m.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// CloseAll synchronously closes every live session
func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		open = append(open, sess)
	}
	m.mu.Unlock()

	for _, sess := range open {
		sess.Close()
	}
}
