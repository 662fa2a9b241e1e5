package stream

import (
	"sync"
	"time"

	"github.com/1broseidon/vitalstream/pkg/vitals"
)

// Sink receives readings emitted by a session. A failing sink does not stop
// the session; the failure is counted and the next tick proceeds normally.
type Sink interface {
	WriteReading(r vitals.Reading) error
}

// SessionState describes where a session is in its lifecycle
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateStreaming SessionState = "streaming"
	StateClosed    SessionState = "closed"
)

// Session is one live telemetry stream bound to a subscriber sink. Readings
// are produced on a fixed tick until Close is called.
type Session struct {
	id        uint64
	patientID string
	sink      Sink
	startedAt time.Time

	manager *Manager

	mu    sync.RWMutex
	state SessionState

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// ID returns the session's identifier
func (s *Session) ID() uint64 {
	return s.id
}

// PatientID returns the patient this session streams readings for
func (s *Session) PatientID() string {
	return s.patientID
}

// State returns the session's current lifecycle state
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Close stops the session's tick loop and waits for it to finish. After Close
// returns, no further readings are emitted or appended for this session.
// Close is idempotent and safe to call from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
		s.setState(StateClosed)
		s.manager.remove(s.id)
	})
}

// SessionInfo is a point-in-time snapshot of a session for the API
type SessionInfo struct {
	ID        uint64       `json:"id"`
	PatientID string       `json:"patientId"`
	State     SessionState `json:"state"`
	StartedAt time.Time    `json:"startedAt"`
}
