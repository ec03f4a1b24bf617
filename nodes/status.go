package nodes

import (
	"sync"
	"time"

	"go.viam.com/rdk/logging"
)

// State is the coarse status a component reports.
type State string

// Component states.
const (
	StateAwaitingConfig State = "awaiting-config"
	StateAwaitingTopic  State = "awaiting-topic"
	StateCreated        State = "created"
	StateReady          State = "ready"
	StateError          State = "error"
	StateUnavailable    State = "unavailable"
	StateProcessing     State = "processing"
	StateResultReceived State = "result-received"
	StateCanceled       State = "canceled"
	StateAborted        State = "aborted"
	StatePublished      State = "published"
	StateMessage        State = "message-received"
)

// Status holds the last reported state of a component. Updates never block
// and never fail.
type Status struct {
	logger logging.Logger

	mu    sync.Mutex
	state State
	text  string
	at    time.Time
}

// NewStatus starts in StateAwaitingConfig.
func NewStatus(logger logging.Logger) *Status {
	return &Status{logger: logger, state: StateAwaitingConfig, at: time.Now()}
}

// Set records a new state with an optional human readable text.
func (s *Status) Set(state State, text string) {
	s.mu.Lock()
	s.state, s.text, s.at = state, text, time.Now()
	s.mu.Unlock()

	if state == StateError {
		s.logger.Warnw("status", "state", state, "text", text)
		return
	}
	s.logger.Debugw("status", "state", state, "text", text)
}

func (s *Status) Get() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.text
}

// Map renders the status for DoCommand replies.
func (s *Status) Map() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]interface{}{
		"state":      string(s.state),
		"text":       s.text,
		"updated_at": s.at.Format(time.RFC3339Nano),
	}
}
