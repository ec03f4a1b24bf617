package broker

import (
	"context"
	"sync"
	"time"

	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

// CorrelationID binds a submitted request to its eventual outcome.
type CorrelationID string

// State is the lifecycle state of a pending operation.
type State int

// Operation states.
const (
	StateSubmitted State = iota
	StateAccepted
	StateRejected
	StateExecuting
	StateCanceled
	StateAborted
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StateAccepted:
		return "accepted"
	case StateRejected:
		return "rejected"
	case StateExecuting:
		return "executing"
	case StateCanceled:
		return "canceled"
	case StateAborted:
		return "aborted"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	switch s {
	case StateRejected, StateCanceled, StateAborted, StateSucceeded, StateFailed:
		return true
	}
	return false
}

var actionTransitions = map[State][]State{
	StateSubmitted: {StateAccepted, StateRejected, StateCanceled, StateFailed},
	StateAccepted:  {StateExecuting, StateSucceeded, StateAborted, StateCanceled, StateFailed},
	StateExecuting: {StateSucceeded, StateAborted, StateCanceled, StateFailed},
}

var serviceTransitions = map[State][]State{
	StateSubmitted: {StateSucceeded, StateFailed, StateCanceled},
}

func allowed(kind ros.Kind, from, to State) bool {
	table := actionTransitions
	if kind == ros.KindServiceClient {
		table = serviceTransitions
	}
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EventKind tags the variant carried by an Event.
type EventKind int

// Event variants.
const (
	EventAccepted EventKind = iota
	EventFeedback
	EventTerminal
)

func (k EventKind) String() string {
	switch k {
	case EventAccepted:
		return "accepted"
	case EventFeedback:
		return "feedback"
	default:
		return "terminal"
	}
}

// Event is one step of an operation. Events of an operation are delivered in
// Seq order: accepted, then feedback, then exactly one terminal.
type Event struct {
	Kind        EventKind
	Correlation CorrelationID
	Seq         uint64
	State       State
	// Payload is the feedback message or the terminal result.
	Payload ros.Message
	// Err explains a Failed terminal state.
	Err error
}

// EventSink receives the events of one operation on a dedicated goroutine.
type EventSink func(Event)

// Snapshot is a point-in-time copy of an operation.
type Snapshot struct {
	Correlation CorrelationID
	Resource    ResourceID
	State       State
	Result      ros.Message
	Err         error
	SubmittedAt time.Time
	FinishedAt  time.Time
}

type operation struct {
	id        CorrelationID
	resource  ResourceID
	kind      ros.Kind
	request   ros.Message
	submitted time.Time
	sink      EventSink

	mu       sync.Mutex
	state    State
	result   ros.Message
	err      error
	finished time.Time
	seq      uint64
	queue    []Event
	goal     ros.Goal
	abort    context.CancelFunc

	wake chan struct{}
	// done is closed after the terminal event reached the sink.
	done chan struct{}
}

func newOperation(id CorrelationID, res *Resource, request ros.Message, sink EventSink) *operation {
	return &operation{
		id:        id,
		resource:  res.ID,
		kind:      res.Endpoint.Kind,
		request:   request,
		submitted: time.Now(),
		sink:      sink,
		state:     StateSubmitted,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// enqueue must be called with mu held.
func (op *operation) enqueue(kind EventKind, payload ros.Message, err error) {
	op.seq++
	op.queue = append(op.queue, Event{
		Kind:        kind,
		Correlation: op.id,
		Seq:         op.seq,
		State:       op.state,
		Payload:     payload,
		Err:         err,
	})
	select {
	case op.wake <- struct{}{}:
	default:
	}
}

func (op *operation) accept() {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.acceptLocked()
}

func (op *operation) acceptLocked() {
	if op.state != StateSubmitted {
		return
	}
	op.state = StateAccepted
	op.enqueue(EventAccepted, nil, nil)
}

// feedback reports false when the feedback arrived after the terminal
// transition and was dropped.
func (op *operation) feedback(m ros.Message) bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.state.Terminal() {
		return false
	}
	op.acceptLocked()
	op.state = StateExecuting
	op.enqueue(EventFeedback, m, nil)
	return true
}

// finish records the terminal transition. It reports false if the operation
// was already terminal, leaving the stored outcome untouched.
func (op *operation) finish(state State, result ros.Message, err error) bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.state.Terminal() {
		return false
	}
	if op.kind == ros.KindActionClient && op.state == StateSubmitted &&
		(state == StateSucceeded || state == StateAborted) {
		op.acceptLocked()
	}
	if !allowed(op.kind, op.state, state) {
		err = errorf("invalid transition %s -> %s", op.state, state)
		state = StateFailed
	}
	op.state = state
	op.result = result
	op.err = err
	op.finished = time.Now()
	if op.abort != nil {
		op.abort()
	}
	op.enqueue(EventTerminal, result, err)
	return true
}

func (op *operation) terminal() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.state.Terminal()
}

func (op *operation) snapshot() Snapshot {
	op.mu.Lock()
	defer op.mu.Unlock()
	return Snapshot{
		Correlation: op.id,
		Resource:    op.resource,
		State:       op.state,
		Result:      op.result,
		Err:         op.err,
		SubmittedAt: op.submitted,
		FinishedAt:  op.finished,
	}
}

// dispatch delivers queued events to the sink in order until the terminal
// event went out, then calls retire.
func (op *operation) dispatch(retire func(*operation)) {
	defer func() {
		close(op.done)
		retire(op)
	}()
	for range op.wake {
		op.mu.Lock()
		batch := op.queue
		op.queue = nil
		op.mu.Unlock()

		for _, ev := range batch {
			if op.sink != nil {
				op.sink(ev)
			}
			if ev.Kind == EventTerminal {
				return
			}
		}
	}
}
