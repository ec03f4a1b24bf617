package ros

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// Multiplexer shares one middleware node per (owner, master, namespace) between
// any number of consumers.
type Multiplexer struct {
	driver Driver
	logger logging.Logger

	mu      sync.Mutex
	entries map[nodeKey]*nodeEntry
	closed  bool
}

type nodeEntry struct {
	conf NodeConf
	// ready is closed once the initialization attempt finished, successfully or not.
	ready  chan struct{}
	handle *NodeHandle
	err    error
	refs   int
}

func NewMultiplexer(driver Driver, logger logging.Logger) *Multiplexer {
	return &Multiplexer{
		driver:  driver,
		logger:  logger,
		entries: map[nodeKey]*nodeEntry{},
	}
}

// Acquire returns the node shared under conf's owner, creating it on first use.
// Concurrent first calls wait for a single initialization. A failed
// initialization is returned to every caller until Reset is called.
func (m *Multiplexer) Acquire(ctx context.Context, conf NodeConf) (*NodeHandle, error) {
	key := conf.key()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errors.Wrap(ErrClosed, "multiplexer")
	}
	e, ok := m.entries[key]
	if !ok {
		e = &nodeEntry{conf: conf.WithDefaults(), ready: make(chan struct{})}
		m.entries[key] = e
		m.mu.Unlock()
		// the first caller's cancellation must not poison the cached outcome
		m.initialize(context.WithoutCancel(ctx), e)
	} else {
		m.mu.Unlock()
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	if m.entries[key] != e {
		return nil, errors.Wrapf(ErrClosed, "node %s", e.handle.ID)
	}
	e.refs++
	return e.handle, nil
}

func (m *Multiplexer) initialize(ctx context.Context, e *nodeEntry) {
	m.logger.Debugw("opening node", "name", e.conf.Name, "master", e.conf.MasterAddress, "namespace", e.conf.Namespace)
	p, err := m.driver.Open(ctx, e.conf)

	m.mu.Lock()
	defer close(e.ready)
	defer m.mu.Unlock()

	if err != nil {
		e.err = errors.Wrapf(ErrInitializationFailed, "node %s: %v", e.conf.Name, err)
		m.logger.Errorw("node initialization failed", "name", e.conf.Name, "error", err)
		return
	}
	if m.closed {
		if cerr := p.Close(); cerr != nil {
			m.logger.Warnw("closing node opened during shutdown", "name", e.conf.Name, "error", cerr)
		}
		e.err = errors.Wrapf(ErrClosed, "node %s", e.conf.Name)
		return
	}
	e.handle = &NodeHandle{
		ID:          uuid.NewString(),
		Owner:       e.conf.Owner,
		DomainID:    e.conf.DomainID,
		Namespace:   e.conf.Namespace,
		Name:        e.conf.Name,
		CreatedAt:   time.Now(),
		participant: p,
	}
	m.logger.Infow("node ready", "id", e.handle.ID, "name", e.conf.Name)
}

// Reset forgets a failed initialization for conf so the next Acquire retries.
// It reports whether a failure was cleared.
func (m *Multiplexer) Reset(conf NodeConf) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[conf.key()]
	if !ok || !isDone(e) || e.err == nil {
		return false
	}
	delete(m.entries, conf.key())
	return true
}

// Release drops one use of the node. The node stays open.
func (m *Multiplexer) Release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.lookup(id); e != nil && e.refs > 0 {
		e.refs--
	}
}

func (m *Multiplexer) Refs(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.lookup(id); e != nil {
		return e.refs
	}
	return -1
}

// Teardown closes the node if nobody uses it anymore and reports whether it did.
func (m *Multiplexer) Teardown(id string) bool {
	m.mu.Lock()
	e := m.lookup(id)
	if e == nil || e.refs > 0 {
		m.mu.Unlock()
		return false
	}
	delete(m.entries, e.conf.key())
	m.mu.Unlock()

	m.closeEntry(e)
	return true
}

// Shutdown closes every node regardless of use counts. Further Acquire calls fail.
func (m *Multiplexer) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	var open []*nodeEntry
	for key, e := range m.entries {
		if isDone(e) && e.handle != nil {
			open = append(open, e)
		}
		delete(m.entries, key)
	}
	m.mu.Unlock()

	for _, e := range open {
		m.closeEntry(e)
	}
}

func (m *Multiplexer) closeEntry(e *nodeEntry) {
	if err := e.handle.participant.Close(); err != nil {
		m.logger.Warnw("node close failed", "error", &TeardownError{Subject: "node " + e.handle.ID, Err: err})
		return
	}
	m.logger.Infow("node closed", "id", e.handle.ID, "name", e.handle.Name)
}

func (m *Multiplexer) lookup(id string) *nodeEntry {
	for _, e := range m.entries {
		if isDone(e) && e.handle != nil && e.handle.ID == id {
			return e
		}
	}
	return nil
}

func isDone(e *nodeEntry) bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}
