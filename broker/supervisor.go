package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	"golang.org/x/sync/errgroup"

	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

// DefaultGrace is how long a teardown waits for canceled operations to report
// their own terminal state.
const DefaultGrace = 2 * time.Second

// Lease records what one consumer holds: a node and the resources it created.
type Lease struct {
	ID    string
	Owner string

	node    *ros.NodeHandle
	release func() error

	mu        sync.Mutex
	resources map[ResourceID]struct{}
	closed    bool
}

func (l *Lease) Node() *ros.NodeHandle {
	return l.node
}

// Track adds id to the lease. It reports false once the lease was torn down.
func (l *Lease) Track(id ResourceID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.resources[id] = struct{}{}
	return true
}

// Untrack forgets id, typically after the consumer destroyed it itself.
func (l *Lease) Untrack(id ResourceID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.resources, id)
}

func (l *Lease) Resources() []ResourceID {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]ResourceID, 0, len(l.resources))
	for id := range l.resources {
		ids = append(ids, id)
	}
	return ids
}

func (l *Lease) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Supervisor releases everything a consumer holds when it goes away.
type Supervisor struct {
	broker *Broker
	grace  time.Duration
	logger logging.Logger

	mu     sync.Mutex
	leases map[string]*Lease
}

// NewSupervisor returns a supervisor over b. A non-positive grace uses DefaultGrace.
func NewSupervisor(b *Broker, grace time.Duration, logger logging.Logger) *Supervisor {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Supervisor{
		broker: b,
		grace:  grace,
		logger: logger,
		leases: map[string]*Lease{},
	}
}

func (s *Supervisor) Broker() *Broker {
	return s.broker
}

// Open starts a lease for owner on node. release runs once on teardown and
// gives the node back to whoever lent it.
func (s *Supervisor) Open(node *ros.NodeHandle, owner string, release func() error) *Lease {
	l := &Lease{
		ID:        uuid.NewString(),
		Owner:     owner,
		node:      node,
		release:   release,
		resources: map[ResourceID]struct{}{},
	}
	s.mu.Lock()
	s.leases[l.ID] = l
	s.mu.Unlock()
	return l
}

func (s *Supervisor) Leases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leases)
}

// Teardown cancels the pending operations of every resource in the lease,
// waits at most the grace period, forces the remainder to canceled, destroys
// the resources and releases the node. Calling it again is a no-op. Failures
// are logged, never returned.
func (s *Supervisor) Teardown(ctx context.Context, l *Lease) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	ids := make([]ResourceID, 0, len(l.resources))
	for id := range l.resources {
		ids = append(ids, id)
	}
	l.resources = map[ResourceID]struct{}{}
	l.mu.Unlock()

	s.mu.Lock()
	delete(s.leases, l.ID)
	s.mu.Unlock()

	drainErrs := make([]error, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := s.broker.Drain(ctx, id, s.grace); err != nil {
				drainErrs[i] = &ros.TeardownError{Subject: "operations of " + string(id), Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	errs := multierr.Combine(drainErrs...)
	for _, id := range ids {
		errs = multierr.Append(errs, s.broker.Registry().Destroy(id))
	}
	if l.release != nil {
		if err := l.release(); err != nil {
			errs = multierr.Append(errs, &ros.TeardownError{Subject: "node " + l.node.ID, Err: err})
		}
	}

	if errs != nil {
		s.logger.Warnw("teardown finished with errors", "lease", l.ID, "owner", l.Owner, "errors", multierr.Errors(errs))
		return
	}
	s.logger.Debugw("lease torn down", "lease", l.ID, "owner", l.Owner, "resources", len(ids))
}

// Shutdown tears down every open lease in parallel.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	leases := make([]*Lease, 0, len(s.leases))
	for _, l := range s.leases {
		leases = append(leases, l)
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, l := range leases {
		l := l
		g.Go(func() error {
			s.Teardown(ctx, l)
			return nil
		})
	}
	_ = g.Wait()
}
