package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"github.com/brokenrobotz/viam-ros-bridge/broker"
	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

// Runtime owns the process-wide multiplexer, broker and supervisor. Components
// receive it explicitly.
type Runtime struct {
	driver     ros.Driver
	logger     logging.Logger
	grace      time.Duration
	mux        *ros.Multiplexer
	metrics    *broker.Metrics
	broker     *broker.Broker
	supervisor *broker.Supervisor

	mu      sync.Mutex
	direct  map[*leased]struct{}
	stopped bool
}

// NewRuntime wires a runtime over driver. grace bounds how long teardowns wait
// for canceled operations; non-positive means broker.DefaultGrace.
func NewRuntime(driver ros.Driver, grace time.Duration, logger logging.Logger) *Runtime {
	metrics := broker.NewMetrics()
	b := broker.New(broker.NewRegistry(logger.Sublogger("registry"), metrics), logger.Sublogger("broker"))
	return &Runtime{
		driver:     driver,
		logger:     logger,
		grace:      grace,
		mux:        ros.NewMultiplexer(driver, logger.Sublogger("nodes")),
		metrics:    metrics,
		broker:     b,
		supervisor: broker.NewSupervisor(b, grace, logger.Sublogger("supervisor")),
		direct:     map[*leased]struct{}{},
	}
}

func (r *Runtime) Metrics() *broker.Metrics {
	return r.metrics
}

func (r *Runtime) Multiplexer() *ros.Multiplexer {
	return r.mux
}

func (r *Runtime) Broker() *broker.Broker {
	return r.broker
}

// Acquire returns a Bridge for owner. The variant is chosen once here.
func (r *Runtime) Acquire(ctx context.Context, conf ros.NodeConf, mode Mode, owner string) (Bridge, error) {
	r.mu.Lock()
	stopped := r.stopped
	r.mu.Unlock()
	if stopped {
		return nil, errors.Wrap(ros.ErrClosed, "runtime")
	}

	switch mode {
	case ModeShared:
		return r.shared(ctx, conf, owner)
	case ModeDirect:
		return r.openDirect(ctx, conf, owner)
	case ModeAuto, "":
		b, err := r.shared(ctx, conf, owner)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, ros.ErrInitializationFailed) {
			return nil, err
		}
		r.logger.Warnw("shared node unavailable, falling back to a private node", "owner", owner, "error", err)
		// allow a later shared attempt to retry initialization
		r.mux.Reset(conf)
		return r.openDirect(ctx, conf, owner)
	}
	return nil, errors.Errorf("unknown bridge mode %q", mode)
}

func (r *Runtime) shared(ctx context.Context, conf ros.NodeConf, owner string) (Bridge, error) {
	node, err := r.mux.Acquire(ctx, conf)
	if err != nil {
		return nil, err
	}
	lease := r.supervisor.Open(node, owner, func() error {
		r.mux.Release(node.ID)
		return nil
	})
	return &leased{mode: ModeShared, broker: r.broker, supervisor: r.supervisor, lease: lease}, nil
}

func (r *Runtime) openDirect(ctx context.Context, conf ros.NodeConf, owner string) (Bridge, error) {
	conf = conf.WithDefaults()
	p, err := r.driver.Open(ctx, conf)
	if err != nil {
		return nil, errors.Wrapf(ros.ErrInitializationFailed, "private node %s: %v", conf.Name, err)
	}
	node := ros.NewNodeHandle(uuid.NewString(), conf, p)
	logger := r.logger.Sublogger("direct")

	b := broker.New(broker.NewRegistry(logger, r.metrics), logger)
	sup := broker.NewSupervisor(b, r.grace, logger)
	l := &leased{mode: ModeDirect, broker: b, supervisor: sup}
	l.lease = sup.Open(node, owner, func() error {
		r.mu.Lock()
		delete(r.direct, l)
		r.mu.Unlock()
		return p.Close()
	})

	r.mu.Lock()
	r.direct[l] = struct{}{}
	r.mu.Unlock()
	r.logger.Debugw("opened private node", "owner", owner, "node", node.ID, "name", node.Name)
	return l, nil
}

// Shutdown tears down every bridge and closes every shared node. Later
// Acquire calls fail with ros.ErrClosed.
func (r *Runtime) Shutdown(ctx context.Context) {
	r.mu.Lock()
	r.stopped = true
	direct := make([]*leased, 0, len(r.direct))
	for l := range r.direct {
		direct = append(direct, l)
	}
	r.mu.Unlock()

	for _, l := range direct {
		l.Close(ctx)
	}
	r.supervisor.Shutdown(ctx)
	r.mux.Shutdown()
}
