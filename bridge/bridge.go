// Package bridge composes the node multiplexer, the broker and the lifecycle
// supervisor into the capability a component consumes.
package bridge

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/brokenrobotz/viam-ros-bridge/broker"
	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

// Mode selects how a component reaches the graph.
type Mode string

// Bridge modes.
const (
	// ModeShared uses the process-wide node for the owner and the shared broker.
	ModeShared Mode = "shared"
	// ModeDirect opens a private node with its own broker.
	ModeDirect Mode = "direct"
	// ModeAuto tries shared first and falls back to direct when the shared node
	// cannot be initialized.
	ModeAuto Mode = "auto"
)

// ParseMode maps a configured mode name to a Mode. The empty string is ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeShared:
		return ModeShared, nil
	case ModeDirect:
		return ModeDirect, nil
	}
	return "", errors.Errorf("unknown bridge mode %q", s)
}

// Bridge is everything a component may do against the graph. Resources and
// operations created through a Bridge are released by Close.
type Bridge interface {
	// Node returns the node the bridge creates resources on.
	Node() *ros.NodeHandle
	// Mode reports the variant chosen at acquisition.
	Mode() Mode

	CreateResource(ctx context.Context, ep ros.Endpoint, onMessage func(ros.Message)) (broker.ResourceID, error)
	DestroyResource(ctx context.Context, id broker.ResourceID) error
	IsAvailable(id broker.ResourceID) (bool, error)

	Publish(ctx context.Context, id broker.ResourceID, msg ros.Message) error
	Submit(ctx context.Context, id broker.ResourceID, msg ros.Message, sink broker.EventSink) (broker.CorrelationID, error)
	Cancel(ctx context.Context, corr broker.CorrelationID) error
	Wait(ctx context.Context, corr broker.CorrelationID) (broker.Snapshot, error)
	Lookup(corr broker.CorrelationID) (broker.Snapshot, bool)

	// Close cancels pending operations, destroys resources and releases the
	// node. It is idempotent.
	Close(ctx context.Context)
}

// leased implements Bridge over a broker and a supervisor lease. Both variants
// share it and differ only in where the node, broker and supervisor come from.
type leased struct {
	mode       Mode
	broker     *broker.Broker
	supervisor *broker.Supervisor
	lease      *broker.Lease
}

func (l *leased) Node() *ros.NodeHandle {
	return l.lease.Node()
}

func (l *leased) Mode() Mode {
	return l.mode
}

func (l *leased) CreateResource(ctx context.Context, ep ros.Endpoint, onMessage func(ros.Message)) (broker.ResourceID, error) {
	if l.lease.Closed() {
		return "", errors.Wrap(ros.ErrClosed, "bridge")
	}
	id, err := l.broker.Registry().Create(l.lease.Node(), ep, onMessage)
	if err != nil {
		return "", err
	}
	if !l.lease.Track(id) {
		_ = l.broker.Destroy(ctx, id)
		return "", errors.Wrap(ros.ErrClosed, "bridge")
	}
	return id, nil
}

func (l *leased) DestroyResource(ctx context.Context, id broker.ResourceID) error {
	l.lease.Untrack(id)
	return l.broker.Destroy(ctx, id)
}

func (l *leased) IsAvailable(id broker.ResourceID) (bool, error) {
	return l.broker.Registry().IsAvailable(id)
}

func (l *leased) Publish(ctx context.Context, id broker.ResourceID, msg ros.Message) error {
	return l.broker.Publish(ctx, id, msg)
}

func (l *leased) Submit(ctx context.Context, id broker.ResourceID, msg ros.Message, sink broker.EventSink) (broker.CorrelationID, error) {
	return l.broker.Submit(ctx, id, msg, sink)
}

func (l *leased) Cancel(ctx context.Context, corr broker.CorrelationID) error {
	return l.broker.Cancel(ctx, corr)
}

func (l *leased) Wait(ctx context.Context, corr broker.CorrelationID) (broker.Snapshot, error) {
	return l.broker.Wait(ctx, corr)
}

func (l *leased) Lookup(corr broker.CorrelationID) (broker.Snapshot, bool) {
	return l.broker.Lookup(corr)
}

func (l *leased) Close(ctx context.Context) {
	l.supervisor.Teardown(ctx, l.lease)
}
