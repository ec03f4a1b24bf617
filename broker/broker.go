// Package broker tracks live middleware resources and the service calls and
// action goals issued against them.
package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

// DefaultRetention is how many finished operations stay queryable.
const DefaultRetention = 1024

// Broker issues publishes, service calls and goals against registry resources
// and routes their asynchronous outcomes back to the submitter.
type Broker struct {
	registry *Registry
	logger   logging.Logger
	metrics  *Metrics

	mu      sync.Mutex
	ops     map[CorrelationID]*operation
	retired *lru.Cache[CorrelationID, Snapshot]
}

// New returns a broker over registry. It shares the registry's metrics.
func New(registry *Registry, logger logging.Logger) *Broker {
	retired, err := lru.New[CorrelationID, Snapshot](DefaultRetention)
	if err != nil {
		panic(err)
	}
	return &Broker{
		registry: registry,
		logger:   logger,
		metrics:  registry.metrics,
		ops:      map[CorrelationID]*operation{},
		retired:  retired,
	}
}

func (b *Broker) Registry() *Registry {
	return b.registry
}

func (b *Broker) Publish(_ context.Context, id ResourceID, payload ros.Message) error {
	res, err := b.registry.Get(id)
	if err != nil {
		return err
	}
	if res.Endpoint.Kind != ros.KindPublisher {
		return errors.Wrapf(ros.ErrWrongKind, "publish on %s", res.Endpoint.Kind)
	}
	if err := res.publisher.Publish(payload); err != nil {
		return errors.Wrapf(err, "publish on %s", res.Endpoint.Name)
	}
	b.metrics.Messages.WithLabelValues("published").Inc()
	return nil
}

// Submit sends payload as a service request or action goal. It fails with
// ros.ErrNotAvailable, without creating an operation, when the remote side is
// not discoverable at call time. Every later state change reaches sink.
func (b *Broker) Submit(_ context.Context, id ResourceID, payload ros.Message, sink EventSink) (CorrelationID, error) {
	res, err := b.registry.Get(id)
	if err != nil {
		return "", err
	}
	kind := res.Endpoint.Kind
	if kind != ros.KindServiceClient && kind != ros.KindActionClient {
		return "", errors.Wrapf(ros.ErrWrongKind, "submit on %s", kind)
	}
	ok, err := res.participant.HasCounterpart(res.Endpoint)
	if err != nil {
		return "", errors.Wrapf(err, "discover %s", res.Endpoint.Name)
	}
	if !ok {
		return "", errors.Wrapf(ros.ErrNotAvailable, "%s %s", kind, res.Endpoint.Name)
	}

	op := newOperation(CorrelationID(uuid.NewString()), res, payload, b.guard(sink))
	if kind == ros.KindServiceClient {
		return b.submitCall(res, op)
	}
	return b.submitGoal(res, op)
}

func (b *Broker) submitCall(res *Resource, op *operation) (CorrelationID, error) {
	ctx, cancel := context.WithCancel(context.Background())
	op.abort = cancel
	if err := b.track(res, op); err != nil {
		cancel()
		return "", err
	}
	go func() {
		resp, err := res.service.Call(ctx, op.request)
		switch {
		case ctx.Err() != nil:
			// canceled locally, the operation already finished
		case err != nil:
			b.finish(op, StateFailed, nil, err)
		default:
			b.finish(op, StateSucceeded, resp, nil)
		}
	}()
	return op.id, nil
}

func (b *Broker) submitGoal(res *Resource, op *operation) (CorrelationID, error) {
	goal, err := res.action.SendGoal(op.request, ros.GoalEvents{
		OnActive: op.accept,
		OnFeedback: func(m ros.Message) {
			if !op.feedback(m) {
				b.metrics.DroppedFeedback.Inc()
				b.logger.Debugw("dropping feedback received after result", "correlation", op.id)
			}
		},
		OnDone: func(state ros.GoalState, result ros.Message) {
			b.finish(op, goalState(state), result, goalErr(state))
		},
	})
	if err != nil {
		return "", errors.Wrapf(err, "send goal to %s", res.Endpoint.Name)
	}
	op.mu.Lock()
	op.goal = goal
	op.mu.Unlock()

	if err := b.track(res, op); err != nil {
		if cerr := goal.Cancel(); cerr != nil {
			b.logger.Debugw("cancel of orphaned goal failed", "error", cerr)
		}
		return "", err
	}
	return op.id, nil
}

// track registers op with the broker and its resource and starts its dispatcher.
func (b *Broker) track(res *Resource, op *operation) error {
	if !res.attach(op) {
		return errors.Wrapf(ros.ErrUnknownResource, "%s destroyed", res.ID)
	}
	b.mu.Lock()
	b.ops[op.id] = op
	b.mu.Unlock()
	b.metrics.Operations.Inc()
	go op.dispatch(b.retire)
	return nil
}

func (b *Broker) retire(op *operation) {
	snap := op.snapshot()
	b.mu.Lock()
	delete(b.ops, op.id)
	b.retired.Add(op.id, snap)
	b.mu.Unlock()

	if res, err := b.registry.Get(op.resource); err == nil {
		res.detach(op)
	}
	b.metrics.Operations.Dec()
	b.metrics.Outcomes.WithLabelValues(snap.State.String()).Inc()
}

func (b *Broker) finish(op *operation, state State, result ros.Message, err error) {
	if !op.finish(state, result, err) {
		b.metrics.DuplicateTerminals.Inc()
		b.logger.Warnw("discarding second terminal event", "correlation", op.id, "state", state)
	}
}

// guard keeps a panicking sink from taking the process down.
func (b *Broker) guard(sink EventSink) EventSink {
	if sink == nil {
		return nil
	}
	return func(ev Event) {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Errorw("event sink panicked", "correlation", ev.Correlation, "event", ev.Kind, "panic", r)
			}
		}()
		sink(ev)
	}
}

// Cancel asks for the cancellation of a pending operation. Action goals are
// canceled by the server, which may still complete them first; service calls
// are abandoned locally and finish as canceled at once. Finished operations
// yield ros.ErrAlreadyTerminal.
func (b *Broker) Cancel(_ context.Context, corr CorrelationID) error {
	b.mu.Lock()
	op, ok := b.ops[corr]
	_, wasRetired := b.retired.Peek(corr)
	b.mu.Unlock()

	if !ok {
		if wasRetired {
			return errors.Wrapf(ros.ErrAlreadyTerminal, "%s", corr)
		}
		return errors.Wrapf(ros.ErrUnknownOperation, "%s", corr)
	}
	if op.terminal() {
		return errors.Wrapf(ros.ErrAlreadyTerminal, "%s", corr)
	}
	return b.requestCancel(op)
}

func (b *Broker) requestCancel(op *operation) error {
	if op.kind == ros.KindServiceClient {
		b.finish(op, StateCanceled, nil, nil)
		return nil
	}
	op.mu.Lock()
	goal := op.goal
	op.mu.Unlock()
	if goal == nil {
		return nil
	}
	return errors.Wrap(goal.Cancel(), "cancel goal")
}

// Lookup returns the current or retained final state of an operation.
func (b *Broker) Lookup(corr CorrelationID) (Snapshot, bool) {
	b.mu.Lock()
	op, ok := b.ops[corr]
	if !ok {
		snap, found := b.retired.Get(corr)
		b.mu.Unlock()
		return snap, found
	}
	b.mu.Unlock()
	return op.snapshot(), true
}

// Wait blocks until the terminal event of corr was delivered or ctx ends.
// Callers wanting a timeout race Wait against their deadline and Cancel on expiry.
func (b *Broker) Wait(ctx context.Context, corr CorrelationID) (Snapshot, error) {
	b.mu.Lock()
	op, ok := b.ops[corr]
	if !ok {
		snap, found := b.retired.Get(corr)
		b.mu.Unlock()
		if !found {
			return Snapshot{}, errors.Wrapf(ros.ErrUnknownOperation, "%s", corr)
		}
		return snap, nil
	}
	b.mu.Unlock()

	select {
	case <-op.done:
		return op.snapshot(), nil
	case <-ctx.Done():
		return op.snapshot(), ctx.Err()
	}
}

// Drain cancels every pending operation of a resource, waits up to grace for
// their terminal events and forces the rest to canceled.
func (b *Broker) Drain(ctx context.Context, id ResourceID, grace time.Duration) error {
	res, err := b.registry.Get(id)
	if err != nil {
		return nil
	}
	ops := res.pending()
	if len(ops) == 0 {
		return nil
	}

	var cancelErr error
	for _, op := range ops {
		if op.terminal() {
			continue
		}
		if err := b.requestCancel(op); err != nil {
			cancelErr = err
		}
	}

	if grace > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, grace)
		defer cancel()
		for _, op := range ops {
			select {
			case <-op.done:
			case <-waitCtx.Done():
			}
		}
	}

	for _, op := range ops {
		if op.finish(StateCanceled, nil, nil) {
			b.logger.Debugw("forced operation to canceled", "correlation", op.id)
		}
	}
	return cancelErr
}

// Destroy drains id without grace and removes it from the registry.
func (b *Broker) Destroy(ctx context.Context, id ResourceID) error {
	_ = b.Drain(ctx, id, 0)
	return b.registry.Destroy(id)
}

func goalState(s ros.GoalState) State {
	switch s {
	case ros.GoalSucceeded:
		return StateSucceeded
	case ros.GoalAborted:
		return StateAborted
	case ros.GoalCanceled:
		return StateCanceled
	case ros.GoalRejected:
		return StateRejected
	default:
		return StateFailed
	}
}

func goalErr(s ros.GoalState) error {
	if s == ros.GoalLost {
		return errors.New("goal lost by action server")
	}
	return nil
}

func errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}
