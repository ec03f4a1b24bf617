package broker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

// ResourceID identifies a live resource in a Registry.
type ResourceID string

// Resource is a live publisher, subscriber, service client or action client.
type Resource struct {
	ID        ResourceID
	NodeID    string
	Endpoint  ros.Endpoint
	CreatedAt time.Time

	participant ros.Participant
	publisher   ros.Publisher
	subscriber  ros.Subscriber
	service     ros.ServiceClient
	action      ros.ActionClient

	mu        sync.Mutex
	ops       map[CorrelationID]*operation
	destroyed bool
}

func (r *Resource) attach(op *operation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return false
	}
	r.ops[op.id] = op
	return true
}

func (r *Resource) detach(op *operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ops, op.id)
}

func (r *Resource) pending() []*operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make([]*operation, 0, len(r.ops))
	for _, op := range r.ops {
		ops = append(ops, op)
	}
	return ops
}

func (r *Resource) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

func (r *Resource) close() error {
	var closer interface{ Close() error }
	switch {
	case r.publisher != nil:
		closer = r.publisher
	case r.subscriber != nil:
		closer = r.subscriber
	case r.service != nil:
		closer = r.service
	case r.action != nil:
		closer = r.action
	default:
		return nil
	}
	return closer.Close()
}

type liveKey struct {
	node string
	name string
	kind ros.Kind
}

// Registry tracks live resources, at most one per (node, name, kind).
type Registry struct {
	logger  logging.Logger
	metrics *Metrics

	mu   sync.Mutex
	byID map[ResourceID]*Resource
	// live maps a slot to its resource; an empty id marks a slot being built.
	live map[liveKey]ResourceID
}

// NewRegistry returns an empty registry. metrics may be nil.
func NewRegistry(logger logging.Logger, metrics *Metrics) *Registry {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Registry{
		logger:  logger,
		metrics: metrics,
		byID:    map[ResourceID]*Resource{},
		live:    map[liveKey]ResourceID{},
	}
}

// Create builds the resource described by ep on node. onMessage receives the
// messages of a subscriber and is ignored for other kinds. The slot is
// reserved before the transport object is built.
func (r *Registry) Create(node *ros.NodeHandle, ep ros.Endpoint, onMessage func(ros.Message)) (ResourceID, error) {
	if ep.Name == "" {
		return "", errors.Wrap(ros.ErrConfigMissing, "resource name")
	}
	if ep.TypeName == "" {
		return "", errors.Wrap(ros.ErrConfigMissing, "interface type")
	}
	key := liveKey{node: node.ID, name: ros.ResolveName(node.Namespace, ep.Name), kind: ep.Kind}

	r.mu.Lock()
	if _, ok := r.live[key]; ok {
		r.mu.Unlock()
		return "", errors.Wrapf(ros.ErrAlreadyExists, "%s %s on node %s", ep.Kind, key.name, node.ID)
	}
	r.live[key] = ""
	r.mu.Unlock()

	res := &Resource{
		ID:          ResourceID(uuid.NewString()),
		NodeID:      node.ID,
		Endpoint:    ep,
		CreatedAt:   time.Now(),
		participant: node.Participant(),
		ops:         map[CorrelationID]*operation{},
	}
	if err := r.build(res, onMessage); err != nil {
		r.mu.Lock()
		delete(r.live, key)
		r.mu.Unlock()
		return "", errors.Wrapf(err, "create %s %s", ep.Kind, ep.Name)
	}

	r.mu.Lock()
	r.byID[res.ID] = res
	r.live[key] = res.ID
	r.mu.Unlock()

	r.metrics.Resources.WithLabelValues(ep.Kind.String()).Inc()
	r.logger.Debugw("resource created", "id", res.ID, "kind", ep.Kind, "name", ep.Name, "type", ep.TypeName)
	return res.ID, nil
}

func (r *Registry) build(res *Resource, onMessage func(ros.Message)) error {
	p := res.participant
	ep := res.Endpoint
	var err error
	switch ep.Kind {
	case ros.KindPublisher:
		res.publisher, err = p.Publisher(ep)
	case ros.KindSubscriber:
		res.subscriber, err = p.Subscriber(ep, func(m ros.Message) {
			res.mu.Lock()
			gone := res.destroyed
			res.mu.Unlock()
			if gone {
				return
			}
			r.metrics.Messages.WithLabelValues("received").Inc()
			if onMessage != nil {
				onMessage(m)
			}
		})
	case ros.KindServiceClient:
		res.service, err = p.ServiceClient(ep)
	case ros.KindActionClient:
		res.action, err = p.ActionClient(ep)
	default:
		err = errors.Wrapf(ros.ErrWrongKind, "%s", ep.Kind)
	}
	return err
}

func (r *Registry) Get(id ResourceID) (*Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.byID[id]
	if !ok {
		return nil, errors.Wrapf(ros.ErrUnknownResource, "%s", id)
	}
	return res, nil
}

// List returns the live resources of a node, or all of them when nodeID is empty.
func (r *Registry) List(nodeID string) []*Resource {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Resource
	for _, res := range r.byID {
		if nodeID == "" || res.NodeID == nodeID {
			out = append(out, res)
		}
	}
	return out
}

// IsAvailable probes the graph for the remote counterpart of id. The answer is
// only valid at the time of the call.
func (r *Registry) IsAvailable(id ResourceID) (bool, error) {
	res, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return res.participant.HasCounterpart(res.Endpoint)
}

// Destroy closes and forgets id. Unknown or already destroyed ids are a no-op.
// A returned error is a *ros.TeardownError; the resource is forgotten either way.
func (r *Registry) Destroy(id ResourceID) error {
	r.mu.Lock()
	res, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.byID, id)
	for key, live := range r.live {
		if live == id {
			delete(r.live, key)
		}
	}
	r.mu.Unlock()

	res.mu.Lock()
	res.destroyed = true
	res.mu.Unlock()

	r.metrics.Resources.WithLabelValues(res.Endpoint.Kind.String()).Dec()
	if err := res.close(); err != nil {
		terr := &ros.TeardownError{Subject: res.Endpoint.Kind.String() + " " + res.Endpoint.Name, Err: err}
		r.logger.Warnw("resource close failed", "id", id, "error", terr)
		return terr
	}
	r.logger.Debugw("resource destroyed", "id", id, "kind", res.Endpoint.Kind, "name", res.Endpoint.Name)
	return nil
}
