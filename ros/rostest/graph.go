// Package rostest provides an in-memory ROS graph implementing the transport
// contracts of package ros.
package rostest

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/brokenrobotz/viam-ros-bridge/pkg/msgs"
	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

// ServiceHandler answers a service request.
type ServiceHandler func(ctx context.Context, req ros.Message) (ros.Message, error)

// ActionHandler runs one goal. ctx is canceled when the client requests cancellation.
type ActionHandler func(ctx context.Context, goal ros.Message, feedback func(ros.Message)) (ros.GoalState, ros.Message)

// Graph is a loopback graph. Its zero value is not usable; call NewGraph.
type Graph struct {
	// Types validates endpoint type names when set.
	Types *msgs.Registry

	mu         sync.Mutex
	opens      int
	closes     int
	openErr    error
	openDelay  time.Duration
	subs       map[string][]*subscriber
	pubs       map[string]int
	externSubs map[string]int
	published  map[string][]ros.Message
	services   map[string]ServiceHandler
	actions    map[string]chan *GoalController
}

// NewGraph returns an empty graph validating types against msgs.Default.
func NewGraph() *Graph {
	return &Graph{
		Types:      msgs.Default,
		subs:       map[string][]*subscriber{},
		pubs:       map[string]int{},
		externSubs: map[string]int{},
		published:  map[string][]ros.Message{},
		services:   map[string]ServiceHandler{},
		actions:    map[string]chan *GoalController{},
	}
}

// FailOpen makes subsequent Open calls fail with err; nil restores success.
func (g *Graph) FailOpen(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.openErr = err
}

// SlowOpen delays every Open by d.
func (g *Graph) SlowOpen(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.openDelay = d
}

func (g *Graph) Opens() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opens
}

func (g *Graph) Closes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closes
}

func (g *Graph) Open(ctx context.Context, conf ros.NodeConf) (ros.Participant, error) {
	g.mu.Lock()
	g.opens++
	delay, err := g.openDelay, g.openErr
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &participant{graph: g, namespace: conf.Namespace}, nil
}

// AddSubscriber simulates a remote subscriber on topic.
func (g *Graph) AddSubscriber(topic string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.externSubs[ros.ResolveName("/", topic)]++
}

// Published returns the messages written on topic so far.
func (g *Graph) Published(topic string) []ros.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ros.Message(nil), g.published[ros.ResolveName("/", topic)]...)
}

// Inject delivers msg to every loopback subscriber of topic, as a remote
// publisher would.
func (g *Graph) Inject(topic string, msg ros.Message) {
	g.deliver(ros.ResolveName("/", topic), msg)
}

// Subscribers returns the number of live loopback subscribers on topic.
func (g *Graph) Subscribers(topic string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs[ros.ResolveName("/", topic)])
}

// ServeService registers a service provider.
func (g *Graph) ServeService(name string, h ServiceHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.services[ros.ResolveName("/", name)] = h
}

func (g *Graph) StopService(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.services, ros.ResolveName("/", name))
}

// ServeActionManual registers an action server whose goals are handed to the
// caller through the returned channel, to be driven step by step.
func (g *Graph) ServeActionManual(name string) <-chan *GoalController {
	ch := make(chan *GoalController, 16)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.actions[ros.ResolveName("/", name)] = ch
	return ch
}

// ServeAction registers an action server running h for every goal.
func (g *Graph) ServeAction(name string, h ActionHandler) {
	goals := g.ServeActionManual(name)
	go func() {
		for gc := range goals {
			go gc.run(h)
		}
	}()
}

func (g *Graph) StopAction(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := ros.ResolveName("/", name)
	if ch, ok := g.actions[key]; ok {
		close(ch)
		delete(g.actions, key)
	}
}

func (g *Graph) deliver(topic string, msg ros.Message) {
	g.mu.Lock()
	subs := append([]*subscriber(nil), g.subs[topic]...)
	g.mu.Unlock()
	for _, s := range subs {
		s.onMessage(msg)
	}
}

// GoalController is the server side of one goal.
type GoalController struct {
	Goal ros.Message

	events   ros.GoalEvents
	cancel   context.CancelFunc
	ctx      context.Context
	canceled chan struct{}
	once     sync.Once
}

func (c *GoalController) Accept() {
	if c.events.OnActive != nil {
		c.events.OnActive()
	}
}

func (c *GoalController) Feedback(m ros.Message) {
	if c.events.OnFeedback != nil {
		c.events.OnFeedback(m)
	}
}

// Finish reports the terminal state. Calling it twice emits two terminal events.
func (c *GoalController) Finish(state ros.GoalState, result ros.Message) {
	if c.events.OnDone != nil {
		c.events.OnDone(state, result)
	}
}

// CancelRequested is closed once the client asks for cancellation.
func (c *GoalController) CancelRequested() <-chan struct{} {
	return c.canceled
}

func (c *GoalController) Cancel() error {
	c.once.Do(func() {
		close(c.canceled)
		c.cancel()
	})
	return nil
}

func (c *GoalController) run(h ActionHandler) {
	c.Accept()
	state, result := h(c.ctx, c.Goal, c.Feedback)
	c.Finish(state, result)
}

type participant struct {
	graph     *Graph
	namespace string

	mu     sync.Mutex
	closed bool
}

func (p *participant) check(ep ros.Endpoint, want msgs.Kind) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return errors.Wrap(ros.ErrClosed, "participant")
	}
	if p.graph.Types == nil {
		return nil
	}
	t, err := p.graph.Types.Lookup(ep.TypeName)
	if err != nil {
		return err
	}
	if t.Kind != want {
		return errors.Wrapf(ros.ErrWrongKind, "%s is a %s", t.Name, t.Kind)
	}
	return nil
}

func (p *participant) Publisher(ep ros.Endpoint) (ros.Publisher, error) {
	if err := p.check(ep, msgs.KindMessage); err != nil {
		return nil, err
	}
	name := ros.ResolveName(p.namespace, ep.Name)
	p.graph.mu.Lock()
	p.graph.pubs[name]++
	p.graph.mu.Unlock()
	return &publisher{graph: p.graph, topic: name}, nil
}

func (p *participant) Subscriber(ep ros.Endpoint, onMessage func(ros.Message)) (ros.Subscriber, error) {
	if err := p.check(ep, msgs.KindMessage); err != nil {
		return nil, err
	}
	s := &subscriber{graph: p.graph, topic: ros.ResolveName(p.namespace, ep.Name), onMessage: onMessage}
	p.graph.mu.Lock()
	p.graph.subs[s.topic] = append(p.graph.subs[s.topic], s)
	p.graph.mu.Unlock()
	return s, nil
}

func (p *participant) ServiceClient(ep ros.Endpoint) (ros.ServiceClient, error) {
	if err := p.check(ep, msgs.KindService); err != nil {
		return nil, err
	}
	return &serviceClient{graph: p.graph, name: ros.ResolveName(p.namespace, ep.Name)}, nil
}

func (p *participant) ActionClient(ep ros.Endpoint) (ros.ActionClient, error) {
	if err := p.check(ep, msgs.KindAction); err != nil {
		return nil, err
	}
	return &actionClient{graph: p.graph, name: ros.ResolveName(p.namespace, ep.Name)}, nil
}

func (p *participant) HasCounterpart(ep ros.Endpoint) (bool, error) {
	name := ros.ResolveName(p.namespace, ep.Name)
	g := p.graph
	g.mu.Lock()
	defer g.mu.Unlock()
	switch ep.Kind {
	case ros.KindPublisher:
		return len(g.subs[name])+g.externSubs[name] > 0, nil
	case ros.KindSubscriber:
		return g.pubs[name] > 0, nil
	case ros.KindServiceClient:
		_, ok := g.services[name]
		return ok, nil
	case ros.KindActionClient:
		_, ok := g.actions[name]
		return ok, nil
	}
	return false, errors.Wrapf(ros.ErrWrongKind, "%s", ep.Kind)
}

func (p *participant) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.graph.mu.Lock()
	p.graph.closes++
	p.graph.mu.Unlock()
	return nil
}

type publisher struct {
	graph *Graph
	topic string
	once  sync.Once
}

func (p *publisher) Publish(m ros.Message) error {
	p.graph.mu.Lock()
	p.graph.published[p.topic] = append(p.graph.published[p.topic], m)
	p.graph.mu.Unlock()
	p.graph.deliver(p.topic, m)
	return nil
}

func (p *publisher) Close() error {
	p.once.Do(func() {
		p.graph.mu.Lock()
		p.graph.pubs[p.topic]--
		p.graph.mu.Unlock()
	})
	return nil
}

type subscriber struct {
	graph     *Graph
	topic     string
	onMessage func(ros.Message)
}

func (s *subscriber) Close() error {
	g := s.graph
	g.mu.Lock()
	defer g.mu.Unlock()
	subs := g.subs[s.topic]
	for i, other := range subs {
		if other == s {
			g.subs[s.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

type serviceClient struct {
	graph *Graph
	name  string
}

func (c *serviceClient) Call(ctx context.Context, req ros.Message) (ros.Message, error) {
	c.graph.mu.Lock()
	h, ok := c.graph.services[c.name]
	c.graph.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("service %s has no provider", c.name)
	}
	return h(ctx, req)
}

func (c *serviceClient) Close() error { return nil }

type actionClient struct {
	graph *Graph
	name  string
}

func (c *actionClient) SendGoal(goal ros.Message, events ros.GoalEvents) (ros.Goal, error) {
	c.graph.mu.Lock()
	defer c.graph.mu.Unlock()
	ch, ok := c.graph.actions[c.name]
	if !ok {
		return nil, errors.Errorf("action %s has no server", c.name)
	}
	ctx, cancel := context.WithCancel(context.Background())
	gc := &GoalController{Goal: goal, events: events, ctx: ctx, cancel: cancel, canceled: make(chan struct{})}
	select {
	case ch <- gc:
	default:
		cancel()
		return nil, errors.Errorf("action %s goal queue full", c.name)
	}
	return gc, nil
}

func (c *actionClient) Close() error { return nil }
