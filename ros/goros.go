package ros

import (
	"context"
	"reflect"
	"sync"

	"github.com/bluenviron/goroslib/v2"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"github.com/brokenrobotz/viam-ros-bridge/pkg/msgs"
	"github.com/brokenrobotz/viam-ros-bridge/qos"
)

// GorosDriver opens ROS nodes with goroslib.
type GorosDriver struct {
	Types  *msgs.Registry
	Logger logging.Logger
}

func NewGorosDriver(types *msgs.Registry, logger logging.Logger) *GorosDriver {
	if types == nil {
		types = msgs.Default
	}
	return &GorosDriver{Types: types, Logger: logger}
}

func (d *GorosDriver) Open(ctx context.Context, conf NodeConf) (Participant, error) {
	if conf.MasterAddress == "" {
		return nil, errors.Wrap(ErrConfigMissing, "master address")
	}
	type result struct {
		node *goroslib.Node
		err  error
	}
	done := make(chan result, 1)
	go func() {
		n, err := goroslib.NewNode(goroslib.NodeConf{
			Namespace:     conf.Namespace,
			Name:          conf.Name,
			MasterAddress: conf.MasterAddress,
			Host:          conf.Host,
			ReadTimeout:   conf.ReadTimeout,
			WriteTimeout:  conf.WriteTimeout,
			OnLog:         d.onLog,
		})
		done <- result{node: n, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return &gorosNode{node: res.node, namespace: conf.Namespace, types: d.Types}, nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.node != nil {
				res.node.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (d *GorosDriver) onLog(level goroslib.LogLevel, msg string) {
	if d.Logger == nil {
		return
	}
	switch level {
	case goroslib.LogLevelDebug:
		d.Logger.Debug(msg)
	case goroslib.LogLevelInfo:
		d.Logger.Info(msg)
	case goroslib.LogLevelWarn:
		d.Logger.Warn(msg)
	default:
		d.Logger.Error(msg)
	}
}

type gorosNode struct {
	node      *goroslib.Node
	namespace string
	types     *msgs.Registry
}

func (n *gorosNode) lookup(ep Endpoint, want msgs.Kind) (*msgs.Type, error) {
	t, err := n.types.Lookup(ep.TypeName)
	if err != nil {
		return nil, err
	}
	if t.Kind != want {
		return nil, errors.Wrapf(ErrWrongKind, "%s is a %s, %s needs a %s", t.Name, t.Kind, ep.Kind, want)
	}
	return t, nil
}

func (n *gorosNode) Publisher(ep Endpoint) (Publisher, error) {
	t, err := n.lookup(ep, msgs.KindMessage)
	if err != nil {
		return nil, err
	}
	pub, err := goroslib.NewPublisher(goroslib.PublisherConf{
		Node:  n.node,
		Topic: ep.Name,
		Msg:   t.New(),
		Latch: ep.QoS.Durability == qos.DurabilityTransientLocal,
	})
	if err != nil {
		return nil, err
	}
	return &gorosPublisher{pub: pub, typ: t}, nil
}

func (n *gorosNode) Subscriber(ep Endpoint, onMessage func(Message)) (Subscriber, error) {
	t, err := n.lookup(ep, msgs.KindMessage)
	if err != nil {
		return nil, err
	}
	conf := goroslib.SubscriberConf{
		Node:     n.node,
		Topic:    ep.Name,
		Callback: typedCallback(reflect.TypeOf(t.New()), onMessage),
	}
	if ep.QoS.Reliability == qos.ReliabilityBestEffort {
		conf.Protocol = goroslib.UDP
	}
	if ep.QoS.History == qos.HistoryKeepLast && ep.QoS.Depth > 0 {
		conf.QueueSize = uint(ep.QoS.Depth)
	}
	sub, err := goroslib.NewSubscriber(conf)
	if err != nil {
		return nil, err
	}
	return closerFunc(func() error { sub.Close(); return nil }), nil
}

func (n *gorosNode) ServiceClient(ep Endpoint) (ServiceClient, error) {
	t, err := n.lookup(ep, msgs.KindService)
	if err != nil {
		return nil, err
	}
	sc, err := goroslib.NewServiceClient(goroslib.ServiceClientConf{
		Node: n.node,
		Name: ep.Name,
		Srv:  t.New(),
	})
	if err != nil {
		return nil, err
	}
	return &gorosServiceClient{sc: sc, typ: t}, nil
}

func (n *gorosNode) ActionClient(ep Endpoint) (ActionClient, error) {
	t, err := n.lookup(ep, msgs.KindAction)
	if err != nil {
		return nil, err
	}
	sac, err := goroslib.NewSimpleActionClient(goroslib.SimpleActionClientConf{
		Node:   n.node,
		Name:   ep.Name,
		Action: t.New(),
	})
	if err != nil {
		return nil, err
	}
	return &gorosActionClient{sac: sac, typ: t}, nil
}

func (n *gorosNode) HasCounterpart(ep Endpoint) (bool, error) {
	name := ResolveName(n.namespace, ep.Name)
	switch ep.Kind {
	case KindServiceClient:
		services, err := n.node.MasterGetServices()
		if err != nil {
			return false, err
		}
		info, ok := services[name]
		return ok && len(info.Providers) > 0, nil
	case KindActionClient:
		// a live action server publishes its goal status array
		name += "/status"
	}

	topics, err := n.node.MasterGetTopics()
	if err != nil {
		return false, err
	}
	info, ok := topics[name]
	if !ok {
		return false, nil
	}
	if ep.Kind == KindPublisher {
		return len(info.Subscribers) > 0, nil
	}
	return len(info.Publishers) > 0, nil
}

func (n *gorosNode) Close() error {
	n.node.Close()
	return nil
}

type gorosPublisher struct {
	pub *goroslib.Publisher
	typ *msgs.Type
}

func (p *gorosPublisher) Publish(m Message) error {
	out := p.typ.New()
	if err := msgs.Decode(m, out); err != nil {
		return err
	}
	p.pub.Write(out)
	return nil
}

func (p *gorosPublisher) Close() error {
	p.pub.Close()
	return nil
}

type gorosServiceClient struct {
	mu  sync.Mutex
	sc  *goroslib.ServiceClient
	typ *msgs.Type
}

// Call runs the request on its own goroutine so ctx can abandon it; goroslib
// service clients carry one call at a time.
func (c *gorosServiceClient) Call(ctx context.Context, req Message) (Message, error) {
	in := c.typ.NewPart(0)
	if err := msgs.Decode(req, in); err != nil {
		return nil, err
	}
	out := c.typ.NewPart(1)

	done := make(chan error, 1)
	go func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		done <- c.sc.Call(in, out)
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return msgs.Encode(out)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *gorosServiceClient) Close() error {
	c.sc.Close()
	return nil
}

type gorosActionClient struct {
	sac  *goroslib.SimpleActionClient
	typ  *msgs.Type
	slot goalSlot
}

var simpleStateType = reflect.TypeOf(goroslib.SimpleActionClientGoalState(0))

// SendGoal supersedes any goal still running on this client; see goalSlot.
func (c *gorosActionClient) SendGoal(goal Message, events GoalEvents) (Goal, error) {
	in := c.typ.NewPart(0)
	if err := msgs.Decode(goal, in); err != nil {
		return nil, err
	}
	return c.slot.send(events, func(ev GoalEvents) error {
		return c.sac.SendGoal(c.goalConf(in, ev))
	}, c.sac.CancelGoal)
}

func (c *gorosActionClient) goalConf(in interface{}, events GoalEvents) goroslib.SimpleActionClientGoalConf {
	resultPtr := reflect.PtrTo(c.typ.Part(1))
	onDone := reflect.MakeFunc(
		reflect.FuncOf([]reflect.Type{simpleStateType, resultPtr}, nil, false),
		func(args []reflect.Value) []reflect.Value {
			state := args[0].Interface().(goroslib.SimpleActionClientGoalState)
			res, err := msgs.Encode(args[1].Interface())
			if err != nil {
				res = nil
			}
			events.OnDone(goalState(state), res)
			return nil
		})

	return goroslib.SimpleActionClientGoalConf{
		Goal:       in,
		OnDone:     onDone.Interface(),
		OnActive:   events.OnActive,
		OnFeedback: typedCallback(reflect.PtrTo(c.typ.Part(2)), events.OnFeedback),
	}
}

func (c *gorosActionClient) Close() error {
	c.sac.Close()
	return nil
}

func goalState(s goroslib.SimpleActionClientGoalState) GoalState {
	switch s {
	case goroslib.SimpleActionClientGoalStateSucceeded:
		return GoalSucceeded
	case goroslib.SimpleActionClientGoalStateAborted:
		return GoalAborted
	case goroslib.SimpleActionClientGoalStatePreempted, goroslib.SimpleActionClientGoalStateRecalled:
		return GoalCanceled
	case goroslib.SimpleActionClientGoalStateRejected:
		return GoalRejected
	default:
		return GoalLost
	}
}

// typedCallback builds a func(*T) accepted by goroslib that forwards the
// encoded message to fn.
func typedCallback(ptrType reflect.Type, fn func(Message)) interface{} {
	return reflect.MakeFunc(
		reflect.FuncOf([]reflect.Type{ptrType}, nil, false),
		func(args []reflect.Value) []reflect.Value {
			if fn == nil {
				return nil
			}
			m, err := msgs.Encode(args[0].Interface())
			if err == nil {
				fn(m)
			}
			return nil
		}).Interface()
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
