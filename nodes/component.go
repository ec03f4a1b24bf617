package nodes

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	"github.com/brokenrobotz/viam-ros-bridge/bridge"
	"github.com/brokenrobotz/viam-ros-bridge/broker"
	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

// base carries what every bridge component holds: its bridge, the lazily
// created resource, the status and the output forwarders.
type base struct {
	resource.Named

	rt        *bridge.Runtime
	kind      ros.Kind
	logger    logging.Logger
	status    *Status
	outbox    *Outbox
	onMessage func(ros.Message)

	mu      sync.Mutex
	cfg     *Config
	bridge  bridge.Bridge
	binding *bridge.Binding

	outMu sync.RWMutex
	out   Forwarder
	// topic mirrors the name of the materialized resource for callbacks
	// that must not take mu.
	topic string
}

func newBase(rt *bridge.Runtime, conf resource.Config, kind ros.Kind, logger logging.Logger) *base {
	outbox := NewOutbox(DefaultOutboxSize)
	return &base{
		Named:  conf.ResourceName().AsNamed(),
		rt:     rt,
		kind:   kind,
		logger: logger,
		status: NewStatus(logger),
		outbox: outbox,
		out:    outbox,
	}
}

// configure replaces the bridge and the resource. mu must be held.
func (b *base) configure(ctx context.Context, cfg *Config) error {
	b.release(ctx)

	mode, err := bridge.ParseMode(cfg.Mode)
	if err != nil {
		b.status.Set(StateError, err.Error())
		return err
	}
	ep, err := cfg.endpoint(b.kind)
	if err != nil {
		b.status.Set(StateError, err.Error())
		return err
	}

	br, err := b.rt.Acquire(ctx, cfg.nodeConf(), mode, b.Name().String())
	if err != nil {
		b.status.Set(StateError, err.Error())
		return err
	}

	var out Forwarder = b.outbox
	if cfg.ForwardNATSURL != "" {
		subject := cfg.ForwardSubject
		if subject == "" {
			subject = "ros_bridge." + b.Name().ShortName()
		}
		nf, err := NewNATSForwarder(cfg.ForwardNATSURL, subject, b.Name().ShortName(), b.logger)
		if err != nil {
			br.Close(ctx)
			b.status.Set(StateError, err.Error())
			return err
		}
		out = fanout{b.outbox, nf}
	}

	b.cfg = cfg
	b.bridge = br
	b.binding = bridge.NewBinding(br, ep, b.onMessage)
	b.outMu.Lock()
	b.out = out
	b.outMu.Unlock()

	if ep.Name == "" {
		b.status.Set(StateAwaitingTopic, "")
		return nil
	}
	if _, err := b.binding.Resolve(ctx, ""); err != nil {
		b.status.Set(StateError, err.Error())
		return err
	}
	b.setTopic(ep.Name)
	b.status.Set(StateCreated, ep.Name)
	return nil
}

// release drops the resource, the bridge and the forwarders. mu must be held.
func (b *base) release(ctx context.Context) {
	if b.binding != nil {
		if err := b.binding.Release(ctx); err != nil {
			b.logger.Debugw("releasing resource", "error", err)
		}
		b.binding = nil
	}
	if b.bridge != nil {
		b.bridge.Close(ctx)
		b.bridge = nil
	}

	b.outMu.Lock()
	out := b.out
	b.out = b.outbox
	b.topic = ""
	b.outMu.Unlock()
	if err := out.Close(); err != nil {
		b.logger.Warnw("closing forwarder", "error", err)
	}
}

// resolve materializes the resource for a request. When overrideWins is false
// the configured topic takes precedence over requested. mu must be held.
func (b *base) resolve(ctx context.Context, requested string, overrideWins bool) (broker.ResourceID, string, error) {
	if b.binding == nil {
		b.status.Set(StateAwaitingConfig, "")
		return "", "", errors.Wrap(ros.ErrConfigMissing, "component not configured")
	}
	name := requested
	if !overrideWins && b.cfg.Topic != "" {
		name = ""
	}
	id, err := b.binding.Resolve(ctx, name)
	if err != nil {
		if errors.Is(err, ros.ErrConfigMissing) {
			b.status.Set(StateAwaitingTopic, "")
		} else {
			b.status.Set(StateError, err.Error())
		}
		return "", "", err
	}
	_, current := b.binding.Current()
	b.setTopic(current)
	return id, current, nil
}

func (b *base) setTopic(name string) {
	b.outMu.Lock()
	b.topic = name
	b.outMu.Unlock()
}

func (b *base) currentTopic() string {
	b.outMu.RLock()
	defer b.outMu.RUnlock()
	return b.topic
}

func (b *base) emit(out Output) {
	if out.At.IsZero() {
		out.At = time.Now()
	}
	b.outMu.RLock()
	fw := b.out
	b.outMu.RUnlock()
	fw.Forward(out)
}

func (b *base) common(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, bool, error) {
	if _, ok := cmd["status"]; ok {
		resp := b.status.Map()
		resp["outbox"] = b.outbox.Len()
		resp["dropped"] = b.outbox.Dropped()
		return resp, true, nil
	}
	if v, ok := cmd["drain"]; ok {
		n, err := toInt(v)
		if err != nil {
			return nil, true, err
		}
		outputs, err := plain(b.outbox.Drain(n))
		if err != nil {
			return nil, true, err
		}
		return map[string]interface{}{"outputs": outputs}, true, nil
	}
	if v, ok := cmd["available"]; ok {
		requested, _ := v.(string)
		b.mu.Lock()
		defer b.mu.Unlock()
		id, name, err := b.resolve(ctx, requested, true)
		if err != nil {
			return nil, true, err
		}
		available, err := b.bridge.IsAvailable(id)
		if err != nil {
			return nil, true, err
		}
		return map[string]interface{}{"available": available, "topic": name}, true, nil
	}
	return nil, false, nil
}

func (b *base) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(ctx)
	b.cfg = nil
	return nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case nil, bool:
		return 0, nil
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	}
	return 0, errors.Errorf("expected a number, got %T", v)
}

func toMessage(v interface{}) (ros.Message, error) {
	switch m := v.(type) {
	case nil:
		return ros.Message{}, nil
	case map[string]interface{}:
		return m, nil
	}
	return nil, errors.Errorf("expected an object payload, got %T", v)
}

// plain converts v to the map/slice/scalar shapes a DoCommand reply carries.
func plain(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func plainMessage(m ros.Message) (map[string]interface{}, error) {
	if m == nil {
		return nil, nil
	}
	v, err := plain(m)
	if err != nil {
		return nil, err
	}
	out, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("message rendered as %T", v)
	}
	return out, nil
}
