package nodes

import (
	"context"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	"github.com/brokenrobotz/viam-ros-bridge/bridge"
	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

// Publisher writes DoCommand payloads on a topic and echoes every published
// message on its primary output.
type Publisher struct {
	*base
}

func NewPublisher(
	ctx context.Context,
	rt *bridge.Runtime,
	conf resource.Config,
	logger logging.Logger,
) (*Publisher, error) {
	p := &Publisher{base: newBase(rt, conf, ros.KindPublisher, logger)}
	if err := p.Reconfigure(ctx, nil, conf); err != nil {
		p.Close(ctx)
		return nil, err
	}
	return p, nil
}

func (p *Publisher) Reconfigure(ctx context.Context, _ resource.Dependencies, conf resource.Config) error {
	cfg, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.configure(ctx, cfg)
}

// DoCommand publishes {"publish": {...}, "topic": "..."}. The topic is only
// used when none is configured.
func (p *Publisher) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	if resp, ok, err := p.common(ctx, cmd); ok {
		return resp, err
	}
	raw, ok := cmd["publish"]
	if !ok {
		return nil, errors.Wrap(ros.ErrUnknownOperation, "expected \"publish\"")
	}
	msg, err := toMessage(raw)
	if err != nil {
		return nil, err
	}
	topic, _ := cmd["topic"].(string)
	return p.publish(ctx, topic, msg)
}

func (p *Publisher) publish(ctx context.Context, topic string, msg ros.Message) (map[string]interface{}, error) {
	p.mu.Lock()
	id, name, err := p.resolve(ctx, topic, false)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	br := p.bridge
	p.mu.Unlock()

	if err := br.Publish(ctx, id, msg); err != nil {
		p.status.Set(StateError, err.Error())
		return nil, err
	}
	p.emit(Output{Port: PortPrimary, Kind: "message", Topic: name, Payload: msg})
	p.status.Set(StatePublished, name)
	return map[string]interface{}{"published": true, "topic": name}, nil
}
