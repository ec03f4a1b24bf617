package nodes

import (
	"context"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	"github.com/brokenrobotz/viam-ros-bridge/bridge"
	"github.com/brokenrobotz/viam-ros-bridge/broker"
	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

// ServiceClient calls a service for every DoCommand request and forwards the
// response on its primary output.
type ServiceClient struct {
	*base
}

func NewServiceClient(
	ctx context.Context,
	rt *bridge.Runtime,
	conf resource.Config,
	logger logging.Logger,
) (*ServiceClient, error) {
	c := &ServiceClient{base: newBase(rt, conf, ros.KindServiceClient, logger)}
	if err := c.Reconfigure(ctx, nil, conf); err != nil {
		c.Close(ctx)
		return nil, err
	}
	return c, nil
}

func (c *ServiceClient) Reconfigure(ctx context.Context, _ resource.Dependencies, conf resource.Config) error {
	cfg, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configure(ctx, cfg)
}

// DoCommand handles {"call": {...}, "topic": "...", "timeout_ms": n} and
// blocks until the response, the timeout or ctx.
func (c *ServiceClient) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	if resp, ok, err := c.common(ctx, cmd); ok {
		return resp, err
	}
	raw, ok := cmd["call"]
	if !ok {
		return nil, errors.Wrap(ros.ErrUnknownOperation, "expected \"call\"")
	}
	req, err := toMessage(raw)
	if err != nil {
		return nil, err
	}
	topic, _ := cmd["topic"].(string)

	c.mu.Lock()
	id, name, err := c.resolve(ctx, topic, false)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	br := c.bridge
	timeout, err := commandTimeout(cmd, c.cfg.timeout())
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c.status.Set(StateProcessing, name)
	corr, err := br.Submit(ctx, id, req, func(ev broker.Event) {
		if ev.Kind != broker.EventTerminal {
			return
		}
		if ev.State == broker.StateSucceeded {
			c.emit(Output{Port: PortPrimary, Kind: "response", Topic: name, Correlation: string(ev.Correlation), State: ev.State.String(), Payload: ev.Payload})
		}
		c.terminalStatus(ev)
	})
	if err := c.submitted(err); err != nil {
		return nil, err
	}

	snap, err := await(ctx, br, corr, timeout)
	if err != nil {
		return nil, err
	}
	resp, err := snapshotMap(snap)
	if err != nil {
		return nil, err
	}
	resp["topic"] = name
	return resp, nil
}
