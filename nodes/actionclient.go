package nodes

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	"github.com/brokenrobotz/viam-ros-bridge/bridge"
	"github.com/brokenrobotz/viam-ros-bridge/broker"
	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

// ActionClient sends goals to an action server. Feedback goes to the feedback
// output, the result to the primary output.
type ActionClient struct {
	*base

	goalsMu sync.Mutex
	last    broker.CorrelationID
}

func NewActionClient(
	ctx context.Context,
	rt *bridge.Runtime,
	conf resource.Config,
	logger logging.Logger,
) (*ActionClient, error) {
	a := &ActionClient{base: newBase(rt, conf, ros.KindActionClient, logger)}
	if err := a.Reconfigure(ctx, nil, conf); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

// Reconfigure recreates the client from conf. Pending goals are canceled.
func (a *ActionClient) Reconfigure(ctx context.Context, _ resource.Dependencies, conf resource.Config) error {
	cfg, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.configure(ctx, cfg)
}

// DoCommand understands:
//
//	{"goal": {...}, "topic": "...", "timeout_ms": n}  send a goal, returns its correlation_id
//	{"cancel": "<correlation_id>"}                    cancel a goal, empty means the last one
//	{"result": "<correlation_id>", "wait": true}      report a goal, optionally waiting for its end
//
// A goal's topic overrides the configured action name.
func (a *ActionClient) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	if resp, ok, err := a.common(ctx, cmd); ok {
		return resp, err
	}
	if raw, ok := cmd["goal"]; ok {
		goal, err := toMessage(raw)
		if err != nil {
			return nil, err
		}
		topic, _ := cmd["topic"].(string)
		return a.sendGoal(ctx, topic, goal, cmd)
	}
	if v, ok := cmd["cancel"]; ok {
		corr, err := a.correlation(v)
		if err != nil {
			return nil, err
		}
		br, err := a.current()
		if err != nil {
			return nil, err
		}
		if err := br.Cancel(ctx, corr); err != nil {
			return nil, err
		}
		return map[string]interface{}{"correlation_id": string(corr), "cancel_requested": true}, nil
	}
	if v, ok := cmd["result"]; ok {
		corr, err := a.correlation(v)
		if err != nil {
			return nil, err
		}
		br, err := a.current()
		if err != nil {
			return nil, err
		}
		if wait, _ := cmd["wait"].(bool); wait {
			snap, err := br.Wait(ctx, corr)
			if err != nil {
				return nil, err
			}
			return snapshotMap(snap)
		}
		snap, ok := br.Lookup(corr)
		if !ok {
			return nil, errors.Wrapf(ros.ErrUnknownOperation, "%s", corr)
		}
		return snapshotMap(snap)
	}
	return nil, errors.Wrap(ros.ErrUnknownOperation, "expected \"goal\", \"cancel\" or \"result\"")
}

func (a *ActionClient) sendGoal(ctx context.Context, topic string, goal ros.Message, cmd map[string]interface{}) (map[string]interface{}, error) {
	a.mu.Lock()
	id, name, err := a.resolve(ctx, topic, true)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	br := a.bridge
	timeout, err := commandTimeout(cmd, a.cfg.timeout())
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	a.status.Set(StateProcessing, name)
	corr, err := br.Submit(ctx, id, goal, func(ev broker.Event) {
		switch ev.Kind {
		case broker.EventAccepted:
			a.status.Set(StateProcessing, "goal accepted")
		case broker.EventFeedback:
			a.emit(Output{Port: PortFeedback, Kind: "feedback", Topic: name, Correlation: string(ev.Correlation), State: ev.State.String(), Payload: ev.Payload})
		case broker.EventTerminal:
			out := Output{Port: PortPrimary, Kind: "result", Topic: name, Correlation: string(ev.Correlation), State: ev.State.String(), Payload: ev.Payload}
			if ev.State != broker.StateSucceeded {
				out.Kind = "error"
				if ev.Err != nil {
					out.Error = ev.Err.Error()
				}
			}
			a.emit(out)
			a.terminalStatus(ev)
		}
	})
	if err := a.submitted(err); err != nil {
		return nil, err
	}

	a.goalsMu.Lock()
	a.last = corr
	a.goalsMu.Unlock()

	if timeout > 0 {
		go func() {
			// bound the wait for the server to honor the cancel as well
			wctx, cancel := context.WithTimeout(context.Background(), timeout+broker.DefaultGrace)
			defer cancel()
			if _, err := await(wctx, br, corr, timeout); err != nil {
				a.logger.Debugw("goal timeout handling", "correlation", corr, "error", err)
			}
		}()
	}
	return map[string]interface{}{"correlation_id": string(corr), "topic": name}, nil
}

func (a *ActionClient) correlation(v interface{}) (broker.CorrelationID, error) {
	s, _ := v.(string)
	if s != "" {
		return broker.CorrelationID(s), nil
	}
	a.goalsMu.Lock()
	defer a.goalsMu.Unlock()
	if a.last == "" {
		return "", errors.Wrap(ros.ErrUnknownOperation, "no goal sent yet")
	}
	return a.last, nil
}

func (a *ActionClient) current() (bridge.Bridge, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bridge == nil {
		return nil, errors.Wrap(ros.ErrConfigMissing, "component not configured")
	}
	return a.bridge, nil
}
