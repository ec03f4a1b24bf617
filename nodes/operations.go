package nodes

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/brokenrobotz/viam-ros-bridge/bridge"
	"github.com/brokenrobotz/viam-ros-bridge/broker"
	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

func (b *base) terminalStatus(ev broker.Event) {
	switch ev.State {
	case broker.StateSucceeded:
		b.status.Set(StateResultReceived, string(ev.Correlation))
	case broker.StateCanceled:
		b.status.Set(StateCanceled, string(ev.Correlation))
	case broker.StateAborted:
		b.status.Set(StateAborted, string(ev.Correlation))
	case broker.StateRejected:
		b.status.Set(StateError, "goal rejected")
	default:
		text := "operation failed"
		if ev.Err != nil {
			text = ev.Err.Error()
		}
		b.status.Set(StateError, text)
	}
}

// submitted reports a Submit error on the status board. StateProcessing is
// set before Submit since the terminal status may land before Submit returns.
func (b *base) submitted(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ros.ErrNotAvailable) {
		b.status.Set(StateUnavailable, err.Error())
	} else {
		b.status.Set(StateError, err.Error())
	}
	return err
}

// await waits for the terminal state of corr. On timeout the operation is
// canceled and the state it settles in is returned.
func await(ctx context.Context, br bridge.Bridge, corr broker.CorrelationID, timeout time.Duration) (broker.Snapshot, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	snap, err := br.Wait(waitCtx, corr)
	if err == nil {
		return snap, nil
	}
	if ctx.Err() != nil {
		return snap, ctx.Err()
	}
	if cerr := br.Cancel(context.Background(), corr); cerr != nil && !errors.Is(cerr, ros.ErrAlreadyTerminal) {
		return snap, cerr
	}
	return br.Wait(ctx, corr)
}

func snapshotMap(snap broker.Snapshot) (map[string]interface{}, error) {
	resp := map[string]interface{}{
		"correlation_id": string(snap.Correlation),
		"state":          snap.State.String(),
		"terminal":       snap.State.Terminal(),
	}
	if snap.Result != nil {
		result, err := plainMessage(snap.Result)
		if err != nil {
			return nil, err
		}
		resp["result"] = result
	}
	if snap.Err != nil {
		resp["error"] = snap.Err.Error()
	}
	return resp, nil
}

func commandTimeout(cmd map[string]interface{}, fallback time.Duration) (time.Duration, error) {
	v, ok := cmd["timeout_ms"]
	if !ok {
		return fallback, nil
	}
	ms, err := toInt(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}
