package nodes_test

import (
	"context"
	"testing"
	"time"

	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/test"

	"github.com/brokenrobotz/viam-ros-bridge/bridge"
	"github.com/brokenrobotz/viam-ros-bridge/ros/rostest"
)

const master = "localhost:11311"

func newRuntime(t *testing.T) (*rostest.Graph, *bridge.Runtime) {
	t.Helper()
	graph := rostest.NewGraph()
	rt := bridge.NewRuntime(graph, 20*time.Millisecond, logging.NewTestLogger(t))
	t.Cleanup(func() { rt.Shutdown(context.Background()) })
	return graph, rt
}

func componentConfig(name string, api resource.API, model resource.Model, attrs resource.ConfigValidator) resource.Config {
	return resource.Config{Name: name, API: api, Model: model, ConvertedAttributes: attrs}
}

func genericConfig(name string, model resource.Model, attrs resource.ConfigValidator) resource.Config {
	return componentConfig(name, generic.API, model, attrs)
}

// drain empties the outbox of c through DoCommand.
func drain(t *testing.T, c resource.Resource) []map[string]interface{} {
	t.Helper()
	resp, err := c.DoCommand(context.Background(), map[string]interface{}{"drain": 0})
	test.That(t, err, test.ShouldBeNil)
	raw, ok := resp["outputs"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.(map[string]interface{}))
	}
	return out
}

func statusOf(t *testing.T, c resource.Resource) string {
	t.Helper()
	resp, err := c.DoCommand(context.Background(), map[string]interface{}{"status": true})
	test.That(t, err, test.ShouldBeNil)
	return resp["state"].(string)
}
