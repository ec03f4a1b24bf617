package nodes_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	"github.com/brokenrobotz/viam-ros-bridge/nodes"
	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

func TestServiceClientCall(t *testing.T) {
	graph, rt := newRuntime(t)
	graph.ServeService("/reset", func(ctx context.Context, req ros.Message) (ros.Message, error) {
		return ros.Message{"success": true, "message": "reset done"}, nil
	})
	conf := genericConfig("svc", nodes.ServiceClientModel, &nodes.Config{PrimaryURI: master, Type: "std_srvs/Trigger", Topic: "/reset"})
	c, err := nodes.NewServiceClient(context.Background(), rt, conf, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer c.Close(context.Background())

	resp, err := c.DoCommand(context.Background(), map[string]interface{}{"call": map[string]interface{}{}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["state"], test.ShouldEqual, "succeeded")
	test.That(t, resp["result"], test.ShouldResemble, map[string]interface{}{"success": true, "message": "reset done"})
	test.That(t, statusOf(t, c), test.ShouldEqual, string(nodes.StateResultReceived))

	outputs := drain(t, c)
	test.That(t, outputs, test.ShouldHaveLength, 1)
	test.That(t, outputs[0]["kind"], test.ShouldEqual, "response")
	test.That(t, outputs[0]["correlation_id"], test.ShouldEqual, resp["correlation_id"])
}

func TestServiceClientUnavailable(t *testing.T) {
	_, rt := newRuntime(t)
	conf := genericConfig("svc", nodes.ServiceClientModel, &nodes.Config{PrimaryURI: master, Type: "std_srvs/Trigger", Topic: "/reset"})
	c, err := nodes.NewServiceClient(context.Background(), rt, conf, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer c.Close(context.Background())

	_, err = c.DoCommand(context.Background(), map[string]interface{}{"call": map[string]interface{}{}})
	test.That(t, errors.Is(err, ros.ErrNotAvailable), test.ShouldBeTrue)
	test.That(t, statusOf(t, c), test.ShouldEqual, string(nodes.StateUnavailable))
	test.That(t, drain(t, c), test.ShouldBeEmpty)
}

func TestServiceClientTimeout(t *testing.T) {
	graph, rt := newRuntime(t)
	graph.ServeService("/slow", func(ctx context.Context, req ros.Message) (ros.Message, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	conf := genericConfig("svc", nodes.ServiceClientModel, &nodes.Config{
		PrimaryURI: master, Type: "std_srvs/SetBool", Topic: "/slow", TimeoutMS: 20,
	})
	c, err := nodes.NewServiceClient(context.Background(), rt, conf, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer c.Close(context.Background())

	resp, err := c.DoCommand(context.Background(), map[string]interface{}{"call": map[string]interface{}{"data": true}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["state"], test.ShouldEqual, "canceled")
	test.That(t, statusOf(t, c), test.ShouldEqual, string(nodes.StateCanceled))
	test.That(t, drain(t, c), test.ShouldBeEmpty)
}

func TestServiceClientFailure(t *testing.T) {
	graph, rt := newRuntime(t)
	graph.ServeService("/reset", func(ctx context.Context, req ros.Message) (ros.Message, error) {
		return nil, errors.New("provider crashed")
	})
	conf := genericConfig("svc", nodes.ServiceClientModel, &nodes.Config{PrimaryURI: master, Type: "std_srvs/Trigger", Topic: "/reset"})
	c, err := nodes.NewServiceClient(context.Background(), rt, conf, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer c.Close(context.Background())

	resp, err := c.DoCommand(context.Background(), map[string]interface{}{"call": nil, "timeout_ms": 1000.0})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["state"], test.ShouldEqual, "failed")
	test.That(t, resp["error"], test.ShouldContainSubstring, "provider crashed")
	test.That(t, statusOf(t, c), test.ShouldEqual, string(nodes.StateError))
}

func TestServiceClientStatusSettlesAfterEveryCall(t *testing.T) {
	graph, rt := newRuntime(t)
	graph.ServeService("/reset", func(ctx context.Context, req ros.Message) (ros.Message, error) {
		return ros.Message{"success": true}, nil
	})
	conf := genericConfig("svc", nodes.ServiceClientModel, &nodes.Config{PrimaryURI: master, Type: "std_srvs/Trigger", Topic: "/reset"})
	c, err := nodes.NewServiceClient(context.Background(), rt, conf, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer c.Close(context.Background())

	for i := 0; i < 500; i++ {
		_, err := c.DoCommand(context.Background(), map[string]interface{}{"call": map[string]interface{}{}})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, statusOf(t, c), test.ShouldEqual, string(nodes.StateResultReceived))
	}
}
