package nodes_test

import (
	"context"
	"testing"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	"github.com/brokenrobotz/viam-ros-bridge/nodes"
	"github.com/brokenrobotz/viam-ros-bridge/qos"
	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

func TestSubscriberReadings(t *testing.T) {
	graph, rt := newRuntime(t)
	conf := componentConfig("sub", sensor.API, nodes.SubscriberModel, &nodes.Config{
		PrimaryURI: master,
		Type:       "std_msgs/String",
		Topic:      "/chatter",
		QoS:        []qos.Property{{Path: "history.depth", Value: 10}, {Path: "reliability", Value: "BEST_EFFORT"}},
	})
	sub, err := nodes.NewSubscriber(context.Background(), rt, conf, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer sub.Close(context.Background())

	_, err = sub.Readings(context.Background(), nil)
	test.That(t, err, test.ShouldNotBeNil)

	graph.Inject("/chatter", ros.Message{"data": "one"})
	graph.Inject("/chatter", ros.Message{"data": "two"})

	readings, err := sub.Readings(context.Background(), nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, readings["topic"], test.ShouldEqual, "/chatter")
	test.That(t, readings["message"], test.ShouldResemble, map[string]interface{}{"data": "two"})
	test.That(t, readings["count"], test.ShouldEqual, 2.0)
	test.That(t, statusOf(t, sub), test.ShouldEqual, string(nodes.StateMessage))

	// every message is forwarded exactly once
	outputs := drain(t, sub)
	test.That(t, outputs, test.ShouldHaveLength, 2)
	test.That(t, outputs[0]["payload"], test.ShouldResemble, map[string]interface{}{"data": "one"})
	test.That(t, outputs[1]["payload"], test.ShouldResemble, map[string]interface{}{"data": "two"})
}

func TestSubscriberReceivesPublisher(t *testing.T) {
	_, rt := newRuntime(t)
	logger := logging.NewTestLogger(t)
	sub, err := nodes.NewSubscriber(context.Background(), rt,
		componentConfig("sub", sensor.API, nodes.SubscriberModel, &nodes.Config{PrimaryURI: master, Type: "std_msgs/String", Topic: "/loop"}),
		nil, logger)
	test.That(t, err, test.ShouldBeNil)
	defer sub.Close(context.Background())
	pub, err := nodes.NewPublisher(context.Background(), rt,
		genericConfig("pub", nodes.PublisherModel, &nodes.Config{PrimaryURI: master, Type: "std_msgs/String", Topic: "/loop"}),
		logger)
	test.That(t, err, test.ShouldBeNil)
	defer pub.Close(context.Background())

	_, err = pub.DoCommand(context.Background(), map[string]interface{}{"publish": map[string]interface{}{"data": "ping"}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, drain(t, sub), test.ShouldHaveLength, 1)
}

func TestSubscriberDynamicTopic(t *testing.T) {
	graph, rt := newRuntime(t)
	conf := componentConfig("sub", sensor.API, nodes.SubscriberModel, &nodes.Config{PrimaryURI: master, Type: "std_msgs/String"})
	sub, err := nodes.NewSubscriber(context.Background(), rt, conf, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer sub.Close(context.Background())
	test.That(t, graph.Subscribers("/left"), test.ShouldEqual, 0)

	resp, err := sub.DoCommand(context.Background(), map[string]interface{}{"topic": "/left"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["topic"], test.ShouldEqual, "/left")
	test.That(t, graph.Subscribers("/left"), test.ShouldEqual, 1)

	_, err = sub.DoCommand(context.Background(), map[string]interface{}{"topic": "/right"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, graph.Subscribers("/left"), test.ShouldEqual, 0)
	test.That(t, graph.Subscribers("/right"), test.ShouldEqual, 1)

	test.That(t, sub.Close(context.Background()), test.ShouldBeNil)
	test.That(t, graph.Subscribers("/right"), test.ShouldEqual, 0)
}

func TestVoltagePreset(t *testing.T) {
	graph, rt := newRuntime(t)
	var voltage *nodes.Preset
	for _, p := range nodes.Presets {
		if p.Model == nodes.VoltageModel {
			voltage = p
		}
	}
	test.That(t, voltage, test.ShouldNotBeNil)

	conf := componentConfig("battery", sensor.API, nodes.VoltageModel, &nodes.SensorConfig{
		Config: nodes.Config{PrimaryURI: master, Topic: "/voltage"},
	})
	s, err := nodes.NewSubscriber(context.Background(), rt, conf, voltage, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer s.Close(context.Background())

	graph.Inject("/voltage", ros.Message{"data": 12.5})
	readings, err := s.Readings(context.Background(), nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, readings, test.ShouldResemble, map[string]interface{}{"voltage": 12.5})
}

func TestDiagnosticsPresetOverridesType(t *testing.T) {
	graph, rt := newRuntime(t)
	var diagnostics *nodes.Preset
	for _, p := range nodes.Presets {
		if p.Model == nodes.DiagnosticsModel {
			diagnostics = p
		}
	}
	conf := componentConfig("diag", sensor.API, nodes.DiagnosticsModel, &nodes.SensorConfig{
		Config: nodes.Config{PrimaryURI: master, Topic: "/diagnostics"},
	})
	s, err := nodes.NewSubscriber(context.Background(), rt, conf, diagnostics, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer s.Close(context.Background())

	graph.Inject("/diagnostics", ros.Message{
		"header": map[string]interface{}{"frame_id": "base"},
		"status": []interface{}{map[string]interface{}{"name": "motor", "level": 0.0}},
	})
	readings, err := s.Readings(context.Background(), nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, readings["header"], test.ShouldResemble, map[string]interface{}{"frame_id": "base"})
	test.That(t, readings["status"], test.ShouldHaveLength, 1)
}
