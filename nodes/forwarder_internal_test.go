package nodes

import (
	"encoding/json"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

func TestNATSSubjectAndEnvelope(t *testing.T) {
	f := &NATSForwarder{subject: "ros_bridge.fib"}
	out := Output{
		Port:        PortFeedback,
		Kind:        "feedback",
		Topic:       "/fibonacci",
		Correlation: "abc",
		State:       "executing",
		Payload:     ros.Message{"sequence": []int32{0, 1, 1}},
		At:          time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	test.That(t, f.Subject(out), test.ShouldEqual, "ros_bridge.fib.1")

	data, err := encodeOutput(out)
	test.That(t, err, test.ShouldBeNil)
	var decoded map[string]interface{}
	test.That(t, json.Unmarshal(data, &decoded), test.ShouldBeNil)
	test.That(t, decoded["port"], test.ShouldEqual, 1.0)
	test.That(t, decoded["correlation_id"], test.ShouldEqual, "abc")
	test.That(t, decoded["payload"], test.ShouldResemble, map[string]interface{}{"sequence": []interface{}{0.0, 1.0, 1.0}})
	test.That(t, decoded["at"], test.ShouldEqual, "2024-01-02T03:04:05Z")
}

func TestFanoutForwardsToAll(t *testing.T) {
	a, b := NewOutbox(4), NewOutbox(4)
	f := fanout{a, b}
	f.Forward(Output{Kind: "message"})
	test.That(t, a.Len(), test.ShouldEqual, 1)
	test.That(t, b.Len(), test.ShouldEqual, 1)
	test.That(t, f.Close(), test.ShouldBeNil)
}

func TestToInt(t *testing.T) {
	for in, want := range map[interface{}]int{nil: 0, true: 0, 3.0: 3, 7: 7, int64(9): 9} {
		got, err := toInt(in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, want)
	}
	_, err := toInt("five")
	test.That(t, err, test.ShouldNotBeNil)
}
