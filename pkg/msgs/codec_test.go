package msgs

import (
	"testing"

	"github.com/bluenviron/goroslib/v2/pkg/msgs/geometry_msgs"
	"github.com/bluenviron/goroslib/v2/pkg/msgs/std_msgs"
	"go.viam.com/test"

	"github.com/brokenrobotz/viam-ros-bridge/pkg/msgs/actionlib_tutorials"
)

func TestDecodeRosNames(t *testing.T) {
	var twist geometry_msgs.Twist
	err := Decode(map[string]interface{}{
		"linear":  map[string]interface{}{"x": 1.5, "y": "2"},
		"angular": map[string]interface{}{"z": -0.25},
	}, &twist)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, twist.Linear.X, test.ShouldEqual, 1.5)
	test.That(t, twist.Linear.Y, test.ShouldEqual, 2.0)
	test.That(t, twist.Angular.Z, test.ShouldEqual, -0.25)

	var s std_msgs.String
	test.That(t, Decode(map[string]interface{}{"data": "hello"}, &s), test.ShouldBeNil)
	test.That(t, s.Data, test.ShouldEqual, "hello")
}

func TestDecodeTypeMismatch(t *testing.T) {
	var i std_msgs.Int32
	err := Decode(map[string]interface{}{"data": "not a number"}, &i)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEncode(t *testing.T) {
	out, err := Encode(&actionlib_tutorials.FibonacciActionFeedback{Sequence: []int32{0, 1, 1}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, map[string]interface{}{
		"sequence": []interface{}{int32(0), int32(1), int32(1)},
	})

	out, err = Encode(&std_msgs.String{Data: "x"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, map[string]interface{}{"data": "x"})

	_, err = Encode(42)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSnakeCase(t *testing.T) {
	for in, want := range map[string]string{
		"Data":            "data",
		"FrameId":         "frame_id",
		"PercentComplete": "percent_complete",
		"ID":              "id",
		"HTTPServer":      "http_server",
		"Point3D":         "point3_d",
	} {
		test.That(t, snakeCase(in), test.ShouldEqual, want)
	}
}
