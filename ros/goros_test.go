package ros

import (
	"context"
	"reflect"
	"testing"

	"github.com/bluenviron/goroslib/v2"
	"github.com/bluenviron/goroslib/v2/pkg/msgs/std_msgs"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestGoalStateMapping(t *testing.T) {
	for in, want := range map[goroslib.SimpleActionClientGoalState]GoalState{
		goroslib.SimpleActionClientGoalStateSucceeded: GoalSucceeded,
		goroslib.SimpleActionClientGoalStateAborted:   GoalAborted,
		goroslib.SimpleActionClientGoalStatePreempted: GoalCanceled,
		goroslib.SimpleActionClientGoalStateRecalled:  GoalCanceled,
		goroslib.SimpleActionClientGoalStateRejected:  GoalRejected,
		goroslib.SimpleActionClientGoalStatePending:   GoalLost,
	} {
		test.That(t, goalState(in), test.ShouldEqual, want)
	}
}

func TestTypedCallbackEncodes(t *testing.T) {
	var got Message
	cb := typedCallback(reflect.TypeOf(&std_msgs.String{}), func(m Message) { got = m })

	fn, ok := cb.(func(*std_msgs.String))
	test.That(t, ok, test.ShouldBeTrue)
	fn(&std_msgs.String{Data: "hello"})
	test.That(t, got, test.ShouldResemble, Message{"data": "hello"})
}

func TestOpenRequiresMaster(t *testing.T) {
	d := NewGorosDriver(nil, nil)
	_, err := d.Open(context.Background(), NodeConf{Name: "x"})
	test.That(t, errors.Is(err, ErrConfigMissing), test.ShouldBeTrue)
}
