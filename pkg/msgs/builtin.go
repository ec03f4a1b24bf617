package msgs

import (
	"github.com/bluenviron/goroslib/v2/pkg/msgs/diagnostic_msgs"
	"github.com/bluenviron/goroslib/v2/pkg/msgs/geometry_msgs"
	"github.com/bluenviron/goroslib/v2/pkg/msgs/sensor_msgs"
	"github.com/bluenviron/goroslib/v2/pkg/msgs/std_msgs"
	"github.com/bluenviron/goroslib/v2/pkg/msgs/std_srvs"

	"github.com/brokenrobotz/viam-ros-bridge/pkg/msgs/actionlib_tutorials"
	"github.com/brokenrobotz/viam-ros-bridge/pkg/msgs/yahboom_msgs"
)

func init() {
	messages := map[string]interface{}{
		"std_msgs/String":                 &std_msgs.String{},
		"std_msgs/Bool":                   &std_msgs.Bool{},
		"std_msgs/Int32":                  &std_msgs.Int32{},
		"std_msgs/Int64":                  &std_msgs.Int64{},
		"std_msgs/Float32":                &std_msgs.Float32{},
		"std_msgs/Float64":                &std_msgs.Float64{},
		"std_msgs/Empty":                  &std_msgs.Empty{},
		"std_msgs/Header":                 &std_msgs.Header{},
		"geometry_msgs/Twist":             &geometry_msgs.Twist{},
		"geometry_msgs/Vector3":           &geometry_msgs.Vector3{},
		"geometry_msgs/Point":             &geometry_msgs.Point{},
		"geometry_msgs/Pose":              &geometry_msgs.Pose{},
		"geometry_msgs/PoseStamped":       &geometry_msgs.PoseStamped{},
		"sensor_msgs/BatteryState":        &sensor_msgs.BatteryState{},
		"diagnostic_msgs/DiagnosticArray": &diagnostic_msgs.DiagnosticArray{},
		"yahboom_msgs/Voltage":            &yahboom_msgs.Voltage{},
	}
	for name, proto := range messages {
		mustRegister(Default.RegisterMessage(name, proto))
	}

	mustRegister(Default.RegisterService("std_srvs/Trigger", &std_srvs.Trigger{}))
	mustRegister(Default.RegisterService("std_srvs/SetBool", &std_srvs.SetBool{}))

	mustRegister(Default.RegisterAction("actionlib_tutorials/Fibonacci", &actionlib_tutorials.FibonacciAction{}))
}

func mustRegister(err error) {
	if err != nil {
		panic(err)
	}
}
