package nodes

import (
	"go.viam.com/rdk/resource"

	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

// Preset is a subscriber sensor with a fixed default type and a projection of
// the latest message into readings.
type Preset struct {
	Model    resource.Model
	Type     string
	Readings func(ros.Message) map[string]interface{}
}

// Sensor models with a fixed message layout.
var (
	EditionModel     = resource.NewModel("brokenrobotz", "ros", "edition")
	VoltageModel     = resource.NewModel("brokenrobotz", "ros", "voltage")
	DiagnosticsModel = resource.NewModel("brokenrobotz", "ros", "diagnostics")
)

// Presets lists the fixed-layout sensors.
var Presets = []*Preset{
	{
		Model: EditionModel,
		Type:  "std_msgs/Float32",
		Readings: func(m ros.Message) map[string]interface{} {
			return map[string]interface{}{"edition": m["data"]}
		},
	},
	{
		// yahboom_msgs/Voltage carries the same single data field
		Model: VoltageModel,
		Type:  "std_msgs/Float32",
		Readings: func(m ros.Message) map[string]interface{} {
			return map[string]interface{}{"voltage": m["data"]}
		},
	},
	{
		Model: DiagnosticsModel,
		Type:  "diagnostic_msgs/DiagnosticArray",
		Readings: func(m ros.Message) map[string]interface{} {
			return map[string]interface{}{
				"header": m["header"],
				"status": m["status"],
			}
		},
	},
}
