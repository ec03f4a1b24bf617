// Package yahboom_msgs holds the custom messages published by Yahboom robot boards.
package yahboom_msgs

import (
	"github.com/bluenviron/goroslib/v2/pkg/msg"
)

// Voltage is the battery voltage report. Subscribers may use it in place of
// std_msgs/Float32 since both carry a single data field.
type Voltage struct {
	msg.Package `ros:"yahboom_msgs"`
	Data        float32
}
