package actionlib_tutorials

import (
	"github.com/bluenviron/goroslib/v2/pkg/msg"
)

type FibonacciActionGoal struct {
	Order int32
}

type FibonacciActionResult struct {
	Sequence []int32
}

type FibonacciActionFeedback struct {
	Sequence []int32
}

type FibonacciAction struct {
	msg.Package `ros:"actionlib_tutorials"`
	FibonacciActionGoal
	FibonacciActionResult
	FibonacciActionFeedback
}
