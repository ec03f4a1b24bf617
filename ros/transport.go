package ros

import (
	"context"
	"path"
	"strings"

	"github.com/brokenrobotz/viam-ros-bridge/qos"
)

// Message is a flow payload. Keys follow the ROS field names of the interface type.
type Message = map[string]interface{}

// Kind identifies the direction of a resource on a node.
type Kind int

// Resource kinds.
const (
	KindPublisher Kind = iota
	KindSubscriber
	KindServiceClient
	KindActionClient
)

func (k Kind) String() string {
	switch k {
	case KindPublisher:
		return "publisher"
	case KindSubscriber:
		return "subscriber"
	case KindServiceClient:
		return "service_client"
	case KindActionClient:
		return "action_client"
	default:
		return "unknown"
	}
}

// Endpoint describes a named, typed resource to create on a node.
type Endpoint struct {
	Kind     Kind
	TypeName string
	Name     string
	// QoS is only meaningful for publishers and subscribers.
	QoS qos.Policy
}

// GoalState is the remote outcome of an action goal.
type GoalState int

// Goal outcomes reported by an action server.
const (
	GoalSucceeded GoalState = iota
	GoalAborted
	GoalCanceled
	GoalRejected
	GoalLost
)

func (s GoalState) String() string {
	switch s {
	case GoalSucceeded:
		return "succeeded"
	case GoalAborted:
		return "aborted"
	case GoalCanceled:
		return "canceled"
	case GoalRejected:
		return "rejected"
	default:
		return "lost"
	}
}

// GoalEvents receives the asynchronous events of a single goal. Callbacks may be
// invoked from different goroutines and in any relative order.
type GoalEvents struct {
	OnActive   func()
	OnFeedback func(Message)
	OnDone     func(GoalState, Message)
}

// Driver opens participants on a middleware graph.
type Driver interface {
	Open(ctx context.Context, conf NodeConf) (Participant, error)
}

// Participant is one live middleware node.
type Participant interface {
	Publisher(ep Endpoint) (Publisher, error)
	Subscriber(ep Endpoint, onMessage func(Message)) (Subscriber, error)
	ServiceClient(ep Endpoint) (ServiceClient, error)
	ActionClient(ep Endpoint) (ActionClient, error)

	// HasCounterpart reports whether the graph currently shows the remote side
	// of ep: subscribers for a publisher, publishers for a subscriber, a provider
	// for a service client and a server for an action client.
	HasCounterpart(ep Endpoint) (bool, error)

	Close() error
}

// Publisher writes messages on a topic.
type Publisher interface {
	Publish(msg Message) error
	Close() error
}

// Subscriber delivers topic messages to the callback it was created with.
type Subscriber interface {
	Close() error
}

// ServiceClient performs request/response calls.
type ServiceClient interface {
	Call(ctx context.Context, req Message) (Message, error)
	Close() error
}

// ActionClient sends goals to an action server.
type ActionClient interface {
	SendGoal(goal Message, events GoalEvents) (Goal, error)
	Close() error
}

// Goal is a handle on a sent goal.
type Goal interface {
	Cancel() error
}

// ResolveName makes name absolute within namespace.
func ResolveName(namespace, name string) string {
	if strings.HasPrefix(name, "/") {
		return path.Clean(name)
	}
	if namespace == "" {
		namespace = "/"
	}
	return path.Join("/", namespace, name)
}
