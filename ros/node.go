package ros

import (
	"fmt"
	"time"
)

// NodeConf configures the middleware node shared by one owner.
type NodeConf struct {
	// Owner tags the logical owner the node is shared under.
	Owner string
	// MasterAddress is the ROS master in hostname:port form.
	MasterAddress string
	Namespace     string
	// Name defaults to viam_ros_bridge_<unix millis> when empty.
	Name         string
	Host         string
	DomainID     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type nodeKey struct {
	owner     string
	master    string
	namespace string
}

func (c NodeConf) key() nodeKey {
	ns := c.Namespace
	if ns == "" {
		ns = "/"
	}
	return nodeKey{owner: c.Owner, master: c.MasterAddress, namespace: ns}
}

// WithDefaults fills in the node name and namespace when unset.
func (c NodeConf) WithDefaults() NodeConf {
	if c.Name == "" {
		c.Name = fmt.Sprintf("viam_ros_bridge_%d", time.Now().UnixMilli())
	}
	if c.Namespace == "" {
		c.Namespace = "/"
	}
	return c
}

// NodeHandle is a shared, reference counted middleware node.
type NodeHandle struct {
	ID        string
	Owner     string
	DomainID  int
	Namespace string
	Name      string
	CreatedAt time.Time

	participant Participant
}

func (h *NodeHandle) Participant() Participant {
	return h.participant
}

// NewNodeHandle wraps an already opened participant. Handles built this way are
// not tracked by a Multiplexer and belong to the caller.
func NewNodeHandle(id string, conf NodeConf, p Participant) *NodeHandle {
	conf = conf.WithDefaults()
	return &NodeHandle{
		ID:          id,
		Owner:       conf.Owner,
		DomainID:    conf.DomainID,
		Namespace:   conf.Namespace,
		Name:        conf.Name,
		CreatedAt:   time.Now(),
		participant: p,
	}
}
