package nodes

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"

	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

// Output ports.
const (
	PortPrimary  = 0
	PortFeedback = 1
)

// Output is one message a component hands downstream.
type Output struct {
	Port        int         `json:"port"`
	Kind        string      `json:"kind"`
	Topic       string      `json:"topic,omitempty"`
	Correlation string      `json:"correlation_id,omitempty"`
	State       string      `json:"state,omitempty"`
	Payload     ros.Message `json:"payload,omitempty"`
	Error       string      `json:"error,omitempty"`
	At          time.Time   `json:"at"`
}

// Forwarder delivers outputs downstream. Forward must not block.
type Forwarder interface {
	Forward(out Output)
	Close() error
}

// DefaultOutboxSize bounds the outputs kept for DoCommand drains.
const DefaultOutboxSize = 256

// Outbox keeps the most recent outputs until they are drained.
type Outbox struct {
	mu      sync.Mutex
	max     int
	items   []Output
	dropped int
}

// NewOutbox returns an outbox holding at most size outputs.
func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{max: size}
}

// Forward appends out, evicting the oldest output when full.
func (o *Outbox) Forward(out Output) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.items) == o.max {
		o.items = o.items[1:]
		o.dropped++
	}
	o.items = append(o.items, out)
}

// Drain removes and returns up to n outputs in arrival order; n <= 0 drains all.
func (o *Outbox) Drain(n int) []Output {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n <= 0 || n > len(o.items) {
		n = len(o.items)
	}
	out := append([]Output(nil), o.items[:n]...)
	o.items = o.items[n:]
	return out
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

func (o *Outbox) Dropped() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

func (o *Outbox) Close() error {
	return nil
}

// NATSForwarder publishes outputs as JSON on <subject>.<port>.
type NATSForwarder struct {
	conn    *nats.Conn
	subject string
	logger  logging.Logger
}

// NewNATSForwarder connects to url.
func NewNATSForwarder(url, subject, name string, logger logging.Logger) (*NATSForwarder, error) {
	if url == "" {
		return nil, errors.Wrap(ros.ErrConfigMissing, "nats url")
	}
	if subject == "" {
		return nil, errors.Wrap(ros.ErrConfigMissing, "nats subject")
	}
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnw("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infow("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to nats at %s", url)
	}
	return &NATSForwarder{conn: conn, subject: subject, logger: logger}, nil
}

func (f *NATSForwarder) Subject(out Output) string {
	return fmt.Sprintf("%s.%d", f.subject, out.Port)
}

// Forward publishes out. Failures are logged.
func (f *NATSForwarder) Forward(out Output) {
	data, err := encodeOutput(out)
	if err == nil {
		err = f.conn.Publish(f.Subject(out), data)
	}
	if err != nil {
		f.logger.Warnw("forwarding output to nats failed", "subject", f.Subject(out), "error", err)
	}
}

// Close flushes pending publishes and closes the connection.
func (f *NATSForwarder) Close() error {
	return f.conn.Drain()
}

func encodeOutput(out Output) ([]byte, error) {
	return json.Marshal(out)
}

// fanout forwards to every member.
type fanout []Forwarder

func (t fanout) Forward(out Output) {
	for _, f := range t {
		f.Forward(out)
	}
}

func (t fanout) Close() error {
	var err error
	for _, f := range t {
		err = multierr.Append(err, f.Close())
	}
	return err
}
