package nodes

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	"github.com/brokenrobotz/viam-ros-bridge/bridge"
	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

// Subscriber is a sensor forwarding every message of a topic and reporting
// the latest one as its readings.
type Subscriber struct {
	*base

	preset *Preset

	msgMu    sync.Mutex
	msg      ros.Message
	received time.Time
	count    int
}

// NewSubscriber builds a subscriber component. preset is nil for the generic
// model.
func NewSubscriber(
	ctx context.Context,
	rt *bridge.Runtime,
	conf resource.Config,
	preset *Preset,
	logger logging.Logger,
) (*Subscriber, error) {
	s := &Subscriber{base: newBase(rt, conf, ros.KindSubscriber, logger), preset: preset}
	s.onMessage = s.processMessage
	if err := s.Reconfigure(ctx, nil, conf); err != nil {
		s.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Subscriber) Reconfigure(ctx context.Context, _ resource.Dependencies, conf resource.Config) error {
	cfg, err := s.config(conf)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgMu.Lock()
	s.msg, s.received = nil, time.Time{}
	s.msgMu.Unlock()
	return s.configure(ctx, cfg)
}

func (s *Subscriber) config(conf resource.Config) (*Config, error) {
	if s.preset == nil {
		return resource.NativeConfig[*Config](conf)
	}
	sc, err := resource.NativeConfig[*SensorConfig](conf)
	if err != nil {
		return nil, err
	}
	cfg := sc.Config
	if cfg.Type == "" {
		cfg.Type = s.preset.Type
	}
	return &cfg, nil
}

func (s *Subscriber) processMessage(msg ros.Message) {
	s.msgMu.Lock()
	s.msg = msg
	s.received = time.Now()
	s.count++
	s.msgMu.Unlock()

	topic := s.currentTopic()
	s.emit(Output{Port: PortPrimary, Kind: "message", Topic: topic, Payload: msg})
	s.status.Set(StateMessage, topic)
}

func (s *Subscriber) Readings(_ context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
	s.msgMu.Lock()
	msg, received, count := s.msg, s.received, s.count
	s.msgMu.Unlock()
	if msg == nil {
		return nil, errors.New("message not prepared")
	}

	if s.preset != nil && s.preset.Readings != nil {
		return plainMessage(s.preset.Readings(msg))
	}
	rendered, err := plainMessage(msg)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"topic":       s.currentTopic(),
		"message":     rendered,
		"received_at": received.Format(time.RFC3339Nano),
		"count":       count,
	}, nil
}

// DoCommand subscribes to {"topic": "..."} when no topic is configured.
func (s *Subscriber) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	if resp, ok, err := s.common(ctx, cmd); ok {
		return resp, err
	}
	topic, ok := cmd["topic"].(string)
	if !ok {
		return nil, errors.Wrap(ros.ErrUnknownOperation, "expected \"topic\"")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, name, err := s.resolve(ctx, topic, false)
	if err != nil {
		return nil, err
	}
	s.status.Set(StateReady, name)
	return map[string]interface{}{"topic": name}, nil
}
