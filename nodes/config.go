package nodes

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/brokenrobotz/viam-ros-bridge/bridge"
	"github.com/brokenrobotz/viam-ros-bridge/qos"
	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

// Owner is the tag every component shares its node under.
const Owner = "viam-ros-bridge"

// Config is the attribute set common to every bridge component.
type Config struct {
	PrimaryURI string `json:"primary_uri"`
	NodeName   string `json:"node_name,omitempty"`
	Namespace  string `json:"namespace,omitempty"`
	Host       string `json:"host,omitempty"`
	DomainID   int    `json:"domain_id,omitempty"`
	// Mode is one of shared, direct or auto (default).
	Mode string `json:"mode,omitempty"`

	Topic string         `json:"topic,omitempty"`
	Type  string         `json:"type"`
	QoS   []qos.Property `json:"qos,omitempty"`

	// TimeoutMS bounds service calls and goals. Zero waits forever.
	TimeoutMS int `json:"timeout_ms,omitempty"`

	ForwardNATSURL string `json:"forward_nats_url,omitempty"`
	ForwardSubject string `json:"forward_subject,omitempty"`
}

// Validate checks the attributes of the component at path.
func (cfg *Config) Validate(path string) ([]string, error) {
	if strings.TrimSpace(cfg.PrimaryURI) == "" {
		return nil, errors.Wrapf(ros.ErrConfigMissing, `expected "primary_uri" attribute for %q`, path)
	}
	if strings.TrimSpace(cfg.Type) == "" {
		return nil, errors.Wrapf(ros.ErrConfigMissing, `expected "type" attribute for %q`, path)
	}
	return nil, cfg.validateCommon(path)
}

func (cfg *Config) validateCommon(path string) error {
	if _, err := bridge.ParseMode(cfg.Mode); err != nil {
		return errors.Wrapf(err, "component %q", path)
	}
	if _, err := qos.Translate(cfg.QoS); err != nil {
		return errors.Wrapf(err, "component %q", path)
	}
	if cfg.TimeoutMS < 0 {
		return errors.Errorf(`"timeout_ms" must not be negative for %q`, path)
	}
	return nil
}

// SensorConfig configures the fixed-type topic sensors.
type SensorConfig struct {
	Config
}

// Validate checks the attributes of the sensor at path. Type is optional.
func (cfg *SensorConfig) Validate(path string) ([]string, error) {
	// NodeName will get default value if string is empty
	if strings.TrimSpace(cfg.PrimaryURI) == "" {
		return nil, errors.Wrapf(ros.ErrConfigMissing, `expected "primary_uri" attribute for sensor %q`, path)
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.Wrapf(ros.ErrConfigMissing, `expected "topic" attribute for sensor %q`, path)
	}
	return nil, cfg.validateCommon(path)
}

func (cfg *Config) nodeConf() ros.NodeConf {
	return ros.NodeConf{
		Owner:         Owner,
		MasterAddress: strings.TrimSpace(cfg.PrimaryURI),
		Namespace:     cfg.Namespace,
		Name:          cfg.NodeName,
		Host:          cfg.Host,
		DomainID:      cfg.DomainID,
	}
}

func (cfg *Config) endpoint(kind ros.Kind) (ros.Endpoint, error) {
	ep := ros.Endpoint{Kind: kind, TypeName: strings.TrimSpace(cfg.Type), Name: strings.TrimSpace(cfg.Topic)}
	if kind == ros.KindPublisher || kind == ros.KindSubscriber {
		policy, err := qos.Translate(cfg.QoS)
		if err != nil {
			return ros.Endpoint{}, err
		}
		ep.QoS = policy
	}
	return ep, nil
}

func (cfg *Config) timeout() time.Duration {
	return time.Duration(cfg.TimeoutMS) * time.Millisecond
}
