// Package nodes holds the Viam components bridging DoCommand and sensor
// readings to a ROS graph.
package nodes

import (
	"context"

	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	"github.com/brokenrobotz/viam-ros-bridge/bridge"
)

// Component models.
var (
	PublisherModel     = resource.NewModel("brokenrobotz", "ros", "publisher")
	SubscriberModel    = resource.NewModel("brokenrobotz", "ros", "subscriber")
	ServiceClientModel = resource.NewModel("brokenrobotz", "ros", "service-client")
	ActionClientModel  = resource.NewModel("brokenrobotz", "ros", "action-client")
)

// Entry pairs an API with a model registered by Register.
type Entry struct {
	API   resource.API
	Model resource.Model
}

// Register adds every component model to the resource registry. All of them
// reach the graph through rt.
func Register(rt *bridge.Runtime) []Entry {
	resource.RegisterComponent(
		generic.API,
		PublisherModel,
		resource.Registration[resource.Resource, *Config]{
			Constructor: func(ctx context.Context, _ resource.Dependencies, conf resource.Config, logger logging.Logger) (resource.Resource, error) {
				c, err := NewPublisher(ctx, rt, conf, logger)
				if err != nil {
					return nil, err
				}
				return c, nil
			},
		},
	)
	resource.RegisterComponent(
		sensor.API,
		SubscriberModel,
		resource.Registration[sensor.Sensor, *Config]{
			Constructor: func(ctx context.Context, _ resource.Dependencies, conf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
				c, err := NewSubscriber(ctx, rt, conf, nil, logger)
				if err != nil {
					return nil, err
				}
				return c, nil
			},
		},
	)
	resource.RegisterComponent(
		generic.API,
		ServiceClientModel,
		resource.Registration[resource.Resource, *Config]{
			Constructor: func(ctx context.Context, _ resource.Dependencies, conf resource.Config, logger logging.Logger) (resource.Resource, error) {
				c, err := NewServiceClient(ctx, rt, conf, logger)
				if err != nil {
					return nil, err
				}
				return c, nil
			},
		},
	)
	resource.RegisterComponent(
		generic.API,
		ActionClientModel,
		resource.Registration[resource.Resource, *Config]{
			Constructor: func(ctx context.Context, _ resource.Dependencies, conf resource.Config, logger logging.Logger) (resource.Resource, error) {
				c, err := NewActionClient(ctx, rt, conf, logger)
				if err != nil {
					return nil, err
				}
				return c, nil
			},
		},
	)

	entries := []Entry{
		{API: generic.API, Model: PublisherModel},
		{API: sensor.API, Model: SubscriberModel},
		{API: generic.API, Model: ServiceClientModel},
		{API: generic.API, Model: ActionClientModel},
	}
	for _, p := range Presets {
		p := p
		resource.RegisterComponent(
			sensor.API,
			p.Model,
			resource.Registration[sensor.Sensor, *SensorConfig]{
				Constructor: func(ctx context.Context, _ resource.Dependencies, conf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
					c, err := NewSubscriber(ctx, rt, conf, p, logger)
					if err != nil {
						return nil, err
					}
					return c, nil
				},
			},
		)
		entries = append(entries, Entry{API: sensor.API, Model: p.Model})
	}
	return entries
}
