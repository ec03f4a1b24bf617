package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// Metrics exposes broker activity.
type Metrics struct {
	Resources          *prometheus.GaugeVec
	Operations         prometheus.Gauge
	Outcomes           *prometheus.CounterVec
	DuplicateTerminals prometheus.Counter
	DroppedFeedback    prometheus.Counter
	Messages           *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		Resources: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ros_bridge",
				Subsystem: "registry",
				Name:      "resources",
				Help:      "Live resources by kind",
			},
			[]string{"kind"},
		),
		Operations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ros_bridge",
				Subsystem: "broker",
				Name:      "operations_in_flight",
				Help:      "Operations whose terminal event was not delivered yet",
			},
		),
		Outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ros_bridge",
				Subsystem: "broker",
				Name:      "outcomes_total",
				Help:      "Terminal operation outcomes by state",
			},
			[]string{"state"},
		),
		DuplicateTerminals: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ros_bridge",
				Subsystem: "broker",
				Name:      "duplicate_terminals_total",
				Help:      "Terminal events discarded because the operation had already finished",
			},
		),
		DroppedFeedback: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ros_bridge",
				Subsystem: "broker",
				Name:      "dropped_feedback_total",
				Help:      "Feedback messages discarded because they arrived after the result",
			},
		),
		Messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ros_bridge",
				Subsystem: "topics",
				Name:      "messages_total",
				Help:      "Topic messages by direction",
			},
			[]string{"direction"},
		),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	var err error
	for _, c := range []prometheus.Collector{
		m.Resources, m.Operations, m.Outcomes, m.DuplicateTerminals, m.DroppedFeedback, m.Messages,
	} {
		err = multierr.Append(err, reg.Register(c))
	}
	return err
}
