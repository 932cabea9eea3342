package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeAccepted       = "accepted"
	outcomeOriginRejected = "origin_rejected"
	outcomeSchemaFailed   = "schema_validation_failed"
	outcomeNotMounted     = "not_mounted"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	Messages           *prometheus.CounterVec
	Deliveries         prometheus.Counter
	SubscriberFailures prometheus.Counter
	MountedFrames      prometheus.Gauge
}

// NewMetrics registers the gateway collectors with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "switchboard_frame_messages_total",
			Help: "Frame messages handled by the gateway, by outcome",
		}, []string{"outcome"}),
		Deliveries: f.NewCounter(prometheus.CounterOpts{
			Name: "switchboard_frame_deliveries_total",
			Help: "Subscriber invocations for accepted frame messages",
		}),
		SubscriberFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "switchboard_frame_subscriber_failures_total",
			Help: "Subscriber invocations that panicked",
		}),
		MountedFrames: f.NewGauge(prometheus.GaugeOpts{
			Name: "switchboard_mounted_frames",
			Help: "Module instances currently mounted",
		}),
	}
}
