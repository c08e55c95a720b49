// Package metrics exposes Prometheus counters for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the session relay.
type Metrics struct {
	SessionsActive  prometheus.Gauge
	SessionsTotal   prometheus.Counter
	ProtocolErrors  prometheus.Counter
	PipelineErrors  prometheus.Counter
	FramesTotal     *prometheus.CounterVec
	AudioBytesTotal prometheus.Counter
	Transcripts     *prometheus.CounterVec
	Broadcasts      prometheus.Counter
	DeliveryErrors  prometheus.Counter
}

// NewMetrics creates and registers all relay metrics on the default
// registry. Call once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "medlink_sessions_active",
			Help: "Current number of connected relay sessions",
		}),
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medlink_sessions_total",
			Help: "Total number of relay sessions accepted",
		}),
		ProtocolErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medlink_protocol_errors_total",
			Help: "Total number of sessions closed for protocol violations",
		}),
		PipelineErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medlink_pipeline_errors_total",
			Help: "Total number of sessions closed by transcoder or recognizer failures",
		}),
		FramesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medlink_frames_total",
			Help: "Total inbound frames by classified kind",
		}, []string{"kind"}),
		AudioBytesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medlink_audio_bytes_total",
			Help: "Total compressed audio bytes accepted from clients",
		}),
		Transcripts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medlink_transcript_events_total",
			Help: "Total transcript events relayed, partial and final",
		}, []string{"kind"}),
		Broadcasts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medlink_broadcasts_total",
			Help: "Total room broadcasts performed",
		}),
		DeliveryErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medlink_delivery_errors_total",
			Help: "Total broadcast deliveries that failed and were skipped",
		}),
	}
}
