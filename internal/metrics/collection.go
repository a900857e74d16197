package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type prometheusMetrics struct {
	setupsStarted      *prometheus.CounterVec
	commandsRejected   *prometheus.CounterVec
	setupsCompleted    *prometheus.CounterVec
	finalizeElapsed    prometheus.Histogram
	provisioningFailed *prometheus.CounterVec
}

func setupPrometheusMetrics(registry *prometheus.Registry) prometheusMetrics {
	factory := promauto.With(registry)

	return prometheusMetrics{
		setupsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "matchsetup_setups_started_total",
			Help: "Setups started, by series format",
		}, []string{"format"}),
		commandsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "matchsetup_commands_rejected_total",
			Help: "Selections rejected without changing a setup, by reason",
		}, []string{"reason"}),
		setupsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "matchsetup_setups_completed_total",
			Help: "Setups persisted as completed, by series format",
		}, []string{"format"}),
		finalizeElapsed: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "matchsetup_finalize_elapsed_time_ms",
			Help:    "Time spent persisting a completed setup in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		provisioningFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "matchsetup_provisioning_failed_total",
			Help: "Server provisioning failures after a setup completed, by step",
		}, []string{"step"}),
	}
}

func (m prometheusMetrics) SetupStarted(format string) {
	m.setupsStarted.With(prometheus.Labels{"format": format}).Inc()
}

func (m prometheusMetrics) CommandRejected(reason string) {
	m.commandsRejected.With(prometheus.Labels{"reason": reason}).Inc()
}

func (m prometheusMetrics) SetupCompleted(format string) {
	m.setupsCompleted.With(prometheus.Labels{"format": format}).Inc()
}

func (m prometheusMetrics) FinalizeElapsed(elapsed time.Duration) {
	m.finalizeElapsed.Observe(float64(elapsed.Milliseconds()))
}

func (m prometheusMetrics) ProvisioningFailed(step string) {
	m.provisioningFailed.With(prometheus.Labels{"step": step}).Inc()
}
