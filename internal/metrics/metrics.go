package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type SetupMetrics interface {
	SetupStarted(format string)
	CommandRejected(reason string)
	SetupCompleted(format string)
	FinalizeElapsed(elapsed time.Duration)
	ProvisioningFailed(step string)
}

func NewMetrics(registry *prometheus.Registry) SetupMetrics {
	return setupPrometheusMetrics(registry)
}
