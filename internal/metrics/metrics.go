package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchman",
			Subsystem: "launcher",
			Name:      "launches_total",
			Help:      "Number of launch attempts by result.",
		}, []string{"result"},
	)
	terminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchman",
			Subsystem: "launcher",
			Name:      "terminations_total",
			Help:      "Number of termination attempts by result.",
		}, []string{"result"},
	)
	launchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "launchman",
			Subsystem: "launcher",
			Name:      "launch_duration_seconds",
			Help:      "Wall time of the spawn-and-discover sequence.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "launchman",
			Subsystem: "launcher",
			Name:      "queue_depth",
			Help:      "Requests currently waiting in the launch queue.",
		},
	)
	trackedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "launchman",
			Subsystem: "launcher",
			Name:      "tracked_clients",
			Help:      "Account keys currently bound to a live client process.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// Safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{launches, terminations, launchDuration, queueDepth, trackedClients}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// RegisterDefault registers with the default Prometheus registry.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler returns an http.Handler serving metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncLaunch(result string) {
	if regOK.Load() {
		launches.WithLabelValues(result).Inc()
	}
}

func IncTermination(result string) {
	if regOK.Load() {
		terminations.WithLabelValues(result).Inc()
	}
}

func ObserveLaunchDuration(seconds float64) {
	if regOK.Load() {
		launchDuration.Observe(seconds)
	}
}

func SetQueueDepth(n int) {
	if regOK.Load() {
		queueDepth.Set(float64(n))
	}
}

func SetTrackedClients(n int) {
	if regOK.Load() {
		trackedClients.Set(float64(n))
	}
}
