package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Start outcomes used as the "outcome" label.
const (
	OutcomeAlreadyRunning = "already_running"
	OutcomeStarted        = "started"
	OutcomeDied           = "died"
	OutcomeTimeout        = "timeout"
	OutcomeLaunchError    = "launch_error"
	OutcomeInvalid        = "invalid"
)

// Stop modes used as the "mode" label.
const (
	StopGraceful = "graceful"
	StopForced   = "forced"
	StopNoop     = "noop"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serverStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "harness",
			Subsystem: "server",
			Name:      "starts_total",
			Help:      "StartIfNeeded calls by outcome.",
		}, []string{"outcome"},
	)
	serverStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "harness",
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "StopIfStarted calls by mode (graceful, forced, noop).",
		}, []string{"mode"},
	)
	readyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "harness",
			Subsystem: "server",
			Name:      "ready_duration_seconds",
			Help:      "Time from spawn until the server port accepted connections.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
	probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "harness",
			Subsystem: "server",
			Name:      "probes_total",
			Help:      "TCP reachability probes by result.",
		}, []string{"result"},
	)
	owned = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "harness",
			Subsystem: "server",
			Name:      "owned",
			Help:      "Server processes currently owned by supervisors in this process.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serverStarts, serverStops, readyDuration, probes, owned}
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

// Handler serves the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves the given gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// The helpers below no-op until Register has succeeded.

func IncStart(outcome string) {
	if regOK.Load() {
		serverStarts.WithLabelValues(outcome).Inc()
	}
}

func IncStop(mode string) {
	if regOK.Load() {
		serverStops.WithLabelValues(mode).Inc()
	}
}

func ObserveReady(seconds float64) {
	if regOK.Load() {
		readyDuration.Observe(seconds)
	}
}

func IncProbe(open bool) {
	if !regOK.Load() {
		return
	}
	if open {
		probes.WithLabelValues("open").Inc()
	} else {
		probes.WithLabelValues("closed").Inc()
	}
}

// IncOwned counts one more owned server and reports whether it was recorded.
// Pass that result to DecOwned so a handle owned before Register never goes negative.
func IncOwned() bool {
	if !regOK.Load() {
		return false
	}
	owned.Inc()
	return true
}

func DecOwned(counted bool) {
	if counted && regOK.Load() {
		owned.Dec()
	}
}
