package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	workerStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botherd",
			Subsystem: "worker",
			Name:      "starts_total",
			Help:      "Number of successful worker launches.",
		}, []string{"worker"},
	)
	workerRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botherd",
			Subsystem: "worker",
			Name:      "restarts_total",
			Help:      "Number of crash-triggered relaunches.",
		}, []string{"worker"},
	)
	workerCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botherd",
			Subsystem: "worker",
			Name:      "crashes_total",
			Help:      "Number of unexpected worker exits.",
		}, []string{"worker"},
	)
	workerStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botherd",
			Subsystem: "worker",
			Name:      "stops_total",
			Help:      "Number of worker exits of any kind.",
		}, []string{"worker"},
	)
	runningWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "botherd",
			Subsystem: "worker",
			Name:      "running",
			Help:      "Number of workers currently running.",
		},
	)
)

// Register registers all collectors with r. Safe to call more than once;
// calls after the first success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{workerStarts, workerRestarts, workerCrashes, workerStops, runningWorkers}
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

func IncStart(worker string)   { workerStarts.WithLabelValues(worker).Inc() }
func IncRestart(worker string) { workerRestarts.WithLabelValues(worker).Inc() }
func IncCrash(worker string)   { workerCrashes.WithLabelValues(worker).Inc() }
func IncStop(worker string)    { workerStops.WithLabelValues(worker).Inc() }
func RunningAdd(d float64)     { runningWorkers.Add(d) }

// Handler exposes the default registry for mounting at /metrics.
func Handler() http.Handler { return promhttp.Handler() }
