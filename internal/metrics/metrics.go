// Package metrics exposes Prometheus collectors for FORM runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alexshd/reliability"
)

const namespace = "form"

// Collectors records finished runs. Register it with a registry and pass
// Observe as the batch observer.
type Collectors struct {
	Runs        *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	Iterations  prometheus.Histogram
	Evaluations prometheus.Histogram
	Beta        *prometheus.GaugeVec
}

func New() *Collectors {
	return &Collectors{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "total",
				Help:      "FORM runs by final state",
			},
			[]string{"state"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "duration_seconds",
				Help:      "Wall time of a FORM run",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 18), // 100µs to ~13s
			},
			[]string{"state"},
		),
		Iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "iterations",
			Help:      "Nearest-point solver iterations per run",
			Buckets:   prometheus.LinearBuckets(0, 5, 21),
		}),
		Evaluations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "evaluations",
			Help:      "Limit-state evaluations per converged run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
		Beta: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "hasofer_index",
				Help:      "Hasofer-Lind reliability index of the last converged run of a study",
			},
			[]string{"study"},
		),
	}
}

// Register adds every collector to r.
func (c *Collectors) Register(r prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.Runs, c.Duration, c.Iterations, c.Evaluations, c.Beta} {
		if err := r.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// Observe records one batch result. It is safe for concurrent use.
func (c *Collectors) Observe(r reliability.BatchResult) {
	state := string(r.State)
	c.Runs.WithLabelValues(state).Inc()
	c.Duration.WithLabelValues(state).Observe(r.Duration.Seconds())
	c.Iterations.Observe(float64(len(r.History)))
	if r.Result != nil {
		c.Evaluations.Observe(float64(r.Result.Evaluations()))
		c.Beta.WithLabelValues(r.Name).Set(r.Result.HasoferReliabilityIndex())
	}
}
