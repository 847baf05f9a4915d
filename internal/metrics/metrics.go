// Package metrics records pipeline counters and latencies on a private
// registry and exports them as a Prometheus textfile at the end of a run.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ideaforge"

// Recorder holds the pipeline's collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	stageAttempts  *prometheus.CounterVec
	stageLatency   *prometheus.HistogramVec
	stageExhausted *prometheus.CounterVec
	documents      *prometheus.CounterVec
	chunks         prometheus.Counter
	reports        *prometheus.CounterVec
	runDuration    prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		stageAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_attempts_total",
			Help:      "Analysis engine calls per stage, by outcome",
		}, []string{"stage", "outcome"}),
		stageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_attempt_duration_seconds",
			Help:      "Latency of a single stage attempt",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage"}),
		stageExhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_exhausted_total",
			Help:      "Stage invocations that used every attempt without success",
		}, []string{"stage"}),
		documents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents by terminal state",
		}, []string{"state"}),
		chunks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks sent to the Miner stage",
		}),
		reports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cluster_reports_total",
			Help:      "Cluster architecture reports, by outcome",
		}, []string{"outcome"}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// StageAttempt records one engine call for a stage.
func (r *Recorder) StageAttempt(stage string, ok bool, elapsed time.Duration) {
	if r == nil {
		return
	}
	outcome := "error"
	if ok {
		outcome = "success"
	}
	r.stageAttempts.WithLabelValues(stage, outcome).Inc()
	r.stageLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// StageExhausted records a stage that ran out of attempts.
func (r *Recorder) StageExhausted(stage string) {
	if r == nil {
		return
	}
	r.stageExhausted.WithLabelValues(stage).Inc()
}

// Chunks adds n mined chunks.
func (r *Recorder) Chunks(n int) {
	if r == nil {
		return
	}
	r.chunks.Add(float64(n))
}

// Document records a document reaching a terminal state.
func (r *Recorder) Document(state string) {
	if r == nil {
		return
	}
	r.documents.WithLabelValues(state).Inc()
}

// Report records a cluster report outcome.
func (r *Recorder) Report(ok bool) {
	if r == nil {
		return
	}
	outcome := "failed"
	if ok {
		outcome = "written"
	}
	r.reports.WithLabelValues(outcome).Inc()
}

// RunDuration sets the wall time of the run.
func (r *Recorder) RunDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.runDuration.Set(d.Seconds())
}

// WriteTextfile writes every collected metric to path in the text exposition
// format, for pickup by a node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
