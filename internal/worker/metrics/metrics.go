// Package metrics collects batch metrics for one render run and pushes them
// to a Prometheus Pushgateway when the run ends.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"manimrender/internal/pkg/errors"
)

const JobName = "manimrender"

// Batch holds the collectors of a single run on a private registry.
type Batch struct {
	reg *prometheus.Registry

	JobsTotal     *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	JobsFound     prometheus.Gauge
	LastSuccess   prometheus.Gauge
	RunDuration   prometheus.Gauge
}

func New() *Batch {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Batch{
		reg: reg,
		JobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "manimrender_jobs_total",
			Help: "Jobs processed in the run, by terminal status",
		}, []string{"status"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "manimrender_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		JobsFound: f.NewGauge(prometheus.GaugeOpts{
			Name: "manimrender_jobs_found",
			Help: "Pending jobs returned by the last fetch",
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "manimrender_last_success_timestamp_seconds",
			Help: "Unix time the last run finished without a fetch error",
		}),
		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "manimrender_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
	}
}

func (b *Batch) JobFinished(status string) {
	b.JobsTotal.WithLabelValues(status).Inc()
}

func (b *Batch) ObserveStage(stage string, d time.Duration) {
	b.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RunFinished records the end of a run. ok is false when the fetch failed.
func (b *Batch) RunFinished(found int, elapsed time.Duration, ok bool) {
	b.JobsFound.Set(float64(found))
	b.RunDuration.Set(elapsed.Seconds())
	if ok {
		b.LastSuccess.SetToCurrentTime()
	}
}

// Push replaces the metrics of this job on the gateway.
func (b *Batch) Push(ctx context.Context, gatewayURL, instance string) error {
	p := push.New(gatewayURL, JobName).Gatherer(b.reg)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.PushContext(ctx); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "metrics.push", "push to "+gatewayURL)
	}
	return nil
}

func (b *Batch) Registry() *prometheus.Registry { return b.reg }
