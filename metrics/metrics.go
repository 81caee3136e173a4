// Package metrics exposes scheduler activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/logger"
	"github.com/teranos/nightshift/scheduler/job"
)

// Sink records job transitions and runs. It observes the job queue and the
// scheduler run lifecycle. Registration errors are logged and never
// propagated.
type Sink struct {
	log *zap.SugaredLogger

	stateTransitions *prometheus.CounterVec
	stageTransitions *prometheus.CounterVec
	jobScore         *prometheus.GaugeVec
	runsTotal        *prometheus.CounterVec
	running          prometheus.Gauge
	runDuration      prometheus.Histogram

	mu      sync.Mutex
	started map[string]time.Time
}

// NewSink creates the collectors and registers them with reg.
func NewSink(reg prometheus.Registerer, log *zap.SugaredLogger) *Sink {
	s := &Sink{log: log, started: make(map[string]time.Time)}

	s.stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nightshift_job_state_transitions_total",
		Help: "Total number of job state changes by new state.",
	}, []string{"state"})
	s.stageTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nightshift_job_stage_transitions_total",
		Help: "Total number of job pipeline stage changes by new stage.",
	}, []string{"stage"})
	s.jobScore = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nightshift_job_score",
		Help: "Last evaluation score of each job.",
	}, []string{"job"})
	s.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nightshift_runs_total",
		Help: "Total number of finished scheduler runs by outcome.",
	}, []string{"outcome"})
	s.running = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nightshift_run_active",
		Help: "1 while a scheduler run is in progress.",
	})
	s.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nightshift_run_duration_seconds",
		Help:    "Duration of finished scheduler runs in seconds.",
		Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800, 43200},
	})

	for name, c := range map[string]prometheus.Collector{
		"nightshift_job_state_transitions_total": s.stateTransitions,
		"nightshift_job_stage_transitions_total": s.stageTransitions,
		"nightshift_job_score":                   s.jobScore,
		"nightshift_runs_total":                  s.runsTotal,
		"nightshift_run_active":                  s.running,
		"nightshift_run_duration_seconds":        s.runDuration,
	} {
		if err := reg.Register(c); err != nil {
			log.Warnw("Failed to register metric", "metric", name, logger.FieldError, err)
		}
	}
	return s
}

func (s *Sink) JobStateChanged(j *job.Job, from, to job.State) {
	s.stateTransitions.WithLabelValues(to.String()).Inc()
}

func (s *Sink) JobStageChanged(j *job.Job, from, to job.Stage) {
	s.stageTransitions.WithLabelValues(to.String()).Inc()
}

func (s *Sink) JobScoreChanged(j *job.Job, score int16) {
	s.jobScore.WithLabelValues(j.Name).Set(float64(score))
}

func (s *Sink) RunStarted(id, schedule string, at time.Time) {
	s.mu.Lock()
	s.started[id] = at
	s.mu.Unlock()
	s.running.Set(1)
}

func (s *Sink) RunStopped(id string, at time.Time, outcome string) {
	s.mu.Lock()
	start, ok := s.started[id]
	delete(s.started, id)
	s.mu.Unlock()

	s.running.Set(0)
	s.runsTotal.WithLabelValues(outcome).Inc()
	if ok {
		s.runDuration.Observe(at.Sub(start).Seconds())
	}
}

// Serve exposes the metrics gathered by g on addr at /metrics until ctx is
// cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log *zap.SugaredLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Infow("Metrics endpoint listening", logger.FieldAddress, addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrapf(err, "metrics endpoint %s", addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "metrics endpoint shutdown")
	}
	return nil
}
