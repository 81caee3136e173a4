package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/nightshift/scheduler/job"
)

func newTestSink(t *testing.T) (*Sink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewSink(reg, zaptest.NewLogger(t).Sugar()), reg
}

func TestJobTransitions(t *testing.T) {
	s, _ := newTestSink(t)
	j := job.New("M 42")
	j.Observe(s)

	j.SetState(job.StateScheduled)
	j.SetState(job.StateBusy)
	j.SetStage(job.StageSlewing)
	j.SetStage(job.StageSlewComplete)
	j.SetScore(17)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.stateTransitions.WithLabelValues("BUSY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.stateTransitions.WithLabelValues("SCHEDULED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.stageTransitions.WithLabelValues("SLEW_COMPLETE")))
	assert.Equal(t, 17.0, testutil.ToFloat64(s.jobScore.WithLabelValues("M 42")))
}

func TestRunLifecycle(t *testing.T) {
	s, reg := newTestSink(t)
	start := time.Date(2025, 1, 15, 21, 0, 0, 0, time.UTC)

	s.RunStarted("run-1", "night.esl", start)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.running))

	s.RunStopped("run-1", start.Add(2*time.Hour), "complete")
	assert.Equal(t, 0.0, testutil.ToFloat64(s.running))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.runsTotal.WithLabelValues("complete")))

	expected := `
# HELP nightshift_runs_total Total number of finished scheduler runs by outcome.
# TYPE nightshift_runs_total counter
nightshift_runs_total{outcome="complete"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "nightshift_runs_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(s.runDuration))
}

func TestDuplicateRegistrationIsLogged(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewSink(reg, zap.NewNop().Sugar())

	core, logs := observer.New(zap.WarnLevel)
	s := NewSink(reg, zap.New(core).Sugar())

	assert.Equal(t, 6, logs.FilterMessage("Failed to register metric").Len())
	// the second sink still works
	s.RunStarted("run-1", "night.esl", time.Now())
	assert.Equal(t, 1.0, testutil.ToFloat64(s.running))
}

func TestServeExposesMetrics(t *testing.T) {
	s, reg := newTestSink(t)
	s.RunStopped("run-1", time.Now(), "stopped")

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, reg, zaptest.NewLogger(t).Sugar()) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, body, `nightshift_runs_total{outcome="stopped"} 1`)

	cancel()
	require.NoError(t, <-done)
}
