package output

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galias/stressline/internal/performance/engine"
	"github.com/galias/stressline/internal/performance/executor"
	"github.com/galias/stressline/internal/performance/metrics"
	"github.com/galias/stressline/internal/performance/threshold"
	"github.com/galias/stressline/internal/scenario"
)

func newTestConsole(buf *bytes.Buffer, quiet bool) *ConsoleOutput {
	return NewConsoleOutput(ConsoleOutputConfig{Writer: buf, NoColor: true, Quiet: quiet})
}

func sampleResult(passed bool) *engine.TestResult {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	thresholds := []threshold.Result{
		{Metric: "http_req_duration", Expression: "p(95)<2000", Source: "p(95)", Passed: passed, Actual: 2500, Value: "2500.00ms"},
		{Metric: "http_req_failed", Expression: "rate<0.05", Source: "rate", Passed: true, Actual: 0.01, Value: "1.00%"},
	}
	if !passed {
		thresholds[0].Message = "p(95) is 2500.00ms, threshold: < 2000.00ms"
	}

	return &engine.TestResult{
		RunID:     "run-1",
		Name:      "stress-test",
		Target:    "$APP_URL",
		StartTime: start,
		EndTime:   start.Add(220 * time.Second),
		Duration:  220 * time.Second,
		Metrics: &metrics.Snapshot{
			HTTPReqs:      1000,
			HTTPReqFailed: 10,
			DataReceived:  2_500_000,
			Iterations:    1000,
			ChecksPassed:  990,
			ChecksFailed:  10,
			HTTPReqDuration: metrics.TrendStats{
				Count: 1000, Min: time.Millisecond, Max: 3 * time.Second,
				Avg: 120 * time.Millisecond, Med: 80 * time.Millisecond,
				P90: 1500 * time.Millisecond, P95: 2500 * time.Millisecond,
			},
			ErrorRate: 0.01,
			CheckRate: 0.99,
			VUsMax:    500,
			Elapsed:   200 * time.Second,
		},
		Checks: []metrics.CheckStats{
			{Name: scenario.StatusCheckName, Passes: 990, Fails: 10},
		},
		Phases: []metrics.PhaseChange{
			{Phase: metrics.PhaseRampUp, Stage: "ramp-up", Timestamp: start},
			{Phase: metrics.PhaseDone, Timestamp: start.Add(220 * time.Second)},
		},
		Thresholds: thresholds,
		Passed:     passed,
	}
}

func TestPrintHeader(t *testing.T) {
	var buf bytes.Buffer
	sc, err := scenario.Stress(scenario.EnvTarget{})
	require.NoError(t, err)

	newTestConsole(&buf, false).PrintHeader(sc)

	out := buf.String()
	assert.Contains(t, out, "stress-test - Running [ramping-vus]")
	assert.Contains(t, out, "$APP_URL")
	assert.Contains(t, out, "max VUs:       500")
	assert.Contains(t, out, "ramp-up to 300 VUs over 30.0s")
	assert.Contains(t, out, "stress to 500 VUs over 3m 00s")
	assert.Contains(t, out, "ramp-down to 0 VUs over 10.0s")
	assert.NotContains(t, out, "\033[")
}

func TestPrintSummary_Failed(t *testing.T) {
	var buf bytes.Buffer
	newTestConsole(&buf, false).PrintSummary(sampleResult(false))

	out := buf.String()
	assert.Contains(t, out, "stress-test - FAILED ✗")
	assert.Contains(t, out, "✗ status was 200")
	assert.Contains(t, out, "99%  ✓ 990 / ✗ 10")
	assert.Contains(t, out, "http_req_duration...............: avg=120.00ms")
	assert.Contains(t, out, "p(95)=2.50s")
	assert.Contains(t, out, "✗ { p(95)<2000 }")
	assert.Contains(t, out, "✓ { rate<0.05 }")
	assert.Contains(t, out, "data_received")
	assert.Contains(t, out, "2.5 MB")
	assert.Contains(t, out, "Thresholds crossed:")
	assert.Contains(t, out, "p(95) is 2500.00ms, threshold: < 2000.00ms")

	// Metrics are listed alphabetically.
	assert.Less(t, strings.Index(out, "checks..."), strings.Index(out, "http_reqs..."))
	assert.Less(t, strings.Index(out, "http_reqs..."), strings.Index(out, "vus..."))
}

func TestPrintSummary_Passed(t *testing.T) {
	var buf bytes.Buffer
	result := sampleResult(true)
	result.Checks[0].Fails = 0
	newTestConsole(&buf, false).PrintSummary(result)

	out := buf.String()
	assert.Contains(t, out, "PASSED ✓")
	assert.Contains(t, out, "✓ status was 200")
	assert.NotContains(t, out, "Thresholds crossed:")
}

func TestPrintSummary_Quiet(t *testing.T) {
	var buf bytes.Buffer
	newTestConsole(&buf, true).PrintSummary(sampleResult(false))
	assert.Equal(t, "FAILED ✗\n", buf.String())

	buf.Reset()
	aborted := sampleResult(true)
	aborted.Aborted = true
	newTestConsole(&buf, true).PrintSummary(aborted)
	assert.Equal(t, "ABORTED\n", buf.String())
}

func TestUpdate_NonTTYPrintsOneLine(t *testing.T) {
	var buf bytes.Buffer
	c := newTestConsole(&buf, false)
	require.False(t, c.IsTTY())

	c.Update(&LiveStats{
		Progress:      0.5,
		Elapsed:       110 * time.Second,
		ActiveVUs:     400,
		TargetVUs:     400,
		TotalRequests: 1234,
		CurrentRPS:    98.7,
		Errors:        3,
		ErrorRate:     0.0024,
		LatencyP95:    250 * time.Millisecond,
		CurrentPhase:  "ramp-up",
	})

	assert.Equal(t,
		"[1m 50s] 50% | ramp-up | VUs: 400/400 | Reqs: 1234 | RPS: 98.7 | Errors: 3 (0.2%) | P95: 250.00ms\n",
		buf.String())
}

func TestUpdate_TTYRedraws(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf, NoColor: true, ForceTTY: true})

	stats := &LiveStats{Progress: 0.25, CurrentPhase: "ramp-up", CurrentStage: 1, StageName: "ramp-up", TotalStages: 3}
	c.Update(stats)
	first := buf.String()
	assert.Contains(t, first, "Progress: [")
	assert.Contains(t, first, "Stage:    ramp-up ramp-up (1/3)")
	assert.NotContains(t, first, clearLine)

	c.Update(stats)
	assert.Contains(t, buf.String()[len(first):], clearLine)
}

func TestWatch(t *testing.T) {
	var buf bytes.Buffer
	c := newTestConsole(&buf, false)

	var polls atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := c.Watch(ctx, 10*time.Millisecond, func() *LiveStats {
		polls.Add(1)
		return &LiveStats{CurrentPhase: "steady"}
	})
	require.NoError(t, err)
	assert.Greater(t, polls.Load(), int32(0))
	assert.Contains(t, buf.String(), "steady")
}

func TestStatsFromEngine(t *testing.T) {
	live := StatsFromEngine(nil, nil, 0)
	assert.Equal(t, "init", live.CurrentPhase)

	snap := &metrics.Snapshot{
		HTTPReqs: 10, HTTPReqFailed: 1, ErrorRate: 0.1, VUs: 5, RPS: 2.5,
		CurrentPhase:    metrics.PhaseSteady,
		Elapsed:         4 * time.Second,
		HTTPReqDuration: metrics.TrendStats{P95: time.Second, Avg: 500 * time.Millisecond},
	}
	stats := &executor.Stats{
		TargetVUs: 6, CurrentStage: 1, CurrentStageName: "stress", TotalStages: 3,
		Elapsed: 4 * time.Second, TotalDuration: 10 * time.Second,
	}

	live = StatsFromEngine(snap, stats, 0.4)
	assert.Equal(t, 0.4, live.Progress)
	assert.Equal(t, 5, live.ActiveVUs)
	assert.Equal(t, 6, live.TargetVUs)
	assert.Equal(t, 2, live.CurrentStage)
	assert.Equal(t, "stress", live.StageName)
	assert.Equal(t, 6*time.Second, live.Remaining)
	assert.Equal(t, int64(1), live.Errors)
	assert.Equal(t, time.Second, live.LatencyP95)
	assert.Equal(t, "steady", live.CurrentPhase)
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "500ms", formatDuration(500*time.Millisecond))
	assert.Equal(t, "30.0s", formatDuration(30*time.Second))
	assert.Equal(t, "3m 40s", formatDuration(220*time.Second))
	assert.Equal(t, "1h 00m 01s", formatDuration(time.Hour+time.Second))

	assert.Equal(t, "0ms", formatDurationShort(0))
	assert.Equal(t, "250µs", formatDurationShort(250*time.Microsecond))
	assert.Equal(t, "12.50ms", formatDurationShort(12500*time.Microsecond))
	assert.Equal(t, "2.50s", formatDurationShort(2500*time.Millisecond))

	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1,234,567", formatNumber(1234567))

	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 kB", formatBytes(1500))
	assert.Equal(t, "2.5 MB", formatBytes(2_500_000))

	assert.Equal(t, "[██████████]", progressBar(2, 10))
	assert.Equal(t, "[░░░░░░░░░░]", progressBar(-1, 10))
}
