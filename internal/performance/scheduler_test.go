package performance_test

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galias/stressline/internal/performance"
	"github.com/galias/stressline/internal/performance/metrics"
	"github.com/galias/stressline/internal/scenario"
)

func newTestScheduler(t *testing.T, workload scenario.Func) (*performance.VUScheduler, *metrics.Engine) {
	t.Helper()
	engine := metrics.NewEngine()
	t.Cleanup(engine.Stop)
	logger, _ := test.NewNullLogger()
	return performance.NewVUScheduler(workload, engine, performance.DefaultHTTPClientConfig(), logger), engine
}

func TestDefaultHTTPClientConfig(t *testing.T) {
	cfg := performance.DefaultHTTPClientConfig()

	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, 1000, cfg.MaxIdleConns)
	assert.GreaterOrEqual(t, cfg.MaxIdleConnsPerHost, 500)
	assert.Equal(t, 0, cfg.MaxConnsPerHost)
	assert.True(t, cfg.UseSharedClient)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Equal(t, scenario.DefaultUserAgent, cfg.UserAgent)
}

func TestHTTPClientConfigFromOptions(t *testing.T) {
	cfg := performance.HTTPClientConfigFromOptions(scenario.HTTPOptions{
		Timeout:            5 * time.Second,
		InsecureSkipVerify: true,
		MaxConnsPerHost:    32,
		UserAgent:          "probe/2",
	})

	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Equal(t, 32, cfg.MaxConnsPerHost)
	assert.Equal(t, "probe/2", cfg.UserAgent)

	defaults := performance.HTTPClientConfigFromOptions(scenario.HTTPOptions{})
	assert.Equal(t, performance.DefaultHTTPClientConfig(), defaults)
}

func TestVUScheduler_SpawnVU(t *testing.T) {
	scheduler, _ := newTestScheduler(t, nil)

	vu1 := scheduler.SpawnVU()
	vu2 := scheduler.SpawnVU()

	assert.Equal(t, 1, vu1.ID)
	assert.Equal(t, 2, vu2.ID)
	assert.Same(t, vu1.HTTPClient, vu2.HTTPClient, "VUs share one client")
	assert.Equal(t, scenario.DefaultUserAgent, vu1.UserAgent)
	assert.Same(t, vu1, scheduler.GetVU(1))
	assert.Nil(t, scheduler.GetVU(99))
	assert.Equal(t, 2, scheduler.GetActiveVUCount())
}

func TestVUScheduler_SpawnVU_WithoutSharedClient(t *testing.T) {
	engine := metrics.NewEngine()
	defer engine.Stop()

	cfg := performance.DefaultHTTPClientConfig()
	cfg.UseSharedClient = false
	scheduler := performance.NewVUScheduler(nil, engine, cfg, nil)

	vu1 := scheduler.SpawnVU()
	vu2 := scheduler.SpawnVU()
	assert.NotSame(t, vu1.HTTPClient, vu2.HTTPClient)
}

func TestVUScheduler_RemoveVU(t *testing.T) {
	scheduler, _ := newTestScheduler(t, nil)

	vu := scheduler.SpawnVU()
	scheduler.RemoveVU(vu.ID)

	assert.Nil(t, scheduler.GetVU(vu.ID))
	assert.Equal(t, performance.VUStateStopped, vu.GetState())
	assert.Equal(t, 0, scheduler.GetActiveVUCount())
}

func TestVUScheduler_ScaleVUs(t *testing.T) {
	var running atomic.Int64
	workload := func(ctx context.Context, rt scenario.Runtime) error {
		running.Add(1)
		defer running.Add(-1)
		return rt.Sleep(ctx, 5*time.Millisecond)
	}
	scheduler, engine := newTestScheduler(t, workload)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Equal(t, 10, scheduler.ScaleVUs(ctx, 10))
	assert.Equal(t, 10, scheduler.GetActiveVUCount())
	assert.Equal(t, 10, engine.GetSnapshot().VUs)

	assert.Equal(t, 10, scheduler.ScaleVUs(ctx, 10))
	assert.Equal(t, 10, scheduler.GetActiveVUCount())

	assert.Equal(t, 4, scheduler.ScaleVUs(ctx, 4))
	assert.Equal(t, 4, scheduler.GetActiveVUCount())
	// The most recent VUs are the ones retired.
	for id := 1; id <= 4; id++ {
		if vu := scheduler.GetVU(id); assert.NotNil(t, vu) {
			assert.NotEqual(t, performance.VUStateStopping, vu.GetState())
		}
	}

	// A second call with the same target does not retire more VUs.
	assert.Equal(t, 4, scheduler.ScaleVUs(ctx, 4))
	assert.Equal(t, 4, scheduler.GetActiveVUCount())

	assert.True(t, scheduler.Shutdown(time.Second))
	assert.Equal(t, int64(0), running.Load())
	assert.Equal(t, 0, scheduler.GetActiveVUCount())
	assert.Equal(t, 0, engine.GetSnapshot().VUs)
	assert.Equal(t, 10, engine.GetSnapshot().VUsMax)
	assert.Greater(t, engine.GetSnapshot().Iterations, int64(0))
}

func TestVUScheduler_RunVU_ErrorBackoff(t *testing.T) {
	var calls atomic.Int64
	workload := func(ctx context.Context, rt scenario.Runtime) error {
		calls.Add(1)
		return scenario.ErrMissingAppURL
	}
	scheduler, engine := newTestScheduler(t, workload)
	scheduler.ErrorBackoff = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()

	vu := scheduler.SpawnVU()
	scheduler.RunVU(ctx, vu)

	// Roughly one attempt per backoff, not a hot loop.
	assert.LessOrEqual(t, calls.Load(), int64(7))
	assert.GreaterOrEqual(t, calls.Load(), int64(3))
	assert.Equal(t, engine.GetSnapshot().IterationErrors, engine.GetSnapshot().Iterations)
	assert.Equal(t, int64(0), engine.GetSnapshot().HTTPReqs)
	assert.Nil(t, scheduler.GetVU(vu.ID))
}

func TestVUScheduler_RunVU_LogsRepeatedErrorsOnce(t *testing.T) {
	engine := metrics.NewEngine()
	defer engine.Stop()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	workload := func(ctx context.Context, rt scenario.Runtime) error {
		return scenario.ErrMissingAppURL
	}
	scheduler := performance.NewVUScheduler(workload, engine, performance.DefaultHTTPClientConfig(), logger)
	scheduler.ErrorBackoff = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	scheduler.RunVU(ctx, scheduler.SpawnVU())

	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings++
			assert.Equal(t, 1, entry.Data["vu"])
			assert.Contains(t, entry.Data[logrus.ErrorKey].(error).Error(), "APP_URL environment variable is missing")
		}
	}
	assert.Equal(t, 1, warnings)
	assert.Greater(t, len(hook.AllEntries()), 1)
}

func TestVUScheduler_Shutdown_Timeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	workload := func(ctx context.Context, rt scenario.Runtime) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}
	scheduler, _ := newTestScheduler(t, workload)

	ctx, cancel := context.WithCancel(context.Background())
	scheduler.ScaleVUs(ctx, 2)
	time.Sleep(20 * time.Millisecond)

	assert.False(t, scheduler.Shutdown(30*time.Millisecond))

	cancel()
	scheduler.Wait()
	assert.Equal(t, 0, scheduler.GetActiveVUCount())
}

func TestVUScheduler_SharedClientReachesServer(t *testing.T) {
	var hits atomic.Int64
	server := newStatusServer(t, http.StatusOK, &hits)

	scheduler, engine := newTestScheduler(t, scenario.Workload(scenario.ConstantTarget(server.URL), nil, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	scheduler.ScaleVUs(ctx, 3)
	<-ctx.Done()
	scheduler.Wait()

	require.Greater(t, hits.Load(), int64(0))
	snapshot := engine.GetSnapshot()
	// Requests in flight at the deadline reach the server but are not recorded.
	assert.Greater(t, snapshot.HTTPReqs, int64(0))
	assert.LessOrEqual(t, snapshot.HTTPReqs, hits.Load())
	assert.Equal(t, int64(0), snapshot.HTTPReqFailed)
}
