package scenario

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRuntime records what a workload asks of the driver.
type fakeRuntime struct {
	gets   []string
	checks map[string][]bool
	sleeps []time.Duration
	status int
	err    error
}

func newFakeRuntime(status int) *fakeRuntime {
	return &fakeRuntime{status: status, checks: make(map[string][]bool)}
}

func (f *fakeRuntime) Get(_ context.Context, url string) *Response {
	f.gets = append(f.gets, url)
	return &Response{URL: url, Status: f.status, Error: f.err}
}

func (f *fakeRuntime) Check(res *Response, checks ...Check) bool {
	all := true
	for _, c := range checks {
		ok := c.Fn(res)
		f.checks[c.Name] = append(f.checks[c.Name], ok)
		all = all && ok
	}
	return all
}

func (f *fakeRuntime) Sleep(_ context.Context, d time.Duration) error {
	f.sleeps = append(f.sleeps, d)
	return nil
}

func TestWorkload_ConstantTarget(t *testing.T) {
	rt := newFakeRuntime(200)
	fn := Workload(ConstantTarget(DefaultURL), nil, DefaultPause)

	for i := 0; i < 3; i++ {
		require.NoError(t, fn(context.Background(), rt))
	}

	assert.Equal(t, []string{DefaultURL, DefaultURL, DefaultURL}, rt.gets)
	assert.Equal(t, []bool{true, true, true}, rt.checks[StatusCheckName])
	assert.Equal(t, []time.Duration{DefaultPause, DefaultPause, DefaultPause}, rt.sleeps)
}

func TestWorkload_FailedCheckStillPauses(t *testing.T) {
	rt := newFakeRuntime(0)
	rt.err = errors.New("connection refused")
	fn := Workload(ConstantTarget("http://127.0.0.1:1"), nil, DefaultPause)

	require.NoError(t, fn(context.Background(), rt))
	assert.Equal(t, []bool{false}, rt.checks[StatusCheckName])
	assert.Len(t, rt.sleeps, 1)
}

func TestWorkload_MissingAppURL(t *testing.T) {
	rt := newFakeRuntime(200)
	fn := Workload(EnvTarget{Environment: map[string]string{}}, nil, DefaultPause)

	err := fn(context.Background(), rt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_URL environment variable is missing")
	assert.Empty(t, rt.gets)
	assert.Empty(t, rt.checks)
	assert.Empty(t, rt.sleeps)
}

func TestWorkload_AppURLPerIteration(t *testing.T) {
	rt := newFakeRuntime(200)
	fn := Workload(EnvTarget{}, nil, DefaultPause)

	t.Setenv(AppURLVar, "http://blue.internal")
	require.NoError(t, fn(context.Background(), rt))
	t.Setenv(AppURLVar, "http://green.internal")
	require.NoError(t, fn(context.Background(), rt))

	assert.Equal(t, []string{"http://blue.internal", "http://green.internal"}, rt.gets)
}

func TestWorkload_CustomChecks(t *testing.T) {
	rt := newFakeRuntime(503)
	fn := Workload(ConstantTarget(DefaultURL), []Check{StatusIs(503)}, 0)

	require.NoError(t, fn(context.Background(), rt))
	assert.Equal(t, []bool{true}, rt.checks["status was 503"])
	assert.NotContains(t, rt.checks, StatusCheckName)
}

func TestStress(t *testing.T) {
	sc, err := Stress(ConstantTarget(DefaultURL))
	require.NoError(t, err)

	assert.Equal(t, DefaultName, sc.Options.Name)
	require.Len(t, sc.Options.Stages, 3)
	assert.Equal(t, 30*time.Second, sc.Options.Stages[0].Duration)
	assert.Equal(t, 300, sc.Options.Stages[0].Target)
	assert.Equal(t, 3*time.Minute, sc.Options.Stages[1].Duration)
	assert.Equal(t, 500, sc.Options.Stages[1].Target)
	assert.Equal(t, 10*time.Second, sc.Options.Stages[2].Duration)
	assert.Equal(t, 0, sc.Options.Stages[2].Target)

	assert.Equal(t, 220*time.Second, sc.Options.TotalDuration())
	assert.Equal(t, 500, sc.Options.MaxTarget())

	require.Len(t, sc.Options.Thresholds, 2)
	assert.Equal(t, MetricHTTPReqDuration, sc.Options.Thresholds[0].Metric)
	assert.Equal(t, 2000.0, sc.Options.Thresholds[0].Value)
	assert.Equal(t, MetricHTTPReqFailed, sc.Options.Thresholds[1].Metric)
	assert.Equal(t, 0.05, sc.Options.Thresholds[1].Value)

	assert.Equal(t, DefaultURL, sc.Target.String())
}
