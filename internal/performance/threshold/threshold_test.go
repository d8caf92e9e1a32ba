package threshold

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galias/stressline/internal/performance/metrics"
	"github.com/galias/stressline/internal/scenario"
)

type staticSource map[string]float64

func (s staticSource) Value(metric, aggregation string, percentile float64) (float64, error) {
	key := metric + ":" + aggregation
	if v, ok := s[key]; ok {
		return v, nil
	}
	return 0, errors.New("no value for " + key)
}

func defaultThresholds(t *testing.T) []scenario.Threshold {
	t.Helper()
	ths, err := scenario.ParseThresholds(scenario.DefaultThresholds())
	require.NoError(t, err)
	return ths
}

func TestEvaluate_DefaultsPass(t *testing.T) {
	src := staticSource{
		"http_req_duration:p": 850,
		"http_req_failed:rate": 0.01,
	}

	results := Evaluate(defaultThresholds(t), src)
	require.Len(t, results, 2)
	assert.True(t, Passed(results))
	assert.Empty(t, Failed(results))

	assert.Equal(t, "http_req_duration", results[0].Metric)
	assert.Equal(t, "p(95)", results[0].Source)
	assert.Equal(t, "850.00ms", results[0].Value)
	assert.Equal(t, "1.00%", results[1].Value)
}

func TestEvaluate_SlowP95Fails(t *testing.T) {
	// Every check passed and nothing failed, but p95 is 2500ms.
	src := staticSource{
		"http_req_duration:p": 2500,
		"http_req_failed:rate": 0,
	}

	results := Evaluate(defaultThresholds(t), src)
	assert.False(t, Passed(results))

	failed := Failed(results)
	require.Len(t, failed, 1)
	assert.Equal(t, "http_req_duration", failed[0].Metric)
	assert.Equal(t, "p(95) is 2500.00ms, threshold: < 2000.00ms", failed[0].Message)
}

func TestEvaluate_FailureRateAtBoundFails(t *testing.T) {
	src := staticSource{
		"http_req_duration:p": 100,
		"http_req_failed:rate": 0.05,
	}

	failed := Failed(Evaluate(defaultThresholds(t), src))
	require.Len(t, failed, 1)
	assert.Equal(t, "http_req_failed", failed[0].Metric)
}

func TestEvaluate_SourceErrorFails(t *testing.T) {
	th, err := scenario.ParseThreshold("http_reqs", "count>10")
	require.NoError(t, err)

	results := Evaluate([]scenario.Threshold{th}, staticSource{})
	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Message, "failed to evaluate")
}

func TestEvaluate_NoThresholdsPasses(t *testing.T) {
	results := Evaluate(nil, staticSource{})
	assert.Empty(t, results)
	assert.True(t, Passed(results))
}

func TestEvaluate_AgainstMetricsEngine(t *testing.T) {
	engine := metrics.NewEngine()
	defer engine.Stop()

	for i := 0; i < 90; i++ {
		engine.RecordRequest(100*time.Millisecond, false, 10)
	}
	for i := 0; i < 10; i++ {
		engine.RecordRequest(2500*time.Millisecond, false, 10)
	}
	engine.RecordCheck(scenario.StatusCheckName, true)

	results := Evaluate(defaultThresholds(t), engine)
	require.Len(t, results, 2)
	assert.False(t, results[0].Passed, "p95 of %v should breach 2000ms", results[0].Actual)
	assert.True(t, results[1].Passed)
}

func TestEvaluate_EmptyEnginePasses(t *testing.T) {
	engine := metrics.NewEngine()
	defer engine.Stop()

	assert.True(t, Passed(Evaluate(defaultThresholds(t), engine)))
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		actual    float64
		op        string
		threshold float64
		want      bool
	}{
		{1, "<", 2, true},
		{2, "<", 2, false},
		{2, "<=", 2, true},
		{3, ">", 2, true},
		{2, ">=", 2, true},
		{2, "==", 2, true},
		{2, "!=", 2, false},
		{2, "~", 2, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, compareValues(tt.actual, tt.op, tt.threshold),
			"%v %s %v", tt.actual, tt.op, tt.threshold)
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "12.50ms", FormatValue("http_req_duration", 12.5))
	assert.Equal(t, "4.00%", FormatValue("checks", 0.04))
	assert.Equal(t, "1200", FormatValue("http_reqs", 1200))
}
