// Package threshold evaluates pass/fail conditions against aggregated run
// metrics.
package threshold

import (
	"fmt"
	"strconv"

	"github.com/galias/stressline/internal/scenario"
)

// Source provides the aggregated value a threshold compares against.
// *metrics.Engine satisfies it.
type Source interface {
	Value(metric, aggregation string, percentile float64) (float64, error)
}

// Result contains the result of a threshold evaluation.
type Result struct {
	Metric     string  `json:"metric"`
	Expression string  `json:"expression"`
	Source     string  `json:"source"`
	Passed     bool    `json:"passed"`
	Actual     float64 `json:"actual"`
	Value      string  `json:"value"`
	Message    string  `json:"message,omitempty"`
}

// Evaluate checks every threshold against src, in order.
//
// An aggregation the source cannot compute counts as a failure, so a typo
// never passes silently.
func Evaluate(thresholds []scenario.Threshold, src Source) []Result {
	results := make([]Result, 0, len(thresholds))
	for _, t := range thresholds {
		results = append(results, evaluate(t, src))
	}
	return results
}

// Passed reports whether every result passed. No thresholds means passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

func evaluate(t scenario.Threshold, src Source) Result {
	result := Result{
		Metric:     t.Metric,
		Expression: t.Expression,
		Source:     t.Source(),
	}

	actual, err := src.Value(t.Metric, t.Aggregation, t.Percentile)
	if err != nil {
		result.Message = fmt.Sprintf("failed to evaluate: %v", err)
		return result
	}

	result.Actual = actual
	result.Value = FormatValue(t.Metric, actual)
	result.Passed = compareValues(actual, t.Op, t.Value)

	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s",
			result.Source, result.Value, t.Op, FormatValue(t.Metric, t.Value))
	}

	return result
}

// FormatValue renders v in the unit of metric's kind.
func FormatValue(metric string, v float64) string {
	switch scenario.MetricKinds[metric] {
	case scenario.KindTrend:
		return strconv.FormatFloat(v, 'f', 2, 64) + "ms"
	case scenario.KindRate:
		return strconv.FormatFloat(v*100, 'f', 2, 64) + "%"
	default:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
}

// compareValues compares two values using the given operator.
func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==":
		return actual == threshold
	case "!=":
		return actual != threshold
	default:
		return false
	}
}
