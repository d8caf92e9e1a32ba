package scenario

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Built-in metric names.
const (
	MetricHTTPReqDuration   = "http_req_duration"
	MetricHTTPReqFailed     = "http_req_failed"
	MetricHTTPReqs          = "http_reqs"
	MetricIterations        = "iterations"
	MetricIterationDuration = "iteration_duration"
	MetricIterationErrors   = "iteration_errors"
	MetricChecks            = "checks"
	MetricDataReceived      = "data_received"
	MetricVUs               = "vus"
)

// MetricKind determines which aggregations a threshold may use.
type MetricKind string

const (
	KindTrend   MetricKind = "trend"
	KindRate    MetricKind = "rate"
	KindCounter MetricKind = "counter"
	KindGauge   MetricKind = "gauge"
)

// MetricKinds lists every metric a threshold can reference.
var MetricKinds = map[string]MetricKind{
	MetricHTTPReqDuration:   KindTrend,
	MetricIterationDuration: KindTrend,
	MetricHTTPReqFailed:     KindRate,
	MetricChecks:            KindRate,
	MetricHTTPReqs:          KindCounter,
	MetricIterations:        KindCounter,
	MetricIterationErrors:   KindCounter,
	MetricDataReceived:      KindCounter,
	MetricVUs:               KindGauge,
}

var aggregations = map[MetricKind][]string{
	KindTrend:   {"avg", "min", "max", "med", "p"},
	KindRate:    {"rate"},
	KindCounter: {"count", "rate"},
	KindGauge:   {"value", "max"},
}

// Threshold is one parsed pass/fail condition on an aggregated metric.
type Threshold struct {
	// Metric name, e.g. http_req_duration
	Metric string

	// Expression as written, e.g. p(95)<2000
	Expression string

	// Aggregation is avg, min, max, med, p, rate, count or value
	Aggregation string

	// Percentile is set when Aggregation is "p"
	Percentile float64

	// Op is one of <, <=, >, >=, ==, !=
	Op string

	// Value is the bound. Trend values are in milliseconds, rates are ratios.
	Value float64
}

// Source returns the aggregation label used in reports, e.g. p(95) or rate.
func (t Threshold) Source() string {
	if t.Aggregation == "p" {
		return "p(" + strconv.FormatFloat(t.Percentile, 'f', -1, 64) + ")"
	}
	return t.Aggregation
}

func (t Threshold) String() string {
	return t.Metric + ": " + t.Expression
}

// Accepts both p(95)<2000 and p95 < 2s.
var thresholdRe = regexp.MustCompile(`^\s*([a-z]+)(?:\(\s*([0-9.]+)\s*\)|([0-9.]+))?\s*(<=|>=|==|!=|<|>)\s*(\S+)\s*$`)

// ParseThreshold parses a single expression for metric.
func ParseThreshold(metric, expr string) (Threshold, error) {
	kind, ok := MetricKinds[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unknown metric %q", metric)
	}

	m := thresholdRe.FindStringSubmatch(expr)
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold expression %q", expr)
	}

	t := Threshold{
		Metric:      metric,
		Expression:  strings.TrimSpace(expr),
		Aggregation: m[1],
		Op:          m[4],
	}

	if !supports(kind, t.Aggregation) {
		return Threshold{}, fmt.Errorf("%s metric %s does not support %q (allowed: %s)",
			kind, metric, t.Aggregation, strings.Join(aggregations[kind], ", "))
	}

	pct := m[2]
	if pct == "" {
		pct = m[3]
	}
	switch {
	case t.Aggregation == "p" && pct == "":
		return Threshold{}, fmt.Errorf("percentile missing in %q", expr)
	case t.Aggregation != "p" && pct != "":
		return Threshold{}, fmt.Errorf("unexpected argument to %s in %q", t.Aggregation, expr)
	case pct != "":
		p, err := strconv.ParseFloat(pct, 64)
		if err != nil || p <= 0 || p > 100 {
			return Threshold{}, fmt.Errorf("invalid percentile %q", pct)
		}
		t.Percentile = p
	}

	v, err := parseThresholdValue(kind, m[5])
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid value in %q: %w", expr, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Threshold{}, fmt.Errorf("invalid value in %q: bound must be a finite number", expr)
	}
	t.Value = v

	return t, nil
}

// ParseThresholds parses thresholds keyed by metric name. The result is
// ordered by metric name, then by expression order.
func ParseThresholds(src map[string][]string) ([]Threshold, error) {
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Threshold
	for _, name := range names {
		for _, expr := range src[name] {
			t, err := ParseThreshold(name, expr)
			if err != nil {
				return nil, fmt.Errorf("threshold %s: %w", name, err)
			}
			out = append(out, t)
		}
	}
	return out, nil
}

func supports(kind MetricKind, agg string) bool {
	for _, a := range aggregations[kind] {
		if a == agg {
			return true
		}
	}
	return false
}

func parseThresholdValue(kind MetricKind, raw string) (float64, error) {
	switch kind {
	case KindTrend:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v, nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("expected milliseconds or a duration, got %q", raw)
		}
		return float64(d) / float64(time.Millisecond), nil
	case KindRate:
		if strings.HasSuffix(raw, "%") {
			v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
			if err != nil {
				return 0, err
			}
			return v / 100, nil
		}
		return strconv.ParseFloat(raw, 64)
	default:
		return strconv.ParseFloat(raw, 64)
	}
}
