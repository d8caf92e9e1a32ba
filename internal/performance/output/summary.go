package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/galias/stressline/internal/performance/engine"
	"github.com/galias/stressline/internal/performance/threshold"
)

// Summary is the machine-readable form of a run result.
type Summary struct {
	RunID    string    `json:"runId" yaml:"runId"`
	Name     string    `json:"name" yaml:"name"`
	Target   string    `json:"target" yaml:"target"`
	Start    time.Time `json:"start" yaml:"start"`
	End      time.Time `json:"end" yaml:"end"`
	Duration string    `json:"duration" yaml:"duration"`
	Passed   bool      `json:"passed" yaml:"passed"`
	Aborted  bool      `json:"aborted" yaml:"aborted"`

	Metrics    map[string]map[string]float64 `json:"metrics" yaml:"metrics"`
	Checks     []SummaryCheck                `json:"checks" yaml:"checks"`
	Thresholds []threshold.Result            `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Phases     []SummaryPhase                `json:"phases,omitempty" yaml:"phases,omitempty"`
}

// SummaryCheck is the outcome count for one named check.
type SummaryCheck struct {
	Name   string `json:"name" yaml:"name"`
	Passes int64  `json:"passes" yaml:"passes"`
	Fails  int64  `json:"fails" yaml:"fails"`
}

// SummaryPhase marks when the run entered a phase.
type SummaryPhase struct {
	Phase    string  `json:"phase" yaml:"phase"`
	Stage    string  `json:"stage,omitempty" yaml:"stage,omitempty"`
	AtSecond float64 `json:"atSecond" yaml:"atSecond"`
}

// NewSummary flattens a result into metric name -> aggregation -> value.
// Trend values are in milliseconds, rates are ratios.
func NewSummary(result *engine.TestResult) *Summary {
	s := &Summary{
		RunID:      result.RunID,
		Name:       result.Name,
		Target:     result.Target,
		Start:      result.StartTime,
		End:        result.EndTime,
		Duration:   result.Duration.Round(time.Millisecond).String(),
		Passed:     result.Passed,
		Aborted:    result.Aborted,
		Metrics:    map[string]map[string]float64{},
		Thresholds: result.Thresholds,
		Checks:     []SummaryCheck{},
	}

	for _, c := range result.Checks {
		s.Checks = append(s.Checks, SummaryCheck{Name: c.Name, Passes: c.Passes, Fails: c.Fails})
	}
	for _, p := range result.Phases {
		s.Phases = append(s.Phases, SummaryPhase{
			Phase:    string(p.Phase),
			Stage:    p.Stage,
			AtSecond: p.Timestamp.Sub(result.StartTime).Seconds(),
		})
	}

	m := result.Metrics
	if m == nil {
		return s
	}

	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
	perSec := func(n int64) float64 {
		if secs := m.Elapsed.Seconds(); secs > 0 {
			return float64(n) / secs
		}
		return 0
	}

	s.Metrics["http_req_duration"] = map[string]float64{
		"avg": ms(m.HTTPReqDuration.Avg), "min": ms(m.HTTPReqDuration.Min),
		"med": ms(m.HTTPReqDuration.Med), "max": ms(m.HTTPReqDuration.Max),
		"p(90)": ms(m.HTTPReqDuration.P90), "p(95)": ms(m.HTTPReqDuration.P95),
		"p(99)": ms(m.HTTPReqDuration.P99),
	}
	s.Metrics["iteration_duration"] = map[string]float64{
		"avg": ms(m.IterationDuration.Avg), "min": ms(m.IterationDuration.Min),
		"med": ms(m.IterationDuration.Med), "max": ms(m.IterationDuration.Max),
		"p(90)": ms(m.IterationDuration.P90), "p(95)": ms(m.IterationDuration.P95),
		"p(99)": ms(m.IterationDuration.P99),
	}
	s.Metrics["http_req_failed"] = map[string]float64{
		"rate": m.ErrorRate, "passes": float64(m.HTTPReqFailed), "fails": float64(m.HTTPReqs - m.HTTPReqFailed),
	}
	s.Metrics["checks"] = map[string]float64{
		"rate": m.CheckRate, "passes": float64(m.ChecksPassed), "fails": float64(m.ChecksFailed),
	}
	s.Metrics["http_reqs"] = map[string]float64{"count": float64(m.HTTPReqs), "rate": perSec(m.HTTPReqs)}
	s.Metrics["iterations"] = map[string]float64{"count": float64(m.Iterations), "rate": perSec(m.Iterations)}
	s.Metrics["iteration_errors"] = map[string]float64{"count": float64(m.IterationErrors), "rate": perSec(m.IterationErrors)}
	s.Metrics["data_received"] = map[string]float64{"count": float64(m.DataReceived), "rate": perSec(m.DataReceived)}
	s.Metrics["vus"] = map[string]float64{"value": float64(m.VUs), "max": float64(m.VUsMax)}

	return s
}

// WriteSummary encodes the summary as JSON, or YAML when format is "yaml".
func WriteSummary(w io.Writer, result *engine.TestResult, format string) error {
	summary := NewSummary(result)

	switch strings.ToLower(format) {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(summary); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported summary format %q", format)
	}
}

// ExportSummary writes the summary to path. The format follows the file
// extension: .yaml and .yml produce YAML, .html an HTML report, anything
// else JSON.
func ExportSummary(path string, result *engine.TestResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = WriteSummary(f, result, "yaml")
	case ".html", ".htm":
		err = WriteHTMLReport(f, result)
	default:
		err = WriteSummary(f, result, "json")
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return f.Close()
}
