package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/galias/stressline/internal/performance/engine"
	"github.com/galias/stressline/internal/performance/metrics"
)

// reportData feeds the HTML report template.
type reportData struct {
	*Summary
	Verdict        string
	TimeSeriesJSON template.JS
}

// chartPoint is one time-series sample as the report charts read it.
type chartPoint struct {
	Second      float64 `json:"t"`
	RPS         float64 `json:"rps"`
	ErrorRate   float64 `json:"errorRate"`
	P95         float64 `json:"p95"`
	ActiveVUs   int     `json:"vus"`
	Phase       string  `json:"phase"`
	Stage       string  `json:"stage,omitempty"`
	TotalFailed int64   `json:"failed"`
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"ms":      func(v float64) string { return fmt.Sprintf("%.2fms", v) },
	"percent": func(v float64) string { return fmt.Sprintf("%.2f%%", v*100) },
}).Parse(reportHTML))

// WriteHTMLReport renders a self-contained HTML page for result.
func WriteHTMLReport(w io.Writer, result *engine.TestResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	series, err := chartSeries(result.StartTime, result.TimeSeries)
	if err != nil {
		return fmt.Errorf("failed to convert time series: %w", err)
	}

	verdict := "PASSED"
	switch {
	case !result.Passed:
		verdict = "FAILED"
	case result.Aborted:
		verdict = "ABORTED"
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, reportData{
		Summary:        NewSummary(result),
		Verdict:        verdict,
		TimeSeriesJSON: template.JS(series),
	}); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	_, err = buf.WriteTo(w)
	return err
}

func chartSeries(start time.Time, buckets []*metrics.TimeBucket) (string, error) {
	if len(buckets) == 0 {
		return "[]", nil
	}

	points := make([]chartPoint, 0, len(buckets))
	for _, b := range buckets {
		if b == nil {
			continue
		}
		points = append(points, chartPoint{
			Second:      b.Timestamp.Sub(start).Seconds(),
			RPS:         b.IntervalRPS,
			ErrorRate:   b.IntervalErrorRate,
			P95:         float64(b.LatencyP95) / float64(time.Millisecond),
			ActiveVUs:   b.ActiveVUs,
			Phase:       string(b.Phase),
			Stage:       b.Stage,
			TotalFailed: b.TotalFailures,
		})
	}

	data, err := json.Marshal(points)
	if err != nil {
		return "[]", err
	}
	return string(data), nil
}

const reportHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Name}} - stressline report</title>
<script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
<style>
  body { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; background: #f8fafc; color: #1e293b; margin: 0; }
  main { max-width: 1200px; margin: 0 auto; padding: 2rem; }
  section { background: #fff; border-radius: 10px; padding: 1.5rem; margin-bottom: 1.5rem; box-shadow: 0 1px 3px rgba(0,0,0,.1); }
  h1 { margin: 0 0 .5rem; }
  .meta { color: #64748b; font-size: .9rem; }
  .verdict { display: inline-block; padding: .4rem 1rem; border-radius: 6px; font-weight: 600; }
  .PASSED { background: #dcfce7; color: #15803d; }
  .FAILED { background: #fee2e2; color: #b91c1c; }
  .ABORTED { background: #fef3c7; color: #b45309; }
  table { width: 100%; border-collapse: collapse; font-size: .9rem; }
  th, td { text-align: left; padding: .4rem .6rem; border-bottom: 1px solid #e2e8f0; }
  .ok { color: #15803d; }
  .bad { color: #b91c1c; }
  .charts { display: grid; grid-template-columns: repeat(auto-fit, minmax(450px, 1fr)); gap: 1.5rem; }
</style>
</head>
<body>
<main>
<section>
  <h1>{{.Name}}</h1>
  <span class="verdict {{.Verdict}}">{{.Verdict}}</span>
  <p class="meta">target {{.Target}} &middot; run {{.RunID}} &middot; {{.Start.Format "2006-01-02 15:04:05 MST"}} &middot; {{.Duration}}</p>
</section>

{{if .Thresholds}}
<section>
  <h2>Thresholds</h2>
  <table>
    <tr><th></th><th>Metric</th><th>Condition</th><th>Actual</th></tr>
    {{range .Thresholds}}
    <tr>
      <td class="{{if .Passed}}ok{{else}}bad{{end}}">{{if .Passed}}&#10003;{{else}}&#10007;{{end}}</td>
      <td>{{.Metric}}</td><td>{{.Expression}}</td><td>{{.Value}}</td>
    </tr>
    {{end}}
  </table>
</section>
{{end}}

{{with index .Metrics "http_req_duration"}}
<section>
  <h2>Request duration</h2>
  <table>
    <tr><th>avg</th><th>min</th><th>med</th><th>max</th><th>p(90)</th><th>p(95)</th><th>p(99)</th></tr>
    <tr>
      <td>{{ms (index . "avg")}}</td><td>{{ms (index . "min")}}</td><td>{{ms (index . "med")}}</td>
      <td>{{ms (index . "max")}}</td><td>{{ms (index . "p(90)")}}</td><td>{{ms (index . "p(95)")}}</td>
      <td>{{ms (index . "p(99)")}}</td>
    </tr>
  </table>
</section>
{{end}}

<section>
  <h2>Checks</h2>
  <table>
    <tr><th>Check</th><th>Passes</th><th>Fails</th></tr>
    {{range .Checks}}
    <tr><td>{{.Name}}</td><td class="ok">{{.Passes}}</td><td class="{{if .Fails}}bad{{end}}">{{.Fails}}</td></tr>
    {{else}}
    <tr><td colspan="3">no checks recorded</td></tr>
    {{end}}
  </table>
  {{with index .Metrics "http_req_failed"}}<p class="meta">http_req_failed: {{percent (index . "rate")}}</p>{{end}}
</section>

<section class="charts">
  <div><h2>Throughput and VUs</h2><canvas id="load"></canvas></div>
  <div><h2>Latency p(95) and errors</h2><canvas id="latency"></canvas></div>
</section>

{{if .Phases}}
<section>
  <h2>Phases</h2>
  <table>
    <tr><th>At</th><th>Phase</th><th>Stage</th></tr>
    {{range .Phases}}<tr><td>{{printf "%.1fs" .AtSecond}}</td><td>{{.Phase}}</td><td>{{.Stage}}</td></tr>{{end}}
  </table>
</section>
{{end}}
</main>
<script>
const series = {{.TimeSeriesJSON}};
const labels = series.map(p => p.t.toFixed(0) + 's');
if (window.Chart && series.length) {
  new Chart(document.getElementById('load'), {
    type: 'line',
    data: { labels, datasets: [
      { label: 'req/s', data: series.map(p => p.rps), yAxisID: 'y' },
      { label: 'VUs', data: series.map(p => p.vus), yAxisID: 'y1' },
    ]},
    options: { scales: { y1: { position: 'right' } } },
  });
  new Chart(document.getElementById('latency'), {
    type: 'line',
    data: { labels, datasets: [
      { label: 'p(95) ms', data: series.map(p => p.p95), yAxisID: 'y' },
      { label: 'error rate %', data: series.map(p => p.errorRate * 100), yAxisID: 'y1' },
    ]},
    options: { scales: { y1: { position: 'right', min: 0 } } },
  });
}
</script>
</body>
</html>
`
