// Package output renders run progress and results for people and machines.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/galias/stressline/internal/performance/engine"
	"github.com/galias/stressline/internal/performance/executor"
	"github.com/galias/stressline/internal/performance/metrics"
	"github.com/galias/stressline/internal/performance/threshold"
	"github.com/galias/stressline/internal/scenario"
)

// Cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"
)

const (
	ruleWidth  = 56
	labelWidth = 32
	barWidth   = 40
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	Progress  float64
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveVUs int
	TargetVUs int

	CurrentRPS    float64
	TotalRequests int64
	Errors        int64
	ErrorRate     float64

	LatencyP95 time.Duration
	LatencyAvg time.Duration

	CurrentPhase string
	CurrentStage int // 1-indexed
	StageName    string
	TotalStages  int
}

// ConsoleOutput manages console output during and after a run.
type ConsoleOutput struct {
	writer io.Writer
	colors *ColorScheme
	isTTY  bool
	quiet  bool

	mu          sync.Mutex
	linesOutput int
}

// ConsoleOutputConfig contains configuration for ConsoleOutput.
type ConsoleOutputConfig struct {
	Writer      io.Writer
	Quiet       bool
	NoColor     bool
	ForceColors bool
	ForceTTY    bool
}

// NewConsoleOutput creates a new console output handler.
func NewConsoleOutput(config ConsoleOutputConfig) *ConsoleOutput {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	isTTY := config.ForceTTY || IsTerminal(config.Writer)

	var colors *ColorScheme
	switch {
	case config.NoColor:
		colors = NoColorScheme()
	case config.ForceColors || (isTTY && supportsColors()):
		colors = ForceColorScheme()
	default:
		colors = NoColorScheme()
	}

	return &ConsoleOutput{
		writer: config.Writer,
		colors: colors,
		isTTY:  isTTY,
		quiet:  config.Quiet,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run header.
func (c *ConsoleOutput) PrintHeader(sc *scenario.Scenario) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	opts := sc.Options
	target := ""
	if sc.Target != nil {
		target = sc.Target.String()
	}

	rule := c.colors.Rule.Sprint(strings.Repeat("━", ruleWidth))
	c.writeln(rule)
	c.writeln(fmt.Sprintf("%s - Running [%s]", c.colors.Title.Sprint(opts.Name), executor.TypeRampingVUs))
	c.writeln(rule)
	c.writeln(fmt.Sprintf("  target:        %s", c.colors.Value.Sprint(target)))
	c.writeln(fmt.Sprintf("  max VUs:       %d", opts.MaxTarget()))
	c.writeln(fmt.Sprintf("  duration:      %s (+%s graceful stop)",
		formatDuration(opts.TotalDuration()), formatDuration(opts.GracefulStop)))
	for i, s := range opts.Stages {
		c.writeln(fmt.Sprintf("  stage %d:       %s to %d VUs over %s",
			i+1, executor.StageLabel(opts.Stages, i), s.Target, formatDuration(s.Duration)))
	}
	c.writeln("")
}

// Update redraws the live display. Non-terminal writers get one line per call.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet {
		return
	}
	if !c.isTTY {
		c.printLine(stats)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()
	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

func (c *ConsoleOutput) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

func (c *ConsoleOutput) renderLiveStats(stats *LiveStats) []string {
	stage := stats.CurrentPhase
	if stats.TotalStages > 0 && stats.CurrentStage > 0 {
		stage = fmt.Sprintf("%s %s (%d/%d)", stats.CurrentPhase, stats.StageName, stats.CurrentStage, stats.TotalStages)
	}
	errColor := c.colors.ErrorRateColor(stats.ErrorRate)

	return []string{
		fmt.Sprintf("Progress: %s %s | %s",
			c.colors.Pass.Sprint(progressBar(stats.Progress, barWidth)),
			c.colors.Title.Sprintf("%.0f%%", stats.Progress*100),
			c.colors.Dim.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))),
		fmt.Sprintf("Stage:    %s", c.colors.Highlight.Sprint(stage)),
		fmt.Sprintf("VUs: %s/%d  Reqs: %s  RPS: %s  Errors: %s  P95: %s  Avg: %s",
			c.colors.Value.Sprint(stats.ActiveVUs), stats.TargetVUs,
			c.colors.Value.Sprint(formatNumber(stats.TotalRequests)),
			c.colors.Pass.Sprintf("%.1f", stats.CurrentRPS),
			errColor.Sprintf("%d (%.1f%%)", stats.Errors, stats.ErrorRate*100),
			formatDurationShort(stats.LatencyP95),
			formatDurationShort(stats.LatencyAvg)),
	}
}

func (c *ConsoleOutput) printLine(stats *LiveStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] %.0f%% | %s | VUs: %d/%d | Reqs: %d | RPS: %.1f | Errors: %d (%.1f%%) | P95: %s",
		formatDuration(stats.Elapsed),
		stats.Progress*100,
		stats.CurrentPhase,
		stats.ActiveVUs,
		stats.TargetVUs,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.Errors,
		stats.ErrorRate*100,
		formatDurationShort(stats.LatencyP95)))
}

// PrintSummary prints the end-of-run summary: checks, metrics with their
// thresholds, and the verdict.
func (c *ConsoleOutput) PrintSummary(result *engine.TestResult) {
	if c.quiet {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.writeln(c.verdict(result))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isTTY {
		c.clearLive()
	}

	rule := c.colors.Rule.Sprint(strings.Repeat("━", ruleWidth))
	c.writeln("")
	c.writeln(rule)
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(result.Name), c.verdict(result)))
	c.writeln(rule)
	c.writeln("")

	c.writeln(fmt.Sprintf("  run id:   %s", result.RunID))
	c.writeln(fmt.Sprintf("  target:   %s", result.Target))
	c.writeln(fmt.Sprintf("  duration: %s", c.colors.Value.Sprint(formatDuration(result.Duration))))
	c.writeln("")

	for _, check := range result.Checks {
		c.writeln(fmt.Sprintf("    %s %s", c.colors.Mark(check.Fails == 0), check.Name))
		if check.Fails > 0 {
			c.writeln(c.colors.Dim.Sprintf("      ↳  %.0f%%  ✓ %d / ✗ %d", check.Rate()*100, check.Passes, check.Fails))
		}
	}
	if len(result.Checks) > 0 {
		c.writeln("")
	}

	if m := result.Metrics; m != nil {
		byMetric := map[string][]threshold.Result{}
		for _, t := range result.Thresholds {
			byMetric[t.Metric] = append(byMetric[t.Metric], t)
		}
		for _, line := range metricLines(m) {
			marks := byMetric[line.name]
			prefix := "  "
			if len(marks) > 0 {
				prefix = c.colors.Mark(threshold.Passed(marks)) + " "
			}
			c.writeln(fmt.Sprintf("  %s%s: %s", prefix, dotted(line.name), line.value))
			for _, t := range marks {
				c.writeln(fmt.Sprintf("       %s { %s }", c.colors.Mark(t.Passed), t.Expression))
			}
		}
		c.writeln("")
	}

	if failed := threshold.Failed(result.Thresholds); len(failed) > 0 {
		c.writeln(c.colors.Fail.Sprint("Thresholds crossed:"))
		for _, t := range failed {
			msg := t.Message
			if msg == "" {
				msg = t.Value
			}
			c.writeln(fmt.Sprintf("  %s %s: %s (%s)", c.colors.Mark(false), t.Metric, t.Expression, msg))
		}
		c.writeln("")
	}
}

func (c *ConsoleOutput) verdict(result *engine.TestResult) string {
	switch {
	case result.Aborted && result.Passed:
		return c.colors.Warn.Sprint("ABORTED")
	case result.Passed:
		return c.colors.Pass.Sprint("PASSED ✓")
	default:
		return c.colors.Fail.Sprint("FAILED ✗")
	}
}

type metricLine struct {
	name  string
	value string
}

// metricLines lists the built-in metrics in summary order.
func metricLines(m *metrics.Snapshot) []metricLine {
	rate := func(n int64) string {
		s := m.Elapsed.Seconds()
		if s <= 0 {
			return "0/s"
		}
		return fmt.Sprintf("%.2f/s", float64(n)/s)
	}

	lines := []metricLine{
		{scenario.MetricChecks, fmt.Sprintf("%.2f%% ✓ %d ✗ %d", m.CheckRate*100, m.ChecksPassed, m.ChecksFailed)},
		{scenario.MetricDataReceived, fmt.Sprintf("%s %s", formatBytes(m.DataReceived), rate(m.DataReceived))},
		{scenario.MetricHTTPReqDuration, formatTrend(m.HTTPReqDuration)},
		{scenario.MetricHTTPReqFailed, fmt.Sprintf("%.2f%% ✓ %d ✗ %d", m.ErrorRate*100, m.HTTPReqFailed, m.HTTPReqs-m.HTTPReqFailed)},
		{scenario.MetricHTTPReqs, fmt.Sprintf("%d %s", m.HTTPReqs, rate(m.HTTPReqs))},
		{scenario.MetricIterationDuration, formatTrend(m.IterationDuration)},
		{scenario.MetricIterationErrors, fmt.Sprintf("%d %s", m.IterationErrors, rate(m.IterationErrors))},
		{scenario.MetricIterations, fmt.Sprintf("%d %s", m.Iterations, rate(m.Iterations))},
		{scenario.MetricVUs, fmt.Sprintf("%d max=%d", m.VUs, m.VUsMax)},
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].name < lines[j].name })
	return lines
}

func formatTrend(t metrics.TrendStats) string {
	return fmt.Sprintf("avg=%s min=%s med=%s max=%s p(90)=%s p(95)=%s",
		formatDurationShort(t.Avg), formatDurationShort(t.Min), formatDurationShort(t.Med),
		formatDurationShort(t.Max), formatDurationShort(t.P90), formatDurationShort(t.P95))
}

func dotted(name string) string {
	if len(name) >= labelWidth {
		return name
	}
	return name + strings.Repeat(".", labelWidth-len(name))
}

func (c *ConsoleOutput) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// StatsFromEngine builds LiveStats from a metrics snapshot and executor stats.
// Either may be nil.
func StatsFromEngine(snap *metrics.Snapshot, stats *executor.Stats, progress float64) *LiveStats {
	live := &LiveStats{
		Progress:     progress,
		CurrentPhase: string(metrics.PhaseInit),
	}

	if stats != nil {
		live.TargetVUs = stats.TargetVUs
		live.CurrentStage = stats.CurrentStage + 1
		live.StageName = stats.CurrentStageName
		live.TotalStages = stats.TotalStages
		remaining := stats.TotalDuration - stats.Elapsed
		if remaining > 0 {
			live.Remaining = remaining
		}
	}

	if snap == nil {
		return live
	}

	live.Elapsed = snap.Elapsed
	live.ActiveVUs = snap.VUs
	live.CurrentRPS = snap.RPS
	live.TotalRequests = snap.HTTPReqs
	live.Errors = snap.HTTPReqFailed
	live.ErrorRate = snap.ErrorRate
	live.LatencyP95 = snap.HTTPReqDuration.P95
	live.LatencyAvg = snap.HTTPReqDuration.Avg
	live.CurrentPhase = string(snap.CurrentPhase)
	return live
}

func progressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %02dm %02ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// formatDurationShort formats a latency.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if n < 0 || len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}

func formatBytes(n int64) string {
	const unit = 1000
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "kMGTPE"[exp])
}
