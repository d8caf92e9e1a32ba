package metrics

import "time"

// Phase is the direction of the concurrency ramp at a point in time.
type Phase string

const (
	// PhaseInit is the initialization phase before the run starts
	PhaseInit Phase = "init"

	// PhaseRampUp is a stage whose target is above the previous one
	PhaseRampUp Phase = "ramp-up"

	// PhaseSteady is a stage that holds the previous target
	PhaseSteady Phase = "steady"

	// PhaseRampDown is a stage whose target is below the previous one
	PhaseRampDown Phase = "ramp-down"

	// PhaseGracefulStop is the window after the last stage where VUs finish
	PhaseGracefulStop Phase = "graceful-stop"

	// PhaseDone indicates the run has completed
	PhaseDone Phase = "done"
)

// Snapshot contains a point-in-time view of all metrics.
type Snapshot struct {
	// HTTPReqs is the number of completed requests
	HTTPReqs int64 `json:"httpReqs"`

	// HTTPReqFailed is the number of requests counted as failed
	HTTPReqFailed int64 `json:"httpReqFailed"`

	// DataReceived is the number of response body bytes read
	DataReceived int64 `json:"dataReceived"`

	// Iterations is the number of finished iterations
	Iterations int64 `json:"iterations"`

	// IterationErrors is the number of iterations that returned an error
	IterationErrors int64 `json:"iterationErrors"`

	// ChecksPassed and ChecksFailed count check outcomes across all checks
	ChecksPassed int64 `json:"checksPassed"`
	ChecksFailed int64 `json:"checksFailed"`

	// HTTPReqDuration is the request latency trend
	HTTPReqDuration TrendStats `json:"httpReqDuration"`

	// IterationDuration is the iteration latency trend
	IterationDuration TrendStats `json:"iterationDuration"`

	// RPS is the average requests per second over the run
	RPS float64 `json:"rps"`

	// ErrorRate is the fraction of failed requests (0.0 to 1.0)
	ErrorRate float64 `json:"errorRate"`

	// CheckRate is the fraction of passed checks (0.0 to 1.0)
	CheckRate float64 `json:"checkRate"`

	// VUs is the current number of active virtual users
	VUs int `json:"vus"`

	// VUsMax is the highest VU count seen
	VUsMax int `json:"vusMax"`

	CurrentPhase Phase  `json:"currentPhase"`
	CurrentStage string `json:"currentStage,omitempty"`

	// Elapsed is the time since the run started, frozen at Stop
	Elapsed   time.Duration `json:"elapsed"`
	StartTime time.Time     `json:"startTime"`
	Timestamp time.Time     `json:"timestamp"`
}

// TrendStats summarizes a duration trend.
type TrendStats struct {
	Count int64         `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
	Med   time.Duration `json:"med"`
	P90   time.Duration `json:"p90"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
}

// CheckStats counts the outcomes of one named check.
type CheckStats struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// Rate returns the fraction of passed evaluations.
func (c CheckStats) Rate() float64 {
	total := c.Passes + c.Fails
	if total == 0 {
		return 0
	}
	return float64(c.Passes) / float64(total)
}

// TimeBucket represents metrics for one emitter interval.
//
// Each bucket captures both cumulative totals and interval-specific deltas.
type TimeBucket struct {
	// Timestamp when this bucket was created
	Timestamp time.Time `json:"timestamp"`

	// Cumulative counters (total since run start)
	TotalRequests int64 `json:"totalRequests"`
	TotalFailures int64 `json:"totalFailures"`
	TotalBytes    int64 `json:"totalBytes"`

	// Interval metrics (for this bucket only)
	IntervalRequests  int64   `json:"intervalRequests"`
	IntervalRPS       float64 `json:"intervalRPS"`
	IntervalErrorRate float64 `json:"intervalErrorRate"`

	// Latency percentiles over the whole run so far
	LatencyP50 time.Duration `json:"latencyP50"`
	LatencyP90 time.Duration `json:"latencyP90"`
	LatencyP95 time.Duration `json:"latencyP95"`
	LatencyP99 time.Duration `json:"latencyP99"`

	ActiveVUs int    `json:"activeVUs"`
	Phase     Phase  `json:"phase"`
	Stage     string `json:"stage,omitempty"`
}

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase     Phase     `json:"phase"`
	Stage     string    `json:"stage,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Requests  int64     `json:"requests"`
}

// Observer receives every sample as it is recorded. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveRequest(d time.Duration, failed bool, bytes int64)
	ObserveIteration(d time.Duration, err error)
	ObserveCheck(name string, ok bool)
	ObserveVUs(n int)
}
