// Package scenario defines what a stress run does: the declarative options
// (stages, thresholds) and the workload a virtual user executes per iteration.
//
// The package holds no scheduling logic. A driver reads Options before the run
// starts and calls the workload through the Runtime it provides:
//
//	sc, err := scenario.Stress(scenario.EnvTarget{})
//	...
//	err = sc.Workload(ctx, vu) // vu implements Runtime
package scenario

import (
	"context"
	"net/http"
	"time"
)

// Stage is one segment of the concurrency ramp.
//
// The driver interpolates linearly from the previous stage's target (0 before
// the first stage) to Target over Duration.
type Stage struct {
	// Duration of this stage
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target VU count to reach by the end of the stage
	Target int `json:"target" yaml:"target"`

	// Name is an optional label used in progress output
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// HTTPOptions configures the client shared by all virtual users.
type HTTPOptions struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	MaxConnsPerHost    int
	UserAgent          string
}

// Options is the configuration object the driver reads before the run.
// It is fixed at definition time and read-only for the run's duration.
type Options struct {
	// Name of the run (for reporting)
	Name string

	// Stages defines the concurrency ramp, executed in order
	Stages []Stage

	// Thresholds maps a metric name to the conditions that must all hold
	Thresholds []Threshold

	// GracefulStop is how long VUs may take to finish their last iteration
	GracefulStop time.Duration

	// HTTP client settings
	HTTP HTTPOptions
}

// TotalDuration returns the sum of all stage durations.
func (o *Options) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range o.Stages {
		total += s.Duration
	}
	return total
}

// MaxTarget returns the highest stage target.
func (o *Options) MaxTarget() int {
	max := 0
	for _, s := range o.Stages {
		if s.Target > max {
			max = s.Target
		}
	}
	return max
}

// Response is what a Runtime returns for a request. It is never nil: transport
// failures are reported through Error with Status 0.
type Response struct {
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	Duration time.Duration
	Error    error

	// Aborted is set when the request was cut short by cancellation.
	// Aborted responses are not recorded.
	Aborted bool
}

// Runtime is the surface a driver exposes to a workload.
type Runtime interface {
	// Get issues one GET request and records its latency and outcome.
	Get(ctx context.Context, url string) *Response

	// Check evaluates checks against res and records each outcome.
	// It reports whether all checks passed. Failures never abort the iteration.
	Check(res *Response, checks ...Check) bool

	// Sleep pauses the iteration. It returns early only when ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// Func is a workload: the body of one virtual-user iteration.
type Func func(ctx context.Context, rt Runtime) error

// Scenario pairs the declarative options with the workload the driver runs.
type Scenario struct {
	Options  Options
	Workload Func

	// Target describes where requests go, for logging and reporting
	Target Target
}
