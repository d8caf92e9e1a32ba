package scenario

import (
	"context"
	"time"
)

const (
	// DefaultURL is the fixed target of the constant-URL variant.
	DefaultURL = "http://Galias-FinalProject-frontend-alb-1074551113.ap-southeast-1.elb.amazonaws.com"

	// DefaultPause is the wait at the end of every iteration.
	DefaultPause = 100 * time.Millisecond

	// DefaultName names the built-in scenario.
	DefaultName = "stress-test"

	DefaultGracefulStop = 30 * time.Second
	DefaultHTTPTimeout  = 60 * time.Second
	DefaultUserAgent    = "stressline/1.0"
)

// DefaultStages is the built-in ramp: up to 300 VUs in 30s, on to 500 over
// 3m, then down to 0 in 10s.
func DefaultStages() []Stage {
	return []Stage{
		{Duration: 30 * time.Second, Target: 300, Name: "ramp-up"},
		{Duration: 3 * time.Minute, Target: 500, Name: "stress"},
		{Duration: 10 * time.Second, Target: 0, Name: "ramp-down"},
	}
}

// DefaultThresholds returns the built-in pass/fail conditions by metric name.
func DefaultThresholds() map[string][]string {
	return map[string][]string{
		MetricHTTPReqDuration: {"p(95)<2000"},
		MetricHTTPReqFailed:   {"rate<0.05"},
	}
}

// Workload builds the per-iteration function: resolve the target, issue one
// GET, record the checks, then pause.
//
// A resolution failure ends the iteration before any request is sent.
func Workload(target Target, checks []Check, pause time.Duration) Func {
	if len(checks) == 0 {
		checks = []Check{StatusOK()}
	}
	return func(ctx context.Context, rt Runtime) error {
		url, err := target.Resolve()
		if err != nil {
			return err
		}

		res := rt.Get(ctx, url)
		rt.Check(res, checks...)

		return rt.Sleep(ctx, pause)
	}
}

// Stress returns the built-in stress scenario against target.
func Stress(target Target) (*Scenario, error) {
	thresholds, err := ParseThresholds(DefaultThresholds())
	if err != nil {
		return nil, err
	}
	return &Scenario{
		Options: Options{
			Name:         DefaultName,
			Stages:       DefaultStages(),
			Thresholds:   thresholds,
			GracefulStop: DefaultGracefulStop,
			HTTP: HTTPOptions{
				Timeout:   DefaultHTTPTimeout,
				UserAgent: DefaultUserAgent,
			},
		},
		Workload: Workload(target, nil, DefaultPause),
		Target:   target,
	}, nil
}
