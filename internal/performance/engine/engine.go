// Package engine orchestrates a stress run: it wires the scenario to a VU
// scheduler and executor, collects metrics and evaluates thresholds.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/galias/stressline/internal/performance"
	"github.com/galias/stressline/internal/performance/executor"
	"github.com/galias/stressline/internal/performance/metrics"
	"github.com/galias/stressline/internal/performance/threshold"
	"github.com/galias/stressline/internal/scenario"
)

// Engine runs a single scenario once.
//
// Example usage:
//
//	sc, _ := scenario.Stress(scenario.EnvTarget{})
//	eng, _ := engine.New(sc, engine.WithLogger(logger))
//	result, _ := eng.Run(ctx)
//	fmt.Printf("Test passed: %v\n", result.Passed)
type Engine struct {
	scenario *scenario.Scenario

	logger        logrus.FieldLogger
	registerer    prometheus.Registerer
	runID         string
	metricsConfig metrics.EngineConfig
	errorBackoff  time.Duration

	mu            sync.RWMutex
	metricsEngine *metrics.Engine
	executor      executor.Executor
	started       bool
	running       bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The engine adds run_id and scenario fields.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRegisterer exports run metrics to reg as they are recorded.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.registerer = reg }
}

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// WithMetricsConfig overrides the metrics engine configuration.
func WithMetricsConfig(cfg metrics.EngineConfig) Option {
	return func(e *Engine) { e.metricsConfig = cfg }
}

// WithErrorBackoff sets how long a VU waits after a failed iteration.
func WithErrorBackoff(d time.Duration) Option {
	return func(e *Engine) { e.errorBackoff = d }
}

// TestResult contains the complete run results.
type TestResult struct {
	RunID  string `json:"runId"`
	Name   string `json:"name"`
	Target string `json:"target"`

	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	Metrics    *metrics.Snapshot     `json:"metrics"`
	TimeSeries []*metrics.TimeBucket `json:"timeSeries,omitempty"`
	Checks     []metrics.CheckStats  `json:"checks"`
	Phases     []metrics.PhaseChange `json:"phases,omitempty"`

	Thresholds []threshold.Result `json:"thresholds,omitempty"`

	// Passed is true when every threshold held
	Passed bool `json:"passed"`

	// Aborted is true when the run was cancelled before the stages finished
	Aborted bool `json:"aborted"`
}

// New creates an engine for sc.
func New(sc *scenario.Scenario, opts ...Option) (*Engine, error) {
	if sc == nil {
		return nil, fmt.Errorf("scenario is required")
	}
	if sc.Workload == nil {
		return nil, fmt.Errorf("scenario %q has no workload", sc.Options.Name)
	}

	e := &Engine{
		scenario:      sc,
		metricsConfig: metrics.DefaultEngineConfig(),
		errorBackoff:  performance.DefaultErrorBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = logrus.StandardLogger()
	}
	if e.runID == "" {
		e.runID = uuid.NewString()
	}
	e.logger = e.logger.WithFields(logrus.Fields{
		"run_id":   e.runID,
		"scenario": sc.Options.Name,
	})

	// Fail on bad options before any VU starts.
	if err := executor.ConfigFromOptions(sc.Options).Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	return e, nil
}

// RunID returns the identifier attached to logs and results.
func (e *Engine) RunID() string {
	return e.runID
}

// Run executes the scenario and returns the results.
//
// Cancelling ctx aborts the run; the partial result is still returned with
// Aborted set. Threshold failures are reported through TestResult.Passed,
// not as an error.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	opts := e.scenario.Options

	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine has already run")
	}
	e.started = true

	me := metrics.NewEngineWithConfig(e.metricsConfig)
	if e.registerer != nil {
		me.AddObserver(metrics.NewPrometheusObserver(e.registerer, opts.Name))
	}

	exec, err := executor.CreateAndInitExecutor(ctx, executor.ConfigFromOptions(opts))
	if err != nil {
		e.mu.Unlock()
		me.Stop()
		return nil, err
	}

	e.metricsEngine = me
	e.executor = exec
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	scheduler := performance.NewVUScheduler(
		e.scenario.Workload,
		me,
		performance.HTTPClientConfigFromOptions(opts.HTTP),
		e.logger,
	)
	scheduler.ErrorBackoff = e.errorBackoff

	target := ""
	if e.scenario.Target != nil {
		target = e.scenario.Target.String()
	}

	e.logger.WithFields(logrus.Fields{
		"target":   target,
		"stages":   len(opts.Stages),
		"max_vus":  opts.MaxTarget(),
		"duration": opts.TotalDuration().String(),
	}).Info("starting run")

	startTime := time.Now()
	runErr := exec.Run(ctx, scheduler, me)
	me.Stop()
	endTime := time.Now()

	results := threshold.Evaluate(opts.Thresholds, me)
	for _, r := range threshold.Failed(results) {
		e.logger.WithFields(logrus.Fields{
			"metric":     r.Metric,
			"expression": r.Expression,
			"value":      r.Value,
		}).Warn("threshold crossed")
	}

	result := &TestResult{
		RunID:      e.runID,
		Name:       opts.Name,
		Target:     target,
		StartTime:  startTime,
		EndTime:    endTime,
		Duration:   endTime.Sub(startTime),
		Metrics:    me.GetSnapshot(),
		TimeSeries: me.GetTimeSeries(),
		Checks:     me.Checks(),
		Phases:     me.GetPhaseHistory(),
		Thresholds: results,
		Passed:     threshold.Passed(results),
		Aborted:    ctx.Err() != nil,
	}

	if m := result.Metrics; m.HTTPReqs == 0 && m.IterationErrors > 0 {
		e.logger.WithFields(logrus.Fields{
			"iterations":       m.Iterations,
			"iteration_errors": m.IterationErrors,
		}).Warn("no requests were sent; every iteration failed before its request")
	}

	e.logger.WithFields(logrus.Fields{
		"passed":   result.Passed,
		"aborted":  result.Aborted,
		"requests": result.Metrics.HTTPReqs,
		"duration": result.Duration.Round(time.Millisecond).String(),
	}).Info("run finished")

	return result, runErr
}

// GetMetrics returns the current metrics snapshot, or nil before Run.
func (e *Engine) GetMetrics() *metrics.Snapshot {
	e.mu.RLock()
	me := e.metricsEngine
	e.mu.RUnlock()

	if me == nil {
		return nil
	}
	return me.GetSnapshot()
}

// GetStats returns executor statistics, or nil before Run.
func (e *Engine) GetStats() *executor.Stats {
	e.mu.RLock()
	exec := e.executor
	e.mu.RUnlock()

	if exec == nil {
		return nil
	}
	return exec.GetStats()
}

// GetProgress returns the run progress (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	e.mu.RLock()
	exec := e.executor
	e.mu.RUnlock()

	if exec == nil {
		return 0.0
	}
	return exec.GetProgress()
}

// IsRunning returns true if the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop ends the stages early. VUs still get the graceful stop window.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.RLock()
	exec := e.executor
	running := e.running
	e.mu.RUnlock()

	if !running || exec == nil {
		return nil
	}
	return exec.Stop(ctx)
}
