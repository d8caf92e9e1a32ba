// Package executor provides load generation strategies for stress runs.
package executor

import (
	"context"
	"time"

	"github.com/galias/stressline/internal/performance"
	"github.com/galias/stressline/internal/performance/metrics"
	"github.com/galias/stressline/internal/scenario"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeRampingVUs ramps VU count up and down according to stages.
	TypeRampingVUs Type = "ramping-vus"
)

// Executor defines the interface for load generation strategies.
//
// Executors control how many VUs run at each point in time. The VUs
// themselves come from a VUScheduler.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init validates and stores the configuration. Called once before Run.
	Init(ctx context.Context, config *Config) error

	// Run starts the executor and blocks until completion.
	// Cancelling ctx aborts the run, including in-flight iterations.
	Run(ctx context.Context, scheduler *performance.VUScheduler, metrics *metrics.Engine) error

	// GetProgress returns current progress (0.0 to 1.0).
	GetProgress() float64

	// GetStats returns executor-specific statistics.
	GetStats() *Stats

	// Stop ends the stages early and lets VUs finish gracefully.
	Stop(ctx context.Context) error
}

// Config contains configuration for an executor.
type Config struct {
	// Name is the name of this executor instance
	Name string `json:"name" yaml:"name"`

	// Type is the executor type
	Type Type `json:"type" yaml:"type"`

	// Stages defines the ramp
	Stages []scenario.Stage `json:"stages,omitempty" yaml:"stages,omitempty"`

	// GracefulStop is how long VUs may take to finish their last iteration
	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// TickInterval is how often the VU count is adjusted (default 100ms)
	TickInterval time.Duration `json:"-" yaml:"-"`
}

// DefaultTickInterval is how often ramping executors recompute their target.
const DefaultTickInterval = 100 * time.Millisecond

// ConfigFromOptions builds a ramping-vus configuration from scenario options.
func ConfigFromOptions(opts scenario.Options) *Config {
	return &Config{
		Name:         opts.Name,
		Type:         TypeRampingVUs,
		Stages:       opts.Stages,
		GracefulStop: opts.GracefulStop,
	}
}

// Stats contains real-time executor statistics.
type Stats struct {
	StartTime     time.Time     `json:"startTime"`
	CurrentTime   time.Time     `json:"currentTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	ActiveVUs int `json:"activeVUs"`
	TargetVUs int `json:"targetVUs"`
	MaxVUs    int `json:"maxVUs"`

	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName"`
	TotalStages      int    `json:"totalStages"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "type", Message: "executor type is required"}
	}

	switch c.Type {
	case TypeRampingVUs:
		if len(c.Stages) == 0 {
			return &ValidationError{Field: "stages", Message: "at least one stage is required"}
		}
		for _, s := range c.Stages {
			if s.Duration < 0 {
				return &ValidationError{Field: "stages", Message: "stage duration must not be negative"}
			}
			if s.Target < 0 {
				return &ValidationError{Field: "stages", Message: "stage target must not be negative"}
			}
		}
		if c.TotalDuration() <= 0 {
			return &ValidationError{Field: "stages", Message: "total stage duration must be positive"}
		}
	default:
		return &ValidationError{Field: "type", Message: "unknown executor type: " + string(c.Type)}
	}

	if c.GracefulStop < 0 {
		return &ValidationError{Field: "gracefulStop", Message: "must not be negative"}
	}
	return nil
}

// TotalDuration returns the sum of all stage durations.
func (c *Config) TotalDuration() time.Duration {
	var total time.Duration
	for _, stage := range c.Stages {
		total += stage.Duration
	}
	return total
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}
