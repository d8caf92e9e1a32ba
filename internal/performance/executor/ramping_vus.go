package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/galias/stressline/internal/performance"
	"github.com/galias/stressline/internal/performance/metrics"
	"github.com/galias/stressline/internal/scenario"
)

// RampingVUs ramps VU count up and down according to stages.
//
// The VU count is interpolated linearly between stage targets and adjusted
// every tick, so throughput grows smoothly rather than in steps.
//
// Example stages:
//
//	stages:
//	  - duration: 30s
//	    target: 300    # Ramp from 0 to 300 VUs over 30s
//	  - duration: 3m
//	    target: 500    # Climb to 500 VUs over 3 minutes
//	  - duration: 10s
//	    target: 0      # Ramp down to 0 VUs over 10s
//
// When the last stage ends, running VUs get GracefulStop to finish their
// current iteration before in-flight requests are cancelled.
type RampingVUs struct {
	config *Config

	scheduler    atomic.Pointer[performance.VUScheduler]
	targetVUs    atomic.Int32
	currentStage atomic.Int32
	running      atomic.Bool

	mu          sync.Mutex
	startTime   time.Time
	stopStages  context.CancelFunc
	stopPending bool
}

// NewRampingVUs creates a new ramping VUs executor.
func NewRampingVUs() *RampingVUs {
	return &RampingVUs{}
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return TypeRampingVUs
}

// Init initializes the executor with configuration.
func (e *RampingVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeRampingVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeRampingVUs, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	return nil
}

// Run starts the executor and blocks until every VU has stopped.
func (e *RampingVUs) Run(ctx context.Context, scheduler *performance.VUScheduler, metricsEngine *metrics.Engine) error {
	if e.config == nil {
		return fmt.Errorf("executor not initialized")
	}

	e.scheduler.Store(scheduler)
	start := time.Now()

	// VUs outlive the stage timer so they can finish during graceful stop.
	vuCtx, cancelVUs := context.WithCancel(ctx)
	defer cancelVUs()

	stageCtx, cancelStages := context.WithTimeout(ctx, e.config.TotalDuration())
	defer cancelStages()

	e.mu.Lock()
	e.startTime = start
	e.stopStages = cancelStages
	if e.stopPending {
		cancelStages()
	}
	e.mu.Unlock()

	e.running.Store(true)
	defer e.running.Store(false)

	e.control(stageCtx, vuCtx, start, scheduler, metricsEngine)

	metricsEngine.SetPhase(metrics.PhaseGracefulStop, "")
	grace := e.config.GracefulStop
	if ctx.Err() != nil {
		grace = 0
	}
	if !scheduler.Shutdown(grace) {
		cancelVUs()
		scheduler.Wait()
	}

	metricsEngine.SetActiveVUs(0)
	metricsEngine.SetPhase(metrics.PhaseDone, "")
	return nil
}

// control adjusts the VU count every tick until the stages are over.
func (e *RampingVUs) control(stageCtx, vuCtx context.Context, start time.Time, scheduler *performance.VUScheduler, metricsEngine *metrics.Engine) {
	tick := e.config.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	lastStage := -1
	for {
		target, idx := TargetVUsAt(e.config.Stages, time.Since(start))
		e.targetVUs.Store(int32(target))
		e.currentStage.Store(int32(idx))

		if idx != lastStage {
			metricsEngine.SetPhase(PhaseFor(e.config.Stages, idx), StageLabel(e.config.Stages, idx))
			lastStage = idx
		}
		scheduler.ScaleVUs(vuCtx, target)

		select {
		case <-stageCtx.Done():
			return
		case <-ticker.C:
		}
	}
}

// TargetVUsAt returns the interpolated VU target at elapsed time and the
// index of the stage in progress. Past the last stage it returns the last
// stage's target.
func TargetVUsAt(stages []scenario.Stage, elapsed time.Duration) (target, stage int) {
	if len(stages) == 0 {
		return 0, 0
	}
	if elapsed < 0 {
		elapsed = 0
	}

	var stageStart time.Duration
	prevTarget := 0

	for i, s := range stages {
		stageEnd := stageStart + s.Duration

		if elapsed < stageEnd {
			progress := float64(elapsed-stageStart) / float64(s.Duration)
			vus := float64(prevTarget) + float64(s.Target-prevTarget)*progress
			return int(vus + 0.5), i
		}

		prevTarget = s.Target
		stageStart = stageEnd
	}

	last := len(stages) - 1
	return stages[last].Target, last
}

// PhaseFor classifies a stage by comparing its target with the previous
// stage's target (0 before the first stage).
func PhaseFor(stages []scenario.Stage, idx int) metrics.Phase {
	if idx < 0 || idx >= len(stages) {
		return metrics.PhaseDone
	}
	prev := 0
	if idx > 0 {
		prev = stages[idx-1].Target
	}
	switch target := stages[idx].Target; {
	case target > prev:
		return metrics.PhaseRampUp
	case target < prev:
		return metrics.PhaseRampDown
	default:
		return metrics.PhaseSteady
	}
}

// StageLabel returns the stage's name, or "stage N" when it has none.
func StageLabel(stages []scenario.Stage, idx int) string {
	if idx < 0 || idx >= len(stages) {
		return ""
	}
	if name := stages[idx].Name; name != "" {
		return name
	}
	return fmt.Sprintf("stage %d", idx+1)
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *RampingVUs) GetProgress() float64 {
	start := e.started()
	if !e.running.Load() {
		if start.IsZero() {
			return 0.0
		}
		return 1.0
	}

	totalDuration := e.config.TotalDuration()
	if totalDuration == 0 {
		return 1.0
	}

	progress := float64(time.Since(start)) / float64(totalDuration)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetStats returns executor statistics.
func (e *RampingVUs) GetStats() *Stats {
	start := e.started()
	var elapsed time.Duration
	if !start.IsZero() {
		elapsed = time.Since(start)
	}

	active := 0
	if s := e.scheduler.Load(); s != nil {
		active = s.GetActiveVUCount()
	}

	stageIdx := int(e.currentStage.Load())
	maxVUs := 0
	for _, s := range e.config.Stages {
		if s.Target > maxVUs {
			maxVUs = s.Target
		}
	}

	return &Stats{
		StartTime:        start,
		CurrentTime:      time.Now(),
		Elapsed:          elapsed,
		TotalDuration:    e.config.TotalDuration(),
		ActiveVUs:        active,
		TargetVUs:        int(e.targetVUs.Load()),
		MaxVUs:           maxVUs,
		CurrentStage:     stageIdx,
		CurrentStageName: StageLabel(e.config.Stages, stageIdx),
		TotalStages:      len(e.config.Stages),
	}
}

func (e *RampingVUs) started() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startTime
}

// Stop ends the stages now. Run then performs the usual graceful stop.
func (e *RampingVUs) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopStages != nil {
		e.stopStages()
	} else {
		e.stopPending = true
	}
	return nil
}

// Ensure RampingVUs implements Executor
var _ Executor = (*RampingVUs)(nil)
