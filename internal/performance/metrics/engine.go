package metrics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/galias/stressline/internal/scenario"
)

// Engine collects and aggregates run metrics using HDR histograms.
//
// Counters use atomic operations, histograms and the check table are mutex
// protected, and a background emitter appends a time bucket every
// BucketInterval.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Observers must be added before the first
// sample is recorded.
type Engine struct {
	// Range: 1 microsecond to 1 hour, 3 significant figures
	reqHist   *hdrhistogram.Histogram
	reqHistMu sync.Mutex

	iterHist   *hdrhistogram.Histogram
	iterHistMu sync.Mutex

	httpReqs        atomic.Int64
	httpReqFailed   atomic.Int64
	dataReceived    atomic.Int64
	iterations      atomic.Int64
	iterationErrors atomic.Int64
	checksPassed    atomic.Int64
	checksFailed    atomic.Int64

	activeVUs atomic.Int32
	maxVUs    atomic.Int32

	checks   map[string]*checkCounter
	checkSeq []string
	checksMu sync.RWMutex

	bucketStore *TimeBucketStore

	currentPhase Phase
	currentStage string
	phaseMu      sync.RWMutex
	phaseHistory []PhaseChange

	observers []Observer

	startTime time.Time
	stopTime  atomic.Pointer[time.Time]

	emitterCtx    context.Context
	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup
	stopOnce      sync.Once

	config EngineConfig
}

type checkCounter struct {
	passes atomic.Int64
	fails  atomic.Int64
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// BucketInterval is the interval for time-series buckets (default: 1s)
	BucketInterval time.Duration

	// MaxBuckets is the maximum number of buckets to retain (default: 3600)
	MaxBuckets int

	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BucketInterval:   time.Second,
		MaxBuckets:       3600,
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
	}
}

// NewEngine creates a new metrics engine with default configuration.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a new metrics engine and starts its emitter.
func NewEngineWithConfig(config EngineConfig) *Engine {
	defaults := DefaultEngineConfig()
	if config.BucketInterval <= 0 {
		config.BucketInterval = defaults.BucketInterval
	}
	if config.HistogramMin <= 0 {
		config.HistogramMin = defaults.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = defaults.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = defaults.HistogramSigFigs
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		reqHist:       hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		iterHist:      hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		checks:        make(map[string]*checkCounter),
		bucketStore:   NewTimeBucketStore(config.MaxBuckets),
		currentPhase:  PhaseInit,
		startTime:     time.Now(),
		emitterCtx:    ctx,
		emitterCancel: cancel,
		config:        config,
	}

	e.emitterWg.Add(1)
	go e.runEmitter()

	return e
}

// AddObserver registers o to receive every sample recorded from now on.
func (e *Engine) AddObserver(o Observer) {
	e.observers = append(e.observers, o)
}

// RecordRequest records one completed request.
//
// failed is true for transport errors and statuses outside 200..399.
func (e *Engine) RecordRequest(duration time.Duration, failed bool, bytes int64) {
	e.reqHistMu.Lock()
	e.reqHist.RecordValue(e.clamp(duration))
	e.reqHistMu.Unlock()

	e.httpReqs.Add(1)
	e.dataReceived.Add(bytes)
	if failed {
		e.httpReqFailed.Add(1)
	}

	e.bucketStore.RecordRequest(failed)

	for _, o := range e.observers {
		o.ObserveRequest(duration, failed, bytes)
	}
}

// RecordIteration records one finished iteration and its outcome.
func (e *Engine) RecordIteration(duration time.Duration, err error) {
	e.iterHistMu.Lock()
	e.iterHist.RecordValue(e.clamp(duration))
	e.iterHistMu.Unlock()

	e.iterations.Add(1)
	if err != nil {
		e.iterationErrors.Add(1)
	}

	for _, o := range e.observers {
		o.ObserveIteration(duration, err)
	}
}

// RecordCheck records one evaluation of the named check.
func (e *Engine) RecordCheck(name string, ok bool) {
	e.checksMu.RLock()
	c, exists := e.checks[name]
	e.checksMu.RUnlock()

	if !exists {
		e.checksMu.Lock()
		c, exists = e.checks[name]
		if !exists {
			c = &checkCounter{}
			e.checks[name] = c
			e.checkSeq = append(e.checkSeq, name)
		}
		e.checksMu.Unlock()
	}

	if ok {
		c.passes.Add(1)
		e.checksPassed.Add(1)
	} else {
		c.fails.Add(1)
		e.checksFailed.Add(1)
	}

	for _, o := range e.observers {
		o.ObserveCheck(name, ok)
	}
}

// SetActiveVUs updates the active VU count.
func (e *Engine) SetActiveVUs(count int) {
	e.activeVUs.Store(int32(count))
	for {
		cur := e.maxVUs.Load()
		if int32(count) <= cur || e.maxVUs.CompareAndSwap(cur, int32(count)) {
			break
		}
	}

	for _, o := range e.observers {
		o.ObserveVUs(count)
	}
}

// GetActiveVUs returns the current active VU count.
func (e *Engine) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

// SetPhase marks a phase transition. stage is the label of the current stage.
func (e *Engine) SetPhase(phase Phase, stage string) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.currentPhase == phase && e.currentStage == stage {
		return
	}

	e.currentPhase = phase
	e.currentStage = stage
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:     phase,
		Stage:     stage,
		Timestamp: time.Now(),
		Requests:  e.httpReqs.Load(),
	})
}

// GetPhase returns the current phase and stage label.
func (e *Engine) GetPhase() (Phase, string) {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.currentPhase, e.currentStage
}

// GetPhaseHistory returns the history of phase changes.
func (e *Engine) GetPhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	result := make([]PhaseChange, len(e.phaseHistory))
	copy(result, e.phaseHistory)
	return result
}

func (e *Engine) clamp(d time.Duration) int64 {
	v := d.Microseconds()
	if v < e.config.HistogramMin {
		v = e.config.HistogramMin
	}
	if v > e.config.HistogramMax {
		v = e.config.HistogramMax
	}
	return v
}

func (e *Engine) runEmitter() {
	defer e.emitterWg.Done()

	ticker := time.NewTicker(e.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.emitterCtx.Done():
			return
		case <-ticker.C:
			e.emitBucket()
		}
	}
}

func (e *Engine) emitBucket() {
	phase, stage := e.GetPhase()
	e.bucketStore.CreateBucket(BucketState{
		TotalRequests: e.httpReqs.Load(),
		TotalFailures: e.httpReqFailed.Load(),
		TotalBytes:    e.dataReceived.Load(),
		Latency:       e.trend(e.reqHist, &e.reqHistMu),
		ActiveVUs:     e.GetActiveVUs(),
		Phase:         phase,
		Stage:         stage,
	})
}

func (e *Engine) trend(h *hdrhistogram.Histogram, mu *sync.Mutex) TrendStats {
	mu.Lock()
	defer mu.Unlock()

	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return TrendStats{
		Count: h.TotalCount(),
		Min:   us(h.Min()),
		Max:   us(h.Max()),
		Avg:   time.Duration(h.Mean() * float64(time.Microsecond)),
		Med:   us(h.ValueAtQuantile(50)),
		P90:   us(h.ValueAtQuantile(90)),
		P95:   us(h.ValueAtQuantile(95)),
		P99:   us(h.ValueAtQuantile(99)),
	}
}

// Percentile returns the p-th percentile of a trend metric.
func (e *Engine) Percentile(metric string, p float64) (time.Duration, error) {
	h, mu, err := e.histogram(metric)
	if err != nil {
		return 0, err
	}
	mu.Lock()
	defer mu.Unlock()
	return time.Duration(h.ValueAtQuantile(p)) * time.Microsecond, nil
}

func (e *Engine) histogram(metric string) (*hdrhistogram.Histogram, *sync.Mutex, error) {
	switch metric {
	case scenario.MetricHTTPReqDuration:
		return e.reqHist, &e.reqHistMu, nil
	case scenario.MetricIterationDuration:
		return e.iterHist, &e.iterHistMu, nil
	default:
		return nil, nil, fmt.Errorf("%s is not a trend metric", metric)
	}
}

// Value returns the aggregated value of metric that a threshold compares
// against. Trends are reported in milliseconds, rates as ratios and counter
// rates per second of elapsed run time.
func (e *Engine) Value(metric, aggregation string, percentile float64) (float64, error) {
	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

	switch scenario.MetricKinds[metric] {
	case scenario.KindTrend:
		if aggregation == "p" {
			d, err := e.Percentile(metric, percentile)
			return ms(d), err
		}
		h, mu, err := e.histogram(metric)
		if err != nil {
			return 0, err
		}
		t := e.trend(h, mu)
		switch aggregation {
		case "avg":
			return ms(t.Avg), nil
		case "min":
			return ms(t.Min), nil
		case "max":
			return ms(t.Max), nil
		case "med":
			return ms(t.Med), nil
		}

	case scenario.KindRate:
		if aggregation == "rate" {
			switch metric {
			case scenario.MetricHTTPReqFailed:
				return ratio(e.httpReqFailed.Load(), e.httpReqs.Load()), nil
			case scenario.MetricChecks:
				passed := e.checksPassed.Load()
				return ratio(passed, passed+e.checksFailed.Load()), nil
			}
		}

	case scenario.KindCounter:
		count := e.counter(metric)
		switch aggregation {
		case "count":
			return float64(count), nil
		case "rate":
			elapsed := e.Elapsed().Seconds()
			if elapsed <= 0 {
				return 0, nil
			}
			return float64(count) / elapsed, nil
		}

	case scenario.KindGauge:
		switch aggregation {
		case "value":
			return float64(e.activeVUs.Load()), nil
		case "max":
			return float64(e.maxVUs.Load()), nil
		}
	}

	return 0, fmt.Errorf("unsupported aggregation %q for metric %q", aggregation, metric)
}

func (e *Engine) counter(metric string) int64 {
	switch metric {
	case scenario.MetricHTTPReqs:
		return e.httpReqs.Load()
	case scenario.MetricIterations:
		return e.iterations.Load()
	case scenario.MetricIterationErrors:
		return e.iterationErrors.Load()
	case scenario.MetricDataReceived:
		return e.dataReceived.Load()
	}
	return 0
}

func ratio(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// Elapsed returns the time since the engine was created, frozen at Stop.
func (e *Engine) Elapsed() time.Duration {
	if stopped := e.stopTime.Load(); stopped != nil {
		return stopped.Sub(e.startTime)
	}
	return time.Since(e.startTime)
}

// Checks returns per-check outcome counts in first-seen order.
func (e *Engine) Checks() []CheckStats {
	e.checksMu.RLock()
	defer e.checksMu.RUnlock()

	result := make([]CheckStats, 0, len(e.checkSeq))
	for _, name := range e.checkSeq {
		c := e.checks[name]
		result = append(result, CheckStats{
			Name:   name,
			Passes: c.passes.Load(),
			Fails:  c.fails.Load(),
		})
	}
	return result
}

// CheckNames returns the names of all recorded checks, sorted.
func (e *Engine) CheckNames() []string {
	e.checksMu.RLock()
	defer e.checksMu.RUnlock()

	names := append([]string(nil), e.checkSeq...)
	sort.Strings(names)
	return names
}

// GetSnapshot returns a point-in-time snapshot of all metrics.
func (e *Engine) GetSnapshot() *Snapshot {
	elapsed := e.Elapsed()
	reqs := e.httpReqs.Load()
	failed := e.httpReqFailed.Load()
	passed := e.checksPassed.Load()
	checksFailed := e.checksFailed.Load()

	rps := 0.0
	if elapsed.Seconds() > 0 {
		rps = float64(reqs) / elapsed.Seconds()
	}

	phase, stage := e.GetPhase()

	return &Snapshot{
		HTTPReqs:          reqs,
		HTTPReqFailed:     failed,
		DataReceived:      e.dataReceived.Load(),
		Iterations:        e.iterations.Load(),
		IterationErrors:   e.iterationErrors.Load(),
		ChecksPassed:      passed,
		ChecksFailed:      checksFailed,
		HTTPReqDuration:   e.trend(e.reqHist, &e.reqHistMu),
		IterationDuration: e.trend(e.iterHist, &e.iterHistMu),
		RPS:               rps,
		ErrorRate:         ratio(failed, reqs),
		CheckRate:         ratio(passed, passed+checksFailed),
		VUs:               e.GetActiveVUs(),
		VUsMax:            int(e.maxVUs.Load()),
		CurrentPhase:      phase,
		CurrentStage:      stage,
		Elapsed:           elapsed,
		StartTime:         e.startTime,
		Timestamp:         time.Now(),
	}
}

// GetTimeSeries returns all time-series buckets.
func (e *Engine) GetTimeSeries() []*TimeBucket {
	return e.bucketStore.GetBuckets()
}

// Stop stops the emitter, freezes Elapsed and emits a final bucket.
// It is safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.emitterCancel()
		e.emitterWg.Wait()

		now := time.Now()
		e.stopTime.Store(&now)
		e.emitBucket()
	})
}
