// Package performance runs scenario workloads on a pool of virtual users.
package performance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/galias/stressline/internal/performance/metrics"
	"github.com/galias/stressline/internal/scenario"
)

// ErrVUStopped is returned by RunIteration once a stop has been requested.
var ErrVUStopped = errors.New("virtual user is stopping or stopped")

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is ready but not currently running.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is executing an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU has been requested to stop.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is a single simulated user running workload iterations.
//
// It implements scenario.Runtime: the workload issues requests, records
// checks and sleeps through it, and every sample lands in Metrics.
type VirtualUser struct {
	// Unique identifier for this VU
	ID int

	// Workload executed once per iteration
	Workload scenario.Func

	// HTTP client for this VU (usually shared)
	HTTPClient *http.Client

	// Metrics engine for recording results
	Metrics *metrics.Engine

	// Logger carries the run fields; the VU adds vu and iteration
	Logger logrus.FieldLogger

	// UserAgent is sent with every request when set
	UserAgent string

	state atomic.Int32

	stopCh   chan struct{}
	doneCh   chan struct{}
	doneOnce sync.Once

	iteration atomic.Int64

	// lastErr is only touched by the goroutine running iterations.
	lastErr string
}

// NewVirtualUser creates a new Virtual User.
func NewVirtualUser(id int, workload scenario.Func, httpClient *http.Client, metricsEngine *metrics.Engine) *VirtualUser {
	return &VirtualUser{
		ID:         id,
		Workload:   workload,
		HTTPClient: httpClient,
		Metrics:    metricsEngine,
		Logger:     logrus.StandardLogger(),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of iterations started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// RunIteration executes the workload once.
//
// The iteration's duration and outcome are recorded unless ctx was cancelled
// while it ran. A workload error is logged and returned; the caller decides
// whether to keep looping.
func (vu *VirtualUser) RunIteration(ctx context.Context) error {
	if !vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning)) {
		return ErrVUStopped
	}
	// A concurrent RequestStop moves Running to Stopping; keep that.
	defer vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))

	if err := ctx.Err(); err != nil {
		return err
	}
	if vu.Workload == nil {
		return fmt.Errorf("VU %d has no workload", vu.ID)
	}

	iter := vu.iteration.Add(1)
	start := time.Now()
	err := vu.Workload(ctx, vu)
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		// Aborted by cancellation, not a measured iteration.
		return ctx.Err()
	}

	vu.Metrics.RecordIteration(elapsed, err)
	if err != nil {
		entry := vu.Logger.WithFields(logrus.Fields{
			"vu":        vu.ID,
			"iteration": iter,
		}).WithError(err)
		// Repeats of the same failure are demoted to debug.
		if msg := err.Error(); msg != vu.lastErr {
			vu.lastErr = msg
			entry.Warn("iteration failed")
		} else {
			entry.Debug("iteration failed")
		}
	} else {
		vu.lastErr = ""
	}
	return err
}

// Get issues one GET request to url and records its latency and outcome.
//
// The returned response is never nil. Requests cut short by ctx cancellation
// are not recorded.
func (vu *VirtualUser) Get(ctx context.Context, url string) *scenario.Response {
	res := &scenario.Response{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		res.Error = fmt.Errorf("failed to build request: %w", err)
		vu.Metrics.RecordRequest(0, true, 0)
		return res
	}
	if vu.UserAgent != "" {
		req.Header.Set("User-Agent", vu.UserAgent)
	}

	start := time.Now()
	resp, err := vu.HTTPClient.Do(req)
	if err != nil {
		res.Duration = time.Since(start)
		res.Error = err
		vu.record(ctx, res)
		return res
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	res.Duration = time.Since(start)
	res.Status = resp.StatusCode
	res.Header = resp.Header
	res.Body = body
	if err != nil {
		res.Error = fmt.Errorf("failed to read response body: %w", err)
	}

	vu.record(ctx, res)
	return res
}

func (vu *VirtualUser) record(ctx context.Context, res *scenario.Response) {
	if ctx.Err() != nil {
		res.Aborted = true
		return
	}
	vu.Metrics.RecordRequest(res.Duration, RequestFailed(res), int64(len(res.Body)))
	if res.Error != nil {
		vu.Logger.WithFields(logrus.Fields{
			"vu":        vu.ID,
			"iteration": vu.iteration.Load(),
			"url":       res.URL,
		}).WithError(res.Error).Debug("request failed")
	}
}

// RequestFailed reports whether res counts toward http_req_failed: a
// transport error or a status outside 200..399.
func RequestFailed(res *scenario.Response) bool {
	return res.Error != nil || res.Status < 200 || res.Status >= 400
}

// Check evaluates checks against res and records each outcome. Outcomes for
// an aborted response are evaluated but not recorded.
func (vu *VirtualUser) Check(res *scenario.Response, checks ...scenario.Check) bool {
	all := true
	for _, c := range checks {
		ok := c.Fn != nil && c.Fn(res)
		if res == nil || !res.Aborted {
			vu.Metrics.RecordCheck(c.Name, ok)
		}
		all = all && ok
	}
	return all
}

// Sleep pauses for d. A stop request does not shorten it; only ctx does.
func (vu *VirtualUser) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RequestStop signals the VU to stop after completing the current iteration.
func (vu *VirtualUser) RequestStop() {
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping)) {
		close(vu.stopCh)
	}
}

// Stopping returns a channel closed once a stop has been requested.
func (vu *VirtualUser) Stopping() <-chan struct{} {
	return vu.stopCh
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// MarkStopped marks the VU as fully stopped.
// Should be called when the VU goroutine exits.
func (vu *VirtualUser) MarkStopped() {
	prev := VUState(vu.state.Swap(int32(VUStateStopped)))
	if prev == VUStateIdle || prev == VUStateRunning {
		close(vu.stopCh)
	}
	vu.doneOnce.Do(func() { close(vu.doneCh) })
}

var _ scenario.Runtime = (*VirtualUser)(nil)
