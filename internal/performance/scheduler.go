package performance

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/galias/stressline/internal/performance/metrics"
	"github.com/galias/stressline/internal/scenario"
)

// DefaultErrorBackoff is the wait after a failed iteration before the next.
const DefaultErrorBackoff = 100 * time.Millisecond

// VUScheduler manages the lifecycle of Virtual Users.
//
// It owns the VU pool, the shared HTTP client and shutdown coordination.
// Executors use it to control VU counts.
type VUScheduler struct {
	workload scenario.Func
	metrics  *metrics.Engine
	logger   logrus.FieldLogger

	httpClientConfig HTTPClientConfig

	vus   map[int]*VirtualUser
	vusMu sync.RWMutex

	nextVUID atomic.Int32

	sharedClient *http.Client

	// ErrorBackoff keeps a VU whose workload fails instantly from spinning.
	ErrorBackoff time.Duration

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	shutdownWg   sync.WaitGroup
}

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool

	// UserAgent is sent with every request
	UserAgent string

	// UseSharedClient indicates whether VUs share a single HTTP client
	UseSharedClient bool
}

// DefaultHTTPClientConfig returns defaults sized for several hundred VUs
// hitting a single host.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             scenario.DefaultHTTPTimeout,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 600,
		MaxConnsPerHost:     0, // Unlimited
		IdleConnTimeout:     90 * time.Second,
		UserAgent:           scenario.DefaultUserAgent,
		UseSharedClient:     true,
	}
}

// HTTPClientConfigFromOptions applies scenario HTTP options over the defaults.
func HTTPClientConfigFromOptions(opts scenario.HTTPOptions) HTTPClientConfig {
	cfg := DefaultHTTPClientConfig()
	if opts.Timeout > 0 {
		cfg.Timeout = opts.Timeout
	}
	if opts.MaxConnsPerHost > 0 {
		cfg.MaxConnsPerHost = opts.MaxConnsPerHost
	}
	if opts.UserAgent != "" {
		cfg.UserAgent = opts.UserAgent
	}
	cfg.InsecureSkipVerify = opts.InsecureSkipVerify
	return cfg
}

// NewVUScheduler creates a new VU scheduler.
func NewVUScheduler(workload scenario.Func, metricsEngine *metrics.Engine, httpConfig HTTPClientConfig, logger logrus.FieldLogger) *VUScheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &VUScheduler{
		workload:         workload,
		metrics:          metricsEngine,
		logger:           logger,
		httpClientConfig: httpConfig,
		vus:              make(map[int]*VirtualUser),
		ErrorBackoff:     DefaultErrorBackoff,
		shutdownCh:       make(chan struct{}),
	}

	if httpConfig.UseSharedClient {
		s.sharedClient = s.createHTTPClient()
	}

	return s
}

func (s *VUScheduler) createHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        s.httpClientConfig.MaxIdleConns,
		MaxIdleConnsPerHost: s.httpClientConfig.MaxIdleConnsPerHost,
		MaxConnsPerHost:     s.httpClientConfig.MaxConnsPerHost,
		IdleConnTimeout:     s.httpClientConfig.IdleConnTimeout,
		DisableKeepAlives:   s.httpClientConfig.DisableKeepAlives,
		ForceAttemptHTTP2:   true,
	}
	if s.httpClientConfig.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test targets
	}

	return &http.Client{
		Transport: transport,
		Timeout:   s.httpClientConfig.Timeout,
	}
}

// SpawnVU creates and registers a new Virtual User without starting it.
func (s *VUScheduler) SpawnVU() *VirtualUser {
	id := int(s.nextVUID.Add(1))

	client := s.sharedClient
	if client == nil {
		client = s.createHTTPClient()
	}

	vu := NewVirtualUser(id, s.workload, client, s.metrics)
	vu.Logger = s.logger
	vu.UserAgent = s.httpClientConfig.UserAgent

	s.vusMu.Lock()
	s.vus[id] = vu
	s.vusMu.Unlock()

	return vu
}

// GetVU returns a VU by ID, or nil if not found.
func (s *VUScheduler) GetVU(id int) *VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	return s.vus[id]
}

// GetActiveVUCount returns the number of VUs that are idle or running.
// VUs finishing their last iteration after a stop request are not counted.
func (s *VUScheduler) GetActiveVUCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if st := vu.GetState(); st == VUStateIdle || st == VUStateRunning {
			count++
		}
	}
	return count
}

// StopAllVUs requests all VUs to stop after their current iteration.
func (s *VUScheduler) StopAllVUs() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// RemoveVU marks a VU stopped and forgets it.
func (s *VUScheduler) RemoveVU(id int) {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()

	if vu, exists := s.vus[id]; exists {
		vu.MarkStopped()
		delete(s.vus, id)
	}
}

// StartVU runs vu in its own goroutine, tracked for Shutdown and Wait.
func (s *VUScheduler) StartVU(ctx context.Context, vu *VirtualUser) {
	s.shutdownWg.Add(1)
	go func() {
		defer s.shutdownWg.Done()
		s.RunVU(ctx, vu)
	}()
}

// RunVU runs iterations on vu until it is stopped or ctx is cancelled.
// The VU is removed from the pool when it returns.
func (s *VUScheduler) RunVU(ctx context.Context, vu *VirtualUser) {
	defer s.RemoveVU(vu.ID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		case <-vu.Stopping():
			return
		default:
		}

		err := vu.RunIteration(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil || errors.Is(err, ErrVUStopped) {
			return
		}

		if s.ErrorBackoff > 0 {
			timer := time.NewTimer(s.ErrorBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

// ScaleVUs spawns or retires VUs until the active count equals target.
//
// New VUs are started on ctx. Retired VUs are the most recently spawned ones;
// they finish their current iteration before exiting. Returns the active
// count after adjustment.
func (s *VUScheduler) ScaleVUs(ctx context.Context, target int) int {
	if target < 0 {
		target = 0
	}

	s.vusMu.RLock()
	active := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		if st := vu.GetState(); st == VUStateIdle || st == VUStateRunning {
			active = append(active, vu)
		}
	}
	s.vusMu.RUnlock()

	current := len(active)
	switch {
	case target > current:
		for i := current; i < target; i++ {
			s.StartVU(ctx, s.SpawnVU())
		}
	case target < current:
		sort.Slice(active, func(i, j int) bool { return active[i].ID > active[j].ID })
		for _, vu := range active[:current-target] {
			vu.RequestStop()
		}
	}

	s.metrics.SetActiveVUs(target)
	return target
}

// Shutdown stops all VUs and waits up to timeout for them to finish their
// current iteration. It reports whether every VU finished in time.
func (s *VUScheduler) Shutdown(timeout time.Duration) bool {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
	s.StopAllVUs()

	done := make(chan struct{})
	go func() {
		s.shutdownWg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	finished := true
	select {
	case <-done:
	case <-timer.C:
		finished = false
	}

	if s.sharedClient != nil {
		s.sharedClient.CloseIdleConnections()
	}
	s.metrics.SetActiveVUs(s.GetActiveVUCount())
	return finished
}

// Wait blocks until every VU goroutine started through RunVU has returned.
func (s *VUScheduler) Wait() {
	s.shutdownWg.Wait()
}
