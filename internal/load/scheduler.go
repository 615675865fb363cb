package load

import (
	"context"
	"crypto/tls"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/courier/internal/load/metrics"
)

// VUScheduler manages the lifecycle of Virtual Users.
//
// It owns the shared HTTP client, spawns and tracks VUs, and coordinates
// shutdown. Executors decide how many VUs should run; the scheduler does
// the bookkeeping.
type VUScheduler struct {
	scenario *Scenario
	metrics  *metrics.Engine
	logger   *zap.Logger

	httpClientConfig HTTPClientConfig
	sharedClient     *http.Client

	vus    map[int]*VirtualUser
	vusMu  sync.RWMutex
	closed bool

	nextVUID   atomic.Int32
	iterations atomic.Int64

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

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool
}

// DefaultHTTPClientConfig returns sensible defaults for load testing.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewVUScheduler creates a new VU scheduler.
func NewVUScheduler(scenario *Scenario, metricsEngine *metrics.Engine, httpConfig HTTPClientConfig, logger *zap.Logger) *VUScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &VUScheduler{
		scenario:         scenario,
		metrics:          metricsEngine,
		logger:           logger,
		httpClientConfig: httpConfig,
		sharedClient:     newHTTPClient(httpConfig),
		vus:              make(map[int]*VirtualUser),
		shutdownCh:       make(chan struct{}),
	}
}

func newHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test environments
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// HTTPClient returns the client shared by all VUs.
func (s *VUScheduler) HTTPClient() *http.Client {
	return s.sharedClient
}

// SpawnVU creates and registers a new Virtual User, or returns nil once
// Shutdown has begun. Every VU it returns must be passed to RunVU, which
// Shutdown waits for.
func (s *VUScheduler) SpawnVU() *VirtualUser {
	id := int(s.nextVUID.Add(1))
	vu := NewVirtualUser(id, s.scenario, s.sharedClient, s.metrics, s.logger)

	s.vusMu.Lock()
	if s.closed {
		s.vusMu.Unlock()
		return nil
	}
	s.vus[id] = vu
	s.shutdownWg.Add(1)
	s.vusMu.Unlock()

	s.UpdateMetrics()
	return vu
}

// GetActiveVUCount returns the number of VUs that have not been asked to
// stop.
func (s *VUScheduler) GetActiveVUCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if !vu.Stopping() {
			count++
		}
	}
	return count
}

// StopVUs requests the n most recently spawned running VUs to stop and
// returns how many were signalled.
func (s *VUScheduler) StopVUs(n int) int {
	if n <= 0 {
		return 0
	}

	s.vusMu.RLock()
	running := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		if !vu.Stopping() {
			running = append(running, vu)
		}
	}
	s.vusMu.RUnlock()

	sort.Slice(running, func(i, j int) bool { return running[i].ID > running[j].ID })
	if n > len(running) {
		n = len(running)
	}
	for _, vu := range running[:n] {
		vu.RequestStop()
	}

	s.UpdateMetrics()
	return n
}

// StopAllVUs requests all VUs to stop.
func (s *VUScheduler) StopAllVUs() {
	s.vusMu.RLock()
	for _, vu := range s.vus {
		vu.RequestStop()
	}
	s.vusMu.RUnlock()

	s.UpdateMetrics()
}

// RemoveVU unregisters a VU and marks it stopped.
func (s *VUScheduler) RemoveVU(id int) {
	s.vusMu.Lock()
	vu, exists := s.vus[id]
	delete(s.vus, id)
	s.vusMu.Unlock()

	if exists {
		vu.MarkStopped()
	}
}

// RunVU runs a VU until it is stopped, ctx is cancelled or the scheduler
// shuts down: bootstrap once, then action, think, repeat.
func (s *VUScheduler) RunVU(ctx context.Context, vu *VirtualUser) {
	defer s.shutdownWg.Done()
	defer s.RemoveVU(vu.ID)

	vu.Start(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		default:
		}

		if vu.Stopping() {
			return
		}

		if _, err := vu.RunIteration(ctx); err != nil {
			return
		}
		s.iterations.Add(1)

		vu.Think(ctx)
	}
}

// Iterations returns the number of actions run across all VUs.
func (s *VUScheduler) Iterations() int64 {
	return s.iterations.Load()
}

// Shutdown stops all VUs and waits up to timeout for them to exit. It
// returns false if some VUs were still running at the deadline.
func (s *VUScheduler) Shutdown(timeout time.Duration) bool {
	s.shutdownOnce.Do(func() {
		s.vusMu.Lock()
		s.closed = true
		s.vusMu.Unlock()
		close(s.shutdownCh)
	})
	s.StopAllVUs()

	done := make(chan struct{})
	go func() {
		s.shutdownWg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	clean := true
	select {
	case <-done:
	case <-timer.C:
		clean = false
		s.logger.Warn("users still running after graceful stop timeout",
			zap.Duration("timeout", timeout),
			zap.Int("remaining", s.GetActiveVUCount()),
		)
	}

	s.sharedClient.CloseIdleConnections()
	s.metrics.SetActiveUsers(0)
	return clean
}

// UpdateMetrics publishes the active VU count.
func (s *VUScheduler) UpdateMetrics() {
	s.metrics.SetActiveUsers(s.GetActiveVUCount())
}
