// Package metrics aggregates request samples into latency histograms,
// per-label statistics, a failure table and a time series.
package metrics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Observer receives every sample as it is recorded. Observers are called
// synchronously from request goroutines and must be safe for concurrent
// use.
type Observer interface {
	ObserveRequest(s Sample)
	ObserveActiveUsers(n int)
}

// Engine collects and aggregates load test metrics using HDR histograms.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Counters use atomic operations,
// histograms and tables use mutex protection, and the background emitter
// runs in its own goroutine.
type Engine struct {
	// Range: 1 microsecond to 1 hour, 3 significant figures
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	labels   map[string]*labelStats
	labelsMu sync.RWMutex

	failures   map[failureKey]int64
	failuresMu sync.Mutex

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	skippedActions  atomic.Int64
	totalBytes      atomic.Int64

	activeUsers atomic.Int32

	bucketStore *TimeBucketStore

	currentPhase Phase
	currentStage int
	phaseMu      sync.RWMutex
	phaseHistory []PhaseChange

	observers []Observer

	startTime time.Time

	emitterCtx    context.Context
	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup
	stopOnce      sync.Once

	config EngineConfig
}

type labelStats struct {
	hist     *hdrhistogram.Histogram
	requests int64
	failures int64
}

type failureKey struct {
	name   string
	reason string
}

// NewEngine creates a new metrics engine with default configuration.
func NewEngine(observers ...Observer) *Engine {
	return NewEngineWithConfig(DefaultEngineConfig(), observers...)
}

// NewEngineWithConfig creates a new metrics engine with custom configuration.
func NewEngineWithConfig(config EngineConfig, observers ...Observer) *Engine {
	if config.BucketInterval <= 0 {
		config.BucketInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	engine := &Engine{
		latencyHist:   hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		labels:        make(map[string]*labelStats),
		failures:      make(map[failureKey]int64),
		bucketStore:   NewTimeBucketStore(config.MaxBuckets),
		currentPhase:  PhaseInit,
		phaseHistory:  make([]PhaseChange, 0),
		observers:     observers,
		startTime:     time.Now(),
		emitterCtx:    ctx,
		emitterCancel: cancel,
		config:        config,
	}

	engine.emitterWg.Add(1)
	go engine.runEmitter()

	return engine
}

// Record adds one completed request.
func (e *Engine) Record(s Sample) {
	latencyMicros := s.Duration.Microseconds()
	if latencyMicros < e.config.HistogramMin {
		latencyMicros = e.config.HistogramMin
	}
	if latencyMicros > e.config.HistogramMax {
		latencyMicros = e.config.HistogramMax
	}

	// HDR histograms are not thread-safe
	e.latencyHistMu.Lock()
	e.latencyHist.RecordValue(latencyMicros)
	e.latencyHistMu.Unlock()

	if s.Name != "" {
		e.recordLabel(s.Name, latencyMicros, s.Success)
	}

	e.totalRequests.Add(1)
	e.totalBytes.Add(s.Bytes)
	if s.Success {
		e.successRequests.Add(1)
	} else {
		e.failedRequests.Add(1)
		e.recordFailure(s.Name, s.Reason)
	}

	e.bucketStore.RecordRequest(s.Success)

	for _, o := range e.observers {
		o.ObserveRequest(s)
	}
}

// RecordSkipped counts an action that was picked but not eligible to run.
func (e *Engine) RecordSkipped() {
	e.skippedActions.Add(1)
}

func (e *Engine) recordLabel(name string, latencyMicros int64, success bool) {
	e.labelsMu.Lock()
	defer e.labelsMu.Unlock()

	ls, ok := e.labels[name]
	if !ok {
		ls = &labelStats{
			hist: hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs),
		}
		e.labels[name] = ls
	}

	ls.hist.RecordValue(latencyMicros)
	ls.requests++
	if !success {
		ls.failures++
	}
}

func (e *Engine) recordFailure(name, reason string) {
	if reason == "" {
		reason = "unknown"
	}

	e.failuresMu.Lock()
	e.failures[failureKey{name: name, reason: reason}]++
	e.failuresMu.Unlock()
}

// SetPhase updates the current phase and stage index.
func (e *Engine) SetPhase(phase Phase, stage int) {
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
		Requests:  e.totalRequests.Load(),
	})
}

// GetPhase returns the current phase and stage index.
func (e *Engine) GetPhase() (Phase, int) {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.currentPhase, e.currentStage
}

// SetActiveUsers updates the active user count.
func (e *Engine) SetActiveUsers(count int) {
	e.activeUsers.Store(int32(count))
	for _, o := range e.observers {
		o.ObserveActiveUsers(count)
	}
}

// GetActiveUsers returns the current active user count.
func (e *Engine) GetActiveUsers() int {
	return int(e.activeUsers.Load())
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
	e.bucketStore.CreateBucket(
		e.totalRequests.Load(),
		e.successRequests.Load(),
		e.failedRequests.Load(),
		e.totalBytes.Load(),
		e.GetLatencyPercentiles(),
		e.GetActiveUsers(),
		phase,
		stage,
	)
}

// GetLatencyPercentiles returns current overall latency percentiles.
func (e *Engine) GetLatencyPercentiles() LatencyPercentiles {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()

	return LatencyPercentiles{
		Min: micros(e.latencyHist.Min()),
		Max: micros(e.latencyHist.Max()),
		P50: micros(e.latencyHist.ValueAtQuantile(50)),
		P90: micros(e.latencyHist.ValueAtQuantile(90)),
		P95: micros(e.latencyHist.ValueAtQuantile(95)),
		P99: micros(e.latencyHist.ValueAtQuantile(99)),
	}
}

// GetSnapshot returns a point-in-time snapshot of all metrics.
func (e *Engine) GetSnapshot() *Snapshot {
	e.latencyHistMu.Lock()
	latency := latencyStats(e.latencyHist)
	e.latencyHistMu.Unlock()

	elapsed := time.Since(e.startTime)
	totalReqs := e.totalRequests.Load()
	failedReqs := e.failedRequests.Load()

	rps := 0.0
	if elapsed.Seconds() > 0 {
		rps = float64(totalReqs) / elapsed.Seconds()
	}
	steadyRPS, _ := e.bucketStore.CalculateSteadyStateRPS()

	errorRate := 0.0
	if totalReqs > 0 {
		errorRate = float64(failedReqs) / float64(totalReqs)
	}

	phase, stage := e.GetPhase()

	return &Snapshot{
		TotalRequests:   totalReqs,
		SuccessRequests: e.successRequests.Load(),
		FailedRequests:  failedReqs,
		SkippedActions:  e.skippedActions.Load(),
		TotalBytes:      e.totalBytes.Load(),
		Latency:         latency,
		RPS:             rps,
		SteadyStateRPS:  steadyRPS,
		ErrorRate:       errorRate,
		ActiveUsers:     e.GetActiveUsers(),
		CurrentPhase:    phase,
		CurrentStage:    stage,
		Elapsed:         elapsed,
		StartTime:       e.startTime,
		Timestamp:       time.Now(),
	}
}

// GetRequestStats returns per-label statistics sorted by label.
func (e *Engine) GetRequestStats() []RequestStats {
	e.labelsMu.RLock()
	defer e.labelsMu.RUnlock()

	result := make([]RequestStats, 0, len(e.labels))
	for name, ls := range e.labels {
		result = append(result, RequestStats{
			Name:     name,
			Requests: ls.requests,
			Failures: ls.failures,
			Latency:  latencyStats(ls.hist),
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// GetFailures returns the failure table, most frequent first.
func (e *Engine) GetFailures() []Failure {
	e.failuresMu.Lock()
	defer e.failuresMu.Unlock()

	result := make([]Failure, 0, len(e.failures))
	for k, n := range e.failures {
		result = append(result, Failure{Name: k.name, Reason: k.reason, Occurrences: n})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Occurrences != result[j].Occurrences {
			return result[i].Occurrences > result[j].Occurrences
		}
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].Reason < result[j].Reason
	})
	return result
}

// GetTimeSeries returns all time-series buckets.
func (e *Engine) GetTimeSeries() []*TimeBucket {
	return e.bucketStore.GetBuckets()
}

// GetPhaseHistory returns the history of phase changes.
func (e *Engine) GetPhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	result := make([]PhaseChange, len(e.phaseHistory))
	copy(result, e.phaseHistory)
	return result
}

// Stop stops the background emitter and emits a final bucket. It is safe
// to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.emitterCancel()
		e.emitterWg.Wait()
		e.emitBucket()
	})
}

func latencyStats(h *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    micros(h.Min()),
		Max:    micros(h.Max()),
		Mean:   time.Duration(h.Mean()) * time.Microsecond,
		StdDev: time.Duration(h.StdDev()) * time.Microsecond,
		P50:    micros(h.ValueAtQuantile(50)),
		P90:    micros(h.ValueAtQuantile(90)),
		P95:    micros(h.ValueAtQuantile(95)),
		P99:    micros(h.ValueAtQuantile(99)),
		Count:  h.TotalCount(),
	}
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}
