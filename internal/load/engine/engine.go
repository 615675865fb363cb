// Package engine wires a test configuration into a running load test: the
// delivery catalog, the user scheduler, the executor and the metrics engine.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/courier/internal/load"
	"github.com/wesleyorama2/courier/internal/load/catalog"
	"github.com/wesleyorama2/courier/internal/load/config"
	"github.com/wesleyorama2/courier/internal/load/delivery"
	"github.com/wesleyorama2/courier/internal/load/executor"
	"github.com/wesleyorama2/courier/internal/load/metrics"
)

// Engine is the main orchestrator for a load test.
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("run.yaml")
//	eng, _ := engine.NewEngine(cfg, logger)
//	result, _ := eng.Run(context.Background())
//	fmt.Printf("Test passed: %v\n", result.Passed)
type Engine struct {
	config     *config.TestConfig
	httpConfig load.HTTPClientConfig
	catalog    *catalog.Catalog
	logger     *zap.Logger
	observers  []metrics.Observer

	mu            sync.RWMutex
	metricsEngine *metrics.Engine
	scheduler     *load.VUScheduler
	executor      executor.Executor
	startTime     time.Time
	running       bool
}

// TestResult contains the complete test results.
type TestResult struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Host        string        `json:"host"`
	Executor    string        `json:"executor"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	Duration    time.Duration `json:"duration"`
	Iterations  int64         `json:"iterations"`

	Metrics    *metrics.Snapshot      `json:"metrics"`
	Requests   []metrics.RequestStats `json:"requests"`
	Failures   []metrics.Failure      `json:"failures"`
	TimeSeries []*metrics.TimeBucket  `json:"timeSeries,omitempty"`
	Phases     []metrics.PhaseChange  `json:"phases,omitempty"`

	Passed     bool              `json:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`

	// Error is set when the executor stopped with an error
	Error string `json:"error,omitempty"`
}

// NewEngine applies defaults to cfg, validates it and builds the delivery
// catalog. observers receive every request sample and active-user update,
// e.g. a metrics.PrometheusExporter.
func NewEngine(cfg *config.TestConfig, logger *zap.Logger, observers ...metrics.Observer) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c, err := delivery.New(delivery.Options{
		Prefix:          cfg.Settings.APIPrefix,
		AuthProbability: cfg.Auth.Probability,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog: %w", err)
	}

	httpConfig := load.DefaultHTTPClientConfig()
	httpConfig.Timeout = cfg.Settings.Timeout.GetDuration(httpConfig.Timeout)
	httpConfig.MaxIdleConnsPerHost = cfg.Settings.MaxIdleConnsPerHost
	httpConfig.MaxConnsPerHost = cfg.Settings.MaxConnectionsPerHost
	httpConfig.InsecureSkipVerify = cfg.Settings.InsecureSkipVerify

	return &Engine{
		config:     cfg,
		httpConfig: httpConfig,
		catalog:    c,
		logger:     logger,
		observers:  observers,
	}, nil
}

// Run executes the test and returns its results. Cancelling ctx ends the
// run early; results are still returned.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	metricsEngine := metrics.NewEngine(e.observers...)
	defer metricsEngine.Stop()
	metricsEngine.SetPhase(metrics.PhaseInit, 0)

	scheduler := load.NewVUScheduler(e.scenario(), metricsEngine, e.httpConfig, e.logger)

	exec, execConfig, err := executor.CreateExecutorFromTestConfig(ctx, e.config, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	e.mu.Lock()
	e.metricsEngine = metricsEngine
	e.scheduler = scheduler
	e.executor = exec
	e.startTime = time.Now()
	e.mu.Unlock()

	e.logger.Info("setup",
		zap.String("name", e.config.Name),
		zap.String("host", e.config.Settings.Host),
		zap.String("prefix", e.config.Settings.APIPrefix),
		zap.String("executor", string(execConfig.Type)),
		zap.Int("max_users", execConfig.MaxUsers()),
		zap.Duration("planned", execConfig.TotalDuration()),
		zap.Int("actions", len(e.catalog.Actions())),
	)

	runErr := exec.Run(ctx, scheduler, metricsEngine)
	if runErr != nil {
		e.logger.Error("executor stopped with error", zap.Error(runErr))
	}

	clean := scheduler.Shutdown(time.Duration(e.config.Options.GracefulStop))

	snapshot := metricsEngine.GetSnapshot()
	thresholds := EvaluateThresholds(e.config.Thresholds, snapshot)

	result := &TestResult{
		Name:        e.config.Name,
		Description: e.config.Description,
		Host:        e.config.Settings.Host,
		Executor:    string(exec.Type()),
		StartTime:   e.startTime,
		EndTime:     time.Now(),
		Duration:    time.Since(e.startTime),
		Iterations:  scheduler.Iterations(),
		Metrics:     snapshot,
		Requests:    metricsEngine.GetRequestStats(),
		Failures:    metricsEngine.GetFailures(),
		TimeSeries:  metricsEngine.GetTimeSeries(),
		Phases:      metricsEngine.GetPhaseHistory(),
		Passed:      AllPassed(thresholds) && runErr == nil,
		Thresholds:  thresholds,
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}

	e.logger.Info("teardown",
		zap.Duration("duration", result.Duration),
		zap.Int64("requests", snapshot.TotalRequests),
		zap.Int64("failures", snapshot.FailedRequests),
		zap.Int64("skipped", snapshot.SkippedActions),
		zap.Bool("clean_shutdown", clean),
		zap.Bool("passed", result.Passed),
	)

	return result, runErr
}

// scenario builds what every simulated user runs.
func (e *Engine) scenario() *load.Scenario {
	headers := make(map[string]string, len(e.config.Settings.Headers)+1)
	headers["User-Agent"] = e.config.Settings.UserAgent
	for k, v := range e.config.Settings.Headers {
		headers[k] = v
	}

	return &load.Scenario{
		Name:    e.config.Name,
		BaseURL: strings.TrimRight(e.config.Settings.Host, "/"),
		Catalog: e.catalog,
		Wait:    catalog.Between(e.config.Wait.Bounds()),
		Headers: headers,
	}
}

// GetConfig returns the test configuration with defaults applied.
func (e *Engine) GetConfig() *config.TestConfig {
	return e.config
}

// Catalog returns the action catalog the users run.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// GetMetrics returns the current metrics snapshot, or nil before Run.
func (e *Engine) GetMetrics() *metrics.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.metricsEngine == nil {
		return nil
	}
	return e.metricsEngine.GetSnapshot()
}

// GetStats returns the executor statistics, or nil before Run.
func (e *Engine) GetStats() *executor.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.executor == nil {
		return nil
	}
	return e.executor.GetStats()
}

// GetProgress returns the overall test progress (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.executor == nil {
		return 0.0
	}
	return e.executor.GetProgress()
}

// IsRunning returns true if the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop ends a running test early.
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
