package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/courier/internal/load"
	"github.com/wesleyorama2/courier/internal/load/metrics"
)

// ConstantUsers spawns Users users at SpawnRate users/second and keeps
// them running until Duration has elapsed.
//
// This is the plain "N users, spawn rate R, run time T" mode: the pool
// ramps up once and then holds.
type ConstantUsers struct {
	config    *Config
	scheduler *load.VUScheduler
	metrics   *metrics.Engine
	logger    *zap.Logger
	pool      *userPool

	startTime time.Time
	running   atomic.Bool

	cancelFunc context.CancelFunc
	mu         sync.RWMutex
}

// NewConstantUsers creates a new constant-users executor.
func NewConstantUsers(logger *zap.Logger) *ConstantUsers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConstantUsers{logger: logger}
}

// Type returns the executor type.
func (e *ConstantUsers) Type() Type {
	return TypeConstantUsers
}

// Init initializes the executor with configuration.
func (e *ConstantUsers) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeConstantUsers {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeConstantUsers, config.Type)
	}
	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	return nil
}

// Run starts the executor and blocks until completion.
func (e *ConstantUsers) Run(ctx context.Context, scheduler *load.VUScheduler, metricsEngine *metrics.Engine) error {
	if e.config == nil {
		return fmt.Errorf("executor not initialized")
	}

	runCtx, cancel := context.WithTimeout(ctx, e.config.Duration)
	defer cancel()

	e.mu.Lock()
	e.scheduler = scheduler
	e.metrics = metricsEngine
	e.pool = newUserPool(scheduler, e.logger)
	e.startTime = time.Now()
	e.cancelFunc = cancel
	e.mu.Unlock()
	e.running.Store(true)

	e.pool.setTarget(e.config.Users, e.config.SpawnRate)
	metricsEngine.SetPhase(metrics.PhaseRampUp, 0)

	poolDone := make(chan struct{})
	go func() {
		e.pool.run(runCtx)
		close(poolDone)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-runCtx.Done():
			break loop
		case <-ticker.C:
			metricsEngine.SetPhase(e.pool.phase(), 0)
		}
	}

	<-poolDone
	e.pool.drain(e.config.gracefulStop())

	metricsEngine.SetPhase(metrics.PhaseDone, 0)
	e.running.Store(false)
	return nil
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *ConstantUsers) GetProgress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return progress(e.startTime, e.running.Load(), e.config.TotalDuration())
}

// GetActiveVUs returns current active user count.
func (e *ConstantUsers) GetActiveVUs() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.pool == nil {
		return 0
	}
	return e.pool.size()
}

// GetStats returns executor statistics.
func (e *ConstantUsers) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := &Stats{
		StartTime:     e.startTime,
		CurrentTime:   time.Now(),
		TotalDuration: e.config.TotalDuration(),
		TargetVUs:     e.config.Users,
		SpawnRate:     e.config.SpawnRate,
		TotalStages:   1,
	}
	if !e.startTime.IsZero() {
		stats.Elapsed = time.Since(e.startTime)
	}
	if e.pool != nil {
		stats.ActiveVUs = e.pool.size()
	}
	if e.scheduler != nil {
		stats.Iterations = e.scheduler.Iterations()
	}
	return stats
}

// Stop ends the run early.
func (e *ConstantUsers) Stop(ctx context.Context) error {
	e.mu.RLock()
	cancel := e.cancelFunc
	e.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

func progress(start time.Time, running bool, total time.Duration) float64 {
	if !running {
		if start.IsZero() {
			return 0.0
		}
		return 1.0
	}
	if total <= 0 {
		return 1.0
	}

	p := float64(time.Since(start)) / float64(total)
	if p > 1.0 {
		p = 1.0
	}
	return p
}

var _ Executor = (*ConstantUsers)(nil)
