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
	"github.com/wesleyorama2/courier/internal/load/shape"
)

// LoadShape drives the user pool from a shape.Controller.
//
// Once per poll interval the controller is asked for the current target;
// the pool then converges to that many users at the stage's spawn rate.
// A stage with zero users drains the pool but the run continues; the run
// ends when the controller reports that every stage has elapsed.
//
// Example stages:
//
//	stages:
//	  - duration: 30s
//	    users: 10
//	    spawnRate: 2   # grow to 10 users, 2 per second
//	  - duration: 60s
//	    users: 10
//	    spawnRate: 2   # hold
//	  - duration: 30s
//	    users: 0
//	    spawnRate: 2   # drain
type LoadShape struct {
	config     *Config
	controller *shape.Controller
	scheduler  *load.VUScheduler
	metrics    *metrics.Engine
	logger     *zap.Logger
	pool       *userPool

	startTime    time.Time
	running      atomic.Bool
	currentStage atomic.Int32

	cancelFunc context.CancelFunc
	mu         sync.RWMutex
}

// NewLoadShape creates a new load-shape executor.
func NewLoadShape(logger *zap.Logger) *LoadShape {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoadShape{logger: logger}
}

// Type returns the executor type.
func (e *LoadShape) Type() Type {
	return TypeLoadShape
}

// Init initializes the executor with configuration.
func (e *LoadShape) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeLoadShape {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeLoadShape, config.Type)
	}
	if err := config.Validate(); err != nil {
		return err
	}

	controller, err := shape.NewController(config.Stages)
	if err != nil {
		return err
	}

	e.config = config
	e.controller = controller
	return nil
}

// Run starts the executor and blocks until the shape finishes or ctx is
// cancelled.
func (e *LoadShape) Run(ctx context.Context, scheduler *load.VUScheduler, metricsEngine *metrics.Engine) error {
	if e.config == nil {
		return fmt.Errorf("executor not initialized")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.scheduler = scheduler
	e.metrics = metricsEngine
	e.pool = newUserPool(scheduler, e.logger)
	e.startTime = time.Now()
	e.cancelFunc = cancel
	e.mu.Unlock()
	e.running.Store(true)

	poolDone := make(chan struct{})
	go func() {
		e.pool.run(runCtx)
		close(poolDone)
	}()

	interval := e.config.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastStage := -1
	for {
		target, ok := e.controller.Tick(time.Now())
		if !ok {
			e.logger.Info("load shape finished", zap.Duration("elapsed", time.Since(e.startTime)))
			cancel()
			break
		}

		if target.Stage != lastStage {
			e.enterStage(target)
			lastStage = target.Stage
		}
		metricsEngine.SetPhase(e.pool.phase(), target.Stage)

		select {
		case <-runCtx.Done():
		case <-ticker.C:
		}
		if runCtx.Err() != nil {
			break
		}
	}

	<-poolDone
	e.pool.drain(e.config.gracefulStop())

	metricsEngine.SetPhase(metrics.PhaseDone, int(e.currentStage.Load()))
	e.running.Store(false)
	return nil
}

func (e *LoadShape) enterStage(target shape.Target) {
	e.currentStage.Store(int32(target.Stage))
	e.pool.setTarget(target.Users, target.SpawnRate)

	stage := e.config.Stages[target.Stage]
	e.logger.Info("entering stage",
		zap.Int("stage", target.Stage),
		zap.String("name", stage.Name),
		zap.Int("users", target.Users),
		zap.Float64("spawn_rate", target.SpawnRate),
		zap.Duration("duration", stage.Duration),
	)
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *LoadShape) GetProgress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return progress(e.startTime, e.running.Load(), e.config.TotalDuration())
}

// GetActiveVUs returns current active user count.
func (e *LoadShape) GetActiveVUs() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.pool == nil {
		return 0
	}
	return e.pool.size()
}

// GetStats returns executor statistics.
func (e *LoadShape) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stageIdx := int(e.currentStage.Load())
	stats := &Stats{
		StartTime:     e.startTime,
		CurrentTime:   time.Now(),
		TotalDuration: e.config.TotalDuration(),
		CurrentStage:  stageIdx,
		TotalStages:   len(e.config.Stages),
	}
	if stageIdx < len(e.config.Stages) {
		stats.CurrentStageName = e.config.Stages[stageIdx].Name
	}
	if !e.startTime.IsZero() {
		stats.Elapsed = time.Since(e.startTime)
	}
	if e.pool != nil {
		stats.ActiveVUs = e.pool.size()
		stats.TargetVUs, stats.SpawnRate = e.pool.targetUsers()
	}
	if e.scheduler != nil {
		stats.Iterations = e.scheduler.Iterations()
	}
	return stats
}

// Stop ends the run early.
func (e *LoadShape) Stop(ctx context.Context) error {
	e.mu.RLock()
	cancel := e.cancelFunc
	e.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

var _ Executor = (*LoadShape)(nil)
