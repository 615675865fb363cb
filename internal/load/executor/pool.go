package executor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/courier/internal/load"
	"github.com/wesleyorama2/courier/internal/load/metrics"
	"github.com/wesleyorama2/courier/internal/load/rate"
)

// userPool converges the number of running users to a target, one user at
// a time, paced by the target's spawn rate. Both growing and shrinking are
// paced; the scheduler stops the newest users first.
type userPool struct {
	scheduler *load.VUScheduler
	pacer     *rate.LeakyBucket
	logger    *zap.Logger

	mu        sync.Mutex
	target    int
	spawnRate float64
	running   int

	wake chan struct{}
	wg   sync.WaitGroup
}

func newUserPool(scheduler *load.VUScheduler, logger *zap.Logger) *userPool {
	return &userPool{
		scheduler: scheduler,
		pacer:     rate.NewLeakyBucket(0),
		logger:    logger,
		wake:      make(chan struct{}, 1),
	}
}

// setTarget changes the target. The pacer is only reset when the spawn
// rate actually changes, so re-announcing the same stage does not release
// an extra user.
func (p *userPool) setTarget(users int, spawnRate float64) {
	p.mu.Lock()
	rateChanged := spawnRate != p.spawnRate
	p.target = users
	p.spawnRate = spawnRate
	p.mu.Unlock()

	if rateChanged {
		p.pacer.SetRate(spawnRate)
	}

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// run resizes the pool until ctx is done. Users are started with ctx, so
// cancelling it also tears down in-flight requests.
func (p *userPool) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if p.step(ctx) {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}
	}
}

// step adds or removes one user. It returns false when the pool is
// already at its target.
func (p *userPool) step(ctx context.Context) bool {
	if p.delta() == 0 {
		return false
	}
	if err := p.pacer.Wait(ctx); err != nil {
		return true
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// the target may have moved while waiting for the pacer
	switch diff := p.target - p.running; {
	case diff > 0:
		vu := p.scheduler.SpawnVU()
		if vu == nil {
			// scheduler is shutting down
			return false
		}
		p.running++
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.scheduler.RunVU(ctx, vu)
		}()
		p.logger.Debug("user spawned", zap.Int("vu", vu.ID), zap.Int("users", p.running), zap.Int("target", p.target))

	case diff < 0:
		p.scheduler.StopVUs(1)
		p.running--
		p.logger.Debug("user stopped", zap.Int("users", p.running), zap.Int("target", p.target))
	}
	return true
}

func (p *userPool) delta() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target - p.running
}

func (p *userPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *userPool) targetUsers() (int, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target, p.spawnRate
}

// phase classifies the pool's position relative to its target.
func (p *userPool) phase() metrics.Phase {
	switch d := p.delta(); {
	case d > 0:
		return metrics.PhaseRampUp
	case d < 0:
		return metrics.PhaseRampDown
	default:
		return metrics.PhaseSteady
	}
}

// drain stops every user and waits up to timeout for them to exit.
func (p *userPool) drain(timeout time.Duration) bool {
	p.mu.Lock()
	p.scheduler.StopAllVUs()
	p.running = 0
	p.target = 0
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		p.logger.Warn("graceful stop timed out", zap.Duration("timeout", timeout))
		return false
	}
}
