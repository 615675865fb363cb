// Package rate paces discrete events, such as spawning or stopping
// simulated users, to a target rate per second.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LeakyBucket releases events at a fixed rate.
//
// The bucket keeps a virtual drip time that advances by 1/rate per event.
// Next returns when the next event may happen; callers that fall behind
// schedule get the current time and proceed immediately. Accumulated
// credit is capped at one event, so a slow consumer never bursts, and
// concurrent reservations queue one interval apart.
//
// A rate <= 0 disables pacing: every event is released immediately.
//
// # Thread Safety
//
// LeakyBucket is safe for concurrent use from multiple goroutines.
type LeakyBucket struct {
	rate        float64
	lastDrip    time.Time
	accumulated float64
	mu          sync.Mutex

	released atomic.Int64
}

// NewLeakyBucket creates a bucket releasing rate events per second. The
// first event is released immediately.
func NewLeakyBucket(rate float64) *LeakyBucket {
	return &LeakyBucket{
		rate:        rate,
		lastDrip:    time.Now(),
		accumulated: 1.0,
	}
}

// Next reserves the next event and returns when it may happen.
func (lb *LeakyBucket) Next() time.Time {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	now := time.Now()
	lb.released.Add(1)

	if lb.rate <= 0 {
		lb.lastDrip = now
		return now
	}

	interval := time.Duration(float64(time.Second) / lb.rate)

	// a slot is already reserved in the future: queue behind it
	if lb.lastDrip.After(now) {
		lb.lastDrip = lb.lastDrip.Add(interval)
		return lb.lastDrip
	}

	lb.accumulated += now.Sub(lb.lastDrip).Seconds() * lb.rate
	if lb.accumulated > 1.0 {
		lb.accumulated = 1.0
	}

	if lb.accumulated >= 1.0 {
		lb.accumulated -= 1.0
		lb.lastDrip = now
		return now
	}

	wait := (1.0 - lb.accumulated) / lb.rate
	lb.accumulated = 0

	// lastDrip moves to the reserved slot so waking at that time does not
	// credit the same interval twice
	next := now.Add(time.Duration(wait * float64(time.Second)))
	lb.lastDrip = next
	return next
}

// Wait blocks until the next event may happen or ctx is done.
func (lb *LeakyBucket) Wait(ctx context.Context) error {
	d := time.Until(lb.Next())
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

// SetRate changes the target rate. Accumulated credit is dropped and the
// next event is released immediately, so a new stage starts without
// waiting out the previous stage's interval.
func (lb *LeakyBucket) SetRate(rate float64) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.rate = rate
	lb.accumulated = 1.0
	lb.lastDrip = time.Now()
}

// Rate returns the current target rate in events per second.
func (lb *LeakyBucket) Rate() float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.rate
}

// Released returns the number of events reserved so far.
func (lb *LeakyBucket) Released() int64 {
	return lb.released.Load()
}
