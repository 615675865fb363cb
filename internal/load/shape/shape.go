// Package shape implements a staged load shape: a table of stages, each
// holding a target user count and spawn rate for a fixed duration.
package shape

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoStages is returned when a controller is built from an empty table.
var ErrNoStages = errors.New("shape: at least one stage is required")

// Stage is one row of the ramp table.
type Stage struct {
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Users     int           `json:"users" yaml:"users"`
	SpawnRate float64       `json:"spawnRate" yaml:"spawnRate"`
	Name      string        `json:"name,omitempty" yaml:"name,omitempty"`
}

// Target is the pool size the runner should converge to.
type Target struct {
	Users     int
	SpawnRate float64
	Stage     int
}

// DefaultStages is the built-in gradual ramp: up to 10 users, hold, up to
// 20 users, hold, then drain.
func DefaultStages() []Stage {
	return []Stage{
		{Duration: 30 * time.Second, Users: 10, SpawnRate: 2, Name: "ramp-up"},
		{Duration: 60 * time.Second, Users: 10, SpawnRate: 2, Name: "steady"},
		{Duration: 30 * time.Second, Users: 20, SpawnRate: 2, Name: "ramp-up-2"},
		{Duration: 60 * time.Second, Users: 20, SpawnRate: 2, Name: "peak"},
		{Duration: 30 * time.Second, Users: 0, SpawnRate: 2, Name: "ramp-down"},
	}
}

// Validate checks a stage table.
func Validate(stages []Stage) error {
	if len(stages) == 0 {
		return ErrNoStages
	}
	for i, s := range stages {
		if s.Duration < 0 {
			return fmt.Errorf("shape: stage %d: duration must be >= 0, got %s", i, s.Duration)
		}
		if s.Users < 0 {
			return fmt.Errorf("shape: stage %d: users must be >= 0, got %d", i, s.Users)
		}
		if s.SpawnRate < 0 {
			return fmt.Errorf("shape: stage %d: spawn rate must be >= 0, got %v", i, s.SpawnRate)
		}
	}
	return nil
}

// TotalDuration is the sum of all stage durations.
func TotalDuration(stages []Stage) time.Duration {
	var total time.Duration
	for _, s := range stages {
		total += s.Duration
	}
	return total
}

// Controller maps elapsed wall-clock time to the active stage.
//
// A stage is active while elapsed time lies before its cumulative end.
// Once a stage's window has passed the controller never returns to it,
// and after the last window it reports the stop sentinel on every call.
//
// Controller is not safe for concurrent use; a single driver polls it.
type Controller struct {
	stages []Stage
	ends   []time.Duration
	index  int
	start  time.Time
}

// NewController validates and copies the stage table.
func NewController(stages []Stage) (*Controller, error) {
	if err := Validate(stages); err != nil {
		return nil, err
	}

	c := &Controller{
		stages: make([]Stage, len(stages)),
		ends:   make([]time.Duration, len(stages)),
	}
	copy(c.stages, stages)

	var cum time.Duration
	for i, s := range c.stages {
		cum += s.Duration
		c.ends[i] = cum
	}
	return c, nil
}

// Tick reports the target for the stage active at now. The first call
// starts the clock. ok is false once every stage has elapsed; a stage with
// zero users still returns ok.
func (c *Controller) Tick(now time.Time) (target Target, ok bool) {
	if c.start.IsZero() {
		c.start = now
	}
	elapsed := now.Sub(c.start)

	for c.index < len(c.stages) && c.ends[c.index] <= elapsed {
		c.index++
	}
	if c.index >= len(c.stages) {
		return Target{}, false
	}

	s := c.stages[c.index]
	return Target{Users: s.Users, SpawnRate: s.SpawnRate, Stage: c.index}, true
}

// Stages returns a copy of the stage table.
func (c *Controller) Stages() []Stage {
	out := make([]Stage, len(c.stages))
	copy(out, c.stages)
	return out
}

// Index is the current stage index (len(Stages()) once finished).
func (c *Controller) Index() int {
	return c.index
}

// Started reports whether the clock has started.
func (c *Controller) Started() bool {
	return !c.start.IsZero()
}

// TotalDuration is the sum of all stage durations.
func (c *Controller) TotalDuration() time.Duration {
	return c.ends[len(c.ends)-1]
}
