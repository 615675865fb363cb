// Package executor provides the strategies that decide how many simulated
// users run at any moment.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/wesleyorama2/courier/internal/load"
	"github.com/wesleyorama2/courier/internal/load/metrics"
	"github.com/wesleyorama2/courier/internal/load/shape"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeConstantUsers spawns a fixed number of users at a spawn rate and
	// keeps them running for a duration.
	TypeConstantUsers Type = "constant-users"

	// TypeLoadShape follows a staged shape: each stage sets the target user
	// count and spawn rate for its window.
	TypeLoadShape Type = "load-shape"
)

// DefaultPollInterval is how often the load-shape executor polls its
// controller.
const DefaultPollInterval = time.Second

// Executor defines the interface for load generation strategies.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init validates and stores the configuration. Called once before Run.
	Init(ctx context.Context, config *Config) error

	// Run drives the user pool and blocks until the run is over.
	Run(ctx context.Context, scheduler *load.VUScheduler, metrics *metrics.Engine) error

	// GetProgress returns current progress (0.0 to 1.0).
	GetProgress() float64

	// GetActiveVUs returns current active user count.
	GetActiveVUs() int

	// GetStats returns executor statistics.
	GetStats() *Stats

	// Stop ends the run early.
	Stop(ctx context.Context) error
}

// Config contains configuration for an executor.
type Config struct {
	// Name is the name of this executor instance
	Name string `json:"name" yaml:"name"`

	// Type is the executor type
	Type Type `json:"type" yaml:"type"`

	// constant-users
	Users     int           `json:"users,omitempty" yaml:"users,omitempty"`
	SpawnRate float64       `json:"spawnRate,omitempty" yaml:"spawnRate,omitempty"`
	Duration  time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// load-shape
	Stages       []shape.Stage `json:"stages,omitempty" yaml:"stages,omitempty"`
	PollInterval time.Duration `json:"pollInterval,omitempty" yaml:"pollInterval,omitempty"`

	// GracefulStop bounds how long running users get to finish at the end
	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
}

// Stats contains real-time executor statistics.
type Stats struct {
	StartTime     time.Time     `json:"startTime"`
	CurrentTime   time.Time     `json:"currentTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	ActiveVUs int     `json:"activeVUs"`
	TargetVUs int     `json:"targetVUs"`
	SpawnRate float64 `json:"spawnRate"`

	Iterations int64 `json:"iterations"`

	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName"`
	TotalStages      int    `json:"totalStages"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "type", Message: "executor type is required"}
	}
	if !IsValidExecutorType(string(c.Type)) {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown executor type %q (supported: %v)", c.Type, GetSupportedExecutors())}
	}

	switch c.Type {
	case TypeConstantUsers:
		if c.Users <= 0 {
			return &ValidationError{Field: "users", Message: "users must be > 0"}
		}
		if c.SpawnRate < 0 {
			return &ValidationError{Field: "spawnRate", Message: "spawnRate must be >= 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}

	case TypeLoadShape:
		if err := shape.Validate(c.Stages); err != nil {
			return &ValidationError{Field: "stages", Message: err.Error()}
		}
		if c.PollInterval < 0 {
			return &ValidationError{Field: "pollInterval", Message: "pollInterval must be >= 0"}
		}

	}

	if c.GracefulStop < 0 {
		return &ValidationError{Field: "gracefulStop", Message: "gracefulStop must be >= 0"}
	}
	return nil
}

// TotalDuration calculates the planned run time.
func (c *Config) TotalDuration() time.Duration {
	switch c.Type {
	case TypeConstantUsers:
		return c.Duration
	case TypeLoadShape:
		return shape.TotalDuration(c.Stages)
	default:
		return 0
	}
}

// MaxUsers returns the largest user count the config can reach.
func (c *Config) MaxUsers() int {
	if c.Type == TypeConstantUsers {
		return c.Users
	}
	max := 0
	for _, s := range c.Stages {
		if s.Users > max {
			max = s.Users
		}
	}
	return max
}

func (c *Config) gracefulStop() time.Duration {
	if c.GracefulStop > 0 {
		return c.GracefulStop
	}
	return 30 * time.Second
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}
