// Package config provides configuration parsing and validation for courier
// load tests.
package config

import (
	"time"

	"github.com/wesleyorama2/courier/internal/load/shape"
)

// TestConfig is the root configuration for a load test.
//
// Example YAML:
//
//	name: "Delivery API"
//	settings:
//	  host: "https://api.example.com"
//	  apiPrefix: /api
//	  timeout: 30s
//	users:
//	  count: 10
//	  spawnRate: 2
//	  duration: 3m
//	wait:
//	  min: 1s
//	  max: 3s
//	shape:
//	  stages:
//	    - duration: 30s
//	      users: 10
//	      spawnRate: 2
//	thresholds:
//	  http_req_duration: ["p95 < 500ms"]
//	  http_req_failed: ["rate < 0.1"]
type TestConfig struct {
	// Name of the test (for reporting)
	Name string `json:"name" yaml:"name"`

	// Description of the test (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Settings contains the target and HTTP client settings
	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Users is the flat "N users at R per second for T" profile. Ignored
	// when a shape is configured.
	Users UsersConfig `json:"users,omitempty" yaml:"users,omitempty"`

	// Shape replaces Users with a staged ramp
	Shape *ShapeConfig `json:"shape,omitempty" yaml:"shape,omitempty"`

	// Wait bounds the think time between actions
	Wait WaitConfig `json:"wait,omitempty" yaml:"wait,omitempty"`

	// Auth controls the session bootstrap login
	Auth AuthConfig `json:"auth,omitempty" yaml:"auth,omitempty"`

	// Thresholds define pass/fail criteria for metrics
	Thresholds *ThresholdsConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Options for test execution
	Options *ExecutionOptions `json:"options,omitempty" yaml:"options,omitempty"`
}

// Settings contains the target host and HTTP settings.
type Settings struct {
	// Host is the base URL of the delivery API, e.g. "https://api.example.com"
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// APIPrefix is prepended to every endpoint path. "/" means no prefix.
	APIPrefix string `json:"apiPrefix,omitempty" yaml:"apiPrefix,omitempty"`

	// Timeout is the HTTP request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxConnectionsPerHost limits connections per host
	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// UserAgent is sent with every request
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are extra headers applied to all requests
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// UsersConfig is the constant-users profile.
type UsersConfig struct {
	Count int `json:"count,omitempty" yaml:"count,omitempty"`

	// SpawnRate is users started per second. Unset means 1; 0 starts every
	// user at once.
	SpawnRate *float64 `json:"spawnRate,omitempty" yaml:"spawnRate,omitempty"`

	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// Rate returns the spawn rate, 0 when unset.
func (u UsersConfig) Rate() float64 {
	if u.SpawnRate == nil {
		return 0
	}
	return *u.SpawnRate
}

// ShapeConfig is the staged ramp profile.
type ShapeConfig struct {
	// Default selects the built-in ramp table; Stages must then be empty
	Default bool `json:"default,omitempty" yaml:"default,omitempty"`

	// Stages is an explicit ramp table
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// PollInterval is how often the shape is consulted (default: 1s)
	PollInterval Duration `json:"pollInterval,omitempty" yaml:"pollInterval,omitempty"`
}

// StageConfig is one row of a ramp table.
type StageConfig struct {
	Duration  Duration `json:"duration" yaml:"duration"`
	Users     int      `json:"users" yaml:"users"`
	SpawnRate float64  `json:"spawnRate" yaml:"spawnRate"`
	Name      string   `json:"name,omitempty" yaml:"name,omitempty"`
}

// WaitConfig bounds the uniform think time between actions. When both
// bounds are unset the defaults apply; an explicit 0 means no pause.
type WaitConfig struct {
	Min *Duration `json:"min,omitempty" yaml:"min,omitempty"`
	Max *Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// Bounds returns the think-time bounds. An unset bound is 0.
func (w WaitConfig) Bounds() (lo, hi time.Duration) {
	if w.Min != nil {
		lo = time.Duration(*w.Min)
	}
	if w.Max != nil {
		hi = time.Duration(*w.Max)
	}
	return lo, hi
}

// AuthConfig controls the login bootstrap.
type AuthConfig struct {
	// Probability that a new session logs in first. Unset means 0.3; 0
	// disables the bootstrap.
	Probability *float64 `json:"probability,omitempty" yaml:"probability,omitempty"`
}

// ThresholdsConfig defines pass/fail criteria for the test.
type ThresholdsConfig struct {
	// HTTPReqDuration thresholds for request duration
	// e.g., ["p95 < 500ms", "avg < 200ms"]
	HTTPReqDuration []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`

	// HTTPReqFailed thresholds for failure rate
	// e.g., ["rate < 0.1"]
	HTTPReqFailed []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`

	// HTTPReqs thresholds for request count/rate
	// e.g., ["count > 1000", "rate > 100"]
	HTTPReqs []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`
}

// ExecutionOptions controls test execution behavior.
type ExecutionOptions struct {
	// GracefulStop is how long running users get to finish when the run ends
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
}

// ShapeEnabled reports whether the run follows a staged ramp.
func (c *TestConfig) ShapeEnabled() bool {
	return c.Shape != nil && (c.Shape.Default || len(c.Shape.Stages) > 0)
}

// StageTable returns the ramp table the run should follow, or nil when no
// shape is configured.
func (c *TestConfig) StageTable() []shape.Stage {
	if !c.ShapeEnabled() {
		return nil
	}
	if len(c.Shape.Stages) == 0 {
		return shape.DefaultStages()
	}

	stages := make([]shape.Stage, len(c.Shape.Stages))
	for i, s := range c.Shape.Stages {
		stages[i] = shape.Stage{
			Duration:  time.Duration(s.Duration),
			Users:     s.Users,
			SpawnRate: s.SpawnRate,
			Name:      s.Name,
		}
	}
	return stages
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// DurationOf returns a pointer to d as a Duration, for optional fields.
func DurationOf(d time.Duration) *Duration {
	v := Duration(d)
	return &v
}

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
