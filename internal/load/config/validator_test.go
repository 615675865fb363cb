package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validConfig() *TestConfig {
	rate := 2.0
	return &TestConfig{
		Settings: Settings{Host: "https://api.example.com"},
		Users:    UsersConfig{Count: 10, SpawnRate: &rate, Duration: Duration(time.Minute)},
		Wait:     WaitConfig{Min: DurationOf(time.Second), Max: DurationOf(3 * time.Second)},
	}
}

func TestValidate_MinimalValid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() returned error for valid config: %v", err)
	}
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	config := &TestConfig{
		Settings: Settings{Host: "http://localhost:8080"},
		Shape:    &ShapeConfig{Default: true},
	}
	ApplyDefaults(config)
	if err := config.Validate(); err != nil {
		t.Errorf("Validate() after ApplyDefaults: %v", err)
	}
}

func TestValidate_Fields(t *testing.T) {
	half := 0.5
	tooLikely := 1.5
	negative := -1.0

	tests := []struct {
		name   string
		mutate func(c *TestConfig)
		field  string
	}{
		{"missing host", func(c *TestConfig) { c.Settings.Host = "" }, "settings.host"},
		{"relative host", func(c *TestConfig) { c.Settings.Host = "api.example.com" }, "settings.host"},
		{"ftp host", func(c *TestConfig) { c.Settings.Host = "ftp://api.example.com" }, "settings.host"},
		{"negative timeout", func(c *TestConfig) { c.Settings.Timeout = Duration(-time.Second) }, "settings.timeout"},
		{"negative conns", func(c *TestConfig) { c.Settings.MaxConnectionsPerHost = -1 }, "settings.maxConnectionsPerHost"},
		{"zero users", func(c *TestConfig) { c.Users.Count = 0 }, "users.count"},
		{"negative spawn rate", func(c *TestConfig) { c.Users.SpawnRate = &negative }, "users.spawnRate"},
		{"missing duration", func(c *TestConfig) { c.Users.Duration = 0 }, "users.duration"},
		{"wait reversed", func(c *TestConfig) { c.Wait.Min = DurationOf(5 * time.Second) }, "wait"},
		{"negative wait", func(c *TestConfig) { c.Wait.Min = DurationOf(-time.Second) }, "wait.min"},
		{"auth probability", func(c *TestConfig) { c.Auth.Probability = &tooLikely }, "auth.probability"},
		{"bad threshold metric", func(c *TestConfig) {
			c.Thresholds = &ThresholdsConfig{HTTPReqDuration: []string{"p42 < 1s"}}
		}, "thresholds.http_req_duration[0]"},
		{"threshold without operator", func(c *TestConfig) {
			c.Thresholds = &ThresholdsConfig{HTTPReqFailed: []string{"rate 0.1"}}
		}, "thresholds.http_req_failed[0]"},
		{"empty threshold", func(c *TestConfig) {
			c.Thresholds = &ThresholdsConfig{HTTPReqs: []string{"count > 1", " "}}
		}, "thresholds.http_reqs[1]"},
		{"negative graceful stop", func(c *TestConfig) {
			c.Options = &ExecutionOptions{GracefulStop: Duration(-time.Second)}
		}, "options.gracefulStop"},
		{"default with stages", func(c *TestConfig) {
			c.Shape = &ShapeConfig{Default: true, Stages: []StageConfig{{Duration: Duration(time.Second), Users: 1}}}
		}, "shape"},
		{"negative stage users", func(c *TestConfig) {
			c.Shape = &ShapeConfig{Stages: []StageConfig{{Duration: Duration(time.Second), Users: 1}, {Users: -1}}}
		}, "shape.stages[1].users"},
		{"negative stage rate", func(c *TestConfig) {
			c.Shape = &ShapeConfig{Stages: []StageConfig{{Duration: Duration(time.Second), SpawnRate: -2}}}
		}, "shape.stages[0].spawnRate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			config.Auth.Probability = &half
			tt.mutate(config)

			err := config.Validate()
			if err == nil {
				t.Fatal("Validate() should fail")
			}

			var verrs *ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("error type = %T, want *ValidationErrors", err)
			}
			found := false
			for _, f := range verrs.Fields() {
				if f == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("fields = %v, want %q", verrs.Fields(), tt.field)
			}
		})
	}
}

func TestValidate_ShapeSkipsUsers(t *testing.T) {
	config := validConfig()
	config.Users = UsersConfig{}
	config.Shape = &ShapeConfig{Stages: []StageConfig{{Duration: Duration(time.Second), Users: 0, SpawnRate: 0}}}

	if err := config.Validate(); err != nil {
		t.Errorf("a shaped run needs no users block: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	config := &TestConfig{}

	err := config.Validate()
	if err == nil {
		t.Fatal("Validate() should fail for an empty config")
	}

	msg := err.Error()
	if !strings.Contains(msg, "validation errors") {
		t.Errorf("multi-error message should carry a count, got: %v", msg)
	}
	for _, field := range []string{"settings.host", "users.count", "users.duration"} {
		if !strings.Contains(msg, field) {
			t.Errorf("error should mention %q, got: %v", field, msg)
		}
	}
}

func TestValidationError_Format(t *testing.T) {
	withField := &ValidationError{Field: "users.count", Message: "bad"}
	if got := withField.Error(); got != "validation error on field 'users.count': bad" {
		t.Errorf("Error() = %q", got)
	}

	noField := &ValidationError{Message: "bad"}
	if got := noField.Error(); got != "validation error: bad" {
		t.Errorf("Error() = %q", got)
	}

	empty := &ValidationErrors{}
	if empty.HasErrors() || empty.Error() != "no validation errors" {
		t.Errorf("empty collection = %q", empty.Error())
	}
}
