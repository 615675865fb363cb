package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the field paths that failed, in order.
func (e *ValidationErrors) Fields() []string {
	fields := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		fields[i] = err.Field
	}
	return fields
}

// Validate validates the entire test configuration.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	validateSettings(&c.Settings, errs)

	if c.ShapeEnabled() {
		validateShape(c.Shape, errs)
	} else {
		validateUsers(&c.Users, errs)
	}

	validateWait(&c.Wait, errs)

	if p := c.Auth.Probability; p != nil && (*p < 0 || *p > 1) {
		errs.Add("auth.probability", fmt.Sprintf("must be between 0 and 1, got %v", *p))
	}

	if c.Thresholds != nil {
		validateThresholds(c.Thresholds, errs)
	}

	if c.Options != nil && c.Options.GracefulStop < 0 {
		errs.Add("options.gracefulStop", "cannot be negative")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateSettings validates target and HTTP settings.
func validateSettings(s *Settings, errs *ValidationErrors) {
	if s.Host == "" {
		errs.Add("settings.host", "host is required")
	} else if u, err := url.Parse(s.Host); err != nil {
		errs.Add("settings.host", fmt.Sprintf("invalid URL: %v", err))
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.Add("settings.host", fmt.Sprintf("host must be an absolute http(s) URL, got %q", s.Host))
	}

	if s.Timeout < 0 {
		errs.Add("settings.timeout", "cannot be negative")
	}
	if s.MaxConnectionsPerHost < 0 {
		errs.Add("settings.maxConnectionsPerHost", "cannot be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "cannot be negative")
	}
}

// validateUsers validates the constant-users profile.
func validateUsers(u *UsersConfig, errs *ValidationErrors) {
	if u.Count <= 0 {
		errs.Add("users.count", "count must be greater than 0")
	}
	if u.Rate() < 0 {
		errs.Add("users.spawnRate", "spawnRate cannot be negative")
	}
	if u.Duration <= 0 {
		errs.Add("users.duration", "duration is required when no shape is configured")
	}
}

// validateShape validates the staged ramp profile.
func validateShape(s *ShapeConfig, errs *ValidationErrors) {
	if s.Default && len(s.Stages) > 0 {
		errs.Add("shape", "default and stages are mutually exclusive")
	}
	if s.PollInterval < 0 {
		errs.Add("shape.pollInterval", "cannot be negative")
	}

	for i, stage := range s.Stages {
		prefix := fmt.Sprintf("shape.stages[%d]", i)
		if stage.Duration < 0 {
			errs.Add(prefix+".duration", "duration cannot be negative")
		}
		if stage.Users < 0 {
			errs.Add(prefix+".users", "users cannot be negative")
		}
		if stage.SpawnRate < 0 {
			errs.Add(prefix+".spawnRate", "spawnRate cannot be negative")
		}
	}
}

// validateWait validates think-time bounds.
func validateWait(w *WaitConfig, errs *ValidationErrors) {
	lo, hi := w.Bounds()
	if lo < 0 {
		errs.Add("wait.min", "cannot be negative")
	}
	if hi < 0 {
		errs.Add("wait.max", "cannot be negative")
	}
	if lo > hi {
		errs.Add("wait", "min must be less than or equal to max")
	}
}

// validateThresholds validates threshold configuration.
func validateThresholds(t *ThresholdsConfig, errs *ValidationErrors) {
	for i, threshold := range t.HTTPReqDuration {
		if err := validateThresholdExpression(threshold); err != nil {
			errs.Add(fmt.Sprintf("thresholds.http_req_duration[%d]", i), err.Error())
		}
	}

	for i, threshold := range t.HTTPReqFailed {
		if err := validateThresholdExpression(threshold); err != nil {
			errs.Add(fmt.Sprintf("thresholds.http_req_failed[%d]", i), err.Error())
		}
	}

	for i, threshold := range t.HTTPReqs {
		if err := validateThresholdExpression(threshold); err != nil {
			errs.Add(fmt.Sprintf("thresholds.http_reqs[%d]", i), err.Error())
		}
	}
}

// validateThresholdExpression validates a threshold expression.
//
// Valid formats:
//   - "p95 < 500ms"
//   - "avg < 200ms"
//   - "rate < 0.01"
//   - "count > 1000"
func validateThresholdExpression(expr string) error {
	expr = NormalizeThreshold(expr)
	if expr == "" {
		return fmt.Errorf("threshold expression cannot be empty")
	}

	validMetrics := []string{"p50", "p90", "p95", "p99", "min", "max", "avg", "med", "rate", "count"}
	validOps := []string{"<", ">", "<=", ">=", "==", "!="}

	found := false
	for _, metric := range validMetrics {
		if strings.HasPrefix(expr, metric) {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("threshold must start with a valid metric (p50, p90, p95, p99, min, max, avg, med, rate, count)")
	}

	hasOp := false
	for _, op := range validOps {
		if strings.Contains(expr, op) {
			hasOp = true
			break
		}
	}
	if !hasOp {
		return fmt.Errorf("threshold must contain a comparison operator (<, >, <=, >=, ==, !=)")
	}

	return nil
}
