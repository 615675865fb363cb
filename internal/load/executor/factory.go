package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/courier/internal/load/config"
)

// NewExecutor creates a new executor of the specified type.
//
// Supported types:
//   - "constant-users" - Fixed number of users for a duration
//   - "load-shape" - User count follows a staged ramp table
//
// Returns an uninitialized executor. Call Init() before Run().
func NewExecutor(executorType Type, logger *zap.Logger) (Executor, error) {
	switch executorType {
	case TypeConstantUsers:
		return NewConstantUsers(logger), nil
	case TypeLoadShape:
		return NewLoadShape(logger), nil
	default:
		return nil, fmt.Errorf("unknown executor type %q (supported: %v)", executorType, GetSupportedExecutors())
	}
}

// CreateAndInitExecutor creates and initializes an executor with the given config.
func CreateAndInitExecutor(ctx context.Context, cfg *Config, logger *zap.Logger) (Executor, error) {
	exec, err := NewExecutor(cfg.Type, logger)
	if err != nil {
		return nil, err
	}

	if err := exec.Init(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}

	return exec, nil
}

// CreateExecutorFromTestConfig creates and initializes the executor a test
// config asks for: load-shape when a shape is configured, constant-users
// otherwise.
func CreateExecutorFromTestConfig(ctx context.Context, tc *config.TestConfig, logger *zap.Logger) (Executor, *Config, error) {
	execConfig := ConfigFromTestConfig(tc)

	exec, err := CreateAndInitExecutor(ctx, execConfig, logger)
	if err != nil {
		return nil, nil, err
	}

	return exec, execConfig, nil
}

// ConfigFromTestConfig converts a config.TestConfig to an executor Config.
func ConfigFromTestConfig(tc *config.TestConfig) *Config {
	cfg := &Config{Name: tc.Name}
	if tc.Options != nil {
		cfg.GracefulStop = time.Duration(tc.Options.GracefulStop)
	}

	if tc.ShapeEnabled() {
		cfg.Type = TypeLoadShape
		cfg.Stages = tc.StageTable()
		cfg.PollInterval = time.Duration(tc.Shape.PollInterval)
		return cfg
	}

	cfg.Type = TypeConstantUsers
	cfg.Users = tc.Users.Count
	cfg.SpawnRate = tc.Users.Rate()
	cfg.Duration = time.Duration(tc.Users.Duration)
	return cfg
}

// IsValidExecutorType returns true if the type is a valid executor type.
func IsValidExecutorType(executorType string) bool {
	switch Type(executorType) {
	case TypeConstantUsers, TypeLoadShape:
		return true
	default:
		return false
	}
}

// GetSupportedExecutors returns a list of all supported executor types.
func GetSupportedExecutors() []Type {
	return []Type{TypeConstantUsers, TypeLoadShape}
}
