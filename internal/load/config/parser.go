package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultName         = "courier"
	DefaultAPIPrefix    = "/api"
	DefaultUserAgent    = "courier/1.0"
	DefaultTimeout      = 30 * time.Second
	DefaultWaitMin      = 1 * time.Second
	DefaultWaitMax      = 3 * time.Second
	DefaultPollInterval = time.Second
	DefaultGracefulStop = 30 * time.Second
)

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	var config TestConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

var percentileCall = regexp.MustCompile(`p\((\d+)\)`)

// NormalizeThreshold rewrites k6-style percentile calls so "p(95)<500"
// reads as "p95<500".
func NormalizeThreshold(expr string) string {
	return percentileCall.ReplaceAllString(strings.TrimSpace(expr), "p$1")
}

// ParseStages parses a compact ramp table as accepted on the command line:
//
//	30s:10:2,1m:10:2:steady,30s:0:2
//
// Each stage is duration:users:spawnRate with an optional :name suffix.
func ParseStages(s string) ([]StageConfig, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty stage list")
	}

	var stages []StageConfig
	for i, part := range strings.Split(s, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) < 3 || len(fields) > 4 {
			return nil, fmt.Errorf("stage %d: expected duration:users:spawnRate[:name], got %q", i, part)
		}

		dur, err := ParseDurationString(fields[0])
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		users, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid users %q", i, fields[1])
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid spawn rate %q", i, fields[2])
		}

		stage := StageConfig{Duration: Duration(dur), Users: users, SpawnRate: rate}
		if len(fields) == 4 {
			stage.Name = strings.TrimSpace(fields[3])
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

// ApplyDefaults applies default values to a TestConfig.
func ApplyDefaults(config *TestConfig) {
	if config.Name == "" {
		config.Name = DefaultName
	}

	// Settings
	if config.Settings.APIPrefix == "" {
		config.Settings.APIPrefix = DefaultAPIPrefix
	}
	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = Duration(DefaultTimeout)
	}
	if config.Settings.MaxConnectionsPerHost == 0 {
		config.Settings.MaxConnectionsPerHost = 100
	}
	if config.Settings.MaxIdleConnsPerHost == 0 {
		config.Settings.MaxIdleConnsPerHost = 100
	}
	if config.Settings.UserAgent == "" {
		config.Settings.UserAgent = DefaultUserAgent
	}

	// Load profile
	if config.ShapeEnabled() {
		if config.Shape.PollInterval == 0 {
			config.Shape.PollInterval = Duration(DefaultPollInterval)
		}
	} else {
		if config.Users.Count == 0 {
			config.Users.Count = 1
		}
		if config.Users.SpawnRate == nil {
			rate := 1.0
			config.Users.SpawnRate = &rate
		}
	}

	// Think time
	if config.Wait.Min == nil && config.Wait.Max == nil {
		config.Wait.Min = DurationOf(DefaultWaitMin)
		config.Wait.Max = DurationOf(DefaultWaitMax)
	}

	// Thresholds: an explicit empty block disables them
	if config.Thresholds == nil {
		config.Thresholds = &ThresholdsConfig{
			HTTPReqDuration: []string{"p95 < 500ms"},
			HTTPReqFailed:   []string{"rate < 0.1"},
		}
	}

	// Options
	if config.Options == nil {
		config.Options = &ExecutionOptions{}
	}
	if config.Options.GracefulStop == 0 {
		config.Options.GracefulStop = Duration(DefaultGracefulStop)
	}
}
