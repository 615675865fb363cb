package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/courier/internal/load/engine"
	"github.com/wesleyorama2/courier/internal/load/executor"
	"github.com/wesleyorama2/courier/internal/load/metrics"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{1*time.Minute + 30*time.Second, "1m 30s"},
		{1*time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDuration(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0ms"},
		{500 * time.Microsecond, "500µs"},
		{50 * time.Millisecond, "50ms"},
		{1500 * time.Millisecond, "1.50s"},
		{90 * time.Second, "1.5m"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDurationShort(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDurationShort(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		number   int64
		expected string
	}{
		{0, "0"},
		{100, "100"},
		{1000, "1,000"},
		{12345, "12,345"},
		{1234567, "1,234,567"},
		{-4200, "-4,200"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatNumber(tt.number)
			if result != tt.expected {
				t.Errorf("formatNumber(%d) = %q, want %q", tt.number, result, tt.expected)
			}
		})
	}
}

func TestStripANSI(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"\033[32mgreen\033[0m", "green"},
		{"\033[1m\033[34mbold blue\033[0m", "bold blue"},
		{"no \033[31mcolors\033[0m here", "no colors here"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := stripANSI(tt.input)
			if result != tt.expected {
				t.Errorf("stripANSI(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPalette(t *testing.T) {
	if got := NewPalette(false).Good.Sprint("ok"); got != "ok" {
		t.Errorf("disabled palette should print plain text, got %q", got)
	}
	if got := NewPalette(true).Good.Sprint("ok"); !strings.Contains(got, "\033[") {
		t.Errorf("enabled palette should emit escapes, got %q", got)
	}

	p := NewPalette(false)
	if p.ErrorRate(0) != p.Good || p.ErrorRate(0.02) != p.Warn || p.ErrorRate(0.5) != p.Bad {
		t.Error("ErrorRate picked the wrong color")
	}
}

func TestConsoleOutputCreation(t *testing.T) {
	var buf bytes.Buffer

	output := NewConsoleOutput(ConsoleOutputConfig{
		TestName:     "Test Name",
		ExecutorType: "load-shape",
		Writer:       &buf,
	})

	if output.testName != "Test Name" {
		t.Errorf("testName = %q, want %q", output.testName, "Test Name")
	}
	if output.IsTTY() {
		t.Error("Expected non-TTY when writing to buffer")
	}

	output.PrintHeader("http://localhost:8080")
	header := buf.String()
	if !strings.Contains(header, "Test Name - Running [load-shape]") {
		t.Errorf("header missing title: %q", header)
	}
	if !strings.Contains(header, "target: http://localhost:8080") {
		t.Errorf("header missing target: %q", header)
	}
}

func TestProgressBar(t *testing.T) {
	for _, progress := range []float64{-1, 0, 0.5, 1, 2} {
		result := renderProgressBar(progress, 20)

		if !strings.HasPrefix(result, "[") || !strings.HasSuffix(result, "]") {
			t.Errorf("Progress bar should be wrapped in brackets: %q", result)
		}
		if runeCount := len([]rune(result)); runeCount != 22 {
			t.Errorf("Progress bar rune count = %d, want 22", runeCount)
		}
	}

	if got := strings.Count(renderProgressBar(0.5, 20), progressFilled); got != 10 {
		t.Errorf("half a bar should fill 10 cells, got %d", got)
	}
}

func TestUpdate(t *testing.T) {
	stats := &LiveStats{
		Progress:      0.25,
		Elapsed:       15 * time.Second,
		Remaining:     45 * time.Second,
		ActiveUsers:   4,
		TargetUsers:   10,
		TotalRequests: 1234,
		CurrentPhase:  "ramp-up",
		CurrentStage:  1,
		StageName:     "warm",
		TotalStages:   3,
	}

	t.Run("non-tty is silent", func(t *testing.T) {
		var buf bytes.Buffer
		output := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf})
		output.Update(stats)
		if buf.Len() != 0 {
			t.Errorf("Update wrote %q to a non-terminal", buf.String())
		}
	})

	t.Run("tty redraws in place", func(t *testing.T) {
		var buf bytes.Buffer
		output := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf, ForceTTY: true})

		output.Update(stats)
		first := buf.String()
		if !strings.Contains(first, "ramp-up (1/3) warm") {
			t.Errorf("stage line missing: %q", first)
		}
		if !strings.Contains(first, "1,234") {
			t.Errorf("request count missing: %q", first)
		}
		if !strings.HasPrefix(first, "Progress:") {
			t.Errorf("first frame should not move the cursor up: %q", first)
		}

		buf.Reset()
		output.Update(stats)
		if !strings.HasPrefix(buf.String(), "\033[") {
			t.Errorf("second frame should start by moving the cursor up: %q", buf.String())
		}
	})
}

func TestPrintNonInteractiveUpdate(t *testing.T) {
	var buf bytes.Buffer
	output := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf})

	output.PrintNonInteractiveUpdate(&LiveStats{
		Elapsed:       2 * time.Second,
		Progress:      0.5,
		ActiveUsers:   3,
		TargetUsers:   5,
		TotalRequests: 42,
		Errors:        1,
		ErrorRate:     1.0 / 42,
		CurrentPhase:  "steady",
	})

	line := buf.String()
	for _, want := range []string{"[2.0s]", "steady", "Progress: 50%", "Users: 3/5", "Reqs: 42", "Errors: 1"} {
		if !strings.Contains(line, want) {
			t.Errorf("status line %q missing %q", line, want)
		}
	}
	if strings.Count(line, "\n") != 1 {
		t.Errorf("expected a single line, got %q", line)
	}
}

func sampleResult() *engine.TestResult {
	return &engine.TestResult{
		Name:       "Delivery",
		Duration:   30 * time.Second,
		Iterations: 950,
		Passed:     false,
		Metrics: &metrics.Snapshot{
			TotalRequests:   1000,
			SuccessRequests: 990,
			FailedRequests:  10,
			SkippedActions:  7,
			ErrorRate:       0.01,
			RPS:             33.33,
			Latency: metrics.LatencyStats{
				Min:  10 * time.Millisecond,
				Max:  100 * time.Millisecond,
				Mean: 30 * time.Millisecond,
				P50:  25 * time.Millisecond,
				P90:  50 * time.Millisecond,
				P95:  60 * time.Millisecond,
				P99:  80 * time.Millisecond,
			},
		},
		Requests: []metrics.RequestStats{
			{Name: "GET /api/products", Requests: 600, Failures: 0},
			{Name: "GET /api/products/:id", Requests: 400, Failures: 10},
		},
		Failures: []metrics.Failure{
			{Name: "GET /api/products/:id", Reason: "Status code: 404", Occurrences: 10},
		},
		Thresholds: []engine.ThresholdResult{
			{Metric: "http_req_duration", Expression: "p95 < 500ms", Passed: true, Value: "60ms"},
			{Metric: "http_req_failed", Expression: "rate < 0.001", Passed: false, Value: "0.0100",
				Message: "error rate is 0.0100, threshold: < 0.0010"},
		},
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	output := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf})

	output.PrintSummary(sampleResult())
	summary := buf.String()

	for _, want := range []string{
		"Delivery - Failed ✗",
		"1,000",
		"Success Rate:  99.0%",
		"Skipped:       7",
		"GET /api/products/:id",
		"Aggregated",
		"Status code: 404",
		"✓ http_req_duration p95 < 500ms",
		"✗ http_req_failed rate < 0.001",
		"error rate is 0.0100",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestPrintSummary_Passed(t *testing.T) {
	var buf bytes.Buffer
	output := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf})

	result := sampleResult()
	result.Passed = true
	result.Failures = nil
	result.Metrics.SkippedActions = 0

	output.PrintSummary(result)
	summary := buf.String()

	if !strings.Contains(summary, "Completed ✓") {
		t.Error("Summary should show completion status")
	}
	if strings.Contains(summary, "Failures:") {
		t.Error("failure table should be omitted when nothing failed")
	}
	if strings.Contains(summary, "Skipped:") {
		t.Error("skipped line should be omitted when nothing was skipped")
	}
}

func TestQuietMode(t *testing.T) {
	var buf bytes.Buffer

	output := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf, Quiet: true, ForceTTY: true})

	output.PrintHeader("http://localhost")
	output.Update(&LiveStats{Progress: 0.5})
	output.PrintNonInteractiveUpdate(&LiveStats{Progress: 0.5})
	if buf.Len() != 0 {
		t.Errorf("quiet mode wrote %q", buf.String())
	}

	output.PrintSummary(&engine.TestResult{Name: "Test", Passed: true})
	if strings.TrimSpace(buf.String()) != "PASSED" {
		t.Errorf("quiet summary = %q, want PASSED", buf.String())
	}

	buf.Reset()
	output.PrintSummary(&engine.TestResult{Name: "Test"})
	if strings.TrimSpace(buf.String()) != "FAILED" {
		t.Errorf("quiet summary = %q, want FAILED", buf.String())
	}
}

func TestStatsFromEngine(t *testing.T) {
	t.Run("before the run", func(t *testing.T) {
		stats := StatsFromEngine(nil, nil, 0)
		if stats.CurrentPhase != string(metrics.PhaseInit) {
			t.Errorf("CurrentPhase = %q, want init", stats.CurrentPhase)
		}
	})

	t.Run("mid run", func(t *testing.T) {
		snapshot := &metrics.Snapshot{
			TotalRequests:  500,
			FailedRequests: 10,
			SkippedActions: 3,
			ErrorRate:      0.02,
			RPS:            50.0,
			ActiveUsers:    10,
			CurrentPhase:   metrics.PhaseSteady,
			Elapsed:        30 * time.Second,
			Latency: metrics.LatencyStats{
				Mean: 20 * time.Millisecond,
				P95:  50 * time.Millisecond,
			},
		}
		execStats := &executor.Stats{
			Elapsed:          29 * time.Second,
			TotalDuration:    time.Minute,
			ActiveVUs:        9,
			TargetVUs:        20,
			CurrentStage:     1,
			CurrentStageName: "steady",
			TotalStages:      3,
		}

		stats := StatsFromEngine(snapshot, execStats, 0.5)

		if stats.ActiveUsers != 10 {
			t.Errorf("ActiveUsers = %d, want the snapshot's 10", stats.ActiveUsers)
		}
		if stats.TargetUsers != 20 {
			t.Errorf("TargetUsers = %d, want 20", stats.TargetUsers)
		}
		if stats.CurrentStage != 2 || stats.TotalStages != 3 || stats.StageName != "steady" {
			t.Errorf("stage = %d/%d %q, want 2/3 steady", stats.CurrentStage, stats.TotalStages, stats.StageName)
		}
		if stats.Remaining != 30*time.Second {
			t.Errorf("Remaining = %v, want 30s", stats.Remaining)
		}
		if stats.Skipped != 3 || stats.Errors != 10 {
			t.Errorf("Skipped/Errors = %d/%d", stats.Skipped, stats.Errors)
		}
	})

	t.Run("overrun clamps remaining", func(t *testing.T) {
		stats := StatsFromEngine(&metrics.Snapshot{Elapsed: 2 * time.Minute},
			&executor.Stats{TotalDuration: time.Minute}, 1)
		if stats.Remaining != 0 {
			t.Errorf("Remaining = %v, want 0", stats.Remaining)
		}
	})
}
