// Package output renders a run for humans and machines: a live console
// display, the final summary with per-label and failure tables, and the
// JSON result document.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/courier/internal/load/engine"
	"github.com/wesleyorama2/courier/internal/load/executor"
	"github.com/wesleyorama2/courier/internal/load/metrics"
)

// Cursor control for the live display.
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	ruleChar       = "━"
	boxHorizontal  = "─"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	progressFilled = "█"
	progressEmpty  = "░"
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	Progress  float64
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveUsers int
	TargetUsers int

	CurrentRPS    float64
	TotalRequests int64
	Errors        int64
	ErrorRate     float64
	Skipped       int64

	LatencyP95 time.Duration
	LatencyAvg time.Duration

	CurrentPhase string
	// CurrentStage is 1-indexed; 0 when the run has no stages
	CurrentStage int
	StageName    string
	TotalStages  int
}

// ConsoleOutput manages console output during and after a run.
type ConsoleOutput struct {
	testName     string
	executorType string
	writer       io.Writer
	isTTY        bool
	quiet        bool
	palette      *Palette

	mu          sync.Mutex
	linesOutput int
}

// ConsoleOutputConfig contains configuration for ConsoleOutput.
type ConsoleOutputConfig struct {
	TestName     string
	ExecutorType string
	Writer       io.Writer
	Quiet        bool
	ForceColors  bool
	ForceTTY     bool
}

// NewConsoleOutput creates a new console output handler.
func NewConsoleOutput(config ConsoleOutputConfig) *ConsoleOutput {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	isTTY := config.ForceTTY || isTerminal(config.Writer)
	useColors := config.ForceColors || (isTTY && supportsColors())

	return &ConsoleOutput{
		testName:     config.TestName,
		executorType: config.ExecutorType,
		writer:       config.Writer,
		isTTY:        isTTY,
		quiet:        config.Quiet,
		palette:      NewPalette(useColors),
	}
}

// PrintHeader prints the run banner.
func (c *ConsoleOutput) PrintHeader(host string) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.palette
	rule := p.Rule.Sprint(strings.Repeat(ruleChar, 56))
	executorInfo := ""
	if c.executorType != "" {
		executorInfo = fmt.Sprintf(" [%s]", c.executorType)
	}

	c.writeln(rule)
	c.writeln(p.Title.Sprintf("%s - Running%s", c.testName, executorInfo))
	if host != "" {
		c.writeln(p.Dim.Sprintf("target: %s", host))
	}
	c.writeln(rule)
	c.writeln("")
}

// Update redraws the live display in place. It does nothing unless the
// writer is a terminal; see PrintNonInteractiveUpdate.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()

	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// clearLive erases the previous live display. Callers hold c.mu.
func (c *ConsoleOutput) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

func (c *ConsoleOutput) renderLiveStats(stats *LiveStats) []string {
	p := c.palette
	var lines []string

	timeInfo := fmt.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))
	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		p.Good.Sprint(renderProgressBar(stats.Progress, 40)),
		p.Title.Sprintf("%.0f%%", stats.Progress*100),
		p.Dim.Sprint(timeInfo)))

	lines = append(lines, fmt.Sprintf("Stage:    %s", p.Phase.Sprint(stageInfo(stats))))
	lines = append(lines, "")

	boxWidth := 55
	lines = append(lines, p.Dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	users := fmt.Sprintf("Users:   %s / %d", p.Value.Sprint(stats.ActiveUsers), stats.TargetUsers)
	reqs := fmt.Sprintf("Requests:    %s", p.Value.Sprint(formatNumber(stats.TotalRequests)))
	lines = append(lines, c.formatBoxRow(users, reqs, boxWidth))

	rps := fmt.Sprintf("RPS:     %s", p.Good.Sprintf("%.1f", stats.CurrentRPS))
	errColor := p.ErrorRate(stats.ErrorRate)
	errs := fmt.Sprintf("Errors:      %s (%s)",
		errColor.Sprint(stats.Errors),
		errColor.Sprint(formatPercent(stats.ErrorRate)))
	lines = append(lines, c.formatBoxRow(rps, errs, boxWidth))

	p95 := fmt.Sprintf("P95:     %s", p.Latency.Sprint(formatDurationShort(stats.LatencyP95)))
	avg := fmt.Sprintf("Avg:         %s", p.Latency.Sprint(formatDurationShort(stats.LatencyAvg)))
	lines = append(lines, c.formatBoxRow(p95, avg, boxWidth))

	lines = append(lines, p.Dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))

	return lines
}

func stageInfo(stats *LiveStats) string {
	info := stats.CurrentPhase
	if stats.TotalStages > 1 {
		info = fmt.Sprintf("%s (%d/%d)", info, stats.CurrentStage, stats.TotalStages)
	}
	if stats.StageName != "" {
		info = fmt.Sprintf("%s %s", info, stats.StageName)
	}
	return info
}

// formatBoxRow formats a two-column row inside the stats box.
func (c *ConsoleOutput) formatBoxRow(left, right string, boxWidth int) string {
	colWidth := (boxWidth - 4) / 2

	leftPadding := colWidth - visibleLen(left)
	if leftPadding < 0 {
		leftPadding = 0
	}
	rightPadding := colWidth - visibleLen(right)
	if rightPadding < 0 {
		rightPadding = 0
	}

	bar := c.palette.Dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s%s %s%s %s",
		bar, left, strings.Repeat(" ", leftPadding),
		bar, right, strings.Repeat(" ", rightPadding),
		bar)
}

func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

// PrintNonInteractiveUpdate prints a one-line status, for output piped to
// a file or CI log.
func (c *ConsoleOutput) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] %s | Progress: %.0f%% | Users: %d/%d | Reqs: %d | RPS: %.1f | Errors: %d (%.1f%%) | P95: %s",
		formatDuration(stats.Elapsed),
		stageInfo(stats),
		stats.Progress*100,
		stats.ActiveUsers,
		stats.TargetUsers,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.Errors,
		stats.ErrorRate*100,
		formatDurationShort(stats.LatencyP95)))
}

// PrintSummary prints the final report: totals, latency distribution, the
// per-label table, the failure table and threshold results.
func (c *ConsoleOutput) PrintSummary(result *engine.TestResult) {
	p := c.palette

	if c.quiet {
		if result.Passed {
			c.writeln(p.Good.Sprint("PASSED"))
		} else {
			c.writeln(p.Bad.Sprint("FAILED"))
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isTTY {
		c.clearLive()
	}

	rule := p.Rule.Sprint(strings.Repeat(ruleChar, 56))
	status := p.Good.Sprint("Completed ✓")
	if !result.Passed {
		status = p.Bad.Sprint("Failed ✗")
	}

	c.writeln("")
	c.writeln(rule)
	c.writeln(fmt.Sprintf("%s - %s", p.Title.Sprint(result.Name), status))
	c.writeln(rule)
	c.writeln("")

	c.writeln(fmt.Sprintf("Duration:      %s", p.Value.Sprint(formatDuration(result.Duration))))
	c.writeln(fmt.Sprintf("Iterations:    %s", p.Value.Sprint(formatNumber(result.Iterations))))

	m := result.Metrics
	if m != nil {
		c.writeln(fmt.Sprintf("Total Reqs:    %s", p.Value.Sprint(formatNumber(m.TotalRequests))))
		c.writeln(fmt.Sprintf("Throughput:    %s", p.Value.Sprintf("%.1f req/s", m.RPS)))

		successRate := 1.0 - m.ErrorRate
		successColor := p.Good
		if successRate < 0.99 {
			successColor = p.Warn
		}
		if successRate < 0.95 {
			successColor = p.Bad
		}
		c.writeln(fmt.Sprintf("Success Rate:  %s", successColor.Sprint(formatPercent(successRate))))
		if m.SkippedActions > 0 {
			c.writeln(fmt.Sprintf("Skipped:       %s %s",
				p.Warn.Sprint(formatNumber(m.SkippedActions)),
				p.Dim.Sprint("(auth-gated picks without a token)")))
		}
		c.writeln("")

		c.writeln(p.Title.Sprint("Latency Distribution:"))
		c.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(m.Latency.Min)))
		c.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(m.Latency.P50)))
		c.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(m.Latency.P90)))
		c.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(m.Latency.P95)))
		c.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(m.Latency.P99)))
		c.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(m.Latency.Max)))
		c.writeln("")
	}

	if len(result.Requests) > 0 {
		c.writeln(p.Title.Sprint("Requests:"))
		c.writeln(RequestTable(result.Requests, m))
		c.writeln("")
	}

	if len(result.Failures) > 0 {
		c.writeln(p.Title.Sprint("Failures:"))
		c.writeln(FailureTable(result.Failures))
		c.writeln("")
	}

	if len(result.Thresholds) > 0 {
		c.writeln(p.Title.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			line := fmt.Sprintf("  %s %s %s (actual: %s)", p.Status(t.Passed), t.Metric, t.Expression, t.Value)
			if !t.Passed && t.Message != "" {
				line += " " + p.Dim.Sprint(t.Message)
			}
			c.writeln(line)
		}
		c.writeln("")
	}

	if result.Error != "" {
		c.writeln(p.Bad.Sprintf("Error: %s", result.Error))
		c.writeln("")
	}
}

// IsTTY returns whether the output is a terminal.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

func (c *ConsoleOutput) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// StatsFromEngine builds LiveStats from a metrics snapshot and executor
// statistics. Either may be nil early in a run.
func StatsFromEngine(snapshot *metrics.Snapshot, stats *executor.Stats, progress float64) *LiveStats {
	live := &LiveStats{
		Progress:     progress,
		CurrentPhase: string(metrics.PhaseInit),
	}

	var total time.Duration
	if stats != nil {
		live.TargetUsers = stats.TargetVUs
		live.ActiveUsers = stats.ActiveVUs
		live.Elapsed = stats.Elapsed
		live.TotalStages = stats.TotalStages
		live.CurrentStage = stats.CurrentStage + 1
		live.StageName = stats.CurrentStageName
		total = stats.TotalDuration
	}

	if snapshot != nil {
		live.ActiveUsers = snapshot.ActiveUsers
		live.Elapsed = snapshot.Elapsed
		live.CurrentRPS = snapshot.RPS
		live.TotalRequests = snapshot.TotalRequests
		live.Errors = snapshot.FailedRequests
		live.ErrorRate = snapshot.ErrorRate
		live.Skipped = snapshot.SkippedActions
		live.LatencyP95 = snapshot.Latency.P95
		live.LatencyAvg = snapshot.Latency.Mean
		live.CurrentPhase = string(snapshot.CurrentPhase)
	}

	switch {
	case total > 0:
		live.Remaining = total - live.Elapsed
	case progress > 0 && progress < 1:
		live.Remaining = time.Duration(float64(live.Elapsed) * (1 - progress) / progress)
	}
	if live.Remaining < 0 {
		live.Remaining = 0
	}

	return live
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a latency.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}

// visibleLen is the printed width of s, ignoring ANSI escapes.
func visibleLen(s string) int {
	return len([]rune(stripANSI(s)))
}

// stripANSI removes ANSI escape codes from a string.
func stripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for i := 0; i < len(s); i++ {
		if s[i] == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if (s[i] >= 'a' && s[i] <= 'z') || (s[i] >= 'A' && s[i] <= 'Z') {
				inEscape = false
			}
			continue
		}
		result.WriteByte(s[i])
	}

	return result.String()
}
