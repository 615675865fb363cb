package output

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/wesleyorama2/courier/internal/load/catalog"
	"github.com/wesleyorama2/courier/internal/load/metrics"
	"github.com/wesleyorama2/courier/internal/load/shape"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// newTable returns a bordered table with the house style. Columns listed
// in right are right-aligned.
func newTable(right map[int]bool, headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := cellStyle
			if row == table.HeaderRow {
				style = headerStyle
			}
			if right[col] {
				return style.Align(lipgloss.Right)
			}
			return style
		})
}

// RequestTable renders the per-label breakdown. When total is non-nil an
// aggregated row closes the table.
func RequestTable(requests []metrics.RequestStats, total *metrics.Snapshot) string {
	t := newTable(map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: true, 8: true},
		"Name", "Reqs", "Fails", "Fail %", "Avg", "P50", "P95", "P99", "Max")

	for _, rs := range requests {
		t.Row(
			rs.Name,
			formatNumber(rs.Requests),
			formatNumber(rs.Failures),
			formatPercent(rs.FailureRate()),
			formatDurationShort(rs.Latency.Mean),
			formatDurationShort(rs.Latency.P50),
			formatDurationShort(rs.Latency.P95),
			formatDurationShort(rs.Latency.P99),
			formatDurationShort(rs.Latency.Max),
		)
	}

	if total != nil {
		t.Row(
			"Aggregated",
			formatNumber(total.TotalRequests),
			formatNumber(total.FailedRequests),
			formatPercent(total.ErrorRate),
			formatDurationShort(total.Latency.Mean),
			formatDurationShort(total.Latency.P50),
			formatDurationShort(total.Latency.P95),
			formatDurationShort(total.Latency.P99),
			formatDurationShort(total.Latency.Max),
		)
	}

	return t.Render()
}

// FailureTable renders how often each label failed for each reason.
func FailureTable(failures []metrics.Failure) string {
	t := newTable(map[int]bool{0: true}, "# Occurrences", "Name", "Reason")
	for _, f := range failures {
		t.Row(formatNumber(f.Occurrences), f.Name, f.Reason)
	}
	return t.Render()
}

// CatalogTable lists every action with its weight and selection
// probability. The bootstrap action, if any, is listed last with the
// probability that a new user runs it.
func CatalogTable(c *catalog.Catalog) string {
	t := newTable(map[int]bool{1: true, 2: true}, "Label", "Weight", "Probability", "Auth")

	for _, a := range c.Actions() {
		t.Row(a.Name, strconv.Itoa(a.Weight), formatPercent(c.Probability(a)), yesNo(a.RequiresAuth))
	}
	if b := c.Bootstrap(); b != nil && b.Action != nil {
		t.Row(b.Action.Name, "on start", formatPercent(b.Probability), yesNo(b.Action.RequiresAuth))
	}

	return t.Render()
}

// StagesTable renders a stage table with each stage's window on the
// cumulative timeline.
func StagesTable(stages []shape.Stage) string {
	t := newTable(map[int]bool{0: true, 2: true, 3: true, 4: true, 5: true, 6: true},
		"#", "Name", "Start", "End", "Duration", "Users", "Spawn/s")

	var start time.Duration
	for i, s := range stages {
		end := start + s.Duration
		t.Row(
			strconv.Itoa(i+1),
			s.Name,
			formatClock(start),
			formatClock(end),
			formatDuration(s.Duration),
			strconv.Itoa(s.Users),
			strconv.FormatFloat(s.SpawnRate, 'f', -1, 64),
		)
		start = end
	}

	return t.Render()
}

// formatClock renders an offset as m:ss, or h:mm:ss past an hour.
func formatClock(d time.Duration) string {
	secs := int(d.Seconds())
	if secs >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs/60%60, secs%60)
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func formatPercent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
