package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/sells-group/pricetrack/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF99"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF99"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD75F"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
)

// formatOutcome renders one outcome as a plain line.
func formatOutcome(o model.SupplierOutcome) string {
	if !o.Success {
		return fmt.Sprintf("✗ %s: %s", o.Supplier, o.Reason)
	}
	line := fmt.Sprintf("✓ %s: $%.2f", o.Supplier, o.NewPrice)
	if o.Delta != nil && *o.Delta != 0 {
		sign := "+"
		if *o.Delta < 0 {
			sign = "-"
		}
		line += fmt.Sprintf(" (%s$%.2f)", sign, math.Abs(*o.Delta))
	}
	return line
}

// renderSummary writes the console report: successes, then failures, then
// the success count.
func renderSummary(w io.Writer, s *model.BatchSummary) {
	_, _ = fmt.Fprintln(w, titleStyle.Render("Batch update summary"))

	for _, o := range s.Successes() {
		_, _ = fmt.Fprintln(w, okStyle.Render(formatOutcome(o)))
		if o.HistoryError != "" {
			_, _ = fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("  ! history not recorded: %s", o.HistoryError)))
		}
	}
	for _, o := range s.Failures() {
		_, _ = fmt.Fprintln(w, failStyle.Render(formatOutcome(o)))
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, fmt.Sprintf("Success: %d/%d", s.Succeeded, s.Total)+
		dimStyle.Render(fmt.Sprintf(" suppliers updated in %s", s.Duration.Round(time.Millisecond))))
}

// writeSummaryJSON writes the summary as indented JSON.
func writeSummaryJSON(w io.Writer, s *model.BatchSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
