package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Bibi40k/vmgmt/pkg/system"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	normalStyle = lipgloss.NewStyle()
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// stateStyle colors a normalized VM state.
func stateStyle(st system.State) lipgloss.Style {
	switch st {
	case system.StateRunning:
		return okStyle
	case system.StateStopped:
		return dimStyle
	case system.StateError:
		return errStyle
	default:
		return warnStyle
	}
}

// cellStyler picks the style for one cell; nil renders everything plain.
type cellStyler func(col int, value string) lipgloss.Style

// renderTable lays rows out in left-aligned columns under a styled header.
// Widths are measured on the raw text so styling never breaks alignment.
func renderTable(headers []string, rows [][]string, style cellStyler) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := range headers {
			if i < len(row) {
				if w := lipgloss.Width(row[i]); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}

	var sb strings.Builder
	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = fmt.Sprintf("%-*s", widths[i], h)
	}
	sb.WriteString("  " + headerStyle.Render(strings.Join(cells, "  ")) + "\n")

	total := 2 * (len(headers) - 1)
	for _, w := range widths {
		total += w
	}
	sb.WriteString("  " + borderStyle.Render(strings.Repeat("─", total)) + "\n")

	for _, row := range rows {
		for i := range headers {
			val := ""
			if i < len(row) {
				val = row[i]
			}
			padded := fmt.Sprintf("%-*s", widths[i], val)
			st := normalStyle
			if style != nil {
				st = style(i, val)
			}
			cells[i] = st.Render(padded)
		}
		sb.WriteString("  " + strings.TrimRight(strings.Join(cells, "  "), " ") + "\n")
	}
	if len(rows) == 0 {
		sb.WriteString("  " + dimStyle.Render("(none)") + "\n")
	}
	return sb.String()
}
