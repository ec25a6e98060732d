package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/danmuck/tablectl/internal/simulation"
)

var (
	primaryColor = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"}
	mutedColor   = lipgloss.AdaptiveColor{Light: "#6C6F85", Dark: "#A6ADC8"}
	errorColor   = lipgloss.AdaptiveColor{Light: "#D20F39", Dark: "#F38BA8"}

	titleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Padding(0, 1)

	errStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)
)

var columns = []struct {
	title string
	width int
}{
	{"seat", 6},
	{"meals", 7},
	{"requests", 10},
	{"denials", 9},
	{"avg wait", 12},
	{"status", 24},
}

// renderReport lays out per-seat diner stats above the arbiter counters.
func renderReport(report simulation.Report) string {
	var rows []string
	rows = append(rows, renderRow(headerStyle, columnTitles()))
	for _, seat := range report.Seats {
		status := "ok"
		style := cellStyle
		if seat.Err != nil {
			status = seat.Err.Error()
			style = errStyle
		}
		rows = append(rows, renderRow(style, []string{
			fmt.Sprintf("%d", seat.Seat),
			fmt.Sprintf("%d", seat.Stats.Meals),
			fmt.Sprintf("%d", seat.Stats.Requests),
			fmt.Sprintf("%d", seat.Stats.Denials),
			averageWait(seat.Stats.Waited, seat.Stats.Meals).String(),
			status,
		}))
	}

	final := report.Final
	stats := final.Stats
	summary := []string{
		fmt.Sprintf("variant=%s fairness=%s strict=%t", final.Variant, final.Fairness, final.Strict),
		fmt.Sprintf("requests=%d releases=%d grants=%d", stats.Requests, stats.Releases, stats.Grants),
		fmt.Sprintf("deferrals=%d wakeups=%d denials=%d violations=%d departures=%d", stats.Deferrals, stats.Wakeups, stats.Denials, stats.Violations, stats.Departures),
		fmt.Sprintf("meals=%d elapsed=%s", report.TotalMeals(), report.Elapsed.Round(time.Millisecond)),
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("dining table report"),
		boxStyle.Render(strings.Join(rows, "\n")),
		footerStyle.Render(strings.Join(summary, "\n")),
	)
}

func columnTitles() []string {
	titles := make([]string, len(columns))
	for i, c := range columns {
		titles[i] = c.title
	}
	return titles
}

func renderRow(style lipgloss.Style, cells []string) string {
	rendered := make([]string, len(cells))
	for i, cell := range cells {
		rendered[i] = style.Width(columns[i].width).Render(cell)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func averageWait(total time.Duration, meals int) time.Duration {
	if meals == 0 {
		return 0
	}
	return (total / time.Duration(meals)).Round(time.Microsecond)
}
