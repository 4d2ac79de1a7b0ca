package main

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/learking/pathsampling/estimate"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#20B9B4")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	summaryStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2CD7C7"))
)

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#16858E"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

// renderResult renders the per-step diagnostics of an estimate and its log
// Bayes factor.
func renderResult(r *estimate.Result) string {
	rows := make([][]string, len(r.Steps))
	for i, s := range r.Steps {
		rows[i] = []string{
			strconv.Itoa(s.Step),
			formatFloat(s.Beta),
			formatFloat(s.Mean),
			formatFloat(s.Contribution),
			formatFloat(s.ESS),
			strconv.Itoa(s.Samples),
		}
	}
	t := renderTable([]string{"Step", "Beta", "Mean", "Contribution", "ESS", "Samples"}, rows)
	return t + "\n" + summaryStyle.Render("log Bayes factor = "+strconv.FormatFloat(r.LogBayesFactor, 'g', 8, 64))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
