package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/kerbaras/comicdl/pkg/data"
)

var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("42")
	yellow = lipgloss.Color("214")
	red    = lipgloss.Color("196")

	titleStyle   = lipgloss.NewStyle().Foreground(purple).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(green)
	warnStyle    = lipgloss.NewStyle().Foreground(yellow)
	errStyle     = lipgloss.NewStyle().Foreground(red).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	chapterStyle = lipgloss.NewStyle().Width(28)
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// progressLine renders one chapter's page progress.
type progressLine struct {
	bar progress.Model
}

func newProgressLine(width int) progressLine {
	return progressLine{bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(width))}
}

func (p progressLine) View(e data.Event) string {
	percent := 0.0
	if e.Total > 0 {
		percent = float64(e.Current) / float64(e.Total)
	}
	return fmt.Sprintf("%s %s %s",
		chapterStyle.Render(truncateString(e.Chapter, 26)),
		p.bar.ViewAs(percent),
		mutedStyle.Render(fmt.Sprintf("%d/%d", e.Current, e.Total)),
	)
}

func renderEvent(e data.Event) string {
	switch e.Kind {
	case data.EventWarning:
		return warnStyle.Render("warning: ") + e.String()
	case data.EventVerify:
		return errStyle.Render("verification required: ") + e.Message + "\n  " + e.URL
	default:
		return e.String()
	}
}

func truncateString(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return strings.TrimSpace(string(r[:max-3])) + "..."
}
