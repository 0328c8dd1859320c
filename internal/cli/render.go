package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"budgetcast/internal/core"
)

var (
	colorBorder = lipgloss.Color("#575653")
	colorText   = lipgloss.Color("#FFFCF0")
	colorAccent = lipgloss.Color("#3AA99F")
	colorGreen  = lipgloss.Color("#879A39")
	colorRed    = lipgloss.Color("#D14D41")
	colorBlue   = lipgloss.Color("#4385BE")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorText).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	valueStyle     = lipgloss.NewStyle().Foreground(colorText)
	projectedStyle = lipgloss.NewStyle().Foreground(colorBlue)
	positiveStyle  = lipgloss.NewStyle().Foreground(colorGreen)
	negativeStyle  = lipgloss.NewStyle().Foreground(colorRed)
	dimStyle       = lipgloss.NewStyle().Foreground(colorBorder)
)

// RenderTitle renders a title in a rounded box.
func RenderTitle(title string) string {
	return titleStyle.Render(title)
}

// RenderForecast renders f as a table with one row per month, one column per
// category and a trailing savings column. Projected months carry a "*".
func RenderForecast(f core.Forecast) string {
	headers := make([]string, 0, len(f.Categories)+2)
	headers = append(headers, "Month")
	headers = append(headers, f.Categories...)
	headers = append(headers, "Savings")

	rows := make([][]string, 0, len(f.Months))
	for _, m := range f.Months {
		row := make([]string, 0, len(headers))
		label := strconv.Itoa(m.Month)
		if m.Forecast {
			label += "*"
		}
		row = append(row, label)
		for _, cat := range f.Categories {
			amount, _ := m.Amount(cat)
			row = append(row, core.FormatAmount(amount))
		}
		row = append(row, core.FormatAmount(m.Savings))
		rows = append(rows, row)
	}

	widths := columnWidths(headers, rows)

	var b strings.Builder
	b.WriteString(border("╭", "┬", "╮", widths))
	b.WriteString(dimStyle.Render("│"))
	for i, h := range headers {
		b.WriteString(headerStyle.Render(pad(h, widths[i], i > 0)))
		b.WriteString(dimStyle.Render("│"))
	}
	b.WriteString("\n")
	b.WriteString(border("├", "┼", "┤", widths))

	for r, row := range rows {
		month := f.Months[r]
		b.WriteString(dimStyle.Render("│"))
		for i, cell := range row {
			style := valueStyle
			switch {
			case i == len(row)-1 && month.Savings < 0:
				style = negativeStyle
			case i == len(row)-1:
				style = positiveStyle
			case month.Forecast:
				style = projectedStyle
			}
			b.WriteString(style.Render(pad(cell, widths[i], i > 0)))
			b.WriteString(dimStyle.Render("│"))
		}
		b.WriteString("\n")
	}
	b.WriteString(border("╰", "┴", "╯", widths))

	return b.String()
}

// RenderRuns renders journaled run summaries, newest first.
func RenderRuns(runs []core.RunSummary) string {
	headers := []string{"Run", "Created", "Salary", "Horizon", "Categories", "Current", "Final savings"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			core.FormatAmount(r.Salary),
			strconv.Itoa(r.Horizon),
			strconv.Itoa(r.CategoryCount),
			core.FormatAmount(r.CurrentExpense),
			core.FormatAmount(r.FinalSavings),
		})
	}
	widths := columnWidths(headers, rows)

	var b strings.Builder
	b.WriteString(border("╭", "┬", "╮", widths))
	b.WriteString(dimStyle.Render("│"))
	for i, h := range headers {
		b.WriteString(headerStyle.Render(pad(h, widths[i], i > 1)))
		b.WriteString(dimStyle.Render("│"))
	}
	b.WriteString("\n")
	b.WriteString(border("├", "┼", "┤", widths))
	for _, row := range rows {
		b.WriteString(dimStyle.Render("│"))
		for i, cell := range row {
			b.WriteString(valueStyle.Render(pad(cell, widths[i], i > 1)))
			b.WriteString(dimStyle.Render("│"))
		}
		b.WriteString("\n")
	}
	b.WriteString(border("╰", "┴", "╯", widths))
	return b.String()
}

func columnWidths(headers []string, rows [][]string) []int {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}
	return widths
}

func pad(cell string, width int, right bool) string {
	if right {
		return fmt.Sprintf(" %*s ", width, cell)
	}
	return fmt.Sprintf(" %-*s ", width, cell)
}

func border(left, mid, right string, widths []int) string {
	var b strings.Builder
	b.WriteString(left)
	for i, w := range widths {
		b.WriteString(strings.Repeat("─", w+2))
		if i < len(widths)-1 {
			b.WriteString(mid)
		}
	}
	b.WriteString(right)
	return dimStyle.Render(b.String()) + "\n"
}
