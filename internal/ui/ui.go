package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	Output    io.Writer = os.Stdout
	ErrOutput io.Writer = os.Stderr
)

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#1e90ff"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2eb886"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#daa038"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#a30200"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

func Basic(format string, a ...any) {
	fmt.Fprintln(Output, fmt.Sprintf(format, a...))
}

func Info(format string, a ...any) {
	fmt.Fprintln(Output, infoStyle.Render("●")+" "+fmt.Sprintf(format, a...))
}

func Success(format string, a ...any) {
	fmt.Fprintln(Output, successStyle.Render("✔")+" "+fmt.Sprintf(format, a...))
}

func Warn(format string, a ...any) {
	fmt.Fprintln(Output, warnStyle.Render("!")+" "+fmt.Sprintf(format, a...))
}

func Error(format string, a ...any) {
	fmt.Fprintln(ErrOutput, errorStyle.Render("✘")+" "+fmt.Sprintf(format, a...))
}

func Debug(format string, a ...any) {
	fmt.Fprintln(Output, mutedStyle.Render(fmt.Sprintf(format, a...)))
}

func Section(title string) {
	fmt.Fprintln(Output, sectionStyle.Render(title))
}

// Table prints rows in aligned columns.
func Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	line := func(cells []string, style *lipgloss.Style) string {
		parts := make([]string, len(widths))
		for i := range widths {
			var cell string
			if i < len(cells) {
				cell = cells[i]
			}
			pad := cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			if style != nil {
				pad = style.Render(pad)
			}
			parts[i] = pad
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	fmt.Fprintln(Output, line(headers, &headerStyle))
	for _, row := range rows {
		fmt.Fprintln(Output, line(row, nil))
	}
}
