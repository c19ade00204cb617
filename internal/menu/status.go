// Package menu implements the interactive numbered menu and the status
// line styling shared with the non-interactive commands.
package menu

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Status icons printed in front of user-facing result lines.
const (
	IconOK   = "✅"
	IconWarn = "⚠️"
	IconFail = "❌"
)

var (
	colorSuccess = lipgloss.Color("#2CD7C7")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#5C7A84")

	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorSuccess)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning)
	styleError   = lipgloss.NewStyle().Foreground(colorError)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
)

// OK prints a success line.
func OK(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, IconOK+" "+styleSuccess.Render(fmt.Sprintf(format, args...)))
}

// Warn prints a warning line.
func Warn(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, IconWarn+"  "+styleWarning.Render(fmt.Sprintf(format, args...)))
}

// Fail prints an error line.
func Fail(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, IconFail+" "+styleError.Render(fmt.Sprintf(format, args...)))
}

// Title prints a bold heading.
func Title(w io.Writer, text string) {
	fmt.Fprintln(w, styleTitle.Render(text))
}

// Muted renders s in the muted colour, for secondary details.
func Muted(s string) string {
	return styleMuted.Render(s)
}
