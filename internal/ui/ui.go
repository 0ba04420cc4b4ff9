// Package ui prints user-facing CLI output. Color is used only when the
// stream is a terminal and NO_COLOR is unset.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr

	stdoutColor = detectColor(os.Stdout)
	stderrColor = detectColor(os.Stderr)
)

func detectColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetOutput redirects output (for testing). Color is disabled for both streams.
func SetOutput(out, errOut io.Writer) {
	stdout, stderr = out, errOut
	stdoutColor, stderrColor = false, false
}

// SetColorEnabled overrides color detection (for testing).
func SetColorEnabled(enabled bool) {
	stdoutColor, stderrColor = enabled, enabled
}

// Stdout returns the writer used for regular output.
func Stdout() io.Writer { return stdout }

func paint(enabled bool, code, s string) string {
	if !enabled {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// Bold returns s in bold when stdout is colored.
func Bold(s string) string { return paint(stdoutColor, "1", s) }

// Dim returns s dimmed when stdout is colored.
func Dim(s string) string { return paint(stdoutColor, "2", s) }

// Green returns s in green when stdout is colored.
func Green(s string) string { return paint(stdoutColor, "32", s) }

// Red returns s in red when stdout is colored.
func Red(s string) string { return paint(stdoutColor, "31", s) }

// Yellow returns s in yellow when stdout is colored.
func Yellow(s string) string { return paint(stdoutColor, "33", s) }

// Section prints a bold title with an underline.
func Section(title string) {
	fmt.Fprintln(stdout, Bold(title))
	fmt.Fprintln(stdout, Dim(strings.Repeat("─", len(title))))
}

// Field prints an indented "label: value" line, padding label to width.
func Field(label string, width int, value string) {
	fmt.Fprintf(stdout, "  %-*s %s\n", width+1, label+":", value)
}

// Successf prints a line prefixed with a green check mark.
func Successf(format string, args ...any) {
	fmt.Fprintf(stdout, "%s %s\n", Green("✓"), fmt.Sprintf(format, args...))
}

// Warnf prints a warning to stderr.
func Warnf(format string, args ...any) {
	fmt.Fprintf(stderr, "%s %s\n", paint(stderrColor, "33", "Warning:"), fmt.Sprintf(format, args...))
}

// Errorf prints an error to stderr.
func Errorf(format string, args ...any) {
	fmt.Fprintf(stderr, "%s %s\n", paint(stderrColor, "31", "Error:"), fmt.Sprintf(format, args...))
}

// Infof prints an unadorned line to stdout.
func Infof(format string, args ...any) {
	fmt.Fprintf(stdout, format+"\n", args...)
}
