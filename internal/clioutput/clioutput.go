// Package clioutput provides consistent ragctl output formatting, ported
// from the teacher's internal/output package: an io.Writer wrapper with
// status/success/warning/error lines, gated by TTY detection so piped or
// CI output stays plain.
package clioutput

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Writer formats ragctl's human-readable output.
type Writer struct {
	out      io.Writer
	useColor bool
}

// New creates a Writer over out, enabling color only when out is a real
// terminal (and NO_COLOR is unset), mirroring the teacher's internal/ui
// TTY-detection rule.
func New(out io.Writer) *Writer {
	return &Writer{out: out, useColor: isTerminal(out) && os.Getenv("NO_COLOR") == ""}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (w *Writer) colorize(code, msg string) string {
	if !w.useColor {
		return msg
	}
	return fmt.Sprintf("\x1b[%sm%s\x1b[0m", code, msg)
}

// Status prints an icon-prefixed status line.
func (w *Writer) Status(icon, msg string) {
	if icon == "" {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
}

// Statusf formats and prints a status line.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a green checkmark line.
func (w *Writer) Success(msg string) { w.Status("✓", w.colorize("32", msg)) }

// Successf formats and prints a success line.
func (w *Writer) Successf(format string, args ...any) { w.Success(fmt.Sprintf(format, args...)) }

// Warning prints a yellow warning line.
func (w *Writer) Warning(msg string) { w.Status("!", w.colorize("33", msg)) }

// Warningf formats and prints a warning line.
func (w *Writer) Warningf(format string, args ...any) { w.Warning(fmt.Sprintf(format, args...)) }

// Error prints a red error line.
func (w *Writer) Error(msg string) { w.Status("✗", w.colorize("31", msg)) }

// Errorf formats and prints an error line.
func (w *Writer) Errorf(format string, args ...any) { w.Error(fmt.Sprintf(format, args...)) }

// Newline prints a blank line.
func (w *Writer) Newline() { _, _ = fmt.Fprintln(w.out) }

// Field prints an indented "name: value" line, used for stats/search
// detail output.
func (w *Writer) Field(name string, value any) {
	_, _ = fmt.Fprintf(w.out, "  %-20s %v\n", name+":", value)
}
