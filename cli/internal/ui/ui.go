// Package ui holds the terminal output helpers shared by the commands.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
)

var (
	errColor  = color.New(color.FgRed)
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
)

// Errorf prints a red error line to w.
func Errorf(w io.Writer, format string, args ...any) {
	errColor.Fprintf(w, format+"\n", args...)
}

// Successf prints a green line to w.
func Successf(w io.Writer, format string, args ...any) {
	okColor.Fprintf(w, format+"\n", args...)
}

// Warnf prints a yellow line to w.
func Warnf(w io.Writer, format string, args ...any) {
	warnColor.Fprintf(w, format+"\n", args...)
}

// Diff prints a unified diff with removals in red and additions in
// green.
func Diff(w io.Writer, diff string) {
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			okColor.Fprintln(w, line)
		case strings.HasPrefix(line, "-"):
			errColor.Fprintln(w, line)
		default:
			fmt.Fprintln(w, line)
		}
	}
}

// Table renders rows under a header.
func Table(w io.Writer, header []string, rows [][]string) error {
	data := pterm.TableData{header}
	data = append(data, rows...)
	return pterm.DefaultTable.
		WithHasHeader().
		WithWriter(w).
		WithData(data).
		Render()
}
