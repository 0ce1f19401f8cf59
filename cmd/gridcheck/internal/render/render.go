// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package render displays run reports on the terminal.
//
// The engine owns the Report; this package only formats it. Styling is
// applied when stdout is a terminal and NO_COLOR is unset, and degrades
// to plain text otherwise (pipes, CI).
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/report"
)

// Palette - deep ocean teals with standard semantic colors.
var (
	colorTeal    = lipgloss.Color("#20B9B4")
	colorSuccess = lipgloss.Color("#2CD7C7")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#2C4A54")
)

// styles are the pre-configured lipgloss styles.
var styles = struct {
	Title   lipgloss.Style
	Passed  lipgloss.Style
	Failed  lipgloss.Style
	Errored lipgloss.Style
	Skipped lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colorTeal),
	Passed:  lipgloss.NewStyle().Foreground(colorSuccess),
	Failed:  lipgloss.NewStyle().Foreground(colorError),
	Errored: lipgloss.NewStyle().Foreground(colorWarning),
	Skipped: lipgloss.NewStyle().Foreground(colorMuted),
}

// statusIcons map terminal states to their glyphs.
var statusIcons = map[report.Status]string{
	report.StatusPassed:  "✓",
	report.StatusFailed:  "✗",
	report.StatusErrored: "⚠",
	report.StatusSkipped: "○",
}

// Renderer formats reports onto a writer.
type Renderer struct {
	out   io.Writer
	color bool
}

// New creates a Renderer that styles output when the writer is a
// terminal and NO_COLOR is unset.
func New(out io.Writer) *Renderer {
	color := false
	if f, ok := out.(*os.File); ok {
		color = (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) &&
			os.Getenv("NO_COLOR") == ""
	}
	return &Renderer{out: out, color: color}
}

// NewPlain creates a Renderer with styling forced off. Used by tests
// and the --json path's stderr summary.
func NewPlain(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// style applies s when color is enabled.
func (r *Renderer) style(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

// statusStyle picks the style for a terminal state.
func statusStyle(s report.Status) lipgloss.Style {
	switch s {
	case report.StatusPassed:
		return styles.Passed
	case report.StatusFailed:
		return styles.Failed
	case report.StatusErrored:
		return styles.Errored
	default:
		return styles.Skipped
	}
}

// Report writes the human-readable report.
func (r *Renderer) Report(rep *report.Report) {
	fmt.Fprintln(r.out, r.style(styles.Title, fmt.Sprintf("gridcheck run %s", rep.RunID)))

	for _, result := range rep.Results {
		icon := statusIcons[result.Status]
		target := result.Dataset
		if result.Variable != "" {
			target += "/" + result.Variable
		}
		line := fmt.Sprintf("%s %-7s %-24s %s", icon, result.Status, result.Rule, target)
		if result.Message != "" {
			line += "  " + result.Message
		}
		if result.Cached {
			line += "  (cached)"
		}
		fmt.Fprintln(r.out, r.style(statusStyle(result.Status), line))
	}

	verdict := "PASSED"
	verdictStyle := styles.Passed
	if !rep.Passed() {
		verdict = "FAILED"
		verdictStyle = styles.Failed
	}
	fmt.Fprintln(r.out, r.style(verdictStyle, fmt.Sprintf(
		"%s: %d passed, %d failed, %d errored, %d skipped",
		verdict,
		rep.Counts[report.StatusPassed],
		rep.Counts[report.StatusFailed],
		rep.Counts[report.StatusErrored],
		rep.Counts[report.StatusSkipped],
	)))
}

// JSON writes the report as indented JSON.
func (r *Renderer) JSON(rep *report.Report) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
