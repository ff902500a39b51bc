// Package main provides UI utilities for the parts assistant CLI.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// UI provides user-friendly output utilities.
type UI struct {
	out      io.Writer
	progress *mpb.Progress
	noColor  bool
	jsonMode bool
}

// NewUI creates a new UI writing to out.
func NewUI(out io.Writer, jsonMode, noColor bool) *UI {
	return &UI{
		out:      out,
		noColor:  noColor || color.NoColor,
		jsonMode: jsonMode,
	}
}

// Close waits for or shuts down any progress bars.
func (ui *UI) Close() {
	if ui.progress == nil {
		return
	}
	// Piped output cannot render bars and Wait may hang.
	if IsTerminal() {
		ui.progress.Wait()
	} else {
		ui.progress.Shutdown()
	}
}

// JSON writes v as indented JSON.
func (ui *UI) JSON(v any) error {
	enc := json.NewEncoder(ui.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (ui *UI) line(attr color.Attribute, symbol, format string, args ...any) {
	if ui.jsonMode {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if ui.noColor {
		fmt.Fprintf(ui.out, "%s %s\n", symbol, msg)
		return
	}
	color.New(attr).Fprintf(ui.out, "%s %s\n", symbol, msg)
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...any) { ui.line(color.FgGreen, "✓", format, args...) }

// Error prints an error message.
func (ui *UI) Error(format string, args ...any) { ui.line(color.FgRed, "✗", format, args...) }

// Warning prints a warning message.
func (ui *UI) Warning(format string, args ...any) { ui.line(color.FgYellow, "⚠", format, args...) }

// Info prints an info message.
func (ui *UI) Info(format string, args ...any) { ui.line(color.FgCyan, "ℹ", format, args...) }

// Step prints a step message.
func (ui *UI) Step(format string, args ...any) { ui.line(color.FgBlue, "→", format, args...) }

// TableBars creates one mpb bar per named total. Bars are nil unless stdout is a terminal.
func (ui *UI) TableBars(totals map[string]int64) map[string]*mpb.Bar {
	bars := make(map[string]*mpb.Bar, len(totals))
	if ui.jsonMode || !IsTerminal() {
		return bars
	}
	if ui.progress == nil {
		ui.progress = mpb.New(mpb.WithWidth(48), mpb.WithOutput(ui.out))
	}

	for name, total := range totals {
		bars[name] = ui.progress.AddBar(total,
			mpb.PrependDecorators(
				decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.OnComplete(decor.Percentage(decor.WC{W: 5}), " done"),
			),
		)
	}
	return bars
}

// Spinner starts an indeterminate spinner on stderr. The returned stop func is always safe to call.
func (ui *UI) Spinner(message string) func() {
	if ui.jsonMode || !IsTerminal() {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	s.Start()
	return s.Stop
}

// ProgressBar creates a deterministic progress bar on stderr, or nil when output is not interactive.
func (ui *UI) ProgressBar(total int, description string) *progressbar.ProgressBar {
	if ui.jsonMode || !IsTerminal() {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("models"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Table prints a formatted table.
func (ui *UI) Table(headers []string, rows [][]string) {
	if ui.jsonMode || len(headers) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	rule := func() {
		fmt.Fprint(ui.out, "+")
		for _, width := range widths {
			fmt.Fprint(ui.out, strings.Repeat("-", width+2))
			fmt.Fprint(ui.out, "+")
		}
		fmt.Fprintln(ui.out)
	}
	printRow := func(cells []string, header bool) {
		fmt.Fprint(ui.out, "|")
		for i, width := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			padded := fmt.Sprintf(" %-*s ", width, cell)
			if header && !ui.noColor {
				color.New(color.FgCyan, color.Bold).Fprint(ui.out, padded)
			} else {
				fmt.Fprint(ui.out, padded)
			}
			fmt.Fprint(ui.out, "|")
		}
		fmt.Fprintln(ui.out)
	}

	rule()
	printRow(headers, true)
	rule()
	for _, row := range rows {
		printRow(row, false)
	}
	rule()
}

// Section prints a section header.
func (ui *UI) Section(title string) {
	if ui.jsonMode {
		return
	}
	fmt.Fprintln(ui.out)
	if ui.noColor {
		fmt.Fprintf(ui.out, "━━━ %s ━━━\n", strings.ToUpper(title))
	} else {
		color.New(color.FgMagenta, color.Bold).Fprintf(ui.out, "━━━ %s ━━━\n", strings.ToUpper(title))
	}
	fmt.Fprintln(ui.out)
}

// KeyValue prints a key-value pair.
func (ui *UI) KeyValue(key string, value any) {
	if ui.jsonMode {
		return
	}
	if ui.noColor {
		fmt.Fprintf(ui.out, "  %s: %v\n", key, value)
		return
	}
	color.New(color.FgYellow).Fprintf(ui.out, "  %s: ", key)
	fmt.Fprintf(ui.out, "%v\n", value)
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// IsTerminal checks if stdout is a terminal.
func IsTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
