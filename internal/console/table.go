// Package console renders aligned, optionally coloured tables for the CLI.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
)

// maxCellWidth truncates very long cells so rows stay on one line.
const maxCellWidth = 60

// Styler colours a padded cell. It receives the column index and the raw
// cell text so it can pick a style from the content.
type Styler func(col int, raw, padded string) string

// Table collects rows and renders them with columns padded to their display
// width. Widths are measured before styling, so escape codes never shift
// alignment.
type Table struct {
	headers []string
	rows    [][]string
	style   Styler
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// SetStyler installs a cell styler. Headers are always rendered bold.
func (t *Table) SetStyler(s Styler) {
	t.style = s
}

// AddRow appends a row. Missing cells render empty; extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	for i := range row {
		if i < len(cells) {
			row[i] = runewidth.Truncate(cells[i], maxCellWidth, "…")
		}
	}
	t.rows = append(t.rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table to w.
func (t *Table) Render(w io.Writer) error {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if cw := runewidth.StringWidth(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	header := make([]string, len(t.headers))
	rule := make([]string, len(t.headers))
	for i, h := range t.headers {
		header[i] = color.Bold.Sprint(runewidth.FillRight(h, widths[i]))
		rule[i] = strings.Repeat("-", widths[i])
	}
	if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(header, "  "), " ")); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, strings.Join(rule, "  ")); err != nil {
		return err
	}

	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			padded := cell
			if i < len(row)-1 {
				padded = runewidth.FillRight(cell, widths[i])
			}
			if t.style != nil {
				padded = t.style(i, cell, padded)
			}
			cells[i] = padded
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, "  ")); err != nil {
			return err
		}
	}
	return nil
}

// OK renders text as a success marker.
func OK(text string) string {
	return color.Green.Sprint(text)
}

// Fail renders text as a failure marker.
func Fail(text string) string {
	return color.Red.Sprint(text)
}

// Warn renders text as a warning marker.
func Warn(text string) string {
	return color.Yellow.Sprint(text)
}

// Bold renders text in bold.
func Bold(text string) string {
	return color.Bold.Sprint(text)
}

// StatusStyler colours cells of column col: "verified", "ok" and "valid" in
// green, "failed", "unknown" and "invalid" in red, anything else untouched.
func StatusStyler(col int) Styler {
	return func(c int, raw, padded string) string {
		if c != col {
			return padded
		}
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "verified", "ok", "valid":
			return OK(padded)
		case "failed", "unknown", "invalid":
			return Fail(padded)
		case "discovered":
			return Warn(padded)
		}
		return padded
	}
}

// DisableColor turns colour output off, for tests and non-terminal writers.
func DisableColor() {
	color.Disable()
}
