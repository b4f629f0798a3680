// Package display renders an install/update run's outcome: a
// fixed-width summary table of resolved packages and their sources,
// plus any resolver warnings.
package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// column is a single table column with its header and current display
// width, both computed with Unicode-aware measurement so CJK package
// names or scopes don't misalign the table.
type column struct {
	header string
	width  int
}

// Table is a minimal fixed-width table formatter over a column set fixed
// at construction time; rows are added with AddRow and widened to fit.
type Table struct {
	columns   []column
	rows      [][]string
	separator string
}

// NewTable returns a Table with the given column headers, separated by
// two spaces.
func NewTable(headers ...string) *Table {
	t := &Table{separator: "  "}
	for _, h := range headers {
		t.columns = append(t.columns, column{header: h, width: displayWidth(h)})
	}
	return t
}

// AddRow appends a row, widening any column whose cell is wider than its
// current width. Missing trailing values are treated as empty.
func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.columns))
	for i := range t.columns {
		val := ""
		if i < len(values) {
			val = values[i]
		}
		row[i] = val
		if w := displayWidth(val); w > t.columns[i].width {
			t.columns[i].width = w
		}
	}
	t.rows = append(t.rows, row)
}

// Fprint writes the header, a dashed separator line, and every row to w.
func (t *Table) Fprint(w io.Writer) {
	fmt.Fprintln(w, t.formatRow(t.headerValues()))
	fmt.Fprintln(w, t.separatorRow())
	for _, row := range t.rows {
		fmt.Fprintln(w, t.formatRow(row))
	}
}

func (t *Table) headerValues() []string {
	values := make([]string, len(t.columns))
	for i, c := range t.columns {
		values[i] = c.header
	}
	return values
}

func (t *Table) separatorRow() string {
	parts := make([]string, len(t.columns))
	for i, c := range t.columns {
		parts[i] = strings.Repeat("-", c.width)
	}
	return strings.Join(parts, t.separator)
}

func (t *Table) formatRow(values []string) string {
	parts := make([]string, len(t.columns))
	for i, c := range t.columns {
		val := ""
		if i < len(values) {
			val = values[i]
		}
		parts[i] = toWidth(val, c.width)
	}
	return strings.Join(parts, t.separator)
}

// displayWidth returns val's terminal display width, accounting for wide
// Unicode characters.
func displayWidth(val string) int {
	return runewidth.StringWidth(val)
}

// toWidth right-pads val with spaces to width, leaving it unchanged if
// it is already at or beyond that width.
func toWidth(val string, width int) string {
	current := displayWidth(val)
	if current >= width {
		return val
	}
	return val + strings.Repeat(" ", width-current)
}
