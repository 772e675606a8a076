// Package table reads and writes the tab-separated tables the predictor
// consumes and produces. Every column of the input is carried through
// unchanged; new columns are appended on the right.
package table

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrMissingColumn is returned when a required column is not in the header
	ErrMissingColumn = errors.New("missing column")
	// ErrMalformedRow is returned when a row does not match the header width
	ErrMalformedRow = errors.New("malformed row")
)

// Table is an in-memory table of string cells with a header row
type Table struct {
	header []string
	rows   [][]string
}

// New creates a table, checking every row against the header width
func New(header []string, rows [][]string) (*Table, error) {
	for i, row := range rows {
		if len(row) != len(header) {
			return nil, fmt.Errorf("%w: row %d has %d fields, header has %d", ErrMalformedRow, i+1, len(row), len(header))
		}
	}
	return &Table{header: header, rows: rows}, nil
}

// Header returns a copy of the column names
func (t *Table) Header() []string {
	header := make([]string, len(t.header))
	copy(header, t.header)
	return header
}

// Len returns the number of data rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Row returns a copy of the i-th data row
func (t *Table) Row(i int) []string {
	row := make([]string, len(t.rows[i]))
	copy(row, t.rows[i])
	return row
}

// ColumnIndex returns the position of the first column called name, or -1
func (t *Table) ColumnIndex(name string) int {
	for i, h := range t.header {
		if h == name {
			return i
		}
	}
	return -1
}

// Column returns the values of the named column
func (t *Table) Column(name string) ([]string, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, name)
	}
	values := make([]string, len(t.rows))
	for i, row := range t.rows {
		values[i] = row[idx]
	}
	return values, nil
}

// SetColumn replaces the values of an existing column or appends a new one
func (t *Table) SetColumn(name string, values []string) error {
	if len(values) != len(t.rows) {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), len(t.rows))
	}

	idx := t.ColumnIndex(name)
	if idx < 0 {
		t.header = append(t.header, name)
		for i := range t.rows {
			t.rows[i] = append(t.rows[i], values[i])
		}
		return nil
	}

	for i := range t.rows {
		t.rows[i][idx] = values[i]
	}
	return nil
}

// FormatBool renders a boolean cell the way pandas writes it
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// FormatFloat32 renders a score with the shortest float32 representation
func FormatFloat32(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}
