package table

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const byteOrderMark = "\ufeff"

// Read parses a tab-separated table whose first record is the header
func Read(r io.Reader) (*Table, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.Comma = '\t'
	reader.LazyQuotes = true
	// Width is checked against the header below so errors carry our sentinel
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("no header row found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], byteOrderMark)
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRow, parseErr.Line, parseErr.Err)
			}
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if len(record) != len(header) {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d has %d fields, header has %d", ErrMalformedRow, line, len(record), len(header))
		}
		rows = append(rows, record)
	}

	return &Table{header: header, rows: rows}, nil
}

// ReadTSV reads the table stored at path
func ReadTSV(path string) (*Table, error) {
	// #nosec G304 - Input path is supplied by the operator
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer func() { _ = file.Close() }()

	t, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return t, nil
}

// Write serializes the header and every row as tab-separated records.
// Fields are quoted only when they contain a tab, a quote or a line break,
// or when a lone empty field would otherwise leave a blank line.
func (t *Table) Write(w io.Writer) error {
	if err := writeRecord(w, t.header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range t.rows {
		if err := writeRecord(w, row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	return nil
}

func writeRecord(w io.Writer, record []string) error {
	var b strings.Builder
	for i, field := range record {
		if i > 0 {
			b.WriteByte('\t')
		}
		if fieldNeedsQuotes(field) || (len(record) == 1 && field == "") {
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(field, `"`, `""`))
			b.WriteByte('"')
		} else {
			b.WriteString(field)
		}
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

func fieldNeedsQuotes(field string) bool {
	return strings.ContainsAny(field, "\t\"\r\n")
}

// WriteTSV writes the table to path, replacing any existing file
func (t *Table) WriteTSV(path string) (err error) {
	// #nosec G304 - Output path is supplied by the operator
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file: %w", closeErr)
		}
	}()

	buffered := bufio.NewWriter(file)
	if err := t.Write(buffered); err != nil {
		return err
	}
	if err := buffered.Flush(); err != nil {
		return fmt.Errorf("failed to flush output file: %w", err)
	}
	return nil
}
