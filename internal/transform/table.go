package transform

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrNoHeader is returned for input without a header row
var ErrNoHeader = errors.New("csv has no header row")

// Table is a parsed CSV: one header row followed by data rows.
// Every data row has exactly len(Header) fields.
type Table struct {
	Header []string
	Rows   [][]string
}

// Parse reads CSV text into a Table. A leading UTF-8 BOM is dropped, blank
// lines are skipped, and rows shorter than the header are padded with empty
// fields. A row wider than the header is an error. Quotes are parsed
// leniently, so a stray quote inside an unquoted field is kept as is.
func Parse(data []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoHeader
	}

	header := records[0]
	rows := make([][]string, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) > len(header) {
			// line numbers are 1-based and the header is line 1
			return nil, fmt.Errorf("row %d has %d fields, header has %d", i+2, len(rec), len(header))
		}
		if len(rec) < len(header) {
			padded := make([]string, len(header))
			copy(padded, rec)
			rec = padded
		}
		rows = append(rows, rec)
	}

	return &Table{Header: header, Rows: rows}, nil
}

// Encode writes the table back to CSV text
func (t *Table) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(t.Header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, fmt.Errorf("failed to write rows: %w", err)
	}

	return buf.Bytes(), nil
}
