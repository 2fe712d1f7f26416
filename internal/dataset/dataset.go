// Package dataset loads tabular files (CSV, XLSX) and materializes a single
// named column into a slice of strings for the detection engine.
package dataset

import (
	"fmt"
	"strings"
)

// Table is a parsed tabular file: one header row and zero or more data rows.
// Rows may be ragged; Column treats missing trailing cells as empty.
type Table struct {
	Header []string
	Rows   [][]string
}

// MissingColumnError reports a required column absent from the header.
type MissingColumnError struct {
	Column    string
	Available []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("dataset: required column %q not found (available columns: %s)",
		e.Column, strings.Join(e.Available, ", "))
}

// Column returns the values of the named column, one per data row. The name
// match is exact. A missing column returns *MissingColumnError carrying the
// available column names.
func (t *Table) Column(name string) ([]string, error) {
	idx := -1
	for i, h := range t.Header {
		if h == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, &MissingColumnError{Column: name, Available: t.Header}
	}

	values := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if idx < len(row) {
			values = append(values, row[idx])
		} else {
			values = append(values, "")
		}
	}
	return values, nil
}
