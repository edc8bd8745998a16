// Package report serializes result sets and ships them to a file or object
// store.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"branchcheck/internal/domain"
)

// Format is a report serialization.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts "csv" or "json". Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", domain.ErrValidation("unknown report format %q: must be csv or json", s)
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string { return string(f) }

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

// Write serializes rs in format f.
func Write(w io.Writer, rs *domain.ResultSet, f Format) error {
	if f == FormatJSON {
		return WriteJSON(w, rs)
	}
	return WriteCSV(w, rs)
}

// WriteCSV writes the header row followed by every result row. NULL cells
// are written as empty fields. The header is written even for an empty set.
func WriteCSV(w io.Writer, rs *domain.ResultSet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rs.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(rs.Columns))
	for i, row := range rs.Rows {
		for j := range record {
			record[j] = ""
			if j < len(row) {
				record[j], _ = domain.CellString(row[j])
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the result set as an array of objects keyed by column
// name, in row order. An empty set is written as [].
func WriteJSON(w io.Writer, rs *domain.ResultSet) error {
	out := make([]map[string]interface{}, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		obj := make(map[string]interface{}, len(rs.Columns))
		for j, col := range rs.Columns {
			var v interface{}
			if j < len(row) {
				v = jsonCell(row[j])
			}
			obj[col] = v
		}
		out = append(out, obj)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func jsonCell(v interface{}) interface{} {
	switch t := v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64:
		return t
	case []byte:
		return string(t)
	default:
		s, _ := domain.CellString(t)
		return s
	}
}
