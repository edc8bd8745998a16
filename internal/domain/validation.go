package domain

import (
	"fmt"
	"strings"
	"time"
)

// Environment tags which side of a comparison a result row came from.
type Environment string

// Environments emitted by every rendered check.
const (
	EnvironmentDev  Environment = "DEV"
	EnvironmentProd Environment = "PROD"
)

// NotApplicable is the catalog sentinel for an intentionally absent value.
const NotApplicable = "n/a"

// ResultColumns is the canonical result schema, in order. Every rendered check
// must project exactly these columns.
var ResultColumns = []string{
	"TABLE_NAME",
	"TEST_NAME",
	"SOURCE_BUCKET",
	"SOURCE_TABLE",
	"PARAMETER_1",
	"PARAMETER_2",
	"PARAMETER_3",
	"PARAMETER_4",
	"ENVIRONMENT",
	"VALUE",
}

// Branch is a development branch in the storage catalog.
type Branch struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Bucket is a named grouping of tables. Development buckets carry the branch
// id in their id; production buckets do not.
type Bucket struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Stage string `json:"stage,omitempty"`
}

// Table is identified by "{bucket}.{table_name}".
type Table struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	BucketID string `json:"bucket_id,omitempty"`
}

// TableName returns the bare table name: the suffix after the last separator.
func TableName(fullTableID string) string {
	if i := strings.LastIndexByte(fullTableID, '.'); i >= 0 {
		return fullTableID[i+1:]
	}
	return fullTableID
}

// CatalogValue is one optional catalog cell. The empty string is a missing
// cell; NotApplicable marks a value the catalog author left out on purpose.
type CatalogValue string

// IsMissing reports whether the cell was empty.
func (v CatalogValue) IsMissing() bool { return strings.TrimSpace(string(v)) == "" }

// IsNotApplicable reports whether the cell holds the "n/a" sentinel.
func (v CatalogValue) IsNotApplicable() bool {
	return strings.EqualFold(strings.TrimSpace(string(v)), NotApplicable)
}

// Present reports whether the cell carries a usable value.
func (v CatalogValue) Present() bool { return !v.IsMissing() && !v.IsNotApplicable() }

// String returns the trimmed cell value.
func (v CatalogValue) String() string { return strings.TrimSpace(string(v)) }

// CheckDefinition is one catalog row: a named check applied to one production table.
type CheckDefinition struct {
	Line            int                     `json:"line"`
	TestName        string                  `json:"test_name"`
	StorageBucketID string                  `json:"storage_bucket_id"`
	StorageTableID  string                  `json:"storage_table_id"`
	SourceBucket    CatalogValue            `json:"source_bucket"`
	SourceTable     CatalogValue            `json:"source_table"`
	Parameters      [4]CatalogValue         `json:"parameters"`
	Extras          map[string]CatalogValue `json:"extras,omitempty"`
}

// QueryResult holds the tabular output of one executed query.
type QueryResult struct {
	Columns  []string
	Rows     [][]interface{}
	RowCount int
}

// HasColumns reports whether the result's columns equal want exactly, in order.
func (r *QueryResult) HasColumns(want []string) bool {
	if len(r.Columns) != len(want) {
		return false
	}
	for i := range want {
		if r.Columns[i] != want[i] {
			return false
		}
	}
	return true
}

// ResultSet is the accumulation of result rows for one run, in insertion order.
type ResultSet struct {
	Columns []string
	Rows    [][]interface{}
}

// NewResultSet returns an empty result set carrying the given columns.
func NewResultSet(columns []string) *ResultSet {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &ResultSet{Columns: cols, Rows: [][]interface{}{}}
}

// Append concatenates the rows of a block whose columns match the set's columns.
func (s *ResultSet) Append(block *QueryResult) error {
	if block == nil {
		return nil
	}
	if !block.HasColumns(s.Columns) {
		return fmt.Errorf("append result block: columns %v do not match %v", block.Columns, s.Columns)
	}
	s.Rows = append(s.Rows, block.Rows...)
	return nil
}

// Len returns the number of rows.
func (s *ResultSet) Len() int { return len(s.Rows) }

// Records returns the rows as typed result rows. Columns are looked up by name,
// so a set built from custom required columns yields zero values for absent ones.
func (s *ResultSet) Records() []ResultRow {
	idx := make(map[string]int, len(s.Columns))
	for i, c := range s.Columns {
		idx[c] = i
	}
	cell := func(row []interface{}, col string) interface{} {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return nil
		}
		return row[i]
	}

	out := make([]ResultRow, 0, len(s.Rows))
	for _, row := range s.Rows {
		env, _ := CellString(cell(row, "ENVIRONMENT"))
		name, _ := CellString(cell(row, "TABLE_NAME"))
		test, _ := CellString(cell(row, "TEST_NAME"))
		out = append(out, ResultRow{
			TableName:    name,
			TestName:     test,
			SourceBucket: nullableCell(cell(row, "SOURCE_BUCKET")),
			SourceTable:  nullableCell(cell(row, "SOURCE_TABLE")),
			Parameter1:   nullableCell(cell(row, "PARAMETER_1")),
			Parameter2:   nullableCell(cell(row, "PARAMETER_2")),
			Parameter3:   nullableCell(cell(row, "PARAMETER_3")),
			Parameter4:   nullableCell(cell(row, "PARAMETER_4")),
			Environment:  Environment(env),
			Value:        cell(row, "VALUE"),
		})
	}
	return out
}

// ResultRow is one row of the canonical result schema.
type ResultRow struct {
	TableName    string      `json:"TABLE_NAME"`
	TestName     string      `json:"TEST_NAME"`
	SourceBucket *string     `json:"SOURCE_BUCKET"`
	SourceTable  *string     `json:"SOURCE_TABLE"`
	Parameter1   *string     `json:"PARAMETER_1"`
	Parameter2   *string     `json:"PARAMETER_2"`
	Parameter3   *string     `json:"PARAMETER_3"`
	Parameter4   *string     `json:"PARAMETER_4"`
	Environment  Environment `json:"ENVIRONMENT"`
	Value        interface{} `json:"VALUE"`
}

// Cells returns the row in canonical column order.
func (r ResultRow) Cells() []interface{} {
	return []interface{}{
		r.TableName, r.TestName,
		derefCell(r.SourceBucket), derefCell(r.SourceTable),
		derefCell(r.Parameter1), derefCell(r.Parameter2), derefCell(r.Parameter3), derefCell(r.Parameter4),
		string(r.Environment), r.Value,
	}
}

// ResultSetFromRows builds a canonical result set from typed rows.
func ResultSetFromRows(rows []ResultRow) *ResultSet {
	rs := NewResultSet(ResultColumns)
	for _, r := range rows {
		rs.Rows = append(rs.Rows, r.Cells())
	}
	return rs
}

// CellString renders a scanned cell as text. ok is false for SQL NULL.
func CellString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

func nullableCell(v interface{}) *string {
	s, ok := CellString(v)
	if !ok {
		return nil
	}
	return &s
}

func derefCell(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// RunRecord is the persisted summary of one validation run.
type RunRecord struct {
	ID          string     `json:"id"`
	BranchID    string     `json:"branch_id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ResultCount int        `json:"result_count"`
	Error       string     `json:"error,omitempty"`
}
