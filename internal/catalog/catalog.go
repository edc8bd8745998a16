// Package catalog loads the declarative test catalog: one row per check per
// production table, looked up by (production bucket, table name).
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"branchcheck/internal/domain"
)

// Catalog column names.
const (
	ColTestName        = "TEST_NAME"
	ColStorageBucketID = "STORAGE_BUCKET_ID"
	ColStorageTableID  = "STORAGE_TABLE_ID"
	ColSourceBucket    = "SOURCE_BUCKET"
	ColSourceTable     = "SOURCE_TABLE"
	ColParameter1      = "PARAMETER_1"
	ColParameter2      = "PARAMETER_2"
	ColParameter3      = "PARAMETER_3"
	ColParameter4      = "PARAMETER_4"
)

// RequiredColumns lists the columns every catalog source must declare.
var RequiredColumns = []string{
	ColTestName, ColStorageBucketID, ColStorageTableID,
	ColSourceBucket, ColSourceTable,
	ColParameter1, ColParameter2, ColParameter3, ColParameter4,
}

// TableKey identifies one production table in the catalog.
type TableKey struct {
	Bucket string `json:"bucket"`
	Table  string `json:"table"`
}

// Catalog is an immutable, ordered set of check definitions.
type Catalog struct {
	source string
	rows   []domain.CheckDefinition
	index  map[TableKey][]int
}

// Load reads a CSV catalog from path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.CatalogLoadError{Source: path, Err: err}
	}
	defer f.Close() //nolint:errcheck

	return Parse(path, f)
}

// Parse reads a CSV catalog. Header names are matched case-insensitively;
// columns beyond the required ones are kept as per-row extras.
func Parse(source string, r io.Reader) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &domain.EmptyCatalogError{Source: source}
	}
	if err != nil {
		return nil, &domain.CatalogLoadError{Source: source, Err: err}
	}

	cols, err := mapHeader(header)
	if err != nil {
		return nil, &domain.CatalogLoadError{Source: source, Err: err}
	}

	var rows []domain.CheckDefinition
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.CatalogLoadError{Source: source, Err: err}
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, cols.row(line, record))
	}

	return New(source, rows)
}

// New builds a catalog from rows already in memory.
func New(source string, rows []domain.CheckDefinition) (*Catalog, error) {
	if len(rows) == 0 {
		return nil, &domain.EmptyCatalogError{Source: source}
	}
	c := &Catalog{
		source: source,
		rows:   rows,
		index:  make(map[TableKey][]int),
	}
	for i, row := range rows {
		k := TableKey{Bucket: row.StorageBucketID, Table: row.StorageTableID}
		c.index[k] = append(c.index[k], i)
	}
	return c, nil
}

// Source returns where the catalog was loaded from.
func (c *Catalog) Source() string { return c.source }

// Len returns the number of rows.
func (c *Catalog) Len() int { return len(c.rows) }

// Rows returns every row in catalog order.
func (c *Catalog) Rows() []domain.CheckDefinition {
	out := make([]domain.CheckDefinition, len(c.rows))
	copy(out, c.rows)
	return out
}

// FindChecks returns the rows configured for the production bucket and the
// bare table name of fullTableID, in catalog order. No match is not an error.
func (c *Catalog) FindChecks(productionBucket, fullTableID string) []domain.CheckDefinition {
	k := TableKey{Bucket: productionBucket, Table: domain.TableName(fullTableID)}
	idx := c.index[k]
	out := make([]domain.CheckDefinition, 0, len(idx))
	for _, i := range idx {
		out = append(out, c.rows[i])
	}
	return out
}

// Tables returns the distinct production tables the catalog covers, in first-seen order.
func (c *Catalog) Tables() []TableKey {
	seen := make(map[TableKey]bool, len(c.index))
	var out []TableKey
	for _, row := range c.rows {
		k := TableKey{Bucket: row.StorageBucketID, Table: row.StorageTableID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

type columnMap struct {
	named  map[string]int
	extras map[string]int
}

func mapHeader(header []string) (*columnMap, error) {
	cm := &columnMap{named: make(map[string]int), extras: make(map[string]int)}
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if name == "" {
			continue
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate column %s", name)
		}
		seen[name] = true
		cm.extras[name] = i
	}

	var missing []string
	for _, col := range RequiredColumns {
		i, ok := cm.extras[col]
		if !ok {
			missing = append(missing, col)
			continue
		}
		cm.named[col] = i
		delete(cm.extras, col)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return cm, nil
}

func (cm *columnMap) row(line int, record []string) domain.CheckDefinition {
	cell := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}
	def := domain.CheckDefinition{
		Line:            line,
		TestName:        cell(cm.named[ColTestName]),
		StorageBucketID: cell(cm.named[ColStorageBucketID]),
		StorageTableID:  cell(cm.named[ColStorageTableID]),
		SourceBucket:    domain.CatalogValue(cell(cm.named[ColSourceBucket])),
		SourceTable:     domain.CatalogValue(cell(cm.named[ColSourceTable])),
		Parameters: [4]domain.CatalogValue{
			domain.CatalogValue(cell(cm.named[ColParameter1])),
			domain.CatalogValue(cell(cm.named[ColParameter2])),
			domain.CatalogValue(cell(cm.named[ColParameter3])),
			domain.CatalogValue(cell(cm.named[ColParameter4])),
		},
	}
	if len(cm.extras) > 0 {
		def.Extras = make(map[string]domain.CatalogValue, len(cm.extras))
		for name, i := range cm.extras {
			def.Extras[ExtraKey(name)] = domain.CatalogValue(cell(i))
		}
	}
	return def
}

// ExtraKey normalizes an extra column name into a template key prefix:
// lower case, with anything outside [a-z0-9_] replaced by an underscore.
func ExtraKey(column string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(column)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	key := b.String()
	if key != "" && key[0] >= '0' && key[0] <= '9' {
		key = "_" + key
	}
	return key
}
