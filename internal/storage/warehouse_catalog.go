package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"branchcheck/internal/ddl"
	"branchcheck/internal/domain"
)

// Compile-time check.
var _ domain.StorageCatalog = (*WarehouseCatalog)(nil)

// branchBucketRe finds the branch token in a branch-scoped bucket id.
var branchBucketRe = regexp.MustCompile(`\.c-(\d+)-`)

// WarehouseCatalog reads buckets and tables from the warehouse itself: each
// schema is a bucket. Branches are the distinct tokens of branch-scoped schemas.
type WarehouseCatalog struct {
	db     *sql.DB
	driver string
}

// NewWarehouseCatalog creates a catalog over db. driver selects the metadata
// dialect: "duckdb" reads information_schema, "sqlite3" reads attached databases.
func NewWarehouseCatalog(db *sql.DB, driver string) (*WarehouseCatalog, error) {
	switch driver {
	case "duckdb", "sqlite3":
	default:
		return nil, domain.ErrValidation("warehouse catalog does not support driver %q", driver)
	}
	return &WarehouseCatalog{db: db, driver: driver}, nil
}

// ListBranches derives branches from bucket ids shaped "<stage>.c-<digits>-<name>".
func (c *WarehouseCatalog) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	buckets, err := c.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []domain.Branch
	for _, b := range buckets {
		m := branchBucketRe.FindStringSubmatch(b.ID)
		if m == nil || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, domain.Branch{ID: m[1], Name: "branch " + m[1]})
	}
	return out, nil
}

// ListBuckets lists user schemas as buckets.
func (c *WarehouseCatalog) ListBuckets(ctx context.Context) ([]domain.Bucket, error) {
	query := `SELECT DISTINCT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('information_schema', 'pg_catalog', 'main')
		ORDER BY schema_name`
	if c.driver == "sqlite3" {
		query = `SELECT name FROM pragma_database_list WHERE name NOT IN ('main', 'temp') ORDER BY name`
	}

	names, err := c.queryNames(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	out := make([]domain.Bucket, 0, len(names))
	for _, id := range names {
		out = append(out, bucketFromID(id))
	}
	return out, nil
}

// ListTables lists tables and views in the bucket's schema.
func (c *WarehouseCatalog) ListTables(ctx context.Context, bucketID string) ([]domain.Table, error) {
	var (
		names []string
		err   error
	)
	if c.driver == "sqlite3" {
		names, err = c.queryNames(ctx, fmt.Sprintf(
			`SELECT name FROM %s.sqlite_master WHERE type IN ('table', 'view') ORDER BY name`,
			ddl.QuoteIdentifier(bucketID)))
	} else {
		names, err = c.queryNames(ctx,
			`SELECT DISTINCT table_name FROM information_schema.tables WHERE table_schema = ? ORDER BY table_name`,
			bucketID)
	}
	if err != nil {
		return nil, fmt.Errorf("list tables in %s: %w", bucketID, err)
	}

	out := make([]domain.Table, 0, len(names))
	for _, n := range names {
		out = append(out, domain.Table{ID: bucketID + "." + n, Name: n, BucketID: bucketID})
	}
	return out, nil
}

func (c *WarehouseCatalog) queryNames(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func bucketFromID(id string) domain.Bucket {
	b := domain.Bucket{ID: id}
	if i := strings.IndexByte(id, '.'); i > 0 {
		b.Stage = id[:i]
		b.Name = strings.TrimPrefix(id[i+1:], "c-")
	}
	return b
}
