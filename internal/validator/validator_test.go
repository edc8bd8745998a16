package validator

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"branchcheck/internal/bucket"
	"branchcheck/internal/catalog"
	"branchcheck/internal/checks"
	"branchcheck/internal/domain"
	"branchcheck/internal/engine"
	"branchcheck/internal/testutil"
)

const branch = "1191865"

func na() domain.CatalogValue { return domain.CatalogValue(domain.NotApplicable) }

func def(test, bucketID, table string, p1 domain.CatalogValue) domain.CheckDefinition {
	if p1 == "" {
		p1 = na()
	}
	return domain.CheckDefinition{
		TestName:        test,
		StorageBucketID: bucketID,
		StorageTableID:  table,
		SourceBucket:    na(),
		SourceTable:     na(),
		Parameters:      [4]domain.CatalogValue{p1, na(), na(), na()},
	}
}

func mustCatalog(t *testing.T, rows ...domain.CheckDefinition) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New("test", rows)
	require.NoError(t, err)
	return c
}

func canonical(table, test string, dev, prod interface{}) *domain.QueryResult {
	row := func(env string, v interface{}) []interface{} {
		return []interface{}{table, test, "n/a", "n/a", "n/a", "n/a", "n/a", "n/a", env, v}
	}
	return &domain.QueryResult{
		Columns:  append([]string(nil), domain.ResultColumns...),
		Rows:     [][]interface{}{row("DEV", dev), row("PROD", prod)},
		RowCount: 2,
	}
}

func testName(query string) string {
	for _, name := range checks.NewDefaultRegistry().Names() {
		if strings.Contains(query, "'"+name+"' AS TEST_NAME") {
			return name
		}
	}
	return ""
}

func newValidator(wh domain.Warehouse, storage domain.StorageCatalog, c CheckFinder) *Validator {
	return New(wh, bucket.NewResolver(storage, nil), c, checks.NewDefaultRegistry())
}

func TestRun_RequiresBranch(t *testing.T) {
	wh := &testutil.MockWarehouse{}
	_, err := newValidator(wh, testutil.StaticStorage(nil), mustCatalog(t, def("check_row_count", "out.c-main", "orders", ""))).Run(context.Background(), "")
	require.Error(t, err)
	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Zero(t, wh.ConnectCalls)
}

func TestRun_ConnectFailureIsFatal(t *testing.T) {
	wh := &testutil.MockWarehouse{
		ConnectFn: func(context.Context) error { return errors.New("auth failed") },
	}
	_, err := newValidator(wh, testutil.StaticStorage(nil), mustCatalog(t, def("check_row_count", "out.c-main", "orders", ""))).Run(context.Background(), branch)

	require.Error(t, err)
	var cerr *domain.ConnectError
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, err.Error(), "auth failed")
	assert.Equal(t, 1, wh.DisconnectCalls)
}

func TestRun_DiscoveryFailureIsFatalAndDisconnects(t *testing.T) {
	wh := &testutil.MockWarehouse{}
	storage := &testutil.MockStorageCatalog{
		ListBucketsFn: func(context.Context) ([]domain.Bucket, error) { return nil, errors.New("503") },
	}
	_, err := newValidator(wh, storage, mustCatalog(t, def("check_row_count", "out.c-main", "orders", ""))).Run(context.Background(), branch)

	require.Error(t, err)
	var derr *domain.DiscoveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, branch, derr.Branch)
	assert.Equal(t, 1, wh.DisconnectCalls)
}

func TestRun_NoBucketsYieldsEmptyCanonicalSet(t *testing.T) {
	wh := &testutil.MockWarehouse{}
	rs, err := newValidator(wh, testutil.StaticStorage(nil, "out.c-main"), mustCatalog(t, def("check_row_count", "out.c-main", "orders", ""))).Run(context.Background(), branch)

	require.NoError(t, err)
	assert.Equal(t, 0, rs.Len())
	assert.Equal(t, domain.ResultColumns, rs.Columns)
	assert.Equal(t, 1, wh.DisconnectCalls)
}

func TestRun_DisconnectFailureIsFatal(t *testing.T) {
	wh := &testutil.MockWarehouse{
		DisconnectFn: func() error { return errors.New("socket closed") },
	}
	rs, err := newValidator(wh, testutil.StaticStorage(nil), mustCatalog(t, def("check_row_count", "out.c-main", "orders", ""))).Run(context.Background(), branch)

	require.Error(t, err)
	assert.Nil(t, rs)
	var cerr *domain.ConnectError
	assert.True(t, errors.As(err, &cerr))
}

func TestRun_FailuresAreIsolated(t *testing.T) {
	storage := testutil.StaticStorage(map[string][]string{
		"out.c-1191865-main": {"orders", "unconfigured"},
	}, "out.c-main", "out.c-1191865-main", "out.c-1191865-broken")
	baseList := storage.ListTablesFn
	storage.ListTablesFn = func(ctx context.Context, bucketID string) ([]domain.Table, error) {
		if bucketID == "out.c-1191865-broken" {
			return nil, errors.New("bucket listing failed")
		}
		return baseList(ctx, bucketID)
	}

	wh := &testutil.MockWarehouse{
		ExecuteFn: func(_ context.Context, query string, _ ...interface{}) (*domain.QueryResult, error) {
			switch testName(query) {
			case "check_row_count":
				return canonical("orders", "check_row_count", int64(2), int64(3)), nil
			case "check_sum":
				return nil, errors.New("column amount does not exist")
			case "check_uniqueness":
				return &domain.QueryResult{Columns: []string{"TABLE_NAME", "VALUE"}, Rows: [][]interface{}{{"orders", 1}}, RowCount: 1}, nil
			}
			return nil, errors.New("unexpected query")
		},
	}

	cat := mustCatalog(t,
		def("check_sum", "out.c-main", "orders", "amount"),
		def("not_registered", "out.c-main", "orders", ""),
		def("check_row_count", "out.c-main", "orders", ""),
		def("check_uniqueness", "out.c-main", "orders", "order_id"),
		def("check_row_count", "out.c-main", "elsewhere", ""),
	)

	rs, err := newValidator(wh, storage, cat).Run(context.Background(), branch)
	require.NoError(t, err)

	rows := rs.Records()
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, "check_row_count", r.TestName)
		assert.Equal(t, "orders", r.TableName)
	}
	assert.Len(t, wh.Queries, 3)
	assert.Equal(t, 1, wh.ConnectCalls)
	assert.Equal(t, 1, wh.DisconnectCalls)
}

func TestRun_RequiredColumnsOverride(t *testing.T) {
	cols := []string{"TABLE_NAME", "VALUE"}
	wh := &testutil.MockWarehouse{
		ExecuteFn: func(context.Context, string, ...interface{}) (*domain.QueryResult, error) {
			return canonical("orders", "check_row_count", 1, 1), nil
		},
	}
	storage := testutil.StaticStorage(map[string][]string{"out.c-1191865-main": {"orders"}}, "out.c-1191865-main")

	v := New(wh, bucket.NewResolver(storage, nil), mustCatalog(t, def("check_row_count", "out.c-main", "orders", "")),
		checks.NewDefaultRegistry(), WithRequiredColumns(cols))
	rs, err := v.Run(context.Background(), branch)
	require.NoError(t, err)
	assert.Equal(t, cols, rs.Columns)
	assert.Equal(t, 0, rs.Len())
}

func TestRun_DuckDBEndToEnd(t *testing.T) {
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range []string{
		`CREATE SCHEMA "out.c-main"`,
		`CREATE SCHEMA "out.c-1191865-main"`,
		`CREATE SCHEMA "out.c-main.upstream"`,
		`CREATE TABLE "out.c-main"."orders" (order_id INTEGER, amount BIGINT)`,
		`CREATE TABLE "out.c-1191865-main"."orders" (order_id INTEGER, amount BIGINT)`,
		`CREATE TABLE "out.c-main.upstream"."orders_raw" (order_id INTEGER, amount BIGINT)`,
		`INSERT INTO "out.c-main"."orders" VALUES (1, 10), (2, 20), (3, 30)`,
		`INSERT INTO "out.c-1191865-main"."orders" VALUES (1, 10), (2, 20), (2, 5)`,
		`INSERT INTO "out.c-main.upstream"."orders_raw" VALUES (1, 10), (2, 20), (3, 30), (4, 40)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}

	storage := testutil.StaticStorage(map[string][]string{
		"out.c-1191865-main": {"orders"},
	}, "out.c-main", "out.c-1191865-main", "out.c-main.upstream")

	input := def("input_check_row_count", "out.c-main", "orders", "")
	input.SourceBucket = "out.c-main.upstream"
	input.SourceTable = "orders_raw"

	cat := mustCatalog(t,
		def("check_row_count", "out.c-main", "orders", ""),
		def("check_sum", "out.c-main", "orders", "amount"),
		def("check_uniqueness", "out.c-main", "orders", "order_id"),
		input,
	)

	wh := engine.NewWarehouseFromDB(db, engine.Options{})
	rs, err := newValidator(wh, storage, cat).Run(context.Background(), branch)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultColumns, rs.Columns)

	values := map[string]string{}
	for _, r := range rs.Records() {
		v, _ := domain.CellString(r.Value)
		values[r.TestName+"/"+string(r.Environment)] = v
	}
	assert.Equal(t, map[string]string{
		"check_row_count/DEV":        "3",
		"check_row_count/PROD":       "3",
		"check_sum/DEV":              "35",
		"check_sum/PROD":             "60",
		"check_uniqueness/DEV":       "2",
		"check_uniqueness/PROD":      "3",
		"input_check_row_count/DEV":  "3",
		"input_check_row_count/PROD": "4",
	}, values)

	for _, r := range rs.Records() {
		if r.TestName == "check_sum" {
			require.NotNil(t, r.Parameter1)
			assert.Equal(t, "amount", *r.Parameter1)
		}
		if r.TestName == "input_check_row_count" {
			require.NotNil(t, r.SourceBucket)
			assert.Equal(t, "out.c-main.upstream", *r.SourceBucket)
		}
	}
}
