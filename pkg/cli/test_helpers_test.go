package cli

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/require"
)

const testCatalog = `TEST_NAME,STORAGE_BUCKET_ID,STORAGE_TABLE_ID,SOURCE_BUCKET,SOURCE_TABLE,PARAMETER_1,PARAMETER_2,PARAMETER_3,PARAMETER_4
check_row_count,out.c-main,orders,n/a,n/a,n/a,n/a,n/a,n/a
check_sum,out.c-main,orders,n/a,n/a,amount,n/a,n/a,n/a
`

type fixture struct {
	Dir     string
	Catalog string
}

// setupWarehouse builds a DuckDB file with one production and one branch
// bucket and points the environment at it.
func setupWarehouse(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()

	catalogPath := filepath.Join(dir, "checks.csv")
	require.NoError(t, os.WriteFile(catalogPath, []byte(testCatalog), 0o600))

	dsn := filepath.Join(dir, "warehouse.duckdb")
	db, err := sql.Open("duckdb", dsn)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE SCHEMA "out.c-main"`,
		`CREATE SCHEMA "out.c-7-main"`,
		`CREATE TABLE "out.c-main"."orders" (order_id INTEGER, amount BIGINT)`,
		`CREATE TABLE "out.c-7-main"."orders" (order_id INTEGER, amount BIGINT)`,
		`INSERT INTO "out.c-main"."orders" VALUES (1, 10), (2, 20), (3, 30)`,
		`INSERT INTO "out.c-7-main"."orders" VALUES (1, 10), (2, 25)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	require.NoError(t, db.Close())

	t.Setenv("CATALOG_PATH", catalogPath)
	t.Setenv("STORAGE_MODE", "warehouse")
	t.Setenv("WAREHOUSE_DRIVER", "duckdb")
	t.Setenv("WAREHOUSE_DSN", dsn)
	t.Setenv("HISTORY_ENABLED", "true")
	t.Setenv("HISTORY_PATH", filepath.Join(dir, "history.sqlite"))
	t.Setenv("REPORT_SINK", "")
	t.Setenv("REPORT_FORMAT", "")
	t.Setenv("LOG_LEVEL", "error")
	return fixture{Dir: dir, Catalog: catalogPath}
}

// runCLI executes the root command with args and captures its output.
func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	if _, ok := os.LookupEnv("BRANCHCHECK_OUTPUT"); !ok {
		t.Setenv("BRANCHCHECK_OUTPUT", "")
	}
	if _, ok := os.LookupEnv("BRANCHCHECK_CONFIG"); !ok {
		t.Setenv("BRANCHCHECK_CONFIG", "")
	}
	var out, errb bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errb)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errb.String(), err
}
