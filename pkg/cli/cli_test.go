package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"branchcheck/internal/domain"
)

func TestVersion_JSON(t *testing.T) {
	out, _, err := runCLI(t, "version", "-o", "json")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "dev", got["version"])
}

func TestRoot_RejectsUnknownOutput(t *testing.T) {
	_, _, err := runCLI(t, "version", "-o", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yaml")
}

func TestCompletion(t *testing.T) {
	out, _, err := runCLI(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "branchcheck")

	_, _, err = runCLI(t, "completion", "tcsh")
	require.Error(t, err)
}

func TestChecksList(t *testing.T) {
	out, _, err := runCLI(t, "checks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "check_row_count")
	assert.Contains(t, out, "check_sum")
}

func TestChecksShow(t *testing.T) {
	out, _, err := runCLI(t, "checks", "show", "check_sum")
	require.NoError(t, err)
	assert.Contains(t, out, "AS VALUE")

	_, _, err = runCLI(t, "checks", "show", "check_everything")
	require.Error(t, err)
	var uerr *domain.UnknownCheckError
	assert.True(t, errors.As(err, &uerr))
}

func TestCatalogValidate_Path(t *testing.T) {
	f := setupWarehouse(t)

	out, _, err := runCLI(t, "catalog", "validate", f.Catalog)
	require.NoError(t, err)
	assert.Contains(t, out, "2 rows covering 1 tables")

	bad := filepath.Join(f.Dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte(testCatalog+"check_everything,out.c-main,orders,n/a,n/a,n/a,n/a,n/a,n/a\n"), 0o600))
	_, _, err = runCLI(t, "catalog", "validate", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check_everything")
}

func TestCatalogValidate_FromConfig(t *testing.T) {
	setupWarehouse(t)

	out, _, err := runCLI(t, "catalog", "validate", "-o", "json")
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, true, got["valid"])
	assert.EqualValues(t, 2, got["rows"])
}

func TestBranches(t *testing.T) {
	setupWarehouse(t)

	out, _, err := runCLI(t, "branches", "-o", "json")
	require.NoError(t, err)
	var got struct {
		Branches []domain.Branch `json:"branches"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Branches, 1)
	assert.Equal(t, "7", got.Branches[0].ID)
}

func TestRun_RequiresBranch(t *testing.T) {
	_, _, err := runCLI(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "branch")
}

func TestRun_PrintsResultsAndRecordsHistory(t *testing.T) {
	setupWarehouse(t)

	out, stderr, err := runCLI(t, "run", "--branch", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "TABLE_NAME")
	assert.Contains(t, out, "check_sum")
	assert.Contains(t, out, "35.00")
	assert.Contains(t, out, "60.00")
	assert.Contains(t, stderr, "4 rows for branch 7")

	out, _, err = runCLI(t, "history", "list", "-o", "json")
	require.NoError(t, err)
	var list struct {
		Runs []domain.RunRecord `json:"runs"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, domain.RunStatusSuccess, list.Runs[0].Status)
	assert.Equal(t, 4, list.Runs[0].ResultCount)

	out, _, err = runCLI(t, "history", "show", list.Runs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "60.00")

	_, _, err = runCLI(t, "history", "show", "missing-run")
	require.Error(t, err)
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestRun_Export(t *testing.T) {
	f := setupWarehouse(t)
	dir := filepath.Join(f.Dir, "reports")

	out, _, err := runCLI(t, "run", "--branch", "7", "--export", dir, "--format", "csv", "-o", "json")
	require.NoError(t, err)

	var got struct {
		Run    domain.RunRecord `json:"run"`
		Report string           `json:"report"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, filepath.Join(dir, got.Run.ID+".csv"), got.Report)

	data, err := os.ReadFile(got.Report)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "TABLE_NAME,TEST_NAME"))
}

func TestRun_UnknownBranchIsEmpty(t *testing.T) {
	setupWarehouse(t)

	_, stderr, err := runCLI(t, "run", "--branch", "99")
	require.NoError(t, err)
	assert.Contains(t, stderr, "no test results found")
}

func TestChecksRender(t *testing.T) {
	setupWarehouse(t)

	out, _, err := runCLI(t, "checks", "render", "out.c-7-main.orders", "--branch", "7", "--check", "check_sum")
	require.NoError(t, err)
	assert.Contains(t, out, "-- check_sum (catalog line")
	assert.Contains(t, out, "out.c-7-main")
	assert.Contains(t, out, "amount")
	assert.NotContains(t, out, "check_row_count")
}

func TestChecksRender_Errors(t *testing.T) {
	setupWarehouse(t)

	_, _, err := runCLI(t, "checks", "render", "orders", "--branch", "7")
	require.Error(t, err)
	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, _, err = runCLI(t, "checks", "render", "out.c-main.orders", "--branch", "7")
	require.Error(t, err)
	var berr *domain.InvalidDevBucketError
	assert.True(t, errors.As(err, &berr))

	_, _, err = runCLI(t, "checks", "render", "out.c-7-main.customers", "--branch", "7")
	require.Error(t, err)
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestOutputFromEnv(t *testing.T) {
	t.Setenv("BRANCHCHECK_OUTPUT", "json")

	out, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "{"))

	out, _, err = runCLI(t, "version", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "branchcheck version dev")
}
