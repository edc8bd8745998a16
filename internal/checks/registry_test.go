package checks

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"branchcheck/internal/domain"
)

func fullSubs(t *testing.T, r *Registry, name string) map[string]string {
	t.Helper()
	keys, err := r.RequiredParameters(name)
	require.NoError(t, err)
	subs := make(map[string]string, len(keys))
	for _, k := range keys {
		subs[k] = "'" + k + "'"
	}
	return subs
}

func TestRegistry_RenderSubstitutes(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("count_rows", "SELECT COUNT(*) FROM {{ dev_table }} WHERE x = {{value}}"))

	got, err := r.Render("count_rows", map[string]string{
		"dev_table": `"out.c-1-main"."orders"`,
		"value":     "'a'",
		"unused":    "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "out.c-1-main"."orders" WHERE x = 'a'`, got)
}

func TestRegistry_UnknownCheck(t *testing.T) {
	r := NewRegistry()

	_, err := r.Render("nope", map[string]string{})
	require.Error(t, err)
	var unknown *domain.UnknownCheckError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, []string{"nope"}, unknown.Names)

	_, err = r.RequiredParameters("nope")
	require.True(t, errors.As(err, &unknown))
	assert.False(t, r.Has("nope"))
}

func TestRegistry_LastWriteWins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("c", "SELECT 1"))
	require.NoError(t, r.Register("c", "SELECT {{ two }}"))

	got, err := r.Render("c", map[string]string{"two": "2"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", got)
	assert.Equal(t, []string{"c"}, r.Names())
}

func TestRegistry_RegisterRejectsMalformedTemplates(t *testing.T) {
	tests := []struct {
		name    string
		check   string
		text    string
		wantErr string
	}{
		{name: "unterminated", check: "c", text: "SELECT {{ dev_table", wantErr: "unterminated placeholder"},
		{name: "expression_key", check: "c", text: "SELECT {{ a + b }}", wantErr: "must match"},
		{name: "empty_key", check: "c", text: "SELECT {{ }}", wantErr: "name is required"},
		{name: "bad_check_name", check: "my-check", text: "SELECT 1", wantErr: "check name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.check, tt.text)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			var verr *domain.ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestRegistry_MissingParameterNamesKey(t *testing.T) {
	r := NewDefaultRegistry()

	for _, name := range r.Names() {
		t.Run(name, func(t *testing.T) {
			subs := fullSubs(t, r, name)
			_, err := r.Render(name, subs)
			require.NoError(t, err)

			for key := range subs {
				partial := make(map[string]string, len(subs))
				for k, v := range subs {
					if k != key {
						partial[k] = v
					}
				}
				_, err := r.Render(name, partial)
				require.Error(t, err, "removing %s", key)
				var missing *domain.MissingParameterError
				require.True(t, errors.As(err, &missing))
				assert.Equal(t, key, missing.Key)
				assert.Equal(t, name, missing.Check)
			}
		})
	}
}

func TestRegistry_RowCountIsSymmetric(t *testing.T) {
	r := NewDefaultRegistry()

	params, err := r.RequiredParameters("check_row_count")
	require.NoError(t, err)
	assert.Equal(t, []string{"dev_table", "prod_table", "table_name_string"}, params)

	got, err := r.Render("check_row_count", map[string]string{
		"dev_table":         `"out.c-1191865-main"."orders"`,
		"prod_table":        `"out.c-main"."orders"`,
		"table_name_string": "'orders'",
	})
	require.NoError(t, err)

	parts := strings.Split(got, "UNION ALL")
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0], "'DEV' AS ENVIRONMENT")
	assert.Contains(t, parts[0], `FROM "out.c-1191865-main"."orders"`)
	assert.Contains(t, parts[1], "'PROD' AS ENVIRONMENT")
	assert.Contains(t, parts[1], `FROM "out.c-main"."orders"`)
	for _, p := range parts {
		assert.Contains(t, p, "COUNT(*) AS VALUE")
		assert.Contains(t, p, "'check_row_count' AS TEST_NAME")
		assert.Contains(t, p, "'n/a' AS PARAMETER_1")
		assert.Contains(t, p, "'n/a' AS PARAMETER_4")
	}
}

func TestRegistry_InputCheckSumOverridesProdSide(t *testing.T) {
	r := NewDefaultRegistry()

	params, err := r.RequiredParameters("input_check_sum")
	require.NoError(t, err)
	assert.Contains(t, params, "source_bucket_object")
	assert.Contains(t, params, "source_table_object")
	assert.NotContains(t, params, "prod_table")

	got, err := r.Render("input_check_sum", fullSubs(t, r, "input_check_sum"))
	require.NoError(t, err)
	parts := strings.Split(got, "UNION ALL")
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0], "SUM('parameter_2_object')")
	assert.Contains(t, parts[0], "FROM 'dev_table'")
	assert.Contains(t, parts[1], "SUM('parameter_1_object')")
	assert.Contains(t, parts[1], "FROM 'source_bucket_object'.'source_table_object'")
}

func TestRegistry_RegisterCheckRequiresSide(t *testing.T) {
	err := NewRegistry().RegisterCheck(Check{Name: "empty"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "side projection is required")
}

func TestRegistry_BuiltinsProjectCanonicalColumns(t *testing.T) {
	r := NewDefaultRegistry()
	assert.Equal(t, []string{
		"check_null_count",
		"check_row_count",
		"check_sum",
		"check_uniqueness",
		"input_check_row_count",
		"input_check_sum",
	}, r.Names())

	for _, name := range r.Names() {
		src, err := r.Source(name)
		require.NoError(t, err)
		for _, side := range strings.Split(src, "UNION ALL") {
			last := -1
			for _, col := range domain.ResultColumns {
				idx := strings.Index(side, "AS "+col+",")
				if idx < 0 {
					idx = strings.Index(side, "AS "+col+"\n")
				}
				require.GreaterOrEqual(t, idx, 0, "%s missing %s", name, col)
				assert.Greater(t, idx, last, "%s column %s out of order", name, col)
				last = idx
			}
		}
	}
}

func TestRegistry_ValidateCatalog(t *testing.T) {
	r := NewDefaultRegistry()

	require.NoError(t, r.ValidateCatalog([]domain.CheckDefinition{
		{TestName: "check_row_count"},
		{TestName: "check_sum"},
	}))

	err := r.ValidateCatalog([]domain.CheckDefinition{
		{TestName: "check_row_count"},
		{TestName: "check_typo"},
		{TestName: "other"},
		{TestName: "check_typo"},
	})
	require.Error(t, err)
	var unknown *domain.UnknownCheckError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, []string{"check_typo", "other"}, unknown.Names)
}
