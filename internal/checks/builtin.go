package checks

import "fmt"

// notApplicable is projected for canonical columns a check does not report.
const notApplicable = "'n/a'"

// projection fills the canonical columns for one side of a check.
type projection struct {
	sourceBucket string
	sourceTable  string
	params       [4]string
	value        string
}

func (p projection) side() string {
	col := func(v string) string {
		if v == "" {
			return notApplicable
		}
		return v
	}
	return fmt.Sprintf(`SELECT
    {{ table_name_string }} AS TABLE_NAME,
    {{ test_name }} AS TEST_NAME,
    %s AS SOURCE_BUCKET,
    %s AS SOURCE_TABLE,
    %s AS PARAMETER_1,
    %s AS PARAMETER_2,
    %s AS PARAMETER_3,
    %s AS PARAMETER_4,
    {{ environment }} AS ENVIRONMENT,
    %s AS VALUE
FROM {{ relation }}`,
		col(p.sourceBucket), col(p.sourceTable),
		col(p.params[0]), col(p.params[1]), col(p.params[2]), col(p.params[3]),
		p.value)
}

// Builtins returns the checks every default registry starts with.
func Builtins() []Check {
	param1 := [4]string{"{{ parameter_1_string }}"}
	params12 := [4]string{"{{ parameter_1_string }}", "{{ parameter_2_string }}"}

	return []Check{
		{
			Name: "check_row_count",
			Side: projection{value: "COUNT(*)"}.side(),
		},
		{
			Name: "check_sum",
			Side: projection{params: param1, value: "SUM({{ parameter_1_object }})"}.side(),
		},
		{
			Name: "check_uniqueness",
			Side: projection{params: param1, value: "COUNT(DISTINCT {{ parameter_1_object }})"}.side(),
		},
		{
			Name: "check_null_count",
			Side: projection{params: param1, value: "COUNT(*) - COUNT({{ parameter_1_object }})"}.side(),
		},
		{
			Name: "input_check_row_count",
			Side: projection{
				sourceBucket: "{{ source_bucket_string }}",
				sourceTable:  "{{ source_table_string }}",
				value:        "COUNT(*)",
			}.side(),
			ProdRelation: SourceTable,
		},
		{
			// parameter_2 is the dev column, parameter_1 its upstream counterpart.
			Name:         "input_check_sum",
			Side:         projection{params: params12, value: "SUM({{ parameter_2_object }})"}.side(),
			ProdSide:     projection{params: params12, value: "SUM({{ parameter_1_object }})"}.side(),
			ProdRelation: SourceTable,
		},
	}
}
