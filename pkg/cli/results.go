package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"branchcheck/internal/domain"
)

// printResults writes a result set as a table. Numeric values are shown
// with two decimals and NULL as an empty cell.
func printResults(w io.Writer, rs *domain.ResultSet) {
	rows := make([][]string, 0, rs.Len())
	for _, row := range rs.Rows {
		cells := make([]string, len(rs.Columns))
		for i, col := range rs.Columns {
			if i >= len(row) {
				continue
			}
			if col == "VALUE" {
				cells[i] = formatValue(row[i])
			} else {
				cells[i], _ = domain.CellString(row[i])
			}
		}
		rows = append(rows, cells)
	}
	PrintTable(w, rs.Columns, rows)
}

func formatValue(v interface{}) string {
	s, ok := domain.CellString(v)
	if !ok {
		return ""
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(f, 'f', 2, 64)
	}
	return s
}

func printRuns(w io.Writer, runs []domain.RunRecord) {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID, r.BranchID, r.Status,
			r.StartedAt.Local().Format(time.DateTime),
			formatDuration(r),
			strconv.Itoa(r.ResultCount),
			r.Error,
		})
	}
	PrintTable(w, []string{"id", "branch", "status", "started", "duration", "rows", "error"}, rows)
}

func formatDuration(r domain.RunRecord) string {
	if r.FinishedAt == nil {
		return ""
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}

func runSummary(rec *domain.RunRecord, rs *domain.ResultSet) string {
	if rs == nil || rs.Len() == 0 {
		return fmt.Sprintf("Run %s: no test results found for branch %s.", rec.ID, rec.BranchID)
	}
	return fmt.Sprintf("Run %s: %d rows for branch %s.", rec.ID, rs.Len(), rec.BranchID)
}
