package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"branchcheck/internal/domain"
)

// Compile-time check.
var _ domain.RunRepository = (*RunRepo)(nil)

const defaultRunListLimit = 50

// RunRepo implements domain.RunRepository on the history database. Writes go
// through the single-connection write pool, reads through the read pool.
type RunRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewRunRepo creates a RunRepo. A nil read pool falls back to the write pool.
func NewRunRepo(write, read *sql.DB) *RunRepo {
	if read == nil {
		read = write
	}
	return &RunRepo{write: write, read: read}
}

// Create inserts a new run.
func (r *RunRepo) Create(ctx context.Context, run *domain.RunRecord) error {
	if run.ID == "" {
		return domain.ErrValidation("run id is required")
	}
	_, err := r.write.ExecContext(ctx, `
		INSERT INTO runs (id, branch_id, status, started_at, finished_at, result_count, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.BranchID, run.Status, formatTime(run.StartedAt), nullTime(run.FinishedAt),
		run.ResultCount, run.Error)
	return mapDBError(err)
}

// Finish records the terminal status, timings, and outcome of a run.
func (r *RunRepo) Finish(ctx context.Context, run *domain.RunRecord) error {
	res, err := r.write.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ?, result_count = ?, error = ?
		WHERE id = ?`,
		run.Status, nullTime(run.FinishedAt), run.ResultCount, run.Error, run.ID)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("run %q not found", run.ID)
	}
	return nil
}

// InsertResults stores the result rows of a run in one transaction,
// preserving their order.
func (r *RunRepo) InsertResults(ctx context.Context, runID string, rows []domain.ResultRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_results (run_id, ordinal, table_name, test_name, source_bucket, source_table,
			parameter_1, parameter_2, parameter_3, parameter_4, environment, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, runID, i, row.TableName, row.TestName,
			nullString(row.SourceBucket), nullString(row.SourceTable),
			nullString(row.Parameter1), nullString(row.Parameter2),
			nullString(row.Parameter3), nullString(row.Parameter4),
			string(row.Environment), nullValue(row.Value)); err != nil {
			return mapDBError(err)
		}
	}
	return tx.Commit()
}

// List returns the most recent runs, newest first. An empty branchID lists
// runs of every branch; a non-positive limit means 50.
func (r *RunRepo) List(ctx context.Context, branchID string, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = defaultRunListLimit
	}
	query := `SELECT id, branch_id, status, started_at, finished_at, result_count, error FROM runs`
	args := []interface{}{}
	if branchID != "" {
		query += ` WHERE branch_id = ?`
		args = append(args, branchID)
	}
	query += ` ORDER BY started_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := r.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := []domain.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// Get returns one run by id.
func (r *RunRepo) Get(ctx context.Context, id string) (*domain.RunRecord, error) {
	row := r.read.QueryRowContext(ctx, `
		SELECT id, branch_id, status, started_at, finished_at, result_count, error
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("run %q not found", id)
	}
	return run, err
}

// ListResults returns the stored result rows of a run in their original order.
func (r *RunRepo) ListResults(ctx context.Context, runID string) ([]domain.ResultRow, error) {
	rows, err := r.read.QueryContext(ctx, `
		SELECT table_name, test_name, source_bucket, source_table,
			parameter_1, parameter_2, parameter_3, parameter_4, environment, value
		FROM run_results WHERE run_id = ? ORDER BY ordinal`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := []domain.ResultRow{}
	for rows.Next() {
		var (
			rr                    domain.ResultRow
			srcBucket, srcTable   sql.NullString
			p1, p2, p3, p4, value sql.NullString
			env                   string
		)
		if err := rows.Scan(&rr.TableName, &rr.TestName, &srcBucket, &srcTable,
			&p1, &p2, &p3, &p4, &env, &value); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		rr.SourceBucket, rr.SourceTable = stringPtr(srcBucket), stringPtr(srcTable)
		rr.Parameter1, rr.Parameter2 = stringPtr(p1), stringPtr(p2)
		rr.Parameter3, rr.Parameter4 = stringPtr(p3), stringPtr(p4)
		rr.Environment = domain.Environment(env)
		if value.Valid {
			rr.Value = value.String
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s rowScanner) (*domain.RunRecord, error) {
	var (
		run      domain.RunRecord
		started  string
		finished sql.NullString
	)
	if err := s.Scan(&run.ID, &run.BranchID, &run.Status, &started, &finished, &run.ResultCount, &run.Error); err != nil {
		return nil, err
	}
	t, err := parseTime(started)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	run.StartedAt = t
	if finished.Valid {
		ft, err := parseTime(finished.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &ft
	}
	return &run, nil
}
