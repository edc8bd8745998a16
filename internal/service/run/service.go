// Package run wraps a validation run with identity, timing, and history.
package run

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"branchcheck/internal/domain"
)

// Runner validates one branch. Implemented by validator.Validator.
type Runner interface {
	Run(ctx context.Context, branch string) (*domain.ResultSet, error)
}

// ErrHistoryDisabled is returned by history queries when no repository is configured.
var ErrHistoryDisabled = domain.ErrValidation("run history is disabled")

// Service is the single entry point the CLI, API, and UI use to run a
// validation. History is optional; a nil repository disables it.
type Service struct {
	mu     sync.Mutex // one run at a time; the warehouse holds a single connection
	runner Runner
	runs   domain.RunRepository
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewService creates a Service.
func NewService(runner Runner, runs domain.RunRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		runner: runner,
		runs:   runs,
		logger: logger,
		now:    time.Now,
		newID:  domain.NewID,
	}
}

// HistoryEnabled reports whether runs are persisted.
func (s *Service) HistoryEnabled() bool { return s.runs != nil }

// Run validates branch. The returned record is non-nil even when the run
// fails, carrying status failed and the error text. Failures to write
// history are logged and never fail the run.
func (s *Service) Run(ctx context.Context, branch string) (*domain.RunRecord, *domain.ResultSet, error) {
	if branch == "" {
		return nil, nil, domain.ErrValidation("branch id is required")
	}

	rec := &domain.RunRecord{
		ID:        s.newID(),
		BranchID:  branch,
		Status:    domain.RunStatusRunning,
		StartedAt: s.now().UTC(),
	}
	log := s.logger.With("run_id", rec.ID, "branch", branch)
	log.Info("validation run started")

	if s.runs != nil {
		if err := s.runs.Create(ctx, rec); err != nil {
			log.Error("record run start", "error", err)
		}
	}

	s.mu.Lock()
	rs, runErr := s.runner.Run(ctx, branch)
	s.mu.Unlock()

	finished := s.now().UTC()
	rec.FinishedAt = &finished
	if runErr != nil {
		rec.Status = domain.RunStatusFailed
		rec.Error = runErr.Error()
		log.Error("validation run failed", "error", runErr, "duration", finished.Sub(rec.StartedAt))
	} else {
		rec.Status = domain.RunStatusSuccess
		rec.ResultCount = rs.Len()
		log.Info("validation run succeeded", "rows", rec.ResultCount, "duration", finished.Sub(rec.StartedAt))
	}

	s.persist(ctx, log, rec, rs)
	return rec, rs, runErr
}

// persist writes results before the terminal status so a run reported as
// success always has its rows stored.
func (s *Service) persist(ctx context.Context, log *slog.Logger, rec *domain.RunRecord, rs *domain.ResultSet) {
	if s.runs == nil {
		return
	}
	if rs != nil && rs.Len() > 0 {
		if err := s.runs.InsertResults(ctx, rec.ID, rs.Records()); err != nil {
			log.Error("record run results", "error", err)
		}
	}
	if err := s.runs.Finish(ctx, rec); err != nil {
		log.Error("record run finish", "error", err)
	}
}

// List returns recent runs, newest first. An empty branch lists all branches.
func (s *Service) List(ctx context.Context, branch string, limit int) ([]domain.RunRecord, error) {
	if s.runs == nil {
		return nil, ErrHistoryDisabled
	}
	return s.runs.List(ctx, branch, limit)
}

// Get returns a stored run and its results.
func (s *Service) Get(ctx context.Context, id string) (*domain.RunRecord, *domain.ResultSet, error) {
	if s.runs == nil {
		return nil, nil, ErrHistoryDisabled
	}
	rec, err := s.runs.Get(ctx, id)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return nil, nil, domain.ErrNotFound("run %q not found", id)
		}
		return nil, nil, err
	}
	rows, err := s.runs.ListResults(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return rec, domain.ResultSetFromRows(rows), nil
}
