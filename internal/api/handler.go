// Package api serves the validation engine over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"branchcheck/internal/domain"
	"branchcheck/internal/middleware"
	"branchcheck/internal/report"
)

// CheckInfo describes the registered checks. Implemented by checks.Registry.
type CheckInfo interface {
	Names() []string
	RequiredParameters(name string) ([]string, error)
}

// RunService runs and looks up validations. Implemented by run.Service.
type RunService interface {
	Run(ctx context.Context, branch string) (*domain.RunRecord, *domain.ResultSet, error)
	List(ctx context.Context, branch string, limit int) ([]domain.RunRecord, error)
	Get(ctx context.Context, id string) (*domain.RunRecord, *domain.ResultSet, error)
}

// Handler implements the /v1 endpoints.
type Handler struct {
	storage domain.StorageCatalog
	checks  CheckInfo
	runs    RunService
	logger  *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(storage domain.StorageCatalog, checks CheckInfo, runs RunService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{storage: storage, checks: checks, runs: runs, logger: logger}
}

// CheckSummary is one registered check and the substitutions it needs.
type CheckSummary struct {
	Name       string   `json:"name"`
	Parameters []string `json:"parameters"`
}

// RunResponse is a run with its result rows.
type RunResponse struct {
	Run     *domain.RunRecord  `json:"run"`
	Columns []string           `json:"columns"`
	Results []domain.ResultRow `json:"results"`
}

func runResponse(rec *domain.RunRecord, rs *domain.ResultSet) RunResponse {
	if rs == nil {
		rs = domain.NewResultSet(domain.ResultColumns)
	}
	return RunResponse{Run: rec, Columns: rs.Columns, Results: rs.Records()}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromDomainError(err)
	reqID := middleware.RequestIDFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "request_id", reqID, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, Error{Code: status, Message: err.Error(), RequestID: reqID})
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListBranches handles GET /v1/branches.
func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.storage.ListBranches(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if branches == nil {
		branches = []domain.Branch{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"branches": branches})
}

// ListChecks handles GET /v1/checks.
func (h *Handler) ListChecks(w http.ResponseWriter, r *http.Request) {
	names := h.checks.Names()
	out := make([]CheckSummary, 0, len(names))
	for _, name := range names {
		params, err := h.checks.RequiredParameters(name)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		out = append(out, CheckSummary{Name: name, Parameters: params})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"checks": out})
}

// CreateRun handles POST /v1/branches/{branchID}/runs. A fatal run error is
// reported with the id of the recorded failed run.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	branch := chi.URLParam(r, "branchID")
	rec, rs, err := h.runs.Run(r.Context(), branch)
	if err != nil {
		status := httpStatusFromDomainError(err)
		body := Error{Code: status, Message: err.Error(), RequestID: middleware.RequestIDFromContext(r.Context())}
		if rec != nil {
			body.RunID = rec.ID
		}
		h.logger.Warn("run failed", "request_id", body.RequestID, "branch", branch, "error", err)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusCreated, runResponse(rec, rs))
}

// ListRuns handles GET /v1/runs?branch=&limit=.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.fail(w, r, domain.ErrValidation("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	runs, err := h.runs.List(r.Context(), r.URL.Query().Get("branch"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetRun handles GET /v1/runs/{runID}. format=csv or format=json downloads
// the stored results as a report file.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	rec, rs, err := h.runs.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		writeJSON(w, http.StatusOK, runResponse(rec, rs))
		return
	}
	f, err := report.ParseFormat(format)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+rec.ID+"."+f.Ext()+`"`)
	if err := report.Write(w, rs, f); err != nil {
		h.logger.Error("write report", "run_id", rec.ID, "error", err)
	}
}
