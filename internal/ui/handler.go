// Package ui renders the browser front end: pick a branch, run the checks,
// read the results, download them.
package ui

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	gomponents "maragu.dev/gomponents"

	"branchcheck/internal/domain"
	"branchcheck/internal/report"
)

// RunService runs and looks up validations. Implemented by run.Service.
type RunService interface {
	Run(ctx context.Context, branch string) (*domain.RunRecord, *domain.ResultSet, error)
	List(ctx context.Context, branch string, limit int) ([]domain.RunRecord, error)
	Get(ctx context.Context, id string) (*domain.RunRecord, *domain.ResultSet, error)
}

const recentRunsLimit = 20

// Handler serves the UI pages.
type Handler struct {
	Storage domain.StorageCatalog
	Runs    RunService
	// History enables the recent-runs list and stored-run downloads.
	History bool
	// Production marks cookies Secure.
	Production bool
	Logger     *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(storage domain.StorageCatalog, runs RunService, history, production bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Storage: storage, Runs: runs, History: history, Production: production, Logger: logger}
}

// Routes returns the UI router, to be mounted under /ui.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/static/app.css", serveStylesheet)
	r.Get("/", h.Home)
	r.With(h.requireFormToken(runFormAction)).Post("/runs", h.RunSubmit)
	r.Get("/runs/{runID}", h.RunDetail)
	r.Get("/runs/{runID}/download", h.RunDownload)
	return r
}

func renderHTML(w http.ResponseWriter, status int, node gomponents.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = node.Render(w)
}

// Home lists branches to validate and, with history, the recent runs.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	branches, err := h.Storage.ListBranches(r.Context())
	if err != nil {
		h.Logger.Error("list branches", "error", err)
		renderHTML(w, http.StatusBadGateway, errorPage("Branches Unavailable",
			"Failed to fetch branches. Please check the storage configuration."))
		return
	}

	var runs []domain.RunRecord
	if h.History {
		runs, err = h.Runs.List(r.Context(), "", recentRunsLimit)
		if err != nil {
			h.Logger.Warn("list recent runs", "error", err)
		}
	}
	token := h.issueFormToken(w, r, runFormAction)
	renderHTML(w, http.StatusOK, homePage(formTokenInput(token), branches, runs))
}

// RunSubmit runs the checks for the posted branch and renders the results.
func (h *Handler) RunSubmit(w http.ResponseWriter, r *http.Request) {
	branch := strings.TrimSpace(r.FormValue("branch"))
	if branch == "" {
		renderHTML(w, http.StatusBadRequest, errorPage("Invalid Request", "Select a branch to validate."))
		return
	}

	rec, rs, err := h.Runs.Run(r.Context(), branch)
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	renderHTML(w, http.StatusOK, resultsPage(rec, rs, h.History))
}

// RunDetail renders a stored run.
func (h *Handler) RunDetail(w http.ResponseWriter, r *http.Request) {
	rec, rs, err := h.Runs.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	renderHTML(w, http.StatusOK, resultsPage(rec, rs, h.History))
}

// RunDownload streams a stored run as CSV, or JSON with format=json.
func (h *Handler) RunDownload(w http.ResponseWriter, r *http.Request) {
	f, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	rec, rs, err := h.Runs.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="branch-`+rec.BranchID+"-"+rec.ID+"."+f.Ext()+`"`)
	if err := report.Write(w, rs, f); err != nil {
		h.Logger.Error("write download", "run_id", rec.ID, "error", err)
	}
}

func (h *Handler) renderServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	title := "Test Execution Failed"

	var (
		notFound   *domain.NotFoundError
		validation *domain.ValidationError
		connectErr *domain.ConnectError
		discovery  *domain.DiscoveryError
	)
	switch {
	case errors.As(err, &notFound):
		status, title = http.StatusNotFound, "Not Found"
	case errors.As(err, &validation):
		status, title = http.StatusBadRequest, "Invalid Request"
	case errors.As(err, &connectErr), errors.As(err, &discovery):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		h.Logger.Error("ui request failed", "error", err)
	}
	renderHTML(w, status, errorPage(title, err.Error()))
}

func formatValue(v interface{}) string {
	s, ok := domain.CellString(v)
	if !ok {
		return "-"
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(f, 'f', 2, 64)
	}
	return s
}

func strOrDash(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}
