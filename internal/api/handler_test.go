package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"branchcheck/internal/checks"
	"branchcheck/internal/domain"
	"branchcheck/internal/middleware"
	"branchcheck/internal/testutil"
)

func sampleRun() (*domain.RunRecord, *domain.ResultSet) {
	na := "n/a"
	rec := &domain.RunRecord{ID: "run-1", BranchID: "42", Status: domain.RunStatusSuccess,
		StartedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), ResultCount: 1}
	rs := domain.ResultSetFromRows([]domain.ResultRow{{
		TableName: "orders", TestName: "check_row_count", SourceBucket: &na, SourceTable: &na,
		Parameter1: &na, Parameter2: &na, Parameter3: &na, Parameter4: &na,
		Environment: domain.EnvironmentDev, Value: int64(3),
	}})
	return rec, rs
}

func newServer(t *testing.T, storage domain.StorageCatalog, runs RunService) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHandler(storage, checks.NewDefaultRegistry(), runs, nil)
	srv := httptest.NewServer(NewRouter(ctx, h, RouterConfig{
		CORSAllowedOrigins: []string{"https://ui.example"},
		RateLimit:          middleware.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}))
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHTTPStatusFromDomainError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound("x"), http.StatusNotFound},
		{domain.ErrValidation("x"), http.StatusBadRequest},
		{domain.ErrUnknownCheck("x"), http.StatusBadRequest},
		{domain.ErrConflict("x"), http.StatusConflict},
		{&domain.ConnectError{Err: errors.New("x")}, http.StatusBadGateway},
		{&domain.DiscoveryError{Branch: "1", Err: errors.New("x")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpStatusFromDomainError(tt.err), tt.err.Error())
	}
}

func TestHealthz(t *testing.T) {
	srv := newServer(t, &testutil.MockStorageCatalog{}, &testutil.MockRunService{})
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
	_ = resp.Body.Close()
}

func TestListBranches(t *testing.T) {
	storage := &testutil.MockStorageCatalog{
		ListBranchesFn: func(context.Context) ([]domain.Branch, error) {
			return []domain.Branch{{ID: "42", Name: "feature"}}, nil
		},
	}
	srv := newServer(t, storage, &testutil.MockRunService{})

	resp, err := http.Get(srv.URL + "/v1/branches")
	require.NoError(t, err)
	var body struct {
		Branches []domain.Branch `json:"branches"`
	}
	decode(t, resp, &body)
	assert.Equal(t, []domain.Branch{{ID: "42", Name: "feature"}}, body.Branches)
}

func TestListBranches_UpstreamError(t *testing.T) {
	storage := &testutil.MockStorageCatalog{
		ListBranchesFn: func(context.Context) ([]domain.Branch, error) { return nil, errors.New("401") },
	}
	srv := newServer(t, storage, &testutil.MockRunService{})

	resp, err := http.Get(srv.URL + "/v1/branches")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body Error
	decode(t, resp, &body)
	assert.NotEmpty(t, body.RequestID)
}

func TestListChecks(t *testing.T) {
	srv := newServer(t, &testutil.MockStorageCatalog{}, &testutil.MockRunService{})

	resp, err := http.Get(srv.URL + "/v1/checks")
	require.NoError(t, err)
	var body struct {
		Checks []CheckSummary `json:"checks"`
	}
	decode(t, resp, &body)
	require.NotEmpty(t, body.Checks)
	byName := map[string][]string{}
	for _, c := range body.Checks {
		byName[c.Name] = c.Parameters
	}
	assert.Contains(t, byName["check_sum"], "parameter_1_object")
	assert.Contains(t, byName, "check_row_count")
}

func TestCreateRun(t *testing.T) {
	runs := &testutil.MockRunService{
		RunFn: func(_ context.Context, branch string) (*domain.RunRecord, *domain.ResultSet, error) {
			assert.Equal(t, "42", branch)
			rec, rs := sampleRun()
			return rec, rs, nil
		},
	}
	srv := newServer(t, &testutil.MockStorageCatalog{}, runs)

	resp, err := http.Post(srv.URL+"/v1/branches/42/runs", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var body RunResponse
	decode(t, resp, &body)
	assert.Equal(t, "run-1", body.Run.ID)
	assert.Equal(t, domain.ResultColumns, body.Columns)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "check_row_count", body.Results[0].TestName)
}

func TestCreateRun_FatalErrorCarriesRunID(t *testing.T) {
	runs := &testutil.MockRunService{
		RunFn: func(context.Context, string) (*domain.RunRecord, *domain.ResultSet, error) {
			return &domain.RunRecord{ID: "run-x", Status: domain.RunStatusFailed},
				nil, &domain.ConnectError{Err: errors.New("refused")}
		},
	}
	srv := newServer(t, &testutil.MockStorageCatalog{}, runs)

	resp, err := http.Post(srv.URL+"/v1/branches/42/runs", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var body Error
	decode(t, resp, &body)
	assert.Equal(t, "run-x", body.RunID)
	assert.Contains(t, body.Message, "refused")
}

func TestCreateRun_RateLimited(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	runs := &testutil.MockRunService{
		RunFn: func(context.Context, string) (*domain.RunRecord, *domain.ResultSet, error) {
			rec, rs := sampleRun()
			return rec, rs, nil
		},
	}
	h := NewRouter(ctx, NewHandler(&testutil.MockStorageCatalog{}, checks.NewDefaultRegistry(), runs, nil),
		RouterConfig{RateLimit: middleware.RateLimitConfig{RequestsPerSecond: 0.01, Burst: 1}})

	codes := []int{}
	for range 2 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/branches/42/runs", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusTooManyRequests}, codes)

	// Reads are not limited.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListRuns(t *testing.T) {
	runs := &testutil.MockRunService{
		ListFn: func(_ context.Context, branch string, limit int) ([]domain.RunRecord, error) {
			assert.Equal(t, "42", branch)
			assert.Equal(t, 5, limit)
			rec, _ := sampleRun()
			return []domain.RunRecord{*rec}, nil
		},
	}
	srv := newServer(t, &testutil.MockStorageCatalog{}, runs)

	resp, err := http.Get(srv.URL + "/v1/runs?branch=42&limit=5")
	require.NoError(t, err)
	var body struct {
		Runs []domain.RunRecord `json:"runs"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Runs, 1)

	resp, err = http.Get(srv.URL + "/v1/runs?limit=many")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestGetRun(t *testing.T) {
	runs := &testutil.MockRunService{
		GetFn: func(_ context.Context, id string) (*domain.RunRecord, *domain.ResultSet, error) {
			if id != "run-1" {
				return nil, nil, domain.ErrNotFound("run %q not found", id)
			}
			rec, rs := sampleRun()
			return rec, rs, nil
		},
	}
	srv := newServer(t, &testutil.MockStorageCatalog{}, runs)

	resp, err := http.Get(srv.URL + "/v1/runs/run-1")
	require.NoError(t, err)
	var body RunResponse
	decode(t, resp, &body)
	assert.Equal(t, "run-1", body.Run.ID)

	resp, err = http.Get(srv.URL + "/v1/runs/run-1?format=csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "run-1.csv")
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "TABLE_NAME,"))

	resp, err = http.Get(srv.URL + "/v1/runs/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestCORS(t *testing.T) {
	srv := newServer(t, &testutil.MockStorageCatalog{}, &testutil.MockRunService{})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/v1/runs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://ui.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "https://ui.example", resp.Header.Get("Access-Control-Allow-Origin"))
}
