package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"branchcheck/internal/domain"
)

func newStorageServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/storage/dev-branches", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 1191865, "name": "feature-orders"}, {"id": "42", "name": "hotfix"}]`))
	})
	mux.HandleFunc("/v2/storage/buckets", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": "out.c-main", "name": "main", "stage": "out"}, {"id": "out.c-1191865-main", "name": "1191865-main", "stage": "out"}]`))
	})
	mux.HandleFunc("/v2/storage/buckets/out.c-1191865-main/tables", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": "out.c-1191865-main.orders", "name": "orders", "bucket": {"id": "out.c-1191865-main"}}, {"id": "out.c-1191865-main.items"}]`))
	})
	mux.HandleFunc("/v2/storage/buckets/forbidden/tables", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Access denied"}`, http.StatusForbidden)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.Header.Get(TokenHeader) != "secret" {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &paths
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("https://connection.example.com/", "tok", ClientOptions{})
	assert.Equal(t, "https://connection.example.com", c.BaseURL)
	assert.Equal(t, 30*time.Second, c.HTTPClient.Timeout)
}

func TestClient_ListBranchesAcceptsNumericIDs(t *testing.T) {
	srv, _ := newStorageServer(t)
	c := NewClient(srv.URL, "secret", ClientOptions{})

	got, err := c.ListBranches(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Branch{
		{ID: "1191865", Name: "feature-orders"},
		{ID: "42", Name: "hotfix"},
	}, got)
}

func TestClient_ListBuckets(t *testing.T) {
	srv, _ := newStorageServer(t)
	c := NewClient(srv.URL, "secret", ClientOptions{})

	got, err := c.ListBuckets(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.Bucket{ID: "out.c-main", Name: "main", Stage: "out"}, got[0])
}

func TestClient_ListTables(t *testing.T) {
	srv, paths := newStorageServer(t)
	c := NewClient(srv.URL, "secret", ClientOptions{})

	got, err := c.ListTables(context.Background(), "out.c-1191865-main")
	require.NoError(t, err)
	assert.Equal(t, []domain.Table{
		{ID: "out.c-1191865-main.orders", Name: "orders", BucketID: "out.c-1191865-main"},
		{ID: "out.c-1191865-main.items", Name: "items", BucketID: "out.c-1191865-main"},
	}, got)
	assert.Equal(t, []string{"/v2/storage/buckets/out.c-1191865-main/tables"}, *paths)
}

func TestClient_ErrorStatusSurfaces(t *testing.T) {
	srv, _ := newStorageServer(t)

	_, err := NewClient(srv.URL, "wrong", ClientOptions{}).ListBuckets(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	_, err = NewClient(srv.URL, "secret", ClientOptions{}).ListTables(context.Background(), "forbidden")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Access denied")
}

func TestClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not": "a list"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL, "", ClientOptions{}).ListBuckets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode /v2/storage/buckets")
}

func TestClient_RateLimiterHonorsContext(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "", ClientOptions{RequestsPerSecond: 0.001, Burst: 1})
	_, err := c.ListBuckets(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ListBuckets(ctx)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
