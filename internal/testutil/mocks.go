// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"

	"branchcheck/internal/domain"
)

// === Storage Catalog Mock ===

// MockStorageCatalog implements domain.StorageCatalog for testing.
type MockStorageCatalog struct {
	ListBranchesFn func(ctx context.Context) ([]domain.Branch, error)
	ListBucketsFn  func(ctx context.Context) ([]domain.Bucket, error)
	ListTablesFn   func(ctx context.Context, bucketID string) ([]domain.Table, error)

	ListBucketsCalls int
}

// ListBranches implements the interface method for testing.
func (m *MockStorageCatalog) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	if m.ListBranchesFn != nil {
		return m.ListBranchesFn(ctx)
	}
	panic("unexpected call to MockStorageCatalog.ListBranches")
}

// ListBuckets implements the interface method for testing.
func (m *MockStorageCatalog) ListBuckets(ctx context.Context) ([]domain.Bucket, error) {
	m.ListBucketsCalls++
	if m.ListBucketsFn != nil {
		return m.ListBucketsFn(ctx)
	}
	panic("unexpected call to MockStorageCatalog.ListBuckets")
}

// ListTables implements the interface method for testing.
func (m *MockStorageCatalog) ListTables(ctx context.Context, bucketID string) ([]domain.Table, error) {
	if m.ListTablesFn != nil {
		return m.ListTablesFn(ctx, bucketID)
	}
	panic("unexpected call to MockStorageCatalog.ListTables")
}

// StaticStorage returns a MockStorageCatalog serving fixed buckets and tables.
// Table ids are "<bucket>.<name>".
func StaticStorage(tables map[string][]string, bucketIDs ...string) *MockStorageCatalog {
	return &MockStorageCatalog{
		ListBucketsFn: func(_ context.Context) ([]domain.Bucket, error) {
			out := make([]domain.Bucket, 0, len(bucketIDs))
			for _, id := range bucketIDs {
				out = append(out, domain.Bucket{ID: id})
			}
			return out, nil
		},
		ListTablesFn: func(_ context.Context, bucketID string) ([]domain.Table, error) {
			var out []domain.Table
			for _, name := range tables[bucketID] {
				out = append(out, domain.Table{ID: bucketID + "." + name, Name: name, BucketID: bucketID})
			}
			return out, nil
		},
	}
}

// === Warehouse Mock ===

// MockWarehouse implements domain.Warehouse for testing.
type MockWarehouse struct {
	ConnectFn    func(ctx context.Context) error
	ExecuteFn    func(ctx context.Context, query string, args ...interface{}) (*domain.QueryResult, error)
	DisconnectFn func() error

	ConnectCalls    int
	DisconnectCalls int
	Queries         []string // executed queries, in order
}

// Connect implements the interface method for testing.
func (m *MockWarehouse) Connect(ctx context.Context) error {
	m.ConnectCalls++
	if m.ConnectFn != nil {
		return m.ConnectFn(ctx)
	}
	return nil
}

// Execute implements the interface method for testing.
func (m *MockWarehouse) Execute(ctx context.Context, query string, args ...interface{}) (*domain.QueryResult, error) {
	m.Queries = append(m.Queries, query)
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, query, args...)
	}
	panic("unexpected call to MockWarehouse.Execute")
}

// Disconnect implements the interface method for testing.
func (m *MockWarehouse) Disconnect() error {
	m.DisconnectCalls++
	if m.DisconnectFn != nil {
		return m.DisconnectFn()
	}
	return nil
}

// === Run Repository Mock ===

// MockRunRepo implements domain.RunRepository for testing.
type MockRunRepo struct {
	CreateFn        func(ctx context.Context, run *domain.RunRecord) error
	FinishFn        func(ctx context.Context, run *domain.RunRecord) error
	InsertResultsFn func(ctx context.Context, runID string, rows []domain.ResultRow) error
	ListFn          func(ctx context.Context, branchID string, limit int) ([]domain.RunRecord, error)
	GetFn           func(ctx context.Context, id string) (*domain.RunRecord, error)
	ListResultsFn   func(ctx context.Context, runID string) ([]domain.ResultRow, error)
}

// Create implements the interface method for testing.
func (m *MockRunRepo) Create(ctx context.Context, run *domain.RunRecord) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, run)
	}
	panic("unexpected call to MockRunRepo.Create")
}

// Finish implements the interface method for testing.
func (m *MockRunRepo) Finish(ctx context.Context, run *domain.RunRecord) error {
	if m.FinishFn != nil {
		return m.FinishFn(ctx, run)
	}
	panic("unexpected call to MockRunRepo.Finish")
}

// InsertResults implements the interface method for testing.
func (m *MockRunRepo) InsertResults(ctx context.Context, runID string, rows []domain.ResultRow) error {
	if m.InsertResultsFn != nil {
		return m.InsertResultsFn(ctx, runID, rows)
	}
	panic("unexpected call to MockRunRepo.InsertResults")
}

// List implements the interface method for testing.
func (m *MockRunRepo) List(ctx context.Context, branchID string, limit int) ([]domain.RunRecord, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, branchID, limit)
	}
	panic("unexpected call to MockRunRepo.List")
}

// Get implements the interface method for testing.
func (m *MockRunRepo) Get(ctx context.Context, id string) (*domain.RunRecord, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, id)
	}
	panic("unexpected call to MockRunRepo.Get")
}

// ListResults implements the interface method for testing.
func (m *MockRunRepo) ListResults(ctx context.Context, runID string) ([]domain.ResultRow, error) {
	if m.ListResultsFn != nil {
		return m.ListResultsFn(ctx, runID)
	}
	panic("unexpected call to MockRunRepo.ListResults")
}

// === Run Service Mock ===

// MockRunService implements the run entry point used by the API and UI.
type MockRunService struct {
	RunFn  func(ctx context.Context, branch string) (*domain.RunRecord, *domain.ResultSet, error)
	ListFn func(ctx context.Context, branch string, limit int) ([]domain.RunRecord, error)
	GetFn  func(ctx context.Context, id string) (*domain.RunRecord, *domain.ResultSet, error)
}

// Run implements the interface method for testing.
func (m *MockRunService) Run(ctx context.Context, branch string) (*domain.RunRecord, *domain.ResultSet, error) {
	if m.RunFn != nil {
		return m.RunFn(ctx, branch)
	}
	panic("unexpected call to MockRunService.Run")
}

// List implements the interface method for testing.
func (m *MockRunService) List(ctx context.Context, branch string, limit int) ([]domain.RunRecord, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, branch, limit)
	}
	panic("unexpected call to MockRunService.List")
}

// Get implements the interface method for testing.
func (m *MockRunService) Get(ctx context.Context, id string) (*domain.RunRecord, *domain.ResultSet, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, id)
	}
	panic("unexpected call to MockRunService.Get")
}
