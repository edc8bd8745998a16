package domain

import "context"

// StorageCatalog lists branches, buckets, and tables. Transport and auth
// failures surface as errors; callers do not retry.
type StorageCatalog interface {
	ListBranches(ctx context.Context) ([]Branch, error)
	ListBuckets(ctx context.Context) ([]Bucket, error)
	ListTables(ctx context.Context, bucketID string) ([]Table, error)
}

// Warehouse executes rendered checks over one connection held between
// Connect and Disconnect.
// Implemented by engine.Warehouse.
type Warehouse interface {
	Connect(ctx context.Context) error
	Execute(ctx context.Context, query string, args ...interface{}) (*QueryResult, error)
	Disconnect() error
}

// RunRepository persists validation runs and their result rows.
// Implemented by repository.RunRepo.
type RunRepository interface {
	Create(ctx context.Context, run *RunRecord) error
	Finish(ctx context.Context, run *RunRecord) error
	InsertResults(ctx context.Context, runID string, rows []ResultRow) error
	List(ctx context.Context, branchID string, limit int) ([]RunRecord, error)
	Get(ctx context.Context, id string) (*RunRecord, error)
	ListResults(ctx context.Context, runID string) ([]ResultRow, error)
}
