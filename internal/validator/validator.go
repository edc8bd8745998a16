// Package validator runs every configured check for a development branch and
// merges the results into one result set.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"branchcheck/internal/bucket"
	"branchcheck/internal/domain"
	"branchcheck/internal/params"
)

// CheckFinder returns the catalog rows that apply to a production table.
// Implemented by catalog.Catalog.
type CheckFinder interface {
	FindChecks(productionBucket, fullTableID string) []domain.CheckDefinition
}

// Renderer renders a named check. Implemented by checks.Registry.
type Renderer interface {
	Render(name string, subs map[string]string) (string, error)
}

// BucketResolver discovers a branch's buckets and tables. Implemented by bucket.Resolver.
type BucketResolver interface {
	params.BucketChecker
	BucketsForBranch(ctx context.Context, branch string) ([]domain.Bucket, error)
	TablesForBucket(ctx context.Context, bucketID string) ([]domain.Table, error)
}

// Option configures a Validator.
type Option func(*Validator)

// WithRequiredColumns overrides the column list every check result must match.
func WithRequiredColumns(cols []string) Option {
	return func(v *Validator) {
		if len(cols) > 0 {
			v.columns = append([]string(nil), cols...)
		}
	}
}

// WithLogger sets the logger skip reasons are reported on.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// Validator coordinates one validation run: discover, match, render, execute, merge.
type Validator struct {
	warehouse domain.Warehouse
	buckets   BucketResolver
	catalog   CheckFinder
	registry  Renderer
	params    *params.Resolver
	columns   []string
	logger    *slog.Logger
}

// New creates a Validator.
func New(warehouse domain.Warehouse, buckets BucketResolver, catalog CheckFinder, registry Renderer, opts ...Option) *Validator {
	v := &Validator{
		warehouse: warehouse,
		buckets:   buckets,
		catalog:   catalog,
		registry:  registry,
		columns:   append([]string(nil), domain.ResultColumns...),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.params = params.NewResolver(buckets, v.logger)
	return v
}

// Columns returns the required result columns.
func (v *Validator) Columns() []string { return append([]string(nil), v.columns...) }

// Run validates branch. It returns a possibly empty result set, or a
// ConnectError or DiscoveryError. Failures of single buckets or checks are
// logged and skipped. The warehouse is disconnected on every return path.
func (v *Validator) Run(ctx context.Context, branch string) (result *domain.ResultSet, err error) {
	if branch == "" {
		return nil, domain.ErrValidation("branch id is required")
	}

	start := time.Now()
	log := v.logger.With("branch", branch)

	if err := v.warehouse.Connect(ctx); err != nil {
		_ = v.warehouse.Disconnect()
		return nil, &domain.ConnectError{Err: err}
	}
	defer func() {
		if derr := v.warehouse.Disconnect(); derr != nil {
			log.Error("warehouse disconnect failed", "error", derr)
			if err == nil {
				result, err = nil, &domain.ConnectError{Err: derr}
			}
		}
	}()

	buckets, err := v.buckets.BucketsForBranch(ctx, branch)
	if err != nil {
		return nil, &domain.DiscoveryError{Branch: branch, Err: err}
	}

	rs := domain.NewResultSet(v.columns)
	if len(buckets) == 0 {
		log.Warn("no development buckets found")
		return rs, nil
	}

	for _, b := range buckets {
		tables, err := v.buckets.TablesForBucket(ctx, b.ID)
		if err != nil {
			log.Error("skipping bucket: cannot list tables", "bucket", b.ID, "error", err)
			continue
		}
		if len(tables) == 0 {
			log.Info("no tables in bucket", "bucket", b.ID)
			continue
		}
		for _, t := range tables {
			block := v.processTable(ctx, log, branch, b.ID, t)
			if block == nil {
				continue
			}
			if err := rs.Append(block); err != nil {
				log.Error("skipping table result", "bucket", b.ID, "table", t.ID, "error", err)
			}
		}
	}

	if rs.Len() == 0 {
		log.Warn("no test results found")
	}
	log.Info("validation run finished", "rows", rs.Len(), "duration", time.Since(start))
	return rs, nil
}

// processTable runs every matching check for one table. It returns nil when
// no check produced a result.
func (v *Validator) processTable(ctx context.Context, log *slog.Logger, branch, devBucket string, t domain.Table) *domain.QueryResult {
	tableID := t.ID
	if tableID == "" {
		tableID = devBucket + "." + t.Name
	}

	prodBucket, err := bucket.ResolveProductionBucket(devBucket, branch)
	if err != nil {
		log.Error("skipping table", "bucket", devBucket, "table", tableID, "error", err)
		return nil
	}

	defs := v.catalog.FindChecks(prodBucket, tableID)
	if len(defs) == 0 {
		log.Debug("no checks configured", "bucket", prodBucket, "table", tableID)
		return nil
	}

	target := params.Target{Branch: branch, DevBucket: devBucket, ProdBucket: prodBucket, TableID: tableID}
	var block *domain.QueryResult
	for _, def := range defs {
		res, err := v.runCheck(ctx, def, target)
		if err != nil {
			log.Error("check failed", "bucket", devBucket, "table", tableID, "check", def.TestName, "error", err)
			continue
		}
		if res.RowCount == 0 {
			continue
		}
		if block == nil {
			block = &domain.QueryResult{Columns: v.Columns()}
		}
		block.Rows = append(block.Rows, res.Rows...)
		block.RowCount += res.RowCount
	}
	return block
}

func (v *Validator) runCheck(ctx context.Context, def domain.CheckDefinition, target params.Target) (*domain.QueryResult, error) {
	inst, err := v.params.Resolve(ctx, def, target)
	if err != nil {
		return nil, fmt.Errorf("resolve parameters: %w", err)
	}
	query, err := v.registry.Render(def.TestName, inst.Substitutions)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	v.logger.Debug("executing check", "check", def.TestName, "table", target.TableID, "sql", query)

	res, err := v.warehouse.Execute(ctx, query)
	if err != nil {
		return nil, err
	}
	if !res.HasColumns(v.columns) {
		return nil, fmt.Errorf("result columns %v do not match required columns %v", res.Columns, v.columns)
	}
	return res, nil
}
