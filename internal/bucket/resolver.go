// Package bucket maps development branches to their buckets and derives the
// production bucket each development bucket mirrors.
package bucket

import (
	"context"
	"log/slog"
	"strings"

	"branchcheck/internal/domain"
)

const (
	separator    = "-"
	defaultStage = "out"
	namePrefix   = "c-"
)

// ResolveProductionBucket removes the branch token and one adjoining
// separator from devBucket. The token is the first occurrence of branch
// followed by a separator, else a trailing "-<branch>", else the first
// occurrence anywhere. The separator after the token is preferred; the one
// before it is used when the token ends the id.
func ResolveProductionBucket(devBucket, branch string) (string, error) {
	idx := branchToken(devBucket, branch)
	if idx < 0 {
		return "", &domain.InvalidDevBucketError{Bucket: devBucket, Branch: branch}
	}

	prefix := devBucket[:idx]
	suffix := devBucket[idx+len(branch):]
	switch {
	case strings.HasPrefix(suffix, separator):
		suffix = suffix[len(separator):]
	case strings.HasSuffix(prefix, separator):
		prefix = prefix[:len(prefix)-len(separator)]
	}
	return prefix + suffix, nil
}

// branchToken returns the index of branch within id, or -1.
func branchToken(id, branch string) int {
	if branch == "" {
		return -1
	}
	if i := strings.Index(id, branch+separator); i >= 0 {
		return i
	}
	if strings.HasSuffix(id, separator+branch) {
		return len(id) - len(branch)
	}
	return strings.Index(id, branch)
}

// BranchScopedBucket returns the id the branch's copy of sourceBucket would
// have: "<stage>.c-<branch>-<name>", where stage is the segment before the
// first dot and name the segment after the last one, without its "c-" prefix.
func BranchScopedBucket(sourceBucket, branch string) string {
	stage := defaultStage
	name := sourceBucket
	if i := strings.IndexByte(sourceBucket, '.'); i > 0 {
		stage = sourceBucket[:i]
	}
	if i := strings.LastIndexByte(sourceBucket, '.'); i >= 0 {
		name = sourceBucket[i+1:]
	}
	name = strings.TrimPrefix(name, namePrefix)
	return stage + "." + namePrefix + branch + separator + name
}

// Resolver answers bucket questions against a storage catalog.
type Resolver struct {
	storage domain.StorageCatalog
	logger  *slog.Logger
}

// NewResolver creates a Resolver backed by storage.
func NewResolver(storage domain.StorageCatalog, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{storage: storage, logger: logger}
}

// BucketsForBranch returns every bucket whose id contains branch. An empty
// result means the branch has no data yet.
func (r *Resolver) BucketsForBranch(ctx context.Context, branch string) ([]domain.Bucket, error) {
	buckets, err := r.storage.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Bucket
	for _, b := range buckets {
		if branch != "" && strings.Contains(b.ID, branch) {
			out = append(out, b)
		}
	}
	r.logger.Debug("buckets for branch", "branch", branch, "count", len(out))
	return out, nil
}

// TablesForBucket lists the tables in bucketID.
func (r *Resolver) TablesForBucket(ctx context.Context, bucketID string) ([]domain.Table, error) {
	return r.storage.ListTables(ctx, bucketID)
}

// BucketExists reports whether bucketID is in the catalog listing. A listing
// failure is logged and reported as false; source resolution relies on this
// to fall back to the production bucket.
func (r *Resolver) BucketExists(ctx context.Context, bucketID string) bool {
	buckets, err := r.storage.ListBuckets(ctx)
	if err != nil {
		r.logger.Warn("bucket existence check failed", "bucket", bucketID, "error", err)
		return false
	}
	for _, b := range buckets {
		if b.ID == bucketID {
			return true
		}
	}
	return false
}

// ProductionBucketExists resolves devBucket's production id and checks that it exists.
func (r *Resolver) ProductionBucketExists(ctx context.Context, devBucket, branch string) bool {
	prod, err := ResolveProductionBucket(devBucket, branch)
	if err != nil {
		r.logger.Warn("cannot resolve production bucket", "bucket", devBucket, "branch", branch, "error", err)
		return false
	}
	return r.BucketExists(ctx, prod)
}
