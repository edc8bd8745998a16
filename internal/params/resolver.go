// Package params builds the substitution map a check template is rendered
// with: quoted table references, dual-rendered parameters, and the resolved
// upstream source reference.
package params

import (
	"context"
	"fmt"
	"log/slog"

	"branchcheck/internal/bucket"
	"branchcheck/internal/ddl"
	"branchcheck/internal/domain"
)

// Substitution keys.
const (
	KeyDevTable           = "dev_table"
	KeyProdTable          = "prod_table"
	KeyTableNameString    = "table_name_string"
	KeyBranchString       = "branch_string"
	KeySourceBucketObject = "source_bucket_object"
	KeySourceBucketString = "source_bucket_string"
	KeySourceTableObject  = "source_table_object"
	KeySourceTableString  = "source_table_string"
)

// BucketChecker answers whether a bucket exists. Implementations must return
// false rather than fail when existence cannot be determined.
type BucketChecker interface {
	BucketExists(ctx context.Context, bucketID string) bool
}

// Target is the concrete dev/prod table pair a check is bound to.
type Target struct {
	Branch     string
	DevBucket  string
	ProdBucket string
	TableID    string // full dev table id, "{bucket}.{table_name}"
}

// Instance is one check definition bound to one table pair, ready to render.
type Instance struct {
	Check         domain.CheckDefinition
	TableName     string
	SourceBucket  string // resolved source bucket, empty when the row declares none
	Substitutions map[string]string
}

// Resolver builds check instances.
type Resolver struct {
	buckets BucketChecker
	logger  *slog.Logger
}

// NewResolver creates a Resolver. buckets decides whether a branch-scoped
// copy of a source bucket exists.
func NewResolver(buckets BucketChecker, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{buckets: buckets, logger: logger}
}

// ParameterKeys returns the object and literal keys for parameter n (1-based).
func ParameterKeys(n int) (object, literal string) {
	return fmt.Sprintf("parameter_%d_object", n), fmt.Sprintf("parameter_%d_string", n)
}

// Resolve binds def to target. A missing or malformed required field fails
// with a FieldError naming it.
func (r *Resolver) Resolve(ctx context.Context, def domain.CheckDefinition, target Target) (*Instance, error) {
	if err := requireField("TEST_NAME", def.TestName); err != nil {
		return nil, err
	}
	if err := requireField("STORAGE_BUCKET_ID", def.StorageBucketID); err != nil {
		return nil, err
	}
	if err := requireField("STORAGE_TABLE_ID", def.StorageTableID); err != nil {
		return nil, err
	}

	tableName := domain.TableName(target.TableID)
	if err := checkName("table", tableName); err != nil {
		return nil, err
	}
	if err := checkName("dev bucket", target.DevBucket); err != nil {
		return nil, err
	}
	if err := checkName("prod bucket", target.ProdBucket); err != nil {
		return nil, err
	}

	subs := map[string]string{
		KeyDevTable:        ddl.QuoteQualified(target.DevBucket, tableName),
		KeyProdTable:       ddl.QuoteQualified(target.ProdBucket, tableName),
		KeyTableNameString: ddl.QuoteLiteral(tableName),
		KeyBranchString:    ddl.QuoteLiteral(target.Branch),
	}

	for i, p := range def.Parameters {
		field := fmt.Sprintf("PARAMETER_%d", i+1)
		obj, lit, err := dual(field, p)
		if err != nil {
			return nil, err
		}
		objKey, litKey := ParameterKeys(i + 1)
		subs[objKey], subs[litKey] = obj, lit
	}

	inst := &Instance{Check: def, TableName: tableName, Substitutions: subs}
	if err := r.resolveSource(ctx, def, target, inst); err != nil {
		return nil, err
	}

	for key, v := range def.Extras {
		obj, lit, err := dual(key, v)
		if err != nil {
			return nil, err
		}
		if _, taken := subs[key+"_object"]; !taken {
			subs[key+"_object"] = obj
		}
		if _, taken := subs[key+"_string"]; !taken {
			subs[key+"_string"] = lit
		}
	}
	return inst, nil
}

// resolveSource prefers the branch-scoped copy of the declared source bucket
// and falls back to the catalog's production source.
func (r *Resolver) resolveSource(ctx context.Context, def domain.CheckDefinition, target Target, inst *Instance) error {
	subs := inst.Substitutions
	subs[KeySourceBucketObject] = ddl.NullLiteral
	subs[KeySourceBucketString] = ddl.NullLiteral
	subs[KeySourceTableObject] = ddl.NullLiteral
	subs[KeySourceTableString] = ddl.NullLiteral

	if !def.SourceBucket.Present() {
		return nil
	}
	declared := def.SourceBucket.String()
	if err := checkName("SOURCE_BUCKET", declared); err != nil {
		return err
	}

	source := declared
	candidate := bucket.BranchScopedBucket(declared, target.Branch)
	if r.buckets != nil && r.buckets.BucketExists(ctx, candidate) {
		source = candidate
	}
	r.logger.Debug("resolved source bucket",
		"check", def.TestName, "declared", declared, "candidate", candidate, "resolved", source)

	inst.SourceBucket = source
	subs[KeySourceBucketObject] = ddl.QuoteIdentifier(source)
	subs[KeySourceBucketString] = ddl.QuoteLiteral(source)

	obj, lit, err := dual("SOURCE_TABLE", def.SourceTable)
	if err != nil {
		return err
	}
	subs[KeySourceTableObject], subs[KeySourceTableString] = obj, lit
	return nil
}

// dual renders a catalog value as a quoted object and a quoted literal, or
// NULL twice when the value is absent.
func dual(field string, v domain.CatalogValue) (string, string, error) {
	if !v.Present() {
		return ddl.NullLiteral, ddl.NullLiteral, nil
	}
	s := v.String()
	if err := checkName(field, s); err != nil {
		return "", "", err
	}
	return ddl.QuoteIdentifier(s), ddl.QuoteLiteral(s), nil
}

func requireField(field, value string) error {
	v := domain.CatalogValue(value)
	if !v.Present() {
		return domain.ErrField(field, "required value is missing")
	}
	return checkName(field, v.String())
}

func checkName(field, value string) error {
	if err := ddl.ValidateObjectName(value); err != nil {
		return domain.ErrField(field, "%v", err)
	}
	return nil
}
