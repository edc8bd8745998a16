// Package ddl quotes and validates the SQL object references and literals that
// are interpolated into rendered checks.
package ddl

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// NullLiteral is the unquoted SQL NULL emitted for absent values.
const NullLiteral = "NULL"

// identifierRe allows alphanumeric + underscores, starting with a letter or underscore.
var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// maxIdentifierLen is the maximum length allowed for a template key or check name.
const maxIdentifierLen = 128

// maxObjectNameLen is the maximum length allowed for a quoted bucket, table, or column name.
const maxObjectNameLen = 255

// ValidateIdentifier checks that name is a bare identifier:
//   - Non-empty
//   - At most 128 characters
//   - Matches [a-zA-Z_][a-zA-Z0-9_]*
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("name must be at most %d characters", maxIdentifierLen)
	}
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("name must match [a-zA-Z_][a-zA-Z0-9_]*")
	}
	return nil
}

// ValidateObjectName checks that name can be safely double-quoted as one
// object reference part. Storage bucket ids contain dots and dashes, so the
// allow-list is wider than ValidateIdentifier; control characters are rejected.
func ValidateObjectName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > maxObjectNameLen {
		return fmt.Errorf("name must be at most %d characters", maxObjectNameLen)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("name contains control character %U", r)
		}
	}
	return nil
}

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double-quote characters by doubling them (standard SQL).
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteQualified quotes each part and joins them with dots: "bucket"."table".
func QuoteQualified(parts ...string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = QuoteIdentifier(p)
	}
	return strings.Join(quoted, ".")
}

// QuoteLiteral wraps a string value in single quotes, escaping any
// embedded single-quote characters by doubling them (standard SQL).
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
