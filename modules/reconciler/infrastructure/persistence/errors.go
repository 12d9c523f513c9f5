package persistence

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE classes that indicate a race between concurrent workers rather
// than bad data: unique/foreign-key violations from a not-yet-committed
// competing insert, serialization failures, and deadlocks.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeSerializationFail   = "40001"
	codeDeadlockDetected    = "40P01"
)

// IsTransientConstraint reports whether err is a constraint or serialization
// failure worth retrying with backoff.
func IsTransientConstraint(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeUniqueViolation, codeForeignKeyViolation, codeSerializationFail, codeDeadlockDetected:
		return true
	}
	return false
}

// ConstraintName extracts the violated constraint's name, if err carries one.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
