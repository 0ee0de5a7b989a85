package migrate

import (
	"errors"
	"fmt"
)

// Kind classifies the expected, recoverable migration-domain failures.
// They are detected before the relevant transaction opens, so none of
// them can leave partial state behind.
type Kind int

const (
	// KindNoPath: the current version has no route through the graph.
	KindNoPath Kind = iota + 1
	// KindUnknownTarget: the target id has no known migration.
	KindUnknownTarget
	// KindMissingDown: a rollback chain member has no down script.
	KindMissingDown
	// KindOrphanedVersion: the current version's migration was removed
	// from the graph after being applied.
	KindOrphanedVersion
	// KindBaseRollback: the target sits below the base migration.
	KindBaseRollback
	// KindNoMigrations: the project has no migrations at all.
	KindNoMigrations
	// KindNoVersion: there is no applied version to roll back from.
	KindNoVersion
	// KindWrongDirection: the caller's direction constraint contradicts
	// the resolved move.
	KindWrongDirection
	// KindLockTimeout: the advisory lock was not acquired in time.
	KindLockTimeout
)

// Error is a tagged migration-domain error. The command boundary prints
// it as a single line and exits 1; everything else is treated as a
// programming or environment defect.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// NewError builds a tagged domain error.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// IsDomain reports whether err is (or wraps) a migration-domain error.
func IsDomain(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsDirection reports a caller-intent mismatch, distinct from the
// structural migration problems.
func IsDirection(err error) bool { return IsKind(err, KindWrongDirection) }

// IsLockTimeout reports an advisory-lock acquisition timeout.
func IsLockTimeout(err error) bool { return IsKind(err, KindLockTimeout) }
