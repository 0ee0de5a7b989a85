package migrate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultVersionTable is the schema-version table name used when the
// operator configures nothing else.
const DefaultVersionTable = "schema_version"

// Postgres server error codes the store classifies.
const (
	pgUndefinedTable    = "42P01"
	pgInvalidSchemaName = "3F000"
)

// versionTablePattern accepts a plain or schema-qualified identifier.
// The table name comes from the operator-controlled configuration
// surface only, and is validated before ever being interpolated.
var versionTablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidateVersionTable rejects identifiers the store will not
// interpolate into SQL.
func ValidateVersionTable(name string) error {
	if !versionTablePattern.MatchString(name) {
		return fmt.Errorf("invalid schema version table name: '%s'", name)
	}
	return nil
}

// Querier is the subset of a pgx connection or transaction the store
// and engine need. One logical connection is threaded explicitly
// through a whole run so the advisory lock and transaction scope span
// the entire coordinated operation; callers must not share it across
// concurrent runs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// VersionStore reads and appends rows of the schema-version table.
// History is append-only: the current version is always derived from
// the row with the newest applied_at.
type VersionStore struct {
	Table string
}

// NewVersionStore builds a store over the given (optionally
// schema-qualified) table, defaulting to schema_version.
func NewVersionStore(table string) VersionStore {
	if table == "" {
		table = DefaultVersionTable
	}
	return VersionStore{Table: table}
}

// Current returns the most recently applied version. A missing table
// means no version has been applied yet, which is not an error. Rows
// committed in one transaction share now(), so ties on applied_at are
// normal; the newest row wins and ties resolve to the highest version.
func (s VersionStore) Current(ctx context.Context, q Querier) (int, bool, error) {
	query := fmt.Sprintf(
		"SELECT version FROM %s ORDER BY applied_at DESC, version DESC LIMIT 1",
		s.Table,
	)
	var version int
	err := pgxscan.Get(ctx, q, &version, query)
	switch {
	case err == nil:
		return version, true, nil
	case pgxscan.NotFound(err) || errors.Is(err, pgx.ErrNoRows):
		return 0, false, nil
	case isPgErr(err, pgUndefinedTable):
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("get current schema version: %w", err)
	}
}

// Record appends one version row, creating the version table and its
// indexes on first use. Table creation runs in a nested transaction
// scope so the expected "schema missing" condition cannot abort a
// surrounding migration transaction; when the configured name is
// schema-qualified and the schema does not exist, the schema is created
// and table creation retried.
func (s VersionStore) Record(ctx context.Context, q Querier, version int) error {
	if err := s.ensureTable(ctx, q); err != nil {
		return err
	}

	query, args, err := squirrel.Insert(s.Table).
		Columns("version").
		Values(version).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("build version insert: %w", err)
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("record schema version %d: %w", version, err)
	}
	return nil
}

func (s VersionStore) ensureTable(ctx context.Context, q Querier) error {
	ddl := s.tableDDL()

	nested, err := q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin version table scope: %w", err)
	}
	if _, err = nested.Exec(ctx, ddl); err == nil {
		if err := nested.Commit(ctx); err != nil {
			return fmt.Errorf("commit version table scope: %w", err)
		}
		return nil
	}
	if rbErr := nested.Rollback(ctx); rbErr != nil {
		return errors.Join(fmt.Errorf("rollback version table scope: %w", rbErr), err)
	}
	if !isPgErr(err, pgInvalidSchemaName) {
		return fmt.Errorf("create version table %s: %w", s.Table, err)
	}

	schema, _, _ := strings.Cut(s.Table, ".")
	if _, err := q.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	if _, err := q.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create version table %s: %w", s.Table, err)
	}
	return nil
}

func (s VersionStore) tableDDL() string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    version integer,
    applied_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %[2]s_version_idx ON %[1]s (version);
CREATE INDEX IF NOT EXISTS %[2]s_applied_at_idx ON %[1]s (applied_at);`,
		s.Table, s.indexPrefix())
}

// indexPrefix strips the schema qualifier; index names live inside the
// table's schema already.
func (s VersionStore) indexPrefix() string {
	if _, table, ok := strings.Cut(s.Table, "."); ok {
		return table
	}
	return s.Table
}

func isPgErr(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
