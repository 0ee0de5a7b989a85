// Package pgdb holds the connection and database-lifecycle helpers
// shared by the commands and the verifier. Connection settings come
// from the standard libpq environment (PGHOST, PGUSER, PGDATABASE and
// friends); callers override only the database name.
package pgdb

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MaintenanceDatabase is the database used for create/drop statements,
// which cannot run against the database they operate on.
const MaintenanceDatabase = "postgres"

const pgDuplicateDatabase = "42P04"

// Connect opens one connection using the libpq environment. A non-empty
// database overrides PGDATABASE.
func Connect(ctx context.Context, database string) (*pgx.Conn, error) {
	cfg, err := pgx.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("parse connection config: %w", err)
	}
	if database != "" {
		cfg.Database = database
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return conn, nil
}

// ConnectMaintenance opens a connection to the maintenance database.
func ConnectMaintenance(ctx context.Context) (*pgx.Conn, error) {
	return Connect(ctx, MaintenanceDatabase)
}

// CreateDatabase creates name via a maintenance connection.
func CreateDatabase(ctx context.Context, name string) error {
	conn, err := ConnectMaintenance(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	stmt := fmt.Sprintf("CREATE DATABASE %s", pgx.Identifier{name}.Sanitize())
	if _, err := conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}

// DropDatabase drops name via a maintenance connection. A missing
// database is not an error.
func DropDatabase(ctx context.Context, name string) error {
	conn, err := ConnectMaintenance(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	stmt := fmt.Sprintf("DROP DATABASE IF EXISTS %s", pgx.Identifier{name}.Sanitize())
	if _, err := conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("drop database %s: %w", name, err)
	}
	return nil
}

// IsDuplicateDatabase reports whether err is the server's
// duplicate_database error.
func IsDuplicateDatabase(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgDuplicateDatabase
}

// RandomName returns a short random database name with the given
// prefix, for throwaway databases.
func RandomName(prefix string) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	suffix := make([]byte, 5)
	for i := range suffix {
		suffix[i] = letters[rand.IntN(len(letters))]
	}
	return prefix + string(suffix)
}
