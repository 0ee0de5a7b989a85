package migrate

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// revokeConnect blocks new connections to the current database for the
// given roles. The DO block resolves the database name server-side, so
// the statement needs no client-side identifier handling beyond the
// role list.
func revokeConnect(ctx context.Context, conn Querier, roles []string) error {
	if len(roles) == 0 {
		return nil
	}
	stmt := fmt.Sprintf(`DO $$
BEGIN
    EXECUTE FORMAT('REVOKE CONNECT ON DATABASE %%I FROM %s', CURRENT_DATABASE());
END
$$`, quoteRoles(roles))
	if _, err := conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("revoke connect from %v: %w", roles, err)
	}
	return nil
}

// grantConnect restores connection rights for the given roles.
func grantConnect(ctx context.Context, conn Querier, roles []string) error {
	if len(roles) == 0 {
		return nil
	}
	stmt := fmt.Sprintf(`DO $$
BEGIN
    EXECUTE FORMAT('GRANT CONNECT ON DATABASE %%I TO %s', CURRENT_DATABASE());
END
$$`, quoteRoles(roles))
	if _, err := conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("grant connect to %v: %w", roles, err)
	}
	return nil
}

func quoteRoles(roles []string) string {
	var quoted string
	for i, role := range roles {
		if i > 0 {
			quoted += ", "
		}
		quoted += pgx.Identifier{role}.Sanitize()
	}
	return quoted
}

// activeSessionsExist reports whether any of the given roles still hold
// a session against the current database, excluding the caller's own
// backend.
func activeSessionsExist(ctx context.Context, conn Querier, roles []string) (bool, error) {
	rows, err := conn.Query(ctx, `
SELECT 1 FROM pg_stat_activity
WHERE datname = CURRENT_DATABASE()
  AND usename = ANY($1)
  AND pid <> pg_backend_pid()
LIMIT 1`, roles)
	if err != nil {
		return false, fmt.Errorf("check active sessions: %w", err)
	}
	defer rows.Close()
	exists := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("check active sessions: %w", err)
	}
	return exists, nil
}

// forceCloseSessions terminates the remaining sessions held by the
// given roles, giving each backend timeoutMS milliseconds to exit
// cleanly.
func forceCloseSessions(ctx context.Context, conn Querier, roles []string, timeoutMS int) error {
	_, err := conn.Exec(ctx, `
SELECT pg_terminate_backend(pid, $2) FROM pg_stat_activity
WHERE datname = CURRENT_DATABASE()
  AND usename = ANY($1)
  AND pid <> pg_backend_pid()`, roles, timeoutMS)
	if err != nil {
		return fmt.Errorf("terminate sessions: %w", err)
	}
	return nil
}
