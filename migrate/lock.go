package migrate

import (
	"context"
	"fmt"
	"hash/fnv"
)

// pgLockNotAvailable is raised when lock_timeout expires while waiting
// on pg_advisory_lock.
const pgLockNotAvailable = "55P03"

// MigrationLockKey is the session advisory lock key all instances of
// the tool contend on. It is the FNV-64a hash of a fixed string, so
// every build computes the same key.
var MigrationLockKey = func() int64 {
	h := fnv.New64a()
	h.Write([]byte("pgward.migration_lock"))
	return int64(h.Sum64())
}()

// AcquireMigrationLock takes the session advisory lock on conn, waiting
// at most timeoutMS milliseconds. A timeout of zero waits forever. The
// lock is tied to conn's session; callers must release it on the same
// connection.
func AcquireMigrationLock(ctx context.Context, conn Querier, timeoutMS int) error {
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET lock_timeout = %d", timeoutMS)); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", MigrationLockKey); err != nil {
		if isPgErr(err, pgLockNotAvailable) {
			return NewError(KindLockTimeout, "migration lock not acquired within %dms", timeoutMS)
		}
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	// The timeout bounds only the advisory lock wait. Left in place it
	// would apply to every later statement on this session, aborting
	// migration DDL blocked behind an ordinary table lock.
	if _, err := conn.Exec(ctx, "SET lock_timeout = DEFAULT"); err != nil {
		return fmt.Errorf("reset lock_timeout: %w", err)
	}
	return nil
}

// ReleaseMigrationLock releases the session advisory lock on conn.
func ReleaseMigrationLock(ctx context.Context, conn Querier) error {
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", MigrationLockKey); err != nil {
		return fmt.Errorf("release migration lock: %w", err)
	}
	return nil
}
