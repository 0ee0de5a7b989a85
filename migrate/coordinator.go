package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// minDrainPollInterval is the floor for session-drain polling. Shorter
// intervals hammer pg_stat_activity without draining any faster.
const minDrainPollInterval = 100 * time.Millisecond

// ApplyConfig controls one coordinated migration run.
type ApplyConfig struct {
	// Target is the version to move to; nil means newest.
	Target *int
	// Direction constrains the resolved move.
	Direction Direction

	// UseLock wraps the run in the session advisory lock.
	UseLock bool
	// LockTimeout bounds the advisory lock wait; zero waits forever.
	LockTimeout time.Duration

	// RevokeConnectRoles are drained before the run and restored after.
	// Empty means no connection management at all.
	RevokeConnectRoles []string
	// DrainMaxPolls bounds the drain wait: nil polls until the sessions
	// are gone, a value of zero or less skips waiting entirely.
	DrainMaxPolls *int
	// DrainPollInterval is the pause between drain polls, coerced up to
	// 100ms.
	DrainPollInterval time.Duration
	// ForceCloseTimeout, when set, terminates sessions that have not
	// drained instead of failing, and bounds how long to wait for
	// silence afterward. Nil means a failed drain fails the run.
	ForceCloseTimeout *time.Duration
}

// DefaultApplyConfig returns the coordinator defaults: locked runs, a
// 30 second lock wait, and a ten-poll one-second drain with no force
// close.
func DefaultApplyConfig() ApplyConfig {
	polls := 10
	return ApplyConfig{
		Direction:         Up,
		UseLock:           true,
		LockTimeout:       30 * time.Second,
		DrainMaxPolls:     &polls,
		DrainPollInterval: time.Second,
	}
}

// Coordinator sequences the operational fence around a migration run:
// advisory lock, connection revocation, session drain, the engine run
// itself, and the guaranteed restore of connection rights.
type Coordinator struct {
	engine *Engine
	log    *slog.Logger
}

// NewCoordinator wraps an engine.
func NewCoordinator(engine *Engine) *Coordinator {
	return &Coordinator{engine: engine, log: engine.log}
}

// Apply runs one coordinated migration on conn. All phases share the
// single connection so the advisory lock session and the run itself
// cannot diverge. Connection rights revoked for cfg.RevokeConnectRoles
// are restored even when the run fails or ctx is canceled.
func (c *Coordinator) Apply(ctx context.Context, conn Querier, cfg ApplyConfig) error {
	if cfg.UseLock {
		timeoutMS := int(cfg.LockTimeout / time.Millisecond)
		if err := AcquireMigrationLock(ctx, conn, timeoutMS); err != nil {
			return err
		}
		defer func() {
			if err := ReleaseMigrationLock(context.WithoutCancel(ctx), conn); err != nil {
				c.log.Error("release migration lock", "error", err)
			}
		}()
	}

	if len(cfg.RevokeConnectRoles) > 0 {
		// Never disturb application connections for a run that has
		// nothing to do.
		done, err := c.upToDate(ctx, conn, cfg)
		if err != nil {
			return err
		}
		if done {
			c.log.Info("schema already at target version, nothing to apply")
			return nil
		}

		if err := revokeConnect(ctx, conn, cfg.RevokeConnectRoles); err != nil {
			return err
		}
		defer func() {
			// Restore rights even when the surrounding context is done.
			restore := context.WithoutCancel(ctx)
			if err := grantConnect(restore, conn, cfg.RevokeConnectRoles); err != nil {
				c.log.Error("restore connect rights", "roles", cfg.RevokeConnectRoles, "error", err)
			}
		}()

		if err := c.drainSessions(ctx, conn, cfg); err != nil {
			return err
		}
	}

	return c.engine.Migrate(ctx, conn, cfg.Target, cfg.Direction)
}

// upToDate reports whether the database already sits at the run's
// resolved target. Empty graphs and absent version rows fall through
// to the engine, which owns those error contracts.
func (c *Coordinator) upToDate(ctx context.Context, conn Querier, cfg ApplyConfig) (bool, error) {
	g := c.engine.Graph()
	if g.Len() == 0 {
		return false, nil
	}
	current, applied, err := c.engine.Store().Current(ctx, conn)
	if err != nil || !applied {
		return false, err
	}
	target := g.MaxID()
	if cfg.Target != nil {
		target = *cfg.Target
	}
	return current == target, nil
}

// drainSessions waits for the revoked roles' sessions to disappear,
// then either terminates stragglers or fails.
func (c *Coordinator) drainSessions(ctx context.Context, conn Querier, cfg ApplyConfig) error {
	drained, err := c.waitDrained(ctx, conn, cfg)
	if err != nil {
		return err
	}
	if drained {
		return nil
	}

	if cfg.ForceCloseTimeout == nil {
		return fmt.Errorf("sessions for roles %v did not drain", cfg.RevokeConnectRoles)
	}

	c.log.Warn("force closing remaining sessions", "roles", cfg.RevokeConnectRoles)
	timeoutMS := int(*cfg.ForceCloseTimeout / time.Millisecond)
	if err := forceCloseSessions(ctx, conn, cfg.RevokeConnectRoles, timeoutMS); err != nil {
		return err
	}

	// Termination is asynchronous; re-verify silence within the same
	// bound.
	verifyCtx, cancel := context.WithTimeout(ctx, *cfg.ForceCloseTimeout)
	defer cancel()
	for {
		active, err := activeSessionsExist(verifyCtx, conn, cfg.RevokeConnectRoles)
		if err != nil {
			return err
		}
		if !active {
			return nil
		}
		select {
		case <-verifyCtx.Done():
			return fmt.Errorf("sessions for roles %v survived force close", cfg.RevokeConnectRoles)
		case <-time.After(minDrainPollInterval):
		}
	}
}

// waitDrained polls until the roles hold no sessions or the poll bound
// is hit, reporting whether the database went quiet.
func (c *Coordinator) waitDrained(ctx context.Context, conn Querier, cfg ApplyConfig) (bool, error) {
	if cfg.DrainMaxPolls != nil && *cfg.DrainMaxPolls <= 0 {
		active, err := activeSessionsExist(ctx, conn, cfg.RevokeConnectRoles)
		return !active, err
	}

	interval := cfg.DrainPollInterval
	if interval < minDrainPollInterval {
		interval = minDrainPollInterval
	}

	for poll := 0; ; poll++ {
		active, err := activeSessionsExist(ctx, conn, cfg.RevokeConnectRoles)
		if err != nil {
			return false, err
		}
		if !active {
			return true, nil
		}
		if cfg.DrainMaxPolls != nil && poll+1 >= *cfg.DrainMaxPolls {
			return false, nil
		}
		c.log.Info("waiting for sessions to drain", "roles", cfg.RevokeConnectRoles, "poll", poll+1)
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(interval):
		}
	}
}
