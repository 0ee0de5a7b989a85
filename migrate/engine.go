package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Direction constrains which way a run may move. A resolved move that
// contradicts the constraint fails with a direction error before
// anything executes.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Engine is the forward/backward state machine. States are identified
// by the current version integer; "no version record" is the sentinel
// state one below the base migration's id.
type Engine struct {
	graph *Graph
	store VersionStore
	log   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger replaces the engine's logger.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// NewEngine builds an engine over a loaded graph and version store.
func NewEngine(graph *Graph, store VersionStore, opts ...EngineOption) *Engine {
	e := &Engine{graph: graph, store: store, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Graph returns the engine's migration graph.
func (e *Engine) Graph() *Graph { return e.graph }

// Store returns the engine's version store.
func (e *Engine) Store() VersionStore { return e.store }

// Migrate moves the database behind conn to target, or to the newest
// known migration when target is nil. Each step's script and version
// row are committed in one transaction, so a crash mid-run leaves the
// stored version consistent with exactly the schema state reached.
// Migrating to the current version is a side-effect-free no-op.
func (e *Engine) Migrate(ctx context.Context, conn Querier, target *int, direction Direction) error {
	if e.graph.Len() == 0 {
		return NewError(KindNoMigrations, "no migrations exist, there is nothing to apply")
	}

	current, applied, err := e.store.Current(ctx, conn)
	if err != nil {
		return err
	}
	if !applied {
		current = e.graph.MinID() - 1
	}

	if target == nil {
		newest := e.graph.MaxID()
		if current > newest {
			// An unset target never rolls back.
			e.log.Warn("current schema version greater than all migrations", "current", current)
			return nil
		}
		target = &newest
	}

	if current == *target {
		return nil
	}

	if _, known := e.graph.ByID(*target); !known {
		if *target == e.graph.MinID()-1 {
			return NewError(KindBaseRollback,
				"unsupported rollback of base migration: no migration exists below version %d", e.graph.MinID())
		}
		return NewError(KindUnknownTarget, "target migration ID '%d' has no known migration", *target)
	}

	if current < *target {
		if direction == Down {
			return NewError(KindWrongDirection,
				"direction is down but moving from version %d to %d migrates up", current, *target)
		}
		return e.applyForward(ctx, conn, current, *target)
	}

	if direction == Up {
		return NewError(KindWrongDirection,
			"direction is up but moving from version %d to %d rolls back", current, *target)
	}
	chain, err := e.rollbackChain(current, *target)
	if err != nil {
		return err
	}
	return e.applyRollback(ctx, conn, chain, *target)
}

func (e *Engine) applyForward(ctx context.Context, conn Querier, current, target int) error {
	next, err := e.graph.NextAfter(current)
	if err != nil {
		return err
	}
	for next != nil && next.ID <= target {
		if err := e.applyStep(ctx, conn, next.Up, next.ID); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", next.ID, next.Name, err)
		}
		e.log.Info("applied migration", "id", next.ID, "name", next.Name)
		next, _ = e.graph.Child(next)
	}
	return nil
}

// rollbackChain collects the migrations to undo, newest first, when
// moving from current down to target. Every member must have a down
// script; the check happens before any step executes, so a blocked
// rollback never runs a partial chain.
func (e *Engine) rollbackChain(current, target int) ([]*Migration, error) {
	m, ok := e.graph.ByID(current)
	if !ok {
		return nil, NewError(KindOrphanedVersion,
			"schema version '%d' does not have associated migration", current)
	}

	var chain []*Migration
	for m != nil && m.ID > target {
		if m.Down == nil {
			return nil, NewError(KindMissingDown,
				"cannot rollback from version %d to %d: one or more migrations do not have down files",
				current, target)
		}
		chain = append(chain, m)
		m, _ = e.graph.Parent(m)
	}
	return chain, nil
}

func (e *Engine) applyRollback(ctx context.Context, conn Querier, chain []*Migration, target int) error {
	for _, m := range chain {
		// The version recorded after undoing m is the version the
		// schema is actually at: m's parent.
		to := target
		if parent, ok := e.graph.Parent(m); ok {
			to = parent.ID
		}
		if err := e.applyStep(ctx, conn, *m.Down, to); err != nil {
			return fmt.Errorf("roll back migration %d (%s): %w", m.ID, m.Name, err)
		}
		e.log.Info("rolled back migration", "id", m.ID, "name", m.Name, "version", to)
	}
	return nil
}

// applyStep runs one script and its version row in a single
// transaction.
func (e *Engine) applyStep(ctx context.Context, conn Querier, script SqlFile, version int) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := RunSQLFile(ctx, tx, script); err != nil {
		return err
	}
	if err := e.store.Record(ctx, tx, version); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadSchema loads the canonical schema snapshot and records a version
// row equal to the newest known migration id, marking the database as
// fully up to date.
func (e *Engine) LoadSchema(ctx context.Context, conn Querier, schema SqlFile) error {
	if err := RunSQLFile(ctx, conn, schema); err != nil {
		return err
	}
	if e.graph.Len() == 0 {
		return nil
	}
	return e.store.Record(ctx, conn, e.graph.MaxID())
}

// Pending returns the unapplied migrations in apply order.
func (e *Engine) Pending(ctx context.Context, conn Querier) ([]*Migration, error) {
	if e.graph.Len() == 0 {
		return nil, nil
	}
	current, applied, err := e.store.Current(ctx, conn)
	if err != nil {
		return nil, err
	}
	if !applied {
		current = e.graph.MinID() - 1
	}
	next, err := e.graph.NextAfter(current)
	if err != nil {
		return nil, err
	}

	var pending []*Migration
	for next != nil {
		pending = append(pending, next)
		next, _ = e.graph.Child(next)
	}
	return pending, nil
}

// RunSQLFile executes the file's content on q. An empty file is a
// silent no-op.
func RunSQLFile(ctx context.Context, q Querier, f SqlFile) error {
	sql, err := f.Read()
	if err != nil {
		return fmt.Errorf("read %s: %w", f.Path, err)
	}
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if _, err := q.Exec(ctx, sql); err != nil {
		return fmt.Errorf("execute %s: %w", f.Path, err)
	}
	return nil
}
