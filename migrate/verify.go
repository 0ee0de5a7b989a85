package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/sync/errgroup"

	"github.com/satishbabariya/pgward/pgdb"
	"github.com/satishbabariya/pgward/pgdump"
)

// Verifier checks that the schema snapshot and the migration chain
// describe the same database. It builds two throwaway databases, one
// from each source, dumps both, and compares the dumps.
type Verifier struct {
	project *Project
	store   VersionStore
	dump    pgdump.Client
	log     *slog.Logger
}

// NewVerifier builds a verifier for project using store's version
// table.
func NewVerifier(project *Project, store VersionStore, dump pgdump.Client) *Verifier {
	return &Verifier{project: project, store: store, dump: dump, log: slog.Default()}
}

// Verify builds and compares the two databases. A non-empty result is
// the unified diff between the schema-built dump and the
// migration-built dump; an empty result means they match. Throwaway
// databases are dropped on the way out even when verification fails.
func (v *Verifier) Verify(ctx context.Context) (string, error) {
	schemaDB := pgdb.RandomName("pgward_verify_schema_")
	migrateDB := pgdb.RandomName("pgward_verify_migrate_")

	for _, name := range []string{schemaDB, migrateDB} {
		if err := pgdb.CreateDatabase(ctx, name); err != nil {
			return "", err
		}
		defer v.dropQuietly(ctx, name)
	}

	var schemaVersion, migrateVersion int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		schemaVersion, err = v.buildFromSchema(gctx, schemaDB)
		return err
	})
	g.Go(func() (err error) {
		migrateVersion, err = v.buildFromMigrations(gctx, migrateDB)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	// A recorded-version disagreement is a verification failure, the
	// same class of result as a schema diff, never an error.
	if schemaVersion != migrateVersion {
		return versionMismatch(schemaVersion, migrateVersion), nil
	}

	schemaDump, err := v.dumpDatabase(ctx, schemaDB)
	if err != nil {
		return "", err
	}
	migrateDump, err := v.dumpDatabase(ctx, migrateDB)
	if err != nil {
		return "", err
	}
	return v.renderSchemaDiff(schemaDump, migrateDump)
}

// buildFromSchema loads the schema snapshot into db and returns the
// version it records.
func (v *Verifier) buildFromSchema(ctx context.Context, db string) (int, error) {
	conn, err := pgdb.Connect(ctx, db)
	if err != nil {
		return 0, err
	}
	defer conn.Close(ctx)

	engine := NewEngine(v.project.Graph, v.store)
	if err := engine.LoadSchema(ctx, conn, v.project.SchemaFile()); err != nil {
		return 0, err
	}
	return v.currentVersion(ctx, conn)
}

// buildFromMigrations replays the whole chain into db and returns the
// version it lands on.
func (v *Verifier) buildFromMigrations(ctx context.Context, db string) (int, error) {
	conn, err := pgdb.Connect(ctx, db)
	if err != nil {
		return 0, err
	}
	defer conn.Close(ctx)

	engine := NewEngine(v.project.Graph, v.store)
	if err := engine.Migrate(ctx, conn, nil, Up); err != nil {
		return 0, err
	}
	return v.currentVersion(ctx, conn)
}

func (v *Verifier) currentVersion(ctx context.Context, conn Querier) (int, error) {
	version, applied, err := v.store.Current(ctx, conn)
	if err != nil {
		return 0, err
	}
	if !applied {
		return -1, nil
	}
	return version, nil
}

// dumpDatabase runs pg_dump against db, excluding the version table's
// rows so history noise never shows up in the comparison.
func (v *Verifier) dumpDatabase(ctx context.Context, db string) (string, error) {
	code, out, err := v.dump.Run(ctx, "-d", db, "--exclude-table-data", v.store.Table)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", fmt.Errorf("pg_dump of %s exited with code %d", db, code)
	}
	return out, nil
}

func versionMismatch(schemaVersion, migrateVersion int) string {
	return fmt.Sprintf(
		"Version from schema doesn't match that from migrations: %d != %d\n",
		schemaVersion, migrateVersion)
}

func (v *Verifier) renderSchemaDiff(schemaDump, migrateDump string) (string, error) {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(schemaDump),
		B:        difflib.SplitLines(migrateDump),
		FromFile: filepath.Base(v.project.SchemaFile().Path),
		ToFile:   "combined migrations",
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("render schema diff: %w", err)
	}
	return diff, nil
}

// dropQuietly drops a throwaway database with a bounded context that
// survives cancellation of the verification run.
func (v *Verifier) dropQuietly(ctx context.Context, name string) {
	cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	if err := pgdb.DropDatabase(cleanup, name); err != nil {
		v.log.Error("drop verification database", "database", name, "error", err)
	}
}
