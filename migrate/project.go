package migrate

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// Project layout names. A project is one directory holding the schema
// snapshot, the migration chain, and optional fixture and test scripts.
const (
	SchemaFileName     = "schema.sql"
	MigrationsDirName  = "migrations"
	FixturesDirName    = "fixtures"
	TestsDirName       = "tests"
	migrationIDPadding = 5
)

// Project is a validated handle on a project directory. The migration
// graph and the fixture and test sets are loaded once at open time.
type Project struct {
	Dir   string
	Graph *Graph

	fixtures map[string]SqlFile
	tests    map[string]SqlFile
	fs       afero.Fs
}

// ProjectOption configures project loading.
type ProjectOption func(*projectConfig)

type projectConfig struct {
	fixtureDirs []string
}

// WithFixtureDirs adds extra directories whose *.sql files join the
// fixture set. Later directories win on name collisions, and the
// project's own fixtures directory is always last.
func WithFixtureDirs(dirs ...string) ProjectOption {
	return func(c *projectConfig) {
		c.fixtureDirs = append(c.fixtureDirs, dirs...)
	}
}

// OpenProject validates dir's layout and loads its contents. The schema
// file and migrations directory are required; fixtures and tests
// directories are optional but must be directories when present.
func OpenProject(fsys afero.Fs, dir string, opts ...ProjectOption) (*Project, error) {
	var cfg projectConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	schema := filepath.Join(dir, SchemaFileName)
	if ok, err := afero.Exists(fsys, schema); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("schema does not exist or is wrong type: %s", schema)
	}
	if ok, _ := afero.IsDir(fsys, schema); ok {
		return nil, fmt.Errorf("schema does not exist or is wrong type: %s", schema)
	}

	migrations := filepath.Join(dir, MigrationsDirName)
	if ok, err := afero.DirExists(fsys, migrations); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("migrations directory does not exist or is wrong type: %s", migrations)
	}

	for _, sub := range []string{FixturesDirName, TestsDirName} {
		p := filepath.Join(dir, sub)
		if ok, _ := afero.Exists(fsys, p); ok {
			if isDir, _ := afero.IsDir(fsys, p); !isDir {
				return nil, fmt.Errorf("%s directory is not a directory: %s", sub, p)
			}
		}
	}

	graph, err := LoadGraph(fsys, migrations)
	if err != nil {
		return nil, err
	}

	p := &Project{
		Dir:      dir,
		Graph:    graph,
		fixtures: make(map[string]SqlFile),
		tests:    make(map[string]SqlFile),
		fs:       fsys,
	}

	fixtureDirs := append(cfg.fixtureDirs, p.FixturesDir())
	for _, d := range fixtureDirs {
		if err := loadSQLDir(fsys, d, p.fixtures); err != nil {
			return nil, err
		}
	}
	if err := loadSQLDir(fsys, p.TestsDir(), p.tests); err != nil {
		return nil, err
	}
	return p, nil
}

// NewProject scaffolds the layout in dir, then opens it. Existing files
// are left alone, so re-running on a live project is harmless.
func NewProject(fsys afero.Fs, dir string, opts ...ProjectOption) (*Project, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	schema := filepath.Join(dir, SchemaFileName)
	if ok, _ := afero.Exists(fsys, schema); !ok {
		if err := afero.WriteFile(fsys, schema, nil, 0o644); err != nil {
			return nil, err
		}
	}
	for _, sub := range []string{MigrationsDirName, FixturesDirName, TestsDirName} {
		if err := fsys.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, err
		}
	}
	return OpenProject(fsys, dir, opts...)
}

func loadSQLDir(fsys afero.Fs, dir string, into map[string]SqlFile) error {
	if ok, _ := afero.DirExists(fsys, dir); !ok {
		return nil
	}
	paths, err := afero.Glob(fsys, filepath.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	for _, p := range paths {
		f := NewSqlFile(fsys, p)
		into[f.Name] = f
	}
	return nil
}

// SchemaFile returns the schema snapshot handle.
func (p *Project) SchemaFile() SqlFile {
	return NewSqlFile(p.fs, filepath.Join(p.Dir, SchemaFileName))
}

// MigrationsDir returns the migrations directory path.
func (p *Project) MigrationsDir() string { return filepath.Join(p.Dir, MigrationsDirName) }

// FixturesDir returns the project's own fixtures directory path.
func (p *Project) FixturesDir() string { return filepath.Join(p.Dir, FixturesDirName) }

// TestsDir returns the tests directory path.
func (p *Project) TestsDir() string { return filepath.Join(p.Dir, TestsDirName) }

// NextMigrationID returns the id the next migration will take: one past
// the tail, or zero for an empty chain.
func (p *Project) NextMigrationID() int {
	if p.Graph.Len() == 0 {
		return 0
	}
	return p.Graph.MaxID() + 1
}

// NewMigration creates an empty up/down script pair at the next id and
// links the new migration into the graph.
func (p *Project) NewMigration(name string) (*Migration, error) {
	id := p.NextMigrationID()
	base := filepath.Join(p.MigrationsDir(), fmt.Sprintf("%0*d_%s", migrationIDPadding, id, name))

	upPath := base + ".up.sql"
	downPath := base + ".down.sql"
	if err := afero.WriteFile(p.fs, upPath, nil, 0o644); err != nil {
		return nil, err
	}
	if err := afero.WriteFile(p.fs, downPath, nil, 0o644); err != nil {
		return nil, err
	}

	down := NewSqlFile(p.fs, downPath)
	m := &Migration{ID: id, Name: name, Up: NewSqlFile(p.fs, upPath), Down: &down}
	p.Graph.Append(m)
	return m, nil
}

// NewFixture creates an empty fixture script and adds it to the set.
func (p *Project) NewFixture(name string) (SqlFile, error) {
	return p.newScript(name, p.FixturesDir(), "fixture", p.fixtures)
}

// NewTest creates an empty test script and adds it to the set.
func (p *Project) NewTest(name string) (SqlFile, error) {
	return p.newScript(name, p.TestsDir(), "test", p.tests)
}

func (p *Project) newScript(name, dir, kind string, into map[string]SqlFile) (SqlFile, error) {
	path := filepath.Join(dir, name+".sql")
	if ok, _ := afero.Exists(p.fs, path); ok {
		return SqlFile{}, fmt.Errorf("cannot create %s, already exists: %s", kind, path)
	}
	if err := afero.WriteFile(p.fs, path, nil, 0o644); err != nil {
		return SqlFile{}, err
	}
	f := NewSqlFile(p.fs, path)
	into[name] = f
	return f, nil
}

// Fixture looks a fixture up by name.
func (p *Project) Fixture(name string) (SqlFile, error) {
	f, ok := p.fixtures[name]
	if !ok {
		return SqlFile{}, fmt.Errorf("unknown fixture: '%s'", name)
	}
	return f, nil
}

// FixtureNames returns the fixture names in sorted order.
func (p *Project) FixtureNames() []string { return sortedNames(p.fixtures) }

// Tests returns the test scripts in name order.
func (p *Project) Tests() []SqlFile {
	out := make([]SqlFile, 0, len(p.tests))
	for _, name := range sortedNames(p.tests) {
		out = append(out, p.tests[name])
	}
	return out
}

func sortedNames(m map[string]SqlFile) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
