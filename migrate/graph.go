package migrate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// migrationFilePattern matches `<id>_<name>.up.sql`. The id is a
// base-10 integer with no sign; leading zeros are cosmetic, ids compare
// numerically.
var migrationFilePattern = regexp.MustCompile(`^(\d+)_(.+)\.up\.sql$`)

// Migration is one step in the chain: a forward script, an optional
// reverse script, and links to its neighbors. Links are stored as ids
// resolved through the graph's arena, never as direct references.
type Migration struct {
	ID   int
	Name string
	Up   SqlFile
	Down *SqlFile

	parentID  int
	childID   int
	hasParent bool
	hasChild  bool
}

// MalformedNameError reports a migration file whose name does not parse
// as `<id>_<name>.up.sql`.
type MalformedNameError struct {
	Path string
}

func (e *MalformedNameError) Error() string {
	return fmt.Sprintf("cannot extract migration ID and/or name from path '%s'", e.Path)
}

// Graph is the full migration history: an arena keyed by id, linked
// into a single linear chain with no branching. It is built once per
// project handle; in-place edits exist only for drift simulation in
// tests.
type Graph struct {
	byID map[int]*Migration
	ids  []int // ascending
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{byID: make(map[int]*Migration)}
}

// LoadGraph scans dir for `*.up.sql` files lexicographically, builds
// each migration, and links them by ascending id in a second pass so
// chain correctness never depends on enumeration order. A sibling
// `.down.sql` is attached when present; its absence marks the migration
// forward-only.
func LoadGraph(fsys afero.Fs, dir string) (*Graph, error) {
	paths, err := afero.Glob(fsys, filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return nil, fmt.Errorf("scan migrations in %s: %w", dir, err)
	}
	sort.Strings(paths)

	g := NewGraph()
	for _, p := range paths {
		m, err := migrationFromUpPath(fsys, p)
		if err != nil {
			return nil, err
		}
		if _, dup := g.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate migration ID %d: %s", m.ID, p)
		}
		g.byID[m.ID] = m
	}
	g.link()
	return g, nil
}

func migrationFromUpPath(fsys afero.Fs, upPath string) (*Migration, error) {
	match := migrationFilePattern.FindStringSubmatch(filepath.Base(upPath))
	if match == nil {
		return nil, &MalformedNameError{Path: upPath}
	}
	id, err := strconv.Atoi(match[1])
	if err != nil {
		return nil, &MalformedNameError{Path: upPath}
	}

	m := &Migration{ID: id, Name: match[2], Up: NewSqlFile(fsys, upPath)}
	downPath := strings.TrimSuffix(upPath, ".up.sql") + ".down.sql"
	if ok, _ := afero.Exists(fsys, downPath); ok {
		down := NewSqlFile(fsys, downPath)
		m.Down = &down
	}
	return m, nil
}

// link rebuilds the parent/child chain from the sorted id set, keeping
// both directions mutually consistent.
func (g *Graph) link() {
	g.ids = g.ids[:0]
	for id := range g.byID {
		g.ids = append(g.ids, id)
	}
	sort.Ints(g.ids)

	for i, id := range g.ids {
		m := g.byID[id]
		m.hasParent, m.hasChild = false, false
		if i > 0 {
			m.parentID = g.ids[i-1]
			m.hasParent = true
		}
		if i < len(g.ids)-1 {
			m.childID = g.ids[i+1]
			m.hasChild = true
		}
	}
}

// Len returns the number of migrations.
func (g *Graph) Len() int { return len(g.ids) }

// IDs returns the known ids in ascending order.
func (g *Graph) IDs() []int {
	out := make([]int, len(g.ids))
	copy(out, g.ids)
	return out
}

// ByID looks a migration up by id.
func (g *Graph) ByID(id int) (*Migration, bool) {
	m, ok := g.byID[id]
	return m, ok
}

// MinID returns the base migration's id. The graph must not be empty.
func (g *Graph) MinID() int { return g.ids[0] }

// MaxID returns the tail migration's id. The graph must not be empty.
func (g *Graph) MaxID() int { return g.ids[len(g.ids)-1] }

// Base returns the base migration, if any.
func (g *Graph) Base() (*Migration, bool) {
	if len(g.ids) == 0 {
		return nil, false
	}
	return g.byID[g.ids[0]], true
}

// Parent resolves m's parent through the arena.
func (g *Graph) Parent(m *Migration) (*Migration, bool) {
	if !m.hasParent {
		return nil, false
	}
	p, ok := g.byID[m.parentID]
	return p, ok
}

// Child resolves m's child through the arena.
func (g *Graph) Child(m *Migration) (*Migration, bool) {
	if !m.hasChild {
		return nil, false
	}
	c, ok := g.byID[m.childID]
	return c, ok
}

// NextAfter returns the first migration to apply when the database sits
// at version current. It returns nil when nothing applies (current at
// or beyond the tail) and a no-path error when current has no route
// through the graph.
func (g *Graph) NextAfter(current int) (*Migration, error) {
	if m, ok := g.byID[current]; ok {
		next, _ := g.Child(m)
		return next, nil
	}
	if current >= g.MaxID() {
		return nil, nil
	}
	if current == g.MinID()-1 {
		return g.byID[g.MinID()], nil
	}
	return nil, NewError(KindNoPath, "no migration path from schema version %d", current)
}

// Append inserts m and relinks the chain; m becomes part of the sorted
// arena wherever its id falls.
func (g *Graph) Append(m *Migration) {
	g.byID[m.ID] = m
	g.link()
}

// Delete removes id and relinks the chain. Only drift-simulation
// scenarios use this.
func (g *Graph) Delete(id int) {
	delete(g.byID, id)
	g.link()
}
