package index

import (
	"path"
	"sort"
	"strings"

	"github.com/ucengine/uce/internal/parser"
)

// Graph is the file-level import graph, derived state rebuilt whole
// after every batch of puts and removes. Both directions are kept so
// cascade invalidation is a straight BFS.
type Graph struct {
	deps       map[string]map[string]struct{}
	dependents map[string]map[string]struct{}
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		deps:       make(map[string]map[string]struct{}),
		dependents: make(map[string]map[string]struct{}),
	}
}

// Rebuild recomputes every edge from the store's records and syncs
// each record's ResolvedImports to the resolved set.
func (g *Graph) Rebuild(store *FileStore) {
	g.deps = make(map[string]map[string]struct{})
	g.dependents = make(map[string]map[string]struct{})

	present := make(map[string]struct{})
	records := store.Records()
	for _, rec := range records {
		present[rec.Path] = struct{}{}
	}

	for _, rec := range records {
		resolved := resolveImports(rec, present)
		rec.ResolvedImports = resolved
		for _, target := range resolved {
			g.addEdge(rec.Path, target)
		}
	}
}

func (g *Graph) addEdge(from, to string) {
	if g.deps[from] == nil {
		g.deps[from] = make(map[string]struct{})
	}
	g.deps[from][to] = struct{}{}
	if g.dependents[to] == nil {
		g.dependents[to] = make(map[string]struct{})
	}
	g.dependents[to][from] = struct{}{}
}

// Deps returns the files that file imports, sorted.
func (g *Graph) Deps(file string) []string {
	return sortedKeys(g.deps[file])
}

// Dependents returns the files that import file, sorted.
func (g *Graph) Dependents(file string) []string {
	return sortedKeys(g.dependents[file])
}

// Invalidated returns the transitive closure of dependents over the
// changed set, excluding the changed files themselves. A visited set
// bounds the walk, so import cycles terminate.
func (g *Graph) Invalidated(changed []string) []string {
	visited := make(map[string]struct{}, len(changed))
	queue := make([]string, 0, len(changed))
	for _, f := range changed {
		visited[f] = struct{}{}
		queue = append(queue, f)
	}

	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for dep := range g.dependents[cur] {
			if _, seen := visited[dep]; seen {
				continue
			}
			visited[dep] = struct{}{}
			out = append(out, dep)
			queue = append(queue, dep)
		}
	}
	sort.Strings(out)
	return out
}

// DepsMap exports the forward edges as sorted slices for snapshots.
func (g *Graph) DepsMap() map[string][]string {
	return exportEdges(g.deps)
}

// DependentsMap exports the reverse edges as sorted slices.
func (g *Graph) DependentsMap() map[string][]string {
	return exportEdges(g.dependents)
}

// EdgeCount returns the number of forward edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, targets := range g.deps {
		n += len(targets)
	}
	return n
}

func exportEdges(edges map[string]map[string]struct{}) map[string][]string {
	out := make(map[string][]string, len(edges))
	for from, targets := range edges {
		if len(targets) == 0 {
			continue
		}
		out[from] = sortedKeys(targets)
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// resolveImports maps a record's import sources to files present in
// the index. Only path-relative sources (./, ../, /) produce edges;
// anything else is an external module.
func resolveImports(rec *FileRecord, present map[string]struct{}) []string {
	if len(rec.Imports) == 0 {
		return nil
	}

	exts := parser.SourceExtensions(parser.Language(rec.Language))
	seen := make(map[string]struct{})
	var resolved []string

	for _, imp := range rec.Imports {
		base, ok := importBase(rec.Path, imp.Source)
		if !ok {
			continue
		}
		target, ok := resolveCandidate(base, exts, present)
		if !ok {
			continue
		}
		if target == rec.Path {
			// Self-imports carry no information.
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		resolved = append(resolved, target)
	}

	sort.Strings(resolved)
	return resolved
}

// importBase normalizes an import source to a project-relative path
// without extension guessing. Returns false for external modules.
func importBase(fromFile, source string) (string, bool) {
	switch {
	case strings.HasPrefix(source, "./"), strings.HasPrefix(source, "../"):
		base := path.Join(path.Dir(fromFile), source)
		if base == ".." || strings.HasPrefix(base, "../") {
			// Escapes the project root.
			return "", false
		}
		return base, true
	case strings.HasPrefix(source, "/"):
		return path.Clean(strings.TrimPrefix(source, "/")), true
	default:
		return "", false
	}
}

// resolveCandidate tries the exact path, then each recognized source
// extension, then index files. First hit wins.
func resolveCandidate(base string, exts []string, present map[string]struct{}) (string, bool) {
	if _, ok := present[base]; ok {
		return base, true
	}
	for _, ext := range exts {
		if _, ok := present[base+ext]; ok {
			return base + ext, true
		}
	}
	for _, ext := range exts {
		candidate := base + "/index" + ext
		if _, ok := present[candidate]; ok {
			return candidate, true
		}
	}
	return "", false
}
