// Package ignore implements the layered ignore filter applied during
// file discovery. Rules come from built-in defaults, then .gitignore,
// .contextignore and .uceignore at the project root, then caller
// patterns. Later rules override earlier ones, so a negation in any
// layer can re-admit a path ignored by a previous layer.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreFiles are the per-project rule files, in load order.
var IgnoreFiles = []string{".gitignore", ".contextignore", ".uceignore"}

// defaults cover VCS internals, build outputs, dependency dirs, lock
// files and minified assets. They sit below every project layer.
var defaults = []string{
	".git/",
	".hg/",
	".svn/",
	"node_modules/",
	"__pycache__/",
	"venv/",
	".venv/",
	"dist/",
	"build/",
	"target/",
	".idea/",
	".vscode/",
	".context/",
	".uce/",
	"*.pyc",
	"*.min.js",
	"*.bundle.js",
	"*.map",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"poetry.lock",
	"Cargo.lock",
	"go.sum",
}

type rule struct {
	pattern  string
	negate   bool
	dirOnly  bool
	anchored bool
}

// Matcher answers whether a project-relative path is ignored.
type Matcher struct {
	rules []rule
}

// NewMatcher builds a matcher from the defaults, the project's ignore
// files under root, and extra caller-supplied patterns (highest
// precedence). Missing ignore files are skipped silently.
func NewMatcher(root string, extra []string) *Matcher {
	m := &Matcher{}
	m.addPatterns(defaults)
	for _, name := range IgnoreFiles {
		m.loadFile(filepath.Join(root, name))
	}
	m.addPatterns(extra)
	return m
}

func (m *Matcher) loadFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.addPatterns([]string{line})
	}
}

func (m *Matcher) addPatterns(patterns []string) {
	for _, p := range patterns {
		r := rule{}
		if strings.HasPrefix(p, "!") {
			r.negate = true
			p = p[1:]
		}
		if strings.HasSuffix(p, "/") {
			r.dirOnly = true
			p = strings.TrimSuffix(p, "/")
		}
		if strings.HasPrefix(p, "/") {
			r.anchored = true
			p = strings.TrimPrefix(p, "/")
		} else if strings.Contains(p, "/") {
			// A slash anywhere anchors the pattern to the root,
			// matching gitignore semantics.
			r.anchored = true
		}
		if p == "" {
			continue
		}
		r.pattern = p
		m.rules = append(m.rules, r)
	}
}

// Ignored reports whether relPath (forward-slash form) is excluded.
// The last matching rule wins.
func (m *Matcher) Ignored(relPath string, isDir bool) bool {
	relPath = strings.TrimPrefix(relPath, "./")
	ignored := false
	for _, r := range m.rules {
		if r.matches(relPath, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

// PruneDir reports whether a directory subtree can be skipped
// entirely: it is ignored and no negation rule could re-admit
// anything beneath it.
func (m *Matcher) PruneDir(relPath string) bool {
	if !m.Ignored(relPath, true) {
		return false
	}
	for _, r := range m.rules {
		if !r.negate {
			continue
		}
		if !r.anchored {
			// Could match at any depth, including under this dir.
			return false
		}
		if strings.HasPrefix(r.pattern, relPath+"/") {
			return false
		}
	}
	return true
}

func (r rule) matches(relPath string, isDir bool) bool {
	if r.dirOnly && !isDir {
		// A directory-only pattern still excludes files beneath a
		// matching directory.
		return r.matchesParent(relPath)
	}

	if matchOne(r.effectivePattern(), relPath) {
		return true
	}
	// An ignored directory takes its whole subtree with it.
	return r.matchesParent(relPath)
}

func (r rule) matchesParent(relPath string) bool {
	pat := r.effectivePattern()
	dir := relPath
	for {
		slash := strings.LastIndex(dir, "/")
		if slash < 0 {
			return false
		}
		dir = dir[:slash]
		if matchOne(pat, dir) {
			return true
		}
	}
}

func (r rule) effectivePattern() string {
	if r.anchored {
		return r.pattern
	}
	// Unanchored patterns match at any depth.
	return "**/" + r.pattern
}

func matchOne(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}
