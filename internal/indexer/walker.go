// Package indexer discovers project files and coordinates full and
// incremental index runs.
package indexer

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ucengine/uce/internal/ignore"
	"github.com/ucengine/uce/internal/parser"
)

// textProbeSize is how many leading bytes are inspected for the
// binary check.
const textProbeSize = 8192

// Walker enumerates indexable files under a project root. A file is
// admitted when a registered language claims its extension, it fits
// the size limit, and it looks textual.
type Walker struct {
	root        string
	matcher     *ignore.Matcher
	maxFileSize int64
}

// NewWalker builds a walker. extraPatterns layer on top of the
// project's ignore files.
func NewWalker(root string, extraPatterns []string, maxFileSize int64) *Walker {
	return &Walker{
		root:        root,
		matcher:     ignore.NewMatcher(root, extraPatterns),
		maxFileSize: maxFileSize,
	}
}

// Discover walks the tree and returns sorted project-relative
// forward-slash paths. Symlinked directories are followed once;
// cycles break on a visited set of resolved targets.
func (w *Walker) Discover() ([]string, error) {
	visited := make(map[string]struct{})
	var found []string

	if err := w.walkDir(w.root, "", visited, &found); err != nil {
		return nil, err
	}

	sort.Strings(found)
	return found, nil
}

func (w *Walker) walkDir(dir, rel string, visited map[string]struct{}, found *[]string) error {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil // dangling link or vanished dir
	}
	if _, seen := visited[real]; seen {
		return nil
	}
	visited[real] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if rel == "" {
			return fmt.Errorf("read project root: %w", err)
		}
		return nil
	}

	for _, entry := range entries {
		name := entry.Name()
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}
		childPath := filepath.Join(dir, name)

		isDir := entry.IsDir()
		if entry.Type()&os.ModeSymlink != 0 {
			// Follow once; the visited set guards cycles.
			fi, err := os.Stat(childPath)
			if err != nil {
				continue
			}
			isDir = fi.IsDir()
		}

		if isDir {
			if w.matcher.PruneDir(childRel) {
				continue
			}
			if err := w.walkDir(childPath, childRel, visited, found); err != nil {
				return err
			}
			continue
		}

		if w.matcher.Ignored(childRel, false) {
			continue
		}
		if w.admits(childPath, childRel) {
			*found = append(*found, childRel)
		}
	}

	return nil
}

func (w *Walker) admits(fullPath, relPath string) bool {
	if _, ok := parser.Detect(relPath); !ok {
		return false
	}

	fi, err := os.Stat(fullPath)
	if err != nil {
		return false
	}
	if fi.Size() == 0 || fi.Size() > w.maxFileSize {
		return false
	}

	return isTextual(fullPath)
}

// isTextual rejects files with NUL bytes in their leading probe.
func isTextual(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, textProbeSize)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false
	}
	return !bytes.ContainsRune(buf[:n], 0)
}
