// Package gitinfo reads just enough git plumbing to identify the
// current branch and commit without shelling out.
package gitinfo

import (
	"os"
	"path/filepath"
	"strings"
)

// Info describes the repository state at a point in time.
type Info struct {
	Branch string `json:"branch"`
	Commit string `json:"commit"`
	Dirty  bool   `json:"dirty"`
}

const refPrefix = "ref: refs/heads/"

// Probe inspects <root>/.git. A missing .git directory yields the
// default {main, "", false}; a detached HEAD yields an empty branch
// with the commit set.
func Probe(root string) Info {
	gitDir := filepath.Join(root, ".git")
	if fi, err := os.Stat(gitDir); err != nil || !fi.IsDir() {
		return Info{Branch: "main"}
	}

	info := Info{Branch: "main"}

	headData, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err == nil {
		head := strings.TrimSpace(string(headData))
		if strings.HasPrefix(head, refPrefix) {
			info.Branch = strings.TrimPrefix(head, refPrefix)
			refData, err := os.ReadFile(filepath.Join(gitDir, "refs", "heads", filepath.FromSlash(info.Branch)))
			if err == nil {
				info.Commit = strings.TrimSpace(string(refData))
			}
		} else if head != "" {
			// Detached HEAD: content is the commit hash itself.
			info.Branch = ""
			info.Commit = head
		}
	}

	if _, err := os.Stat(filepath.Join(gitDir, "index")); err == nil {
		info.Dirty = true
	}

	return info
}

// SnapshotBranch is the branch name used to key snapshots. Detached
// HEADs collapse to the short commit so snapshots stay addressable.
func (i Info) SnapshotBranch() string {
	if i.Branch != "" {
		return i.Branch
	}
	if len(i.Commit) >= 8 {
		return i.Commit[:8]
	}
	if i.Commit != "" {
		return i.Commit
	}
	return "main"
}
