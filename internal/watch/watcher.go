// Package watch keeps the index current by funneling filesystem
// events into targeted updates.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/ucengine/uce/internal/engine"
	"github.com/ucengine/uce/internal/gitinfo"
	"github.com/ucengine/uce/internal/ignore"
	"github.com/ucengine/uce/internal/parser"
)

const (
	debounce        = 500 * time.Millisecond
	gitPollInterval = 5 * time.Second
)

// Daemon watches the project tree and applies debounced updates. A
// HEAD poll catches branch switches between events.
type Daemon struct {
	eng     *engine.Engine
	root    string
	matcher *ignore.Matcher
	logger  *slog.Logger

	// quick suppresses no-op write events: editors love rewriting
	// identical bytes. xxhash here is an in-memory shortcut only; the
	// persisted hashes stay SHA-256.
	quick map[string]uint64
}

// NewDaemon creates a watcher for the engine's project root.
func NewDaemon(eng *engine.Engine, root string, extraIgnore []string, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		eng:     eng,
		root:    root,
		matcher: ignore.NewMatcher(root, extraIgnore),
		logger:  logger,
		quick:   make(map[string]uint64),
	}
}

// Run blocks until ctx is done, applying updates as files change.
func (d *Daemon) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := d.addDirs(watcher, d.root); err != nil {
		return err
	}

	d.logger.Info("watching", "root", d.root)

	pending := make(map[string]struct{})
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	gitTicker := time.NewTicker(gitPollInterval)
	defer gitTicker.Stop()
	lastGit := gitinfo.Probe(d.root)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if d.handleEvent(watcher, event, pending) {
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn("watch error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			pending = make(map[string]struct{})

			if _, err := d.eng.Update(ctx, paths); err != nil {
				d.logger.Error("update failed", "paths", len(paths), "error", err)
			}

		case <-gitTicker.C:
			now := gitinfo.Probe(d.root)
			if now.Branch != lastGit.Branch || now.Commit != lastGit.Commit {
				d.logger.Info("git HEAD moved", "branch", now.Branch, "commit", truncate(now.Commit))
				lastGit = now
				if _, err := d.eng.Refresh(ctx); err != nil {
					d.logger.Error("refresh failed", "error", err)
				}
			}
		}
	}
}

// handleEvent records an interesting event; returns true when the
// debounce timer should restart.
func (d *Daemon) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event, pending map[string]struct{}) bool {
	rel, err := filepath.Rel(d.root, event.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}

	// New directories need their own watch.
	if event.Op&fsnotify.Create != 0 {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			if !d.matcher.Ignored(rel, true) {
				d.addDirs(watcher, event.Name)
			}
			return false
		}
	}

	if _, ok := parser.Detect(rel); !ok {
		return false
	}
	if d.matcher.Ignored(rel, false) {
		return false
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
		content, err := os.ReadFile(event.Name)
		if err == nil {
			sum := xxhash.Sum64(content)
			if prev, seen := d.quick[rel]; seen && prev == sum {
				return false
			}
			d.quick[rel] = sum
		}
	}
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		delete(d.quick, rel)
	}

	pending[rel] = struct{}{}
	return true
}

// addDirs registers dir and every non-ignored subdirectory.
func (d *Daemon) addDirs(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil || !entry.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(d.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && d.matcher.Ignored(rel, true) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			d.logger.Debug("watch add failed", "path", path, "error", err)
		}
		return nil
	})
}

func truncate(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
