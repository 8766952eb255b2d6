package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ucengine/uce/internal/config"
	"github.com/ucengine/uce/internal/gitinfo"
	"github.com/ucengine/uce/internal/index"
	"github.com/ucengine/uce/internal/parser"
)

// Indexer owns the project index: discovery, change diffing, parse
// coordination, and the dependency graph. One writer at a time;
// queries observe either the state before or after an update, never a
// half-merged one.
type Indexer struct {
	cfg     *config.Config
	adapter *parser.Adapter
	logger  *slog.Logger

	mu         sync.RWMutex
	store      *index.FileStore
	graph      *index.Graph
	fileHashes map[string]string
	chunkByID  map[string]parser.Chunk
	generation uint64
	createdAt  time.Time
	git        gitinfo.Info
}

// Result reports one refresh or update run.
type Result struct {
	Added    int
	Modified int
	Cached   int
	Removed  int

	// Reparsed lists every path that went through the parser this
	// run: changed files plus their transitive dependents.
	Reparsed []string

	// StaleChunks are chunk IDs whose backing file changed or
	// vanished; search structures must drop them before re-ingesting.
	StaleChunks []string

	Generation uint64
	Duration   time.Duration
}

// New creates an indexer around an external parser implementation.
func New(cfg *config.Config, p parser.Parser, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		cfg:        cfg,
		adapter:    parser.NewAdapter(p),
		logger:     logger,
		store:      index.NewFileStore(),
		graph:      index.NewGraph(),
		fileHashes: make(map[string]string),
		chunkByID:  make(map[string]parser.Chunk),
		createdAt:  time.Now().UTC(),
	}
}

// LoadSnapshot warm-starts the indexer from a persisted project.
// File hashes are rebuilt from each record, keeping the hash
// invariant even if the snapshot's own map drifted.
func (ix *Indexer) LoadSnapshot(project *index.Project) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.store.Clear()
	ix.fileHashes = make(map[string]string, len(project.Files))
	ix.chunkByID = make(map[string]parser.Chunk)

	paths := make([]string, 0, len(project.Files))
	for p := range project.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		rec := project.Files[p]
		ix.store.Put(rec)
		ix.fileHashes[p] = rec.Hash
		for _, c := range rec.Chunks {
			ix.chunkByID[c.ID] = c
		}
	}

	ix.graph.Rebuild(ix.store)
	ix.generation = project.Generation
	ix.createdAt = project.CreatedAt
	ix.git = project.Git
}

// Reset discards all in-memory index state, e.g. on a branch switch.
// The generation survives so it stays monotone across snapshots.
func (ix *Indexer) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.store.Clear()
	ix.graph = index.NewGraph()
	ix.fileHashes = make(map[string]string)
	ix.chunkByID = make(map[string]parser.Chunk)
	ix.createdAt = time.Now().UTC()
}

// FullRefresh discovers the tree, diffs it against known hashes,
// reparses what changed plus its dependents, and rebuilds derived
// state. Cancellation leaves the index and generation untouched.
func (ix *Indexer) FullRefresh(ctx context.Context) (*Result, error) {
	start := time.Now()

	if ix.cfg.GitBranchEnabled() {
		ix.mu.Lock()
		ix.git = gitinfo.Probe(ix.cfg.ProjectRoot)
		ix.mu.Unlock()
	}

	walker := NewWalker(ix.cfg.ProjectRoot, ix.cfg.IgnorePatterns, ix.cfg.MaxFileSize)
	discovered, err := walker.Discover()
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	result := &Result{}
	contents := make(map[string][]byte)
	present := make(map[string]struct{}, len(discovered))
	var changed []string

	ix.mu.RLock()
	hashes := ix.fileHashes
	for _, p := range discovered {
		if err := ctx.Err(); err != nil {
			ix.mu.RUnlock()
			return nil, fmt.Errorf("refresh canceled: %w", err)
		}
		content, err := os.ReadFile(filepath.Join(ix.cfg.ProjectRoot, filepath.FromSlash(p)))
		if err != nil {
			ix.logger.Debug("file vanished during discovery", "path", p)
			continue
		}
		h := HashBytes(content)
		if h == EmptyDigest {
			continue
		}
		present[p] = struct{}{}

		prev, known := hashes[p]
		switch {
		case !known:
			result.Added++
			changed = append(changed, p)
			contents[p] = content
		case prev != h:
			result.Modified++
			changed = append(changed, p)
			contents[p] = content
		default:
			result.Cached++
		}
	}

	var removed []string
	for p := range hashes {
		if _, ok := present[p]; !ok {
			removed = append(removed, p)
		}
	}
	sort.Strings(removed)
	result.Removed = len(removed)

	// Dependents come off the pre-rebuild graph: edges derived from
	// the state the changed files were last parsed against.
	toParse := ix.expandDependents(changed, removed, present)
	ix.mu.RUnlock()

	records, err := ix.parseAll(ctx, toParse, contents)
	if err != nil {
		return nil, err
	}

	ix.merge(records, removed, result)
	result.Reparsed = toParse
	result.Duration = time.Since(start)

	ix.logger.Info("refresh complete",
		"added", result.Added, "modified", result.Modified,
		"cached", result.Cached, "removed", result.Removed,
		"reparsed", len(result.Reparsed), "generation", result.Generation,
		"duration", result.Duration)

	return result, nil
}

// Update reparses the given paths plus their transitive dependents.
// Paths may be absolute or project-relative in either slash form.
func (ix *Indexer) Update(ctx context.Context, paths []string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	contents := make(map[string][]byte)
	var changed, removed []string

	ix.mu.RLock()
	seen := make(map[string]struct{}, len(paths))
	for _, raw := range paths {
		p := ix.normalize(raw)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}

		content, err := os.ReadFile(filepath.Join(ix.cfg.ProjectRoot, filepath.FromSlash(p)))
		known := ix.fileHashes[p] != ""
		switch {
		case err != nil || int64(len(content)) > ix.cfg.MaxFileSize || len(content) == 0:
			if known {
				removed = append(removed, p)
			}
		case !known:
			result.Added++
			changed = append(changed, p)
			contents[p] = content
		case ix.fileHashes[p] != HashBytes(content):
			result.Modified++
			changed = append(changed, p)
			contents[p] = content
		default:
			// Hash unchanged: reparse anyway, the caller asked.
			changed = append(changed, p)
			contents[p] = content
		}
	}
	result.Removed = len(removed)

	presentNow := make(map[string]struct{})
	for _, p := range ix.store.Paths() {
		presentNow[p] = struct{}{}
	}
	for _, p := range changed {
		presentNow[p] = struct{}{}
	}
	toParse := ix.expandDependents(changed, removed, presentNow)
	ix.mu.RUnlock()

	records, err := ix.parseAll(ctx, toParse, contents)
	if err != nil {
		return nil, err
	}

	ix.merge(records, removed, result)
	result.Reparsed = toParse
	result.Duration = time.Since(start)

	ix.logger.Info("update complete",
		"paths", len(paths), "reparsed", len(result.Reparsed),
		"removed", result.Removed, "generation", result.Generation,
		"duration", result.Duration)

	return result, nil
}

// expandDependents unions changed files with the transitive dependents
// of everything that changed or vanished, restricted to files that
// still exist. Callers hold at least a read lock.
func (ix *Indexer) expandDependents(changed, removed []string, present map[string]struct{}) []string {
	seeds := make([]string, 0, len(changed)+len(removed))
	seeds = append(seeds, changed...)
	seeds = append(seeds, removed...)

	set := make(map[string]struct{}, len(changed))
	for _, p := range changed {
		set[p] = struct{}{}
	}
	for _, p := range ix.graph.Invalidated(seeds) {
		if _, ok := present[p]; ok {
			set[p] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// parseAll runs the parser over paths in bounded parallel batches.
// Workers own disjoint paths; results merge serially afterwards. A
// canceled context aborts between files with nothing merged.
func (ix *Indexer) parseAll(ctx context.Context, paths []string, contents map[string][]byte) ([]*index.FileRecord, error) {
	width := ix.cfg.ParseBatchSize
	records := make([]*index.FileRecord, len(paths))

	for start := 0; start < len(paths); start += width {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("parse canceled: %w", err)
		}

		end := start + width
		if end > len(paths) {
			end = len(paths)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if ctx.Err() != nil {
					return
				}
				records[i] = ix.parseOne(paths[i], contents[paths[i]])
			}(i)
		}
		wg.Wait()
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled: %w", err)
	}

	out := records[:0]
	for _, rec := range records {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// parseOne builds the file record for one path. Unreadable files
// return nil and are skipped; parse failures keep the file in the
// index with its errors recorded.
func (ix *Indexer) parseOne(p string, content []byte) *index.FileRecord {
	full := filepath.Join(ix.cfg.ProjectRoot, filepath.FromSlash(p))
	if content == nil {
		var err error
		content, err = os.ReadFile(full)
		if err != nil {
			ix.logger.Debug("skipping unreadable file", "path", p, "error", err)
			return nil
		}
	}

	var mtime int64
	if fi, err := os.Stat(full); err == nil {
		mtime = fi.ModTime().UnixNano()
	}

	lang := ""
	if l, ok := parser.Detect(p); ok {
		lang = string(l)
	}

	res := ix.adapter.Parse(p, content)
	rec := &index.FileRecord{
		Path:     p,
		Hash:     HashBytes(content),
		MTime:    mtime,
		Size:     int64(len(content)),
		Language: lang,
		Symbols:  emptyIfNil(res.Symbols),
		Imports:  emptyIfNil(res.Imports),
		Exports:  res.Exports,
		Calls:    res.Calls,
		Chunks:   emptyIfNil(res.Chunks),
		Doc:      res.Doc,
		Errors:   res.Errors,
	}

	if len(rec.Errors) > 0 {
		ix.logger.Debug("parse errors", "path", p, "count", len(rec.Errors))
	}
	return rec
}

// merge applies a completed run under the writer lock: drop removed,
// put reparsed, rebuild the graph, bump the generation.
func (ix *Indexer) merge(records []*index.FileRecord, removed []string, result *Result) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, p := range removed {
		if old := ix.store.Get(p); old != nil {
			for _, c := range old.Chunks {
				result.StaleChunks = append(result.StaleChunks, c.ID)
				delete(ix.chunkByID, c.ID)
			}
		}
		ix.store.Remove(p)
		delete(ix.fileHashes, p)
	}

	for _, rec := range records {
		if old := ix.store.Get(rec.Path); old != nil {
			for _, c := range old.Chunks {
				result.StaleChunks = append(result.StaleChunks, c.ID)
				delete(ix.chunkByID, c.ID)
			}
		}
		ix.store.Put(rec)
		ix.fileHashes[rec.Path] = rec.Hash
		for _, c := range rec.Chunks {
			ix.chunkByID[c.ID] = c
		}
	}

	ix.graph.Rebuild(ix.store)
	ix.generation++
	result.Generation = ix.generation
}

func (ix *Indexer) normalize(raw string) string {
	p := filepath.ToSlash(raw)
	if filepath.IsAbs(raw) {
		root := filepath.ToSlash(ix.cfg.ProjectRoot)
		if !strings.HasPrefix(p, root+"/") {
			return ""
		}
		p = strings.TrimPrefix(p, root+"/")
	}
	return strings.TrimPrefix(p, "./")
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Generation returns the current change epoch.
func (ix *Indexer) Generation() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.generation
}

// Git returns the repository info captured at the last refresh.
func (ix *Indexer) Git() gitinfo.Info {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.git
}

// SetGit overrides the captured repository info (used when the engine
// probes before the first refresh).
func (ix *Indexer) SetGit(info gitinfo.Info) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.git = info
}

// Store exposes the file-index store for read paths.
func (ix *Indexer) Store() *index.FileStore {
	return ix.store
}

// FileHashes returns a copy of the hash map.
func (ix *Indexer) FileHashes() map[string]string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[string]string, len(ix.fileHashes))
	for k, v := range ix.fileHashes {
		out[k] = v
	}
	return out
}

// ChunkByID resolves a chunk to its denormalized metadata.
func (ix *Indexer) ChunkByID(id string) (parser.Chunk, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, ok := ix.chunkByID[id]
	return c, ok
}

// DepsOf returns the files path imports.
func (ix *Indexer) DepsOf(path string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.graph.Deps(path)
}

// DependentsOf returns the files importing path.
func (ix *Indexer) DependentsOf(path string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.graph.Dependents(path)
}

// SymbolsOf returns the symbols parsed from path, or nil.
func (ix *Indexer) SymbolsOf(path string) []parser.Symbol {
	if rec := ix.store.Get(path); rec != nil {
		return rec.Symbols
	}
	return nil
}

// Project exports the full snapshot shape for persistence.
func (ix *Indexer) Project() *index.Project {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	files := make(map[string]*index.FileRecord, ix.store.Len())
	records := ix.store.Records()
	for _, rec := range records {
		files[rec.Path] = rec
	}

	return &index.Project{
		Version:    index.FormatVersion,
		Name:       filepath.Base(ix.cfg.ProjectRoot),
		Root:       ix.cfg.ProjectRoot,
		Git:        ix.git,
		CreatedAt:  ix.createdAt,
		UpdatedAt:  time.Now().UTC(),
		Generation: ix.generation,
		Files:      files,
		Deps:       ix.graph.DepsMap(),
		Dependents: ix.graph.DependentsMap(),
		Stats:      index.ComputeStats(records),
	}
}

// Stats recomputes the summary counters.
func (ix *Indexer) Stats() index.Stats {
	return index.ComputeStats(ix.store.Records())
}
