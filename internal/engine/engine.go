// Package engine wires the indexer, search structures, caches and
// persistence into one code-intelligence engine.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ucengine/uce/internal/bm25"
	"github.com/ucengine/uce/internal/budget"
	"github.com/ucengine/uce/internal/config"
	"github.com/ucengine/uce/internal/embedding"
	"github.com/ucengine/uce/internal/gitinfo"
	"github.com/ucengine/uce/internal/indexer"
	"github.com/ucengine/uce/internal/metrics"
	"github.com/ucengine/uce/internal/parser"
	"github.com/ucengine/uce/internal/persist"
	"github.com/ucengine/uce/internal/retriever"
	"github.com/ucengine/uce/internal/vector"
)

// Options override the default collaborators at construction time.
type Options struct {
	Parser      parser.Parser
	Provider    embedding.Provider
	VectorStore vector.Store
	Logger      *slog.Logger
}

// Engine owns the project index and answers queries against it.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	ix       *indexer.Indexer
	sparse   *bm25.Index
	dense    vector.Store
	local    *vector.LocalStore // non-nil when dense is the local store
	provider embedding.Provider
	embCache *embedding.Cache
	store    *persist.Store
	qcache   *retriever.QueryCache
	events   *metrics.Logger

	branch string
	mu     sync.Mutex // serializes refresh/update/branch switches
}

// Open loads any existing snapshot for the current (user, branch) and
// prepares the engine. No refresh is run; call Refresh for that.
func Open(cfg *config.Config, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := persist.NewStore(cfg.CachePath(), logger)
	if err != nil {
		return nil, err
	}

	p := opts.Parser
	if p == nil {
		p = parser.NewTreeSitter()
	}

	e := &Engine{
		cfg:    cfg,
		logger: logger,
		ix:     indexer.New(cfg, p, logger),
		sparse: bm25.New(bm25.Params{
			K1:         cfg.BM25.K1,
			B:          cfg.BM25.B,
			MinDF:      cfg.BM25.MinDF,
			MaxDFRatio: cfg.BM25.MaxDFRatio,
		}),
		store: store,
	}

	e.provider = opts.Provider
	if e.provider == nil && cfg.Embedding.Provider == "voyage" {
		if key := os.Getenv("VOYAGE_API_KEY"); key != "" {
			e.provider = embedding.NewVoyageClient(key, cfg.Embedding.Model)
		} else {
			logger.Warn("VOYAGE_API_KEY not set, dense search disabled")
		}
	}

	e.dense = opts.VectorStore
	if e.dense == nil {
		if cfg.Storage.QdrantURL != "" && e.provider != nil {
			qs, err := vector.NewQdrantStore(context.Background(), cfg.Storage.QdrantURL,
				"uce-"+cfg.UserID, e.provider.Dimensions())
			if err != nil {
				logger.Warn("qdrant unavailable, using local vector store", "error", err)
			} else {
				e.dense = qs
			}
		}
		if e.dense == nil {
			e.local = vector.NewLocalStore(store.VectorsPath())
			e.dense = e.local
		}
	}

	if e.provider != nil {
		e.embCache, err = embedding.NewCache(cfg.EmbeddingCachePath(),
			cfg.Embedding.MaxSizeMB, cfg.Embedding.MaxAgeDays, logger)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Storage.RedisURL != "" {
		qc, err := retriever.NewQueryCache(cfg.Storage.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, query cache disabled", "error", err)
		} else {
			e.qcache = qc
		}
	}

	if events, err := metrics.NewLogger(filepath.Join(store.Dir(), "metrics.jsonl")); err == nil {
		e.events = events
	}

	git := e.probeGit()
	e.ix.SetGit(git)
	e.branch = e.branchKey(git)

	if project, err := store.LoadIndex(cfg.UserID, e.branch); err != nil {
		return nil, err
	} else if project != nil {
		e.ix.LoadSnapshot(project)
		e.rebuildSparse()
		logger.Info("snapshot loaded",
			"branch", e.branch, "files", len(project.Files), "generation", project.Generation)
	}

	return e, nil
}

func (e *Engine) probeGit() gitinfo.Info {
	if e.cfg.GitBranchEnabled() {
		return gitinfo.Probe(e.cfg.ProjectRoot)
	}
	return gitinfo.Info{Branch: "main"}
}

func (e *Engine) branchKey(git gitinfo.Info) string {
	if !e.cfg.GitBranchEnabled() {
		return "main"
	}
	return git.SnapshotBranch()
}

// Branch returns the snapshot branch the engine is bound to.
func (e *Engine) Branch() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.branch
}

// Indexer exposes the read-only query surface.
func (e *Engine) Indexer() *indexer.Indexer { return e.ix }

// Refresh runs a full discovery-and-diff cycle, syncs the search
// structures, and persists the snapshot.
func (e *Engine) Refresh(ctx context.Context) (*indexer.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureBranchLocked(ctx); err != nil {
		return nil, err
	}

	result, err := e.ix.FullRefresh(ctx)
	if err != nil {
		if e.events != nil {
			e.events.LogError("refresh", err.Error())
		}
		return nil, err
	}

	e.syncSearch(ctx, result)
	if err := e.persistLocked(); err != nil {
		return nil, err
	}

	if e.events != nil {
		e.events.LogRefresh(result.Added, result.Modified, result.Cached,
			result.Removed, result.Generation, result.Duration.Milliseconds())
	}
	return result, nil
}

// Update reparses the given paths plus dependents, syncs search
// structures, and persists.
func (e *Engine) Update(ctx context.Context, paths []string) (*indexer.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureBranchLocked(ctx); err != nil {
		return nil, err
	}

	result, err := e.ix.Update(ctx, paths)
	if err != nil {
		if e.events != nil {
			e.events.LogError("update", err.Error())
		}
		return nil, err
	}

	e.syncSearch(ctx, result)
	if err := e.persistLocked(); err != nil {
		return nil, err
	}

	if e.events != nil {
		e.events.LogUpdate(len(result.Reparsed), result.Removed,
			result.Generation, result.Duration.Milliseconds())
	}
	return result, nil
}

// ensureBranchLocked detects a branch switch: the current index is
// persisted under its old key and dropped, and the new branch's
// snapshot (if any) is loaded. Indices never mix across branches.
func (e *Engine) ensureBranchLocked(ctx context.Context) error {
	git := e.probeGit()
	branch := e.branchKey(git)
	if branch == e.branch {
		return nil
	}

	e.logger.Info("branch switch", "from", e.branch, "to", branch)
	if err := e.persistLocked(); err != nil {
		e.logger.Warn("persist before branch switch failed", "error", err)
	}

	e.ix.Reset()
	e.ix.SetGit(git)
	e.branch = branch

	e.sparse = bm25.New(bm25.Params{
		K1:         e.cfg.BM25.K1,
		B:          e.cfg.BM25.B,
		MinDF:      e.cfg.BM25.MinDF,
		MaxDFRatio: e.cfg.BM25.MaxDFRatio,
	})
	if err := e.dense.Clear(ctx); err != nil {
		e.logger.Warn("vector store clear failed", "error", err)
	}

	project, err := e.store.LoadIndex(e.cfg.UserID, branch)
	if err != nil {
		return err
	}
	if project != nil {
		e.ix.LoadSnapshot(project)
		e.rebuildSparse()
	}
	return nil
}

// rebuildSparse reingests every chunk into a fresh BM25 index.
func (e *Engine) rebuildSparse() {
	for _, rec := range e.ix.Store().Records() {
		for _, c := range rec.Chunks {
			e.sparse.Add(c.ID, searchText(c))
		}
	}
}

// syncSearch drops stale chunks from both indexes and ingests the
// chunks of every reparsed file. Failures degrade search, never the
// index.
func (e *Engine) syncSearch(ctx context.Context, result *indexer.Result) {
	for _, id := range result.StaleChunks {
		e.sparse.Remove(id)
	}
	if len(result.StaleChunks) > 0 {
		if err := e.dense.Delete(ctx, result.StaleChunks); err != nil {
			e.logger.Warn("vector delete failed", "error", err)
		}
	}

	var fresh []parser.Chunk
	for _, p := range result.Reparsed {
		rec := e.ix.Store().Get(p)
		if rec == nil {
			continue
		}
		for _, c := range rec.Chunks {
			e.sparse.Add(c.ID, searchText(c))
			fresh = append(fresh, c)
		}
	}

	if e.provider == nil || len(fresh) == 0 {
		return
	}

	texts := make([]string, len(fresh))
	for i, c := range fresh {
		texts[i] = searchText(c)
	}
	vectors := e.embCache.EmbedBatch(ctx, e.provider, texts, e.cfg.Embedding.BatchSize)

	var items []vector.Embedded
	for i, c := range fresh {
		if vectors[i] == nil {
			continue
		}
		items = append(items, vector.Embedded{Chunk: c, Vector: vectors[i]})
	}
	if len(items) > 0 {
		if err := e.dense.Add(ctx, items); err != nil {
			e.logger.Warn("vector ingest failed", "error", err)
		}
	}
	if err := e.embCache.Save(); err != nil {
		e.logger.Warn("embedding cache save failed", "error", err)
	}
}

// searchText is what gets tokenized and embedded for a chunk: symbol
// names lead so identifier queries hit even when bodies are long.
func searchText(c parser.Chunk) string {
	var parts []string
	if c.PrimarySymbol != "" {
		parts = append(parts, c.PrimarySymbol)
	}
	if len(c.Symbols) > 0 {
		parts = append(parts, strings.Join(c.Symbols, " "))
	}
	parts = append(parts, c.Content)
	return strings.Join(parts, "\n")
}

// persistLocked writes the index snapshot and the engine state.
func (e *Engine) persistLocked() error {
	project := e.ix.Project()
	if err := e.store.SaveIndex(e.cfg.UserID, e.branch, project); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}

	embCount := 0
	if e.dense != nil {
		if n, err := e.dense.Count(context.Background()); err == nil {
			embCount = n
		}
	}

	state := &persist.State{
		Version:         project.Version,
		UCEVersion:      persist.UCEVersion,
		Timestamp:       time.Now().UTC(),
		Root:            e.cfg.ProjectRoot,
		Git:             project.Git,
		FileHashes:      e.ix.FileHashes(),
		Generation:      project.Generation,
		EmbeddingsCount: embCount,
		BM25Vocab:       e.sparse.VocabSize(),
		GraphNodeCount:  len(project.Files),
		Stats:           project.Stats,
	}
	if err := e.store.SaveState(state); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}

	if e.local != nil {
		if err := e.local.Save(); err != nil {
			e.logger.Warn("vector snapshot save failed", "error", err)
		}
	}
	return nil
}

// Search runs hybrid retrieval. Results come back ranked with both
// component scores.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]retriever.Result, error) {
	start := time.Now()

	if cached, ok := e.cachedResults(ctx, query, limit); ok {
		if e.events != nil {
			e.events.LogSearch(query, len(cached), time.Since(start).Milliseconds(), true)
		}
		return cached, nil
	}

	h := retriever.New(e.sparse, e.dense, e.provider, e.ix.ChunkByID, e.logger)
	results, err := h.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	e.storeResults(ctx, query, limit, results)
	if e.events != nil {
		e.events.LogSearch(query, len(results), time.Since(start).Milliseconds(), false)
	}
	return results, nil
}

func (e *Engine) queryKey(query string, limit int) string {
	return retriever.Key(e.cfg.UserID, e.ix.Generation(), fmt.Sprintf("%s|%d", query, limit))
}

func (e *Engine) cachedResults(ctx context.Context, query string, limit int) ([]retriever.Result, bool) {
	if e.qcache == nil {
		return nil, false
	}
	raw, err := e.qcache.Get(ctx, e.queryKey(query, limit))
	if err != nil || raw == "" {
		return nil, false
	}
	var results []retriever.Result
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return nil, false
	}
	return results, true
}

func (e *Engine) storeResults(ctx context.Context, query string, limit int, results []retriever.Result) {
	if e.qcache == nil {
		return
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := e.qcache.Set(ctx, e.queryKey(query, limit), string(raw)); err != nil {
		e.logger.Debug("query cache set failed", "error", err)
	}
}

// ContextOptions tune a Context call.
type ContextOptions struct {
	MaxTokens     int // overrides config when > 0
	PriorityFiles []string
}

// ContextResult is the budgeted context assembly.
type ContextResult struct {
	Selection budget.Selection
	Results   []retriever.Result
}

// Context retrieves candidates for the query and selects a
// token-budgeted, file-diverse subset.
func (e *Engine) Context(ctx context.Context, query string, opts ContextOptions) (*ContextResult, error) {
	// Over-fetch so the optimizer has a real pool to trade within.
	results, err := e.Search(ctx, query, 50)
	if err != nil {
		return nil, err
	}

	// RRF scores live near 1/K; normalize against the best hit so the
	// optimizer's score thresholds keep their meaning.
	var maxScore float64
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	if maxScore == 0 {
		maxScore = 1
	}

	candidates := make([]budget.Chunk, len(results))
	for i, r := range results {
		candidates[i] = budget.Chunk{
			ID:         r.Chunk.ID,
			Score:      r.Score / maxScore,
			TokenCount: r.Chunk.TokenCount,
			File:       r.Chunk.File,
			StartLine:  r.Chunk.StartLine,
			EndLine:    r.Chunk.EndLine,
			Symbols:    r.Chunk.Symbols,
		}
	}

	params := budget.Params{
		MaxTokens:       e.cfg.Budget.MaxTokens,
		SystemReserve:   e.cfg.Budget.SystemReserve,
		ResponseReserve: e.cfg.Budget.ResponseReserve,
		MinScore:        e.cfg.Budget.MinScore,
		DiversityWeight: e.cfg.Budget.DiversityWeight,
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = opts.MaxTokens
	}

	var sel budget.Selection
	if len(opts.PriorityFiles) > 0 {
		sel = budget.OptimizeWithPriority(candidates, opts.PriorityFiles, params)
	} else {
		sel = budget.Optimize(candidates, params)
	}

	return &ContextResult{Selection: sel, Results: results}, nil
}

// Close persists caches and releases external connections.
func (e *Engine) Close() error {
	if e.embCache != nil {
		if err := e.embCache.Save(); err != nil {
			e.logger.Warn("embedding cache save failed", "error", err)
		}
	}
	if e.local != nil {
		if err := e.local.Save(); err != nil {
			e.logger.Warn("vector snapshot save failed", "error", err)
		}
	}
	if e.qcache != nil {
		e.qcache.Close()
	}
	if qs, ok := e.dense.(*vector.QdrantStore); ok {
		qs.Close()
	}
	if e.events != nil {
		e.events.Close()
	}
	return nil
}
