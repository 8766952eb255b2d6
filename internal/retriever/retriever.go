// Package retriever fuses sparse and dense search with weighted
// Reciprocal Rank Fusion.
package retriever

import (
	"context"
	"log/slog"
	"sort"

	"github.com/ucengine/uce/internal/bm25"
	"github.com/ucengine/uce/internal/embedding"
	"github.com/ucengine/uce/internal/parser"
	"github.com/ucengine/uce/internal/vector"
)

// Defaults for the fusion constants.
const (
	DefaultRRFK    = 60
	DefaultWSparse = 0.4
	DefaultWDense  = 0.6
	maxFetch       = 100
)

// Result is a fused hit with both component scores preserved.
type Result struct {
	Chunk       parser.Chunk
	Score       float64
	SparseScore float64
	DenseScore  float64
}

// Hybrid runs BM25 plus optional dense search. The query path is pure
// CPU except for the dense round trip; it never touches the file
// system.
type Hybrid struct {
	sparse   *bm25.Index
	dense    vector.Store
	provider embedding.Provider
	resolve  func(id string) (parser.Chunk, bool)

	K        int
	WSparse  float64
	WDense   float64
	MinScore float64

	logger *slog.Logger
}

// New builds a retriever. dense and provider may be nil, in which
// case hybrid reduces to sparse-only. resolve maps chunk IDs to their
// denormalized metadata.
func New(sparse *bm25.Index, dense vector.Store, provider embedding.Provider, resolve func(string) (parser.Chunk, bool), logger *slog.Logger) *Hybrid {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hybrid{
		sparse:   sparse,
		dense:    dense,
		provider: provider,
		resolve:  resolve,
		K:        DefaultRRFK,
		WSparse:  DefaultWSparse,
		WDense:   DefaultWDense,
		logger:   logger,
	}
}

type fused struct {
	id          string
	score       float64
	sparseScore float64
	denseScore  float64
	chunk       parser.Chunk
	hasChunk    bool
	firstSeen   int
}

// Search returns up to limit fused results, descending by score,
// ties broken by (first-seen list, original rank).
func (h *Hybrid) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	fetch := limit * 3
	if fetch > maxFetch {
		fetch = maxFetch
	}

	var sparseHits []bm25.Hit
	if h.sparse != nil {
		sparseHits = h.sparse.Search(query, fetch)
	}

	var denseHits []vector.Result
	if h.dense != nil && h.provider != nil {
		vecs, err := h.provider.Embed(ctx, []string{query})
		if err != nil || len(vecs) == 0 || vecs[0] == nil {
			// Provider failure degrades this query to sparse-only.
			h.logger.Warn("query embedding failed, sparse-only", "error", err)
		} else {
			denseHits, err = h.dense.Search(ctx, vecs[0], fetch, nil)
			if err != nil {
				h.logger.Warn("dense search failed, sparse-only", "error", err)
				denseHits = nil
			}
		}
	}

	entries := make(map[string]*fused)
	order := 0
	get := func(id string) *fused {
		e, ok := entries[id]
		if !ok {
			e = &fused{id: id, firstSeen: order}
			order++
			entries[id] = e
		}
		return e
	}

	for rank, hit := range sparseHits {
		e := get(hit.ID)
		e.sparseScore = hit.Score
		e.score += h.WSparse / float64(h.K+rank+1)
	}
	for rank, hit := range denseHits {
		e := get(hit.ID)
		e.denseScore = hit.Score
		e.score += h.WDense / float64(h.K+rank+1)
		if !e.hasChunk {
			e.chunk = hit.Chunk
			e.hasChunk = true
		}
	}

	list := make([]*fused, 0, len(entries))
	for _, e := range entries {
		if h.resolve != nil {
			if resolved, found := h.resolve(e.id); found {
				e.chunk, e.hasChunk = resolved, true
			}
		}
		if !e.hasChunk {
			// Metadata vanished between index and search; skip.
			continue
		}
		// Retrieval weight (e.g. test-file downweighting) scales the
		// fused score before ranking.
		if e.chunk.Weight > 0 && e.chunk.Weight != 1.0 {
			e.score *= e.chunk.Weight
		}
		list = append(list, e)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].firstSeen < list[j].firstSeen
	})

	var results []Result
	for _, e := range list {
		if len(results) == limit {
			break
		}
		if e.score < h.MinScore {
			continue
		}
		results = append(results, Result{
			Chunk:       e.chunk,
			Score:       e.score,
			SparseScore: e.sparseScore,
			DenseScore:  e.denseScore,
		})
	}

	return results, nil
}
