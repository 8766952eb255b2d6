// Package budget selects a token-bounded subset of ranked chunks,
// trading raw relevance against file diversity.
package budget

import "sort"

// Params govern a selection run.
type Params struct {
	MaxTokens       int
	SystemReserve   int
	ResponseReserve int
	MinScore        float64
	DiversityWeight float64
}

// DefaultParams mirror the configuration defaults.
func DefaultParams(maxTokens int) Params {
	return Params{
		MaxTokens:       maxTokens,
		SystemReserve:   500,
		ResponseReserve: 2000,
		MinScore:        0.1,
		DiversityWeight: 0.3,
	}
}

// Available returns the budget left after reserves.
func (p Params) Available() int {
	return p.MaxTokens - p.SystemReserve - p.ResponseReserve
}

// Chunk is a ranked candidate. Order in the input slice is the rank;
// ties resolve to the earlier index.
type Chunk struct {
	ID         string
	Score      float64
	TokenCount int
	File       string
	StartLine  int
	EndLine    int
	Symbols    []string
}

// Selection is the optimizer output. Chunks are ordered by
// (file, start line) for coherent presentation.
type Selection struct {
	Chunks      []Chunk
	TotalTokens int
	Remaining   int
	Files       []string
	AvgScore    float64
}

// priorityShare caps how much of the budget priority files may claim.
const priorityShare = 0.6

// Optimize runs the greedy diversity loop over ranked chunks. A
// non-positive available budget yields an empty selection, not an
// error.
func Optimize(chunks []Chunk, p Params) Selection {
	available := p.Available()
	if available <= 0 {
		return finish(nil, available)
	}
	picked, _ := greedy(eligible(chunks, p.MinScore), available, p.DiversityWeight, nil)
	return finish(picked, available)
}

// OptimizeWithPriority first admits chunks from priority files in
// score order under a capped share of the budget, then runs the
// normal loop over the rest with whatever is left.
func OptimizeWithPriority(chunks []Chunk, priorityFiles []string, p Params) Selection {
	available := p.Available()
	if available <= 0 {
		return finish(nil, available)
	}

	priority := make(map[string]bool, len(priorityFiles))
	for _, f := range priorityFiles {
		priority[f] = true
	}

	pool := eligible(chunks, p.MinScore)
	var priorityPool, rest []candidate
	for _, c := range pool {
		if priority[c.chunk.File] {
			priorityPool = append(priorityPool, c)
		} else {
			rest = append(rest, c)
		}
	}

	// Score order within the priority pool, stable on rank.
	sort.SliceStable(priorityPool, func(i, j int) bool {
		return priorityPool[i].chunk.Score > priorityPool[j].chunk.Score
	})

	capTokens := int(priorityShare * float64(available))
	var picked []candidate
	used := 0
	usedFiles := make(map[string]bool)
	for _, c := range priorityPool {
		if used+c.chunk.TokenCount > capTokens {
			continue
		}
		picked = append(picked, c)
		used += c.chunk.TokenCount
		usedFiles[c.chunk.File] = true
	}

	more, _ := greedy(rest, available-used, p.DiversityWeight, usedFiles)
	picked = append(picked, more...)
	return finish(picked, available)
}

type candidate struct {
	chunk Chunk
	rank  int
}

func eligible(chunks []Chunk, minScore float64) []candidate {
	out := make([]candidate, 0, len(chunks))
	for i, c := range chunks {
		if c.Score < minScore {
			continue
		}
		out = append(out, candidate{chunk: c, rank: i})
	}
	return out
}

// greedy repeatedly picks the best-adjusted candidate that still fits.
// usedFiles may carry state from a priority phase; nil starts fresh.
func greedy(pool []candidate, budget int, diversityWeight float64, usedFiles map[string]bool) ([]candidate, int) {
	if usedFiles == nil {
		usedFiles = make(map[string]bool)
	}
	remaining := budget

	var picked []candidate
	for len(pool) > 0 {
		best := -1
		var bestAdjusted float64
		for i, c := range pool {
			if c.chunk.TokenCount > remaining {
				continue
			}
			adj := adjusted(c.chunk, usedFiles, diversityWeight)
			// Strict greater keeps the earlier rank on ties; the pool
			// preserves input order.
			if best == -1 || adj > bestAdjusted {
				best = i
				bestAdjusted = adj
			}
		}
		if best == -1 {
			break
		}

		c := pool[best]
		pool = append(pool[:best], pool[best+1:]...)
		picked = append(picked, c)
		remaining -= c.chunk.TokenCount
		usedFiles[c.chunk.File] = true
	}

	return picked, remaining
}

// adjusted boosts new files and dense (high score per token) chunks.
func adjusted(c Chunk, usedFiles map[string]bool, diversityWeight float64) float64 {
	adj := c.Score
	if !usedFiles[c.File] {
		adj += diversityWeight
	}
	tokens := c.TokenCount
	if tokens < 1 {
		tokens = 1
	}
	adj += 0.1 * (c.Score / float64(tokens))
	return adj
}

func finish(picked []candidate, available int) Selection {
	sel := Selection{Remaining: available}
	if available < 0 {
		sel.Remaining = 0
	}
	if len(picked) == 0 {
		return sel
	}

	sort.SliceStable(picked, func(i, j int) bool {
		a, b := picked[i].chunk, picked[j].chunk
		if a.File != b.File {
			return a.File < b.File
		}
		return a.StartLine < b.StartLine
	})

	seen := make(map[string]bool)
	var totalScore float64
	for _, c := range picked {
		sel.Chunks = append(sel.Chunks, c.chunk)
		sel.TotalTokens += c.chunk.TokenCount
		totalScore += c.chunk.Score
		if !seen[c.chunk.File] {
			seen[c.chunk.File] = true
			sel.Files = append(sel.Files, c.chunk.File)
		}
	}
	sel.Remaining = available - sel.TotalTokens
	sel.AvgScore = totalScore / float64(len(sel.Chunks))
	return sel
}
