package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func params(maxTokens int) Params {
	return Params{
		MaxTokens:       maxTokens,
		SystemReserve:   500,
		ResponseReserve: 2000,
		MinScore:        0.1,
		DiversityWeight: 0.3,
	}
}

func TestInfeasibleBudget(t *testing.T) {
	// Reserves swallow the whole budget: empty selection, not an error.
	sel := Optimize([]Chunk{{ID: "a", Score: 0.9, TokenCount: 10, File: "f"}}, params(2000))
	assert.Empty(t, sel.Chunks)
	assert.Zero(t, sel.TotalTokens)
}

func TestSelectionRespectsBudget(t *testing.T) {
	chunks := []Chunk{
		{ID: "a", Score: 0.9, TokenCount: 300, File: "f1", StartLine: 1},
		{ID: "b", Score: 0.8, TokenCount: 300, File: "f2", StartLine: 1},
		{ID: "c", Score: 0.7, TokenCount: 300, File: "f3", StartLine: 1},
	}
	p := params(3100) // 600 available
	sel := Optimize(chunks, p)

	require.Len(t, sel.Chunks, 2)
	assert.LessOrEqual(t, sel.TotalTokens, p.Available())
	assert.Equal(t, p.Available()-sel.TotalTokens, sel.Remaining)
}

func TestProgressWhenAnythingFits(t *testing.T) {
	chunks := []Chunk{
		{ID: "big", Score: 0.9, TokenCount: 10000, File: "f1"},
		{ID: "small", Score: 0.2, TokenCount: 50, File: "f2"},
	}
	sel := Optimize(chunks, params(3000)) // 500 available
	require.Len(t, sel.Chunks, 1)
	assert.Equal(t, "small", sel.Chunks[0].ID)
}

func TestMinScoreFilter(t *testing.T) {
	chunks := []Chunk{
		{ID: "good", Score: 0.5, TokenCount: 100, File: "f1"},
		{ID: "noise", Score: 0.05, TokenCount: 100, File: "f2"},
	}
	sel := Optimize(chunks, params(5000))
	require.Len(t, sel.Chunks, 1)
	assert.Equal(t, "good", sel.Chunks[0].ID)
}

func TestDiversityPrefersSecondFile(t *testing.T) {
	// Budget fits three but only two of these; the diversity bonus
	// pulls in f2 over the second f1 chunk.
	chunks := []Chunk{
		{ID: "a", Score: 0.9, TokenCount: 100, File: "f1", StartLine: 10},
		{ID: "b", Score: 0.89, TokenCount: 100, File: "f1", StartLine: 50},
		{ID: "c", Score: 0.85, TokenCount: 100, File: "f2", StartLine: 5},
	}
	p := Params{MaxTokens: 2850, SystemReserve: 500, ResponseReserve: 2000,
		MinScore: 0.1, DiversityWeight: 0.3} // 350 available

	sel := Optimize(chunks, p)
	require.Len(t, sel.Chunks, 3)

	// Drop the budget to two chunks: f2 must still be covered.
	p.MaxTokens = 2750 // 250 available
	sel = Optimize(chunks, p)
	require.Len(t, sel.Chunks, 2)
	assert.ElementsMatch(t, []string{"f1", "f2"}, sel.Files)

	ids := []string{sel.Chunks[0].ID, sel.Chunks[1].ID}
	assert.Contains(t, ids, "a")
	assert.Contains(t, ids, "c")
}

func TestDiversityEqualCandidates(t *testing.T) {
	chunks := []Chunk{
		{ID: "a", Score: 0.8, TokenCount: 100, File: "f1", StartLine: 1},
		{ID: "b", Score: 0.8, TokenCount: 100, File: "f1", StartLine: 40},
		{ID: "c", Score: 0.8, TokenCount: 100, File: "f2", StartLine: 1},
	}
	p := params(2700) // 200 available: two chunks
	sel := Optimize(chunks, p)

	require.Len(t, sel.Chunks, 2)
	assert.Len(t, sel.Files, 2, "diversity weight must cover both files")
}

func TestPriorityMode(t *testing.T) {
	// The priority file's mediocre chunk goes first under the capped
	// share; the better outside chunk follows from the residual.
	chunks := []Chunk{
		{ID: "hot", Score: 0.9, TokenCount: 200, File: "other.ts", StartLine: 1},
		{ID: "pri", Score: 0.4, TokenCount: 200, File: "priority.ts", StartLine: 1},
	}
	p := Params{MaxTokens: 2900, SystemReserve: 500, ResponseReserve: 2000,
		MinScore: 0.1, DiversityWeight: 0.3} // 400 available, cap 240

	sel := OptimizeWithPriority(chunks, []string{"priority.ts"}, p)
	require.Len(t, sel.Chunks, 2)
	assert.Equal(t, 400, sel.TotalTokens)
	assert.ElementsMatch(t, []string{"other.ts", "priority.ts"}, sel.Files)
}

func TestPriorityCap(t *testing.T) {
	// Two 200-token priority chunks exceed the 240-token cap: only
	// the better one is admitted, the rest of the budget goes to the
	// open pool.
	chunks := []Chunk{
		{ID: "p1", Score: 0.6, TokenCount: 200, File: "pri.ts", StartLine: 1},
		{ID: "p2", Score: 0.5, TokenCount: 200, File: "pri.ts", StartLine: 90},
		{ID: "open", Score: 0.3, TokenCount: 150, File: "other.ts", StartLine: 1},
	}
	p := Params{MaxTokens: 2900, SystemReserve: 500, ResponseReserve: 2000,
		MinScore: 0.1, DiversityWeight: 0.3} // 400 available, cap 240

	sel := OptimizeWithPriority(chunks, []string{"pri.ts"}, p)

	var ids []string
	for _, c := range sel.Chunks {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{"p1", "open"}, ids)
}

func TestOutputOrderedByFileAndLine(t *testing.T) {
	chunks := []Chunk{
		{ID: "z", Score: 0.9, TokenCount: 10, File: "z.ts", StartLine: 5},
		{ID: "a2", Score: 0.8, TokenCount: 10, File: "a.ts", StartLine: 90},
		{ID: "a1", Score: 0.7, TokenCount: 10, File: "a.ts", StartLine: 10},
	}
	sel := Optimize(chunks, params(5000))
	require.Len(t, sel.Chunks, 3)
	assert.Equal(t, []string{"a1", "a2", "z"},
		[]string{sel.Chunks[0].ID, sel.Chunks[1].ID, sel.Chunks[2].ID})
}

func TestDeterministicTieBreak(t *testing.T) {
	// Identical adjusted scores: the earlier-ranked chunk wins the
	// single slot.
	chunks := []Chunk{
		{ID: "first", Score: 0.8, TokenCount: 100, File: "f1", StartLine: 1},
		{ID: "second", Score: 0.8, TokenCount: 100, File: "f2", StartLine: 1},
	}
	p := params(2600) // 100 available: one slot
	for i := 0; i < 10; i++ {
		sel := Optimize(chunks, p)
		require.Len(t, sel.Chunks, 1)
		assert.Equal(t, "first", sel.Chunks[0].ID)
	}
}

func TestAverageScore(t *testing.T) {
	chunks := []Chunk{
		{ID: "a", Score: 0.6, TokenCount: 10, File: "f1", StartLine: 1},
		{ID: "b", Score: 0.4, TokenCount: 10, File: "f2", StartLine: 1},
	}
	sel := Optimize(chunks, params(5000))
	require.Len(t, sel.Chunks, 2)
	assert.InDelta(t, 0.5, sel.AvgScore, 1e-9)
}
