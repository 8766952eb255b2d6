package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucengine/uce/internal/parser"
)

func embedded(id, file string, vec ...float32) Embedded {
	return Embedded{
		Chunk:  parser.Chunk{ID: id, File: file, Content: id, Weight: 1.0},
		Vector: vec,
	}
}

func TestLocalStoreSearchRanksByCosine(t *testing.T) {
	s := NewLocalStore("")
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []Embedded{
		embedded("exact", "a.ts", 1, 0),
		embedded("close", "b.ts", 0.9, 0.1),
		embedded("orthogonal", "c.ts", 0, 1),
	}))

	results, err := s.Search(ctx, []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "exact", results[0].ID)
	assert.Equal(t, "close", results[1].ID)
	assert.Equal(t, "orthogonal", results[2].ID)

	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestLocalStoreFilter(t *testing.T) {
	s := NewLocalStore("")
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []Embedded{
		embedded("a", "a.ts", 1, 0),
		embedded("b", "b.ts", 1, 0),
	}))

	results, err := s.Search(ctx, []float32{1, 0}, 10, map[string]string{"file": "b.ts"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestLocalStoreDelete(t *testing.T) {
	s := NewLocalStore("")
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []Embedded{
		embedded("a", "a.ts", 1, 0),
		embedded("b", "b.ts", 1, 0),
		embedded("c", "b.ts", 1, 0),
	}))

	require.NoError(t, s.Delete(ctx, []string{"a"}))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.DeleteByFile(ctx, "b.ts"))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLocalStoreUpsert(t *testing.T) {
	s := NewLocalStore("")
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []Embedded{embedded("a", "a.ts", 1, 0)}))
	require.NoError(t, s.Add(ctx, []Embedded{embedded("a", "a.ts", 0, 1)}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := s.Search(ctx, []float32{0, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestLocalStoreSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.json")
	ctx := context.Background()

	s := NewLocalStore(path)
	require.NoError(t, s.Add(ctx, []Embedded{embedded("a", "a.ts", 1, 0)}))
	require.NoError(t, s.Save())

	reloaded := NewLocalStore(path)
	n, err := reloaded.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := reloaded.Search(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestLocalStoreClear(t *testing.T) {
	s := NewLocalStore("")
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []Embedded{embedded("a", "a.ts", 1, 0)}))
	require.NoError(t, s.Clear(ctx))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
