package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucengine/uce/internal/config"
	"github.com/ucengine/uce/internal/parser"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func newTestIndexer(t *testing.T, root string) *Indexer {
	t.Helper()
	cfg := config.Default(root)
	f := false
	cfg.EnableGitBranch = &f
	return New(cfg, parser.NewTreeSitter(), nil)
}

func setupChain(t *testing.T) (string, *Indexer) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "a.ts", "export function base() { return 1; }\n")
	writeFile(t, root, "b.ts", "import { base } from './a';\nexport function mid() { return base(); }\n")
	writeFile(t, root, "c.ts", "import { mid } from './b';\nexport function top() { return mid(); }\n")
	return root, newTestIndexer(t, root)
}

func TestFullRefreshInitial(t *testing.T) {
	_, ix := setupChain(t)

	result, err := ix.FullRefresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Added)
	assert.Zero(t, result.Modified)
	assert.Zero(t, result.Cached)
	assert.Zero(t, result.Removed)
	assert.Equal(t, uint64(1), result.Generation)
	assert.ElementsMatch(t, []string{"a.ts", "b.ts", "c.ts"}, result.Reparsed)

	// Dependency edges resolved through the relative imports.
	assert.Equal(t, []string{"a.ts"}, ix.DepsOf("b.ts"))
	assert.Equal(t, []string{"b.ts"}, ix.DependentsOf("a.ts"))
}

func TestFullRefreshNoChangeIsAllCached(t *testing.T) {
	_, ix := setupChain(t)

	_, err := ix.FullRefresh(context.Background())
	require.NoError(t, err)

	result, err := ix.FullRefresh(context.Background())
	require.NoError(t, err)

	assert.Zero(t, result.Added)
	assert.Zero(t, result.Modified)
	assert.Zero(t, result.Removed)
	assert.Equal(t, 3, result.Cached)
	assert.Empty(t, result.Reparsed)
	assert.Equal(t, uint64(2), result.Generation)
}

func TestUpdateCascadesToDependents(t *testing.T) {
	root, ix := setupChain(t)
	_, err := ix.FullRefresh(context.Background())
	require.NoError(t, err)

	writeFile(t, root, "a.ts", "export function base() { return 2; }\n")
	result, err := ix.Update(context.Background(), []string{"a.ts"})
	require.NoError(t, err)

	// The whole chain reparses: b imports a, c imports b.
	assert.ElementsMatch(t, []string{"a.ts", "b.ts", "c.ts"}, result.Reparsed)
	assert.Equal(t, uint64(2), result.Generation)
	assert.Equal(t, 1, result.Modified)
}

func TestFullRefreshDetectsModification(t *testing.T) {
	root, ix := setupChain(t)
	_, err := ix.FullRefresh(context.Background())
	require.NoError(t, err)

	writeFile(t, root, "a.ts", "export function base() { return 99; }\n")
	result, err := ix.FullRefresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Modified)
	assert.Equal(t, 2, result.Cached)
	assert.ElementsMatch(t, []string{"a.ts", "b.ts", "c.ts"}, result.Reparsed)
}

func TestRemovedFileDropsRecordAndChunks(t *testing.T) {
	root, ix := setupChain(t)
	_, err := ix.FullRefresh(context.Background())
	require.NoError(t, err)

	var removedChunks []string
	for _, c := range ix.Store().Get("c.ts").Chunks {
		removedChunks = append(removedChunks, c.ID)
	}
	require.NotEmpty(t, removedChunks)

	require.NoError(t, os.Remove(filepath.Join(root, "c.ts")))
	result, err := ix.FullRefresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Removed)
	assert.Nil(t, ix.Store().Get("c.ts"))
	for _, id := range removedChunks {
		assert.Contains(t, result.StaleChunks, id)
		_, ok := ix.ChunkByID(id)
		assert.False(t, ok)
	}
}

func TestHashInvariant(t *testing.T) {
	root, ix := setupChain(t)
	_, err := ix.FullRefresh(context.Background())
	require.NoError(t, err)

	for p, h := range ix.FileHashes() {
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(p)))
		require.NoError(t, err)
		assert.Equal(t, HashBytes(content), h, "hash invariant for %s", p)
		assert.Equal(t, h, ix.Store().Get(p).Hash)
	}
}

func TestCancellationLeavesStateUntouched(t *testing.T) {
	_, ix := setupChain(t)
	_, err := ix.FullRefresh(context.Background())
	require.NoError(t, err)
	gen := ix.Generation()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ix.FullRefresh(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, gen, ix.Generation(), "generation must not move on cancel")
}

type failingParser struct{}

func (failingParser) Parse(string, []byte) (*parser.Result, error) {
	return nil, errors.New("synthetic parse failure")
}

func TestParseFailureKeepsFileWithErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "bad.ts", "whatever\n")

	cfg := config.Default(root)
	f := false
	cfg.EnableGitBranch = &f
	ix := New(cfg, failingParser{}, nil)

	result, err := ix.FullRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)

	rec := ix.Store().Get("bad.ts")
	require.NotNil(t, rec)
	assert.Empty(t, rec.Symbols)
	assert.Empty(t, rec.Chunks)
	require.NotEmpty(t, rec.Errors)
	assert.Contains(t, rec.Errors[0].Message, "synthetic parse failure")
}

type panickingParser struct{}

func (panickingParser) Parse(string, []byte) (*parser.Result, error) {
	panic("parser exploded")
}

func TestParserPanicIsCaptured(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "boom.ts", "x\n")

	cfg := config.Default(root)
	f := false
	cfg.EnableGitBranch = &f
	ix := New(cfg, panickingParser{}, nil)

	result, err := ix.FullRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)

	rec := ix.Store().Get("boom.ts")
	require.NotNil(t, rec)
	require.NotEmpty(t, rec.Errors)
	assert.Contains(t, rec.Errors[0].Message, "parser panic")
}

func TestOversizedFileTreatedAsRemoved(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.ts", "export const x = 1;\n")

	cfg := config.Default(root)
	cfg.MaxFileSize = 256
	f := false
	cfg.EnableGitBranch = &f
	ix := New(cfg, parser.NewTreeSitter(), nil)

	_, err := ix.FullRefresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ix.Store().Get("small.ts"))

	// Grow past the limit: the next refresh treats it as removed.
	big := make([]byte, 512)
	for i := range big {
		big[i] = 'x'
	}
	writeFile(t, root, "small.ts", "export const x = \""+string(big)+"\";\n")

	result, err := ix.FullRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)
	assert.Nil(t, ix.Store().Get("small.ts"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	_, ix := setupChain(t)
	_, err := ix.FullRefresh(context.Background())
	require.NoError(t, err)

	project := ix.Project()
	require.Len(t, project.Files, 3)
	require.Equal(t, uint64(1), project.Generation)

	restored := newTestIndexer(t, ix.cfg.ProjectRoot)
	restored.LoadSnapshot(project)

	assert.Equal(t, ix.Generation(), restored.Generation())
	assert.Equal(t, ix.FileHashes(), restored.FileHashes())
	assert.Equal(t, []string{"a.ts"}, restored.DepsOf("b.ts"))

	// A refresh over the restored snapshot sees nothing to do.
	result, err := restored.FullRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Cached)
	assert.Zero(t, result.Added)
}

func TestUpdateNewFile(t *testing.T) {
	root, ix := setupChain(t)
	_, err := ix.FullRefresh(context.Background())
	require.NoError(t, err)

	writeFile(t, root, "d.ts", "import { top } from './c';\nexport const v = top();\n")
	result, err := ix.Update(context.Background(), []string{"d.ts"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Added)
	require.NotNil(t, ix.Store().Get("d.ts"))
	assert.Equal(t, []string{"c.ts"}, ix.DepsOf("d.ts"))
}

func TestHashBytes(t *testing.T) {
	assert.Equal(t, EmptyDigest, HashBytes(nil))
	assert.Equal(t, EmptyDigest, HashBytes([]byte{}))
	h := HashBytes([]byte("content"))
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashBytes([]byte("content")))
	assert.NotEqual(t, h, HashBytes([]byte("other")))
}
