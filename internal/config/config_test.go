package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default("/tmp/project")

	assert.Equal(t, "default", cfg.UserID)
	assert.Equal(t, int64(1<<20), cfg.MaxFileSize)
	assert.True(t, cfg.GitBranchEnabled())
	assert.Equal(t, 50, cfg.ParseBatchSize)

	assert.Equal(t, 1.2, cfg.BM25.K1)
	assert.Equal(t, 0.75, cfg.BM25.B)

	assert.Equal(t, 8000, cfg.Budget.MaxTokens)
	assert.Equal(t, 500, cfg.Budget.SystemReserve)
	assert.Equal(t, 2000, cfg.Budget.ResponseReserve)
	assert.Equal(t, 0.1, cfg.Budget.MinScore)
	assert.Equal(t, 0.3, cfg.Budget.DiversityWeight)

	assert.Equal(t, 100, cfg.Embedding.MaxSizeMB)
	assert.Equal(t, 30, cfg.Embedding.MaxAgeDays)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "/tmp/project")
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.UserID)
	assert.Equal(t, "/tmp/project", cfg.ProjectRoot)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "uce.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
user_id: alice
max_file_size: 2048
ignore_patterns:
  - "generated/"
bm25:
  k1: 1.5
budget:
  max_tokens: 16000
storage:
  redis_url: redis://localhost:6379
`), 0o644))

	cfg, err := Load(path, dir)
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.UserID)
	assert.Equal(t, int64(2048), cfg.MaxFileSize)
	assert.Equal(t, []string{"generated/"}, cfg.IgnorePatterns)
	assert.Equal(t, 1.5, cfg.BM25.K1)
	assert.Equal(t, 0.75, cfg.BM25.B, "unset fields keep defaults")
	assert.Equal(t, 16000, cfg.Budget.MaxTokens)
	assert.Equal(t, 2000, cfg.Budget.ResponseReserve)
	assert.Equal(t, "redis://localhost:6379", cfg.Storage.RedisURL)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n  - ["), 0o644))

	_, err := Load(path, dir)
	require.Error(t, err)
}

func TestCachePathResolution(t *testing.T) {
	root := t.TempDir()

	// No cache dir anywhere: fresh data goes to .uce.
	cfg := Default(root)
	assert.Equal(t, filepath.Join(root, ".uce"), cfg.CachePath())

	// An existing .context is reused.
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".context"), 0o755))
	assert.Equal(t, filepath.Join(root, ".context"), cfg.CachePath())

	// Explicit setting wins.
	cfg.CacheDir = ".custom"
	assert.Equal(t, filepath.Join(root, ".custom"), cfg.CachePath())
}

func TestEmbeddingCachePath(t *testing.T) {
	root := t.TempDir()
	cfg := Default(root)
	cfg.CacheDir = ".uce"
	assert.Equal(t, filepath.Join(root, ".uce", "embeddings"), cfg.EmbeddingCachePath())

	cfg.Embedding.CacheDir = "elsewhere"
	assert.Equal(t, filepath.Join(root, "elsewhere"), cfg.EmbeddingCachePath())
}

func TestGitBranchDisabled(t *testing.T) {
	cfg := Default("/p")
	f := false
	cfg.EnableGitBranch = &f
	assert.False(t, cfg.GitBranchEnabled())
}

func TestValidateRequiresRoot(t *testing.T) {
	cfg := Default("")
	require.Error(t, cfg.Validate())
}
