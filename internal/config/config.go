// Package config holds the engine configuration surface.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the single configuration struct recognized by the engine.
// Every field except ProjectRoot is optional; zero values are filled in
// by Default() / applyDefaults.
type Config struct {
	ProjectRoot string `yaml:"project_root"`
	UserID      string `yaml:"user_id"`
	CacheDir    string `yaml:"cache_dir"` // relative to ProjectRoot unless absolute

	IgnorePatterns []string `yaml:"ignore_patterns"`
	MaxFileSize    int64    `yaml:"max_file_size"`

	EnableGitBranch *bool `yaml:"enable_git_branch"`

	ParseBatchSize int `yaml:"parse_batch_size"`

	BM25      BM25Config      `yaml:"bm25"`
	Budget    BudgetConfig    `yaml:"budget"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BM25Config tunes the sparse index.
type BM25Config struct {
	K1         float64 `yaml:"k1"`
	B          float64 `yaml:"b"`
	MinDF      int     `yaml:"min_df"`
	MaxDFRatio float64 `yaml:"max_df_ratio"`
}

// BudgetConfig tunes the context-budget optimizer.
type BudgetConfig struct {
	MaxTokens       int     `yaml:"max_tokens"`
	SystemReserve   int     `yaml:"system_reserve"`
	ResponseReserve int     `yaml:"response_reserve"`
	MinScore        float64 `yaml:"min_score"`
	DiversityWeight float64 `yaml:"diversity_weight"`
}

// EmbeddingConfig selects the embedding provider and cache limits.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "voyage" or "" to disable dense search
	Model      string `yaml:"model"`
	BatchSize  int    `yaml:"batch_size"`
	CacheDir   string `yaml:"cache_dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// StorageConfig points at optional external services.
type StorageConfig struct {
	QdrantURL string `yaml:"qdrant_url"` // empty → local vector store
	RedisURL  string `yaml:"redis_url"`  // empty → no query cache
}

type LoggingConfig struct {
	Level string `yaml:"level"` // error|warn|info|debug
}

// DefaultMaxFileSize is 1 MiB.
const DefaultMaxFileSize = 1 << 20

// Default returns a config with every optional field populated.
func Default(projectRoot string) *Config {
	cfg := &Config{ProjectRoot: projectRoot}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.UserID == "" {
		c.UserID = "default"
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.EnableGitBranch == nil {
		t := true
		c.EnableGitBranch = &t
	}
	if c.ParseBatchSize <= 0 {
		c.ParseBatchSize = 50
	}
	if c.BM25.K1 == 0 {
		c.BM25.K1 = 1.2
	}
	if c.BM25.B == 0 {
		c.BM25.B = 0.75
	}
	if c.BM25.MinDF == 0 {
		c.BM25.MinDF = 1
	}
	if c.BM25.MaxDFRatio == 0 {
		c.BM25.MaxDFRatio = 0.9
	}
	if c.Budget.MaxTokens == 0 {
		c.Budget.MaxTokens = 8000
	}
	if c.Budget.SystemReserve == 0 {
		c.Budget.SystemReserve = 500
	}
	if c.Budget.ResponseReserve == 0 {
		c.Budget.ResponseReserve = 2000
	}
	if c.Budget.MinScore == 0 {
		c.Budget.MinScore = 0.1
	}
	if c.Budget.DiversityWeight == 0 {
		c.Budget.DiversityWeight = 0.3
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "voyage-code-3"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 64
	}
	if c.Embedding.MaxSizeMB <= 0 {
		c.Embedding.MaxSizeMB = 100
	}
	if c.Embedding.MaxAgeDays <= 0 {
		c.Embedding.MaxAgeDays = 30
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// GitBranchEnabled reports whether branch-partitioned snapshots are on.
func (c *Config) GitBranchEnabled() bool {
	return c.EnableGitBranch == nil || *c.EnableGitBranch
}

// CachePath resolves the cache directory against the project root.
// When unset, an existing .context or .uce directory is reused and
// .uce is the default for fresh data.
func (c *Config) CachePath() string {
	if c.CacheDir == "" {
		for _, name := range []string{".context", ".uce"} {
			dir := filepath.Join(c.ProjectRoot, name)
			if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
				return dir
			}
		}
		return filepath.Join(c.ProjectRoot, ".uce")
	}
	if filepath.IsAbs(c.CacheDir) {
		return c.CacheDir
	}
	return filepath.Join(c.ProjectRoot, c.CacheDir)
}

// EmbeddingCachePath resolves the embedding cache directory.
func (c *Config) EmbeddingCachePath() string {
	if c.Embedding.CacheDir == "" {
		return filepath.Join(c.CachePath(), "embeddings")
	}
	if filepath.IsAbs(c.Embedding.CacheDir) {
		return c.Embedding.CacheDir
	}
	return filepath.Join(c.ProjectRoot, c.Embedding.CacheDir)
}

// Load reads a yaml config file and merges it over defaults. A missing
// file is not an error; the defaults are returned.
func Load(path, projectRoot string) (*Config, error) {
	cfg := &Config{ProjectRoot: projectRoot}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.ProjectRoot == "" {
		cfg.ProjectRoot = projectRoot
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if c.ProjectRoot == "" {
		return fmt.Errorf("project_root is required")
	}
	return nil
}
