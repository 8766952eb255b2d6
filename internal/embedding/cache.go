package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// batchTimeout bounds a single provider call; one slow batch must not
// wedge the whole ingest.
const batchTimeout = 30 * time.Second

type cacheEntry struct {
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	ContentHash string    `json:"content_hash"`
	Vector      []float32 `json:"vector"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsed    time.Time `json:"last_used"`
}

func (e *cacheEntry) bytes() int64 {
	return int64(len(e.Vector))*4 + 128
}

// Cache is the content-addressed embedding cache: entries are keyed
// by (provider, model, sha256 of content), evicted LRU under a byte
// budget, and purged by age at initialization.
type Cache struct {
	mu       sync.Mutex
	dir      string
	maxBytes int64
	maxAge   time.Duration
	entries  map[string]*cacheEntry
	total    int64
	logger   *slog.Logger
	now      func() time.Time
}

// NewCache loads (or creates) the snapshot under dir.
func NewCache(dir string, maxSizeMB, maxAgeDays int, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create embedding cache dir: %w", err)
	}

	c := &Cache{
		dir:      dir,
		maxBytes: int64(maxSizeMB) << 20,
		maxAge:   time.Duration(maxAgeDays) * 24 * time.Hour,
		entries:  make(map[string]*cacheEntry),
		logger:   logger,
		now:      time.Now,
	}
	c.load()
	c.purgeExpired()
	return c, nil
}

func (c *Cache) snapshotPath() string {
	return filepath.Join(c.dir, "embeddings.json")
}

func (c *Cache) load() {
	data, err := os.ReadFile(c.snapshotPath())
	if err != nil {
		return
	}
	var entries map[string]*cacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("embedding cache snapshot unreadable, starting empty", "error", err)
		return
	}
	c.entries = entries
	for _, e := range c.entries {
		c.total += e.bytes()
	}
}

func (c *Cache) purgeExpired() {
	cutoff := c.now().Add(-c.maxAge)
	for key, e := range c.entries {
		if e.CreatedAt.Before(cutoff) {
			c.total -= e.bytes()
			delete(c.entries, key)
		}
	}
}

// Save writes the snapshot. Called after mutating batches and on
// close; a single batch write, never holding callers longer.
func (c *Cache) Save() error {
	c.mu.Lock()
	data, err := json.Marshal(c.entries)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal embedding cache: %w", err)
	}
	return os.WriteFile(c.snapshotPath(), data, 0o644)
}

// HashContent returns the cache's content digest.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func cacheKey(provider, model, contentHash string) string {
	return provider + ":" + model + ":" + contentHash
}

// Get returns the cached vector for content, validating the stored
// hash and refreshing recency.
func (c *Cache) Get(provider, model, content string) ([]float32, bool) {
	hash := HashContent(content)
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[cacheKey(provider, model, hash)]
	if !ok {
		return nil, false
	}
	if e.ContentHash != hash {
		// Corrupt entry; drop it.
		c.total -= e.bytes()
		delete(c.entries, cacheKey(provider, model, hash))
		return nil, false
	}
	e.LastUsed = c.now()
	return e.Vector, true
}

// Put stores a vector, evicting least-recently-used entries to stay
// under the byte budget.
func (c *Cache) Put(provider, model, content string, vec []float32) {
	hash := HashContent(content)
	now := c.now()
	e := &cacheEntry{
		Provider:    provider,
		Model:       model,
		ContentHash: hash,
		Vector:      vec,
		CreatedAt:   now,
		LastUsed:    now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(provider, model, hash)
	if old, ok := c.entries[key]; ok {
		c.total -= old.bytes()
	}
	c.entries[key] = e
	c.total += e.bytes()
	c.evictLocked()
}

func (c *Cache) evictLocked() {
	if c.total <= c.maxBytes {
		return
	}

	type aged struct {
		key  string
		used time.Time
	}
	order := make([]aged, 0, len(c.entries))
	for key, e := range c.entries {
		order = append(order, aged{key, e.LastUsed})
	}
	sort.Slice(order, func(i, j int) bool {
		return order[i].used.Before(order[j].used)
	})

	for _, a := range order {
		if c.total <= c.maxBytes {
			return
		}
		e := c.entries[a.key]
		c.total -= e.bytes()
		delete(c.entries, a.key)
	}
}

// Len returns the entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SizeBytes returns the tracked byte total.
func (c *Cache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// EmbedBatch embeds texts through the cache. Misses go to the
// provider in batches; a failed batch leaves nil vectors for its
// texts and the rest of the result intact.
func (c *Cache) EmbedBatch(ctx context.Context, provider Provider, texts []string, batchSize int) [][]float32 {
	if batchSize <= 0 {
		batchSize = 64
	}

	vectors := make([][]float32, len(texts))
	var missIdx []int
	for i, text := range texts {
		if vec, ok := c.Get(provider.Name(), provider.Model(), text); ok {
			vectors[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
	}

	for start := 0; start < len(missIdx); start += batchSize {
		end := start + batchSize
		if end > len(missIdx) {
			end = len(missIdx)
		}
		batch := missIdx[start:end]

		batchTexts := make([]string, len(batch))
		for i, idx := range batch {
			batchTexts[i] = texts[idx]
		}

		bctx, cancel := context.WithTimeout(ctx, batchTimeout)
		embedded, err := provider.Embed(bctx, batchTexts)
		cancel()
		if err != nil {
			c.logger.Warn("embedding batch failed, chunks skipped",
				"batch", start/batchSize, "size", len(batch), "error", err)
			continue
		}

		for i, idx := range batch {
			if i >= len(embedded) || embedded[i] == nil {
				continue
			}
			vectors[idx] = embedded[i]
			c.Put(provider.Name(), provider.Model(), texts[idx], embedded[i])
		}
	}

	return vectors
}
