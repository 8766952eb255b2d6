package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
)

// LocalStore is an in-memory vector store with an optional JSON
// snapshot. It keeps hybrid retrieval working without any external
// service; brute-force cosine is fine at project scale.
type LocalStore struct {
	mu    sync.RWMutex
	path  string // snapshot file; empty → memory only
	items []Embedded
	byID  map[string]int
}

// NewLocalStore creates a store snapshotting to path. If the file
// exists its contents are loaded; a corrupt snapshot starts empty.
func NewLocalStore(path string) *LocalStore {
	s := &LocalStore{path: path, byID: make(map[string]int)}
	if path != "" {
		s.load()
	}
	return s
}

func (s *LocalStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var items []Embedded
	if err := json.Unmarshal(data, &items); err != nil {
		return
	}
	s.items = items
	for i, it := range items {
		s.byID[it.Chunk.ID] = i
	}
}

// Save writes the snapshot. A store without a path is a no-op.
func (s *LocalStore) Save() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	data, err := json.Marshal(s.items)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal vectors: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Add implements Store. Existing IDs are replaced.
func (s *LocalStore) Add(_ context.Context, items []Embedded) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if i, ok := s.byID[it.Chunk.ID]; ok {
			s.items[i] = it
			continue
		}
		s.byID[it.Chunk.ID] = len(s.items)
		s.items = append(s.items, it)
	}
	return nil
}

// Search implements Store: brute-force cosine over the whole set,
// filter keys match chunk fields ("file", "language").
func (s *LocalStore) Search(_ context.Context, query []float32, k int, filter map[string]string) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) == 0 || k <= 0 {
		return nil, nil
	}

	results := make([]Result, 0, len(s.items))
	for _, it := range s.items {
		if !matchesFilter(it, filter) {
			continue
		}
		cos := cosine(query, it.Vector)
		results = append(results, Result{
			ID: it.Chunk.ID,
			// Map [-1,1] into [0,1] so callers get the contract range.
			Score: (cos + 1) / 2,
			Chunk: it.Chunk,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func matchesFilter(it Embedded, filter map[string]string) bool {
	for key, want := range filter {
		switch key {
		case "file":
			if it.Chunk.File != want {
				return false
			}
		case "language":
			if it.Chunk.Language != want {
				return false
			}
		}
	}
	return true
}

// Delete implements Store.
func (s *LocalStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	s.removeWhere(func(e Embedded) bool {
		_, ok := drop[e.Chunk.ID]
		return ok
	})
	return nil
}

// DeleteByFile implements Store.
func (s *LocalStore) DeleteByFile(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeWhere(func(e Embedded) bool { return e.Chunk.File == path })
	return nil
}

func (s *LocalStore) removeWhere(pred func(Embedded) bool) {
	kept := s.items[:0]
	for _, it := range s.items {
		if !pred(it) {
			kept = append(kept, it)
		}
	}
	s.items = kept
	s.byID = make(map[string]int, len(s.items))
	for i, it := range s.items {
		s.byID[it.Chunk.ID] = i
	}
}

// Count implements Store.
func (s *LocalStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

// Clear implements Store.
func (s *LocalStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.byID = make(map[string]int)
	return nil
}

func cosine(a []float32, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
