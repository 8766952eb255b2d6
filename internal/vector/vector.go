// Package vector defines the dense-search contract the retriever
// consumes and provides two implementations: a local JSON-backed store
// and a Qdrant adapter.
package vector

import (
	"context"

	"github.com/ucengine/uce/internal/parser"
)

// Embedded pairs a chunk with its embedding for ingestion.
type Embedded struct {
	Chunk  parser.Chunk `json:"chunk"`
	Vector []float32    `json:"vector"`
}

// Result is one dense search hit. Score is cosine-similarity-like,
// normalized into [0,1], higher is better.
type Result struct {
	ID    string
	Score float64
	Chunk parser.Chunk
}

// Store is the narrow vector-store contract. Implementations hold
// only chunk IDs plus denormalized metadata, never record pointers.
type Store interface {
	Add(ctx context.Context, items []Embedded) error
	Search(ctx context.Context, query []float32, k int, filter map[string]string) ([]Result, error)
	Delete(ctx context.Context, ids []string) error
	DeleteByFile(ctx context.Context, path string) error
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}
