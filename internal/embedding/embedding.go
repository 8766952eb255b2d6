// Package embedding provides the provider contract, the Voyage AI
// client, and a content-addressed embedding cache.
package embedding

import "context"

// Provider turns texts into vectors. Batch size is a hint; providers
// may split further.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
	Model() string
	Dimensions() int
}
