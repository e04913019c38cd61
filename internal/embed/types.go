// Package embed turns text into fixed-dimension vectors via an external
// embedding service.
package embed

import (
	"context"
	"time"
)

const (
	// DefaultDimensions matches nomic-embed-text.
	DefaultDimensions = 768

	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 30 * time.Second

	// MaxInputChars caps text sent to the backend. Longer chunks are
	// truncated, not rejected.
	MaxInputChars = 8000
)

// Embedder generates embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text. Errors surface
	// to the caller; there is no silent retry.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks whether the backend is reachable and the model
	// is installed.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// truncateInput caps text at MaxInputChars characters without splitting
// a rune.
func truncateInput(text string) string {
	if len(text) <= MaxInputChars {
		return text
	}
	runes := []rune(text)
	if len(runes) <= MaxInputChars {
		return text
	}
	return string(runes[:MaxInputChars])
}
