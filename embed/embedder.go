// Package embed provides text embedding providers.
//
// An Embedder turns text into a fixed-dimension vector. The dimension is
// fixed for the lifetime of the process, and the Fingerprint identifies the
// provider/model pair so cached vectors from a different embedder are never
// mixed with fresh ones.
package embed

import "context"

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of produced vectors.
	Dimension() int

	// Fingerprint identifies the provider and model. Two embedders with
	// different fingerprints produce incompatible vector spaces.
	Fingerprint() string
}
