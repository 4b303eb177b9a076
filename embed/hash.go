// Deterministic local embedder based on hashed bag-of-words.
//
// No network calls: each token is hashed into a fixed-size vector and the
// result is L2-normalized, so texts sharing vocabulary land close together
// under cosine similarity. Quality is far below a learned model; it exists
// for offline use and tests.

package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// DefaultHashDimension is the vector size used when none is configured.
const DefaultHashDimension = 256

var tokenPattern = regexp.MustCompile(`\p{L}+|\p{N}+`)

// HashEmbedder implements Embedder with hashed bag-of-words vectors.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a hashing embedder with the given dimension.
// Non-positive dimensions fall back to DefaultHashDimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultHashDimension
	}
	return &HashEmbedder{dimension: dimension}
}

// Embed returns the embedding vector for a single text.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vector := make([]float32, e.dimension)
	for _, token := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New32a()
		h.Write([]byte(token))
		slot := int(h.Sum32()) % e.dimension
		if slot < 0 {
			slot += e.dimension
		}
		vector[slot]++
	}
	normalize(vector)
	return vector, nil
}

// EmbedBatch returns one vector per input text, in input order.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// Dimension returns the vector dimensionality.
func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

// Fingerprint identifies the embedder and its dimension.
func (e *HashEmbedder) Fingerprint() string {
	return fmt.Sprintf("hash/fnv32a-%d", e.dimension)
}

// normalize scales the vector to unit length in place. Zero vectors are
// left untouched.
func normalize(vector []float32) {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vector {
		vector[i] /= norm
	}
}

// Verify HashEmbedder implements Embedder
var _ Embedder = (*HashEmbedder)(nil)
