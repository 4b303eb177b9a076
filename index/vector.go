// Package index builds and queries per-document retrieval structures:
// a vector index over chunk embeddings and a tree-summarization structure
// over the same chunks.
package index

import (
	"fmt"
	"math"
	"sort"

	"github.com/richinex/lectern/model"
)

// VectorIndex maps a document's chunks to their embedding vectors and
// supports cosine similarity search. Immutable once constructed.
type VectorIndex struct {
	docID     string
	dimension int
	chunks    []model.Chunk
	vectors   [][]float32
}

// NewVectorIndex creates a vector index over chunks and their vectors.
// Chunks and vectors correspond by position and must agree in length and
// dimension.
func NewVectorIndex(docID string, chunks []model.Chunk, vectors [][]float32) (*VectorIndex, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("chunk/vector length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("vector index for %q requires at least one chunk", docID)
	}
	dimension := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dimension {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dimension)
		}
	}
	return &VectorIndex{
		docID:     docID,
		dimension: dimension,
		chunks:    chunks,
		vectors:   vectors,
	}, nil
}

// DocID returns the owning document's identifier.
func (x *VectorIndex) DocID() string { return x.docID }

// Dimension returns the vector dimensionality.
func (x *VectorIndex) Dimension() int { return x.dimension }

// Chunks returns the indexed chunks in sequence order.
func (x *VectorIndex) Chunks() []model.Chunk { return x.chunks }

// Vectors returns the stored embedding vectors, aligned with Chunks.
func (x *VectorIndex) Vectors() [][]float32 { return x.vectors }

// Query returns the topK chunks most similar to the query vector, highest
// score first. Ties are broken by lower chunk sequence index.
func (x *VectorIndex) Query(query []float32, topK int) []model.ScoredChunk {
	if topK <= 0 {
		topK = 2
	}

	scored := make([]model.ScoredChunk, len(x.chunks))
	for i := range x.chunks {
		scored[i] = model.ScoredChunk{
			Chunk: x.chunks[i],
			Score: Cosine(x.vectors[i], query),
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.Seq < scored[j].Chunk.Seq
	})

	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK]
}

// Cosine returns the cosine similarity of two vectors. Mismatched lengths
// compare over the shorter prefix; zero vectors score zero.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, v := range a {
		normA += float64(v) * float64(v)
	}
	for _, v := range b {
		normB += float64(v) * float64(v)
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
