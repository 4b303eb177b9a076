// OpenAI embedding provider using the go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request batching and response ordering

package embed

import (
	"context"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is the embedding model used when none is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// embeddingAPI is the slice of the OpenAI client the embedder needs.
type embeddingAPI interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedder implements Embedder using the OpenAI embeddings API.
// Safe for concurrent use; document builds share one embedder.
type OpenAIEmbedder struct {
	client embeddingAPI
	model  string

	mu        sync.Mutex
	dimension int
}

// NewOpenAIEmbedder creates an OpenAI embedder for the given model.
// An empty model selects DefaultOpenAIModel. The dimension is learned from
// the first successful call.
func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Embed returns the embedding vector for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input text, in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}

	if len(vectors[0]) > 0 {
		e.mu.Lock()
		if e.dimension == 0 {
			e.dimension = len(vectors[0])
		}
		e.mu.Unlock()
	}

	return vectors, nil
}

// Dimension returns the vector dimensionality (0 before the first call).
func (e *OpenAIEmbedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

// Fingerprint identifies the provider and model.
func (e *OpenAIEmbedder) Fingerprint() string {
	return "openai/" + e.model
}

// Verify OpenAIEmbedder implements Embedder
var _ Embedder = (*OpenAIEmbedder)(nil)
