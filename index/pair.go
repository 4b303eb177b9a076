// DocumentIndexPair: the per-document pairing of a vector index and a
// summary structure, with build / load-or-build lifecycle against a
// persisted cache.

package index

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/richinex/lectern/chunker"
	"github.com/richinex/lectern/embed"
	"github.com/richinex/lectern/llm"
	"github.com/richinex/lectern/model"
)

// ErrEmptyDocument reports a document whose text yields zero chunks.
// The document is excluded from indexing; other documents are unaffected.
var ErrEmptyDocument = errors.New("document has no indexable text")

// ErrCacheMiss reports that no valid cache entry exists for a document key.
var ErrCacheMiss = errors.New("index cache miss")

// CacheEntry is the serialized form of one document's indices.
// An entry is valid only when every part is present for the key.
type CacheEntry struct {
	DocID         string
	Path          string
	Fingerprint   string
	Chunks        []model.Chunk
	Vectors       [][]float32
	SummaryLeaves []string
}

// Cache persists document index pairs keyed by document identity and
// embedder fingerprint.
type Cache interface {
	// Load returns the entry for the key, or ErrCacheMiss when absent,
	// structurally invalid, or recorded under a different fingerprint.
	Load(ctx context.Context, docID, fingerprint string) (*CacheEntry, error)

	// Store persists an entry atomically; a partially written entry must
	// never be observable by Load.
	Store(ctx context.Context, entry *CacheEntry) error
}

// Deps carries the collaborators needed to build and query index pairs.
type Deps struct {
	Chunker  *chunker.Chunker
	Embedder embed.Embedder
	LLM      *llm.Client
	FanIn    int
}

// Pair is one document's vector index and summary structure.
// Read-only after construction; queries are safe for concurrent use.
type Pair struct {
	doc      model.Document
	vector   *VectorIndex
	summary  *SummaryTree
	embedder embed.Embedder
	llm      *llm.Client
}

// Build chunks the document, embeds every chunk, and constructs both the
// vector index and the summary structure. An embedding failure aborts the
// build for this document only.
func Build(ctx context.Context, doc model.Document, deps Deps) (*Pair, error) {
	chunks, err := deps.Chunker.Chunk(doc)
	if err != nil {
		return nil, fmt.Errorf("chunking %q: %w", doc.DocID, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %q: %w", doc.DocID, ErrEmptyDocument)
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := deps.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %q: %w", doc.DocID, err)
	}

	vectorIndex, err := NewVectorIndex(doc.DocID, chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("indexing %q: %w", doc.DocID, err)
	}

	return &Pair{
		doc:      doc,
		vector:   vectorIndex,
		summary:  NewSummaryTree(doc.DocID, chunks, deps.FanIn),
		embedder: deps.Embedder,
		llm:      deps.LLM,
	}, nil
}

// LoadOrBuild restores the pair from the cache when a valid entry exists
// for this document and embedder fingerprint (no embedding or LLM calls);
// otherwise it builds and persists the result. Cache I/O failures fall back
// to an in-memory build without persisting.
func LoadOrBuild(ctx context.Context, doc model.Document, cache Cache, deps Deps) (*Pair, error) {
	fingerprint := deps.Embedder.Fingerprint()

	entry, err := cache.Load(ctx, doc.DocID, fingerprint)
	switch {
	case err == nil:
		pair, buildErr := FromEntry(doc, entry, deps)
		if buildErr == nil {
			return pair, nil
		}
		// Entry decoded but is inconsistent; treat as a miss and rebuild.
		fmt.Fprintf(os.Stderr, "warning: cache entry for %q is invalid, rebuilding: %v\n", doc.DocID, buildErr)
	case !errors.Is(err, ErrCacheMiss):
		fmt.Fprintf(os.Stderr, "warning: cache load for %q failed, rebuilding: %v\n", doc.DocID, err)
	}

	pair, err := Build(ctx, doc, deps)
	if err != nil {
		return nil, err
	}

	storeErr := cache.Store(ctx, &CacheEntry{
		DocID:         doc.DocID,
		Path:          doc.Path,
		Fingerprint:   fingerprint,
		Chunks:        pair.vector.Chunks(),
		Vectors:       pair.vector.Vectors(),
		SummaryLeaves: pair.summary.Leaves(),
	})
	if storeErr != nil {
		fmt.Fprintf(os.Stderr, "warning: cache store for %q failed, keeping in-memory index: %v\n", doc.DocID, storeErr)
	}

	return pair, nil
}

// FromEntry reconstructs a pair from a cache entry without embedding or
// LLM calls.
func FromEntry(doc model.Document, entry *CacheEntry, deps Deps) (*Pair, error) {
	vectorIndex, err := NewVectorIndex(doc.DocID, entry.Chunks, entry.Vectors)
	if err != nil {
		return nil, fmt.Errorf("restoring %q: %w", doc.DocID, err)
	}
	return &Pair{
		doc:      doc,
		vector:   vectorIndex,
		summary:  NewSummaryTreeFromLeaves(doc.DocID, entry.SummaryLeaves, deps.FanIn),
		embedder: deps.Embedder,
		llm:      deps.LLM,
	}, nil
}

// DocID returns the document's identifier.
func (p *Pair) DocID() string { return p.doc.DocID }

// Path returns the source path the document was read from.
func (p *Pair) Path() string { return p.doc.Path }

// ChunkCount returns the number of indexed chunks.
func (p *Pair) ChunkCount() int { return len(p.vector.Chunks()) }

// VectorQuery embeds the query text and returns the topK nearest chunks by
// cosine similarity, highest score first; ties favor the earlier chunk.
func (p *Pair) VectorQuery(ctx context.Context, query string, topK int) ([]model.ScoredChunk, error) {
	vector, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return p.vector.Query(vector, topK), nil
}

// Summarize produces a single document-level summary via tree
// summarization.
func (p *Pair) Summarize(ctx context.Context) (string, error) {
	return p.summary.Summarize(ctx, p.llm)
}

// SummarizeFocused produces a document-level summary steered toward the
// given focus text.
func (p *Pair) SummarizeFocused(ctx context.Context, focus string) (string, error) {
	return p.summary.SummarizeFocused(ctx, p.llm, focus)
}
