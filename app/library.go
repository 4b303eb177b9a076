// Package app wires documents, indices, tools, and the agent into one
// question-answering library.
//
// Information Hiding:
// - Index lifecycle (build, cache, restore) hidden behind Ingest/Restore
// - Tool naming and registration hidden
// - Agent construction per question hidden
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/richinex/lectern/agent"
	"github.com/richinex/lectern/chunker"
	"github.com/richinex/lectern/embed"
	"github.com/richinex/lectern/index"
	"github.com/richinex/lectern/llm"
	"github.com/richinex/lectern/model"
	"github.com/richinex/lectern/storage"
	"github.com/richinex/lectern/toolindex"
	"github.com/richinex/lectern/tools"
)

// MaxDocuments bounds how many documents a library holds at once.
const MaxDocuments = 5

// ErrDocumentLimit reports an ingest that would push the library past
// MaxDocuments.
var ErrDocumentLimit = errors.New("document limit exceeded")

// Store is the persistence surface the library needs.
// Implemented by storage.SqliteStore.
type Store interface {
	index.Cache
	ListDocuments(ctx context.Context) ([]storage.DocumentRecord, error)
	DeleteDocument(ctx context.Context, docID string) error
	Clear(ctx context.Context) error
	LogAnswer(ctx context.Context, rec storage.AnswerRecord) (string, error)
}

// Options configures a Library. Embedder, Provider, and Store are
// required; the rest have defaults.
type Options struct {
	Chunker       *chunker.Chunker
	Embedder      embed.Embedder
	Provider      llm.Provider
	Store         Store
	FanIn         int
	ToolTopK      int
	MaxIterations int
	Verbose       bool
}

// Library owns the per-document index pairs, their tools, and the tool
// index the agent retrieves from. Safe for concurrent Ask calls; Ingest
// and Clear take the write lock.
type Library struct {
	mu        sync.RWMutex
	opts      Options
	pairs     map[string]*index.Pair
	toolIdx   *toolindex.ToolIndex
	registry  *tools.Registry
	toolNames map[string][]string
}

// NewLibrary creates an empty library.
func NewLibrary(opts Options) (*Library, error) {
	if opts.Embedder == nil {
		return nil, fmt.Errorf("an embedder is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("an LLM provider is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("a store is required")
	}
	if opts.Chunker == nil {
		opts.Chunker = chunker.New(chunker.DefaultChunkSize, chunker.DefaultOverlap)
	}
	if opts.ToolTopK <= 0 {
		opts.ToolTopK = toolindex.DefaultTopK
	}

	lib := &Library{
		opts:     opts,
		pairs:    make(map[string]*index.Pair),
		registry: tools.NewRegistry(),
	}
	if err := lib.rebuildTools(context.Background()); err != nil {
		return nil, err
	}
	return lib, nil
}

func (l *Library) deps() index.Deps {
	return index.Deps{
		Chunker:  l.opts.Chunker,
		Embedder: l.opts.Embedder,
		LLM:      llm.NewClient(l.opts.Provider),
		FanIn:    l.opts.FanIn,
	}
}

// Ingest builds (or restores from cache) index pairs for the given
// documents and rebuilds the tool index over every held document.
// A document whose id is already held is replaced. An error building one
// document does not abort the others; the first error is returned after
// all builds finish.
func (l *Library) Ingest(ctx context.Context, docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	incoming := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if doc.DocID == "" {
			return fmt.Errorf("document with path %q has no id", doc.Path)
		}
		if incoming[doc.DocID] {
			return fmt.Errorf("duplicate document id %q in one ingest", doc.DocID)
		}
		incoming[doc.DocID] = true
	}

	total := len(l.pairs)
	for id := range incoming {
		if _, held := l.pairs[id]; !held {
			total++
		}
	}
	if total > MaxDocuments {
		return fmt.Errorf("ingest would bring the library to %d documents, limit is %d: %w", total, MaxDocuments, ErrDocumentLimit)
	}

	// Documents build in parallel; each failure stands alone.
	results := make([]*index.Pair, len(docs))
	errs := make([]error, len(docs))
	var wg sync.WaitGroup
	for i, doc := range docs {
		wg.Add(1)
		go func(i int, doc model.Document) {
			defer wg.Done()
			results[i], errs[i] = index.LoadOrBuild(ctx, doc, l.opts.Store, l.deps())
		}(i, doc)
	}
	wg.Wait()

	var firstErr error
	for i, pair := range results {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("ingesting %q: %w", docs[i].DocID, errs[i])
			}
			continue
		}
		l.pairs[pair.DocID()] = pair
	}

	if err := l.rebuildTools(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Restore loads every cached document into the library without touching
// the embedder or the LLM. Documents cached under a different embedder
// fingerprint are skipped.
func (l *Library) Restore(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.opts.Store.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("listing cached documents: %w", err)
	}

	fingerprint := l.opts.Embedder.Fingerprint()
	for _, rec := range records {
		if rec.Fingerprint != fingerprint {
			continue
		}
		entry, err := l.opts.Store.Load(ctx, rec.DocID, fingerprint)
		if err != nil {
			continue
		}
		doc := model.Document{DocID: rec.DocID, Path: rec.Path}
		pair, err := index.FromEntry(doc, entry, l.deps())
		if err != nil {
			return fmt.Errorf("restoring %q: %w", rec.DocID, err)
		}
		l.pairs[pair.DocID()] = pair
	}

	return l.rebuildTools(ctx)
}

// rebuildTools regenerates the registry and the tool index from the held
// pairs. Caller holds the write lock.
func (l *Library) rebuildTools(ctx context.Context) error {
	l.registry.Clear()

	ids := make([]string, 0, len(l.pairs))
	for id := range l.pairs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	factory := tools.NewToolFactory()
	l.toolNames = make(map[string][]string, len(ids))
	for _, id := range ids {
		vec, sum := factory.ToolsFor(l.pairs[id])
		if err := l.registry.Register(vec); err != nil {
			return fmt.Errorf("registering tools for %q: %w", id, err)
		}
		if err := l.registry.Register(sum); err != nil {
			return fmt.Errorf("registering tools for %q: %w", id, err)
		}
		l.toolNames[id] = []string{vec.Metadata().Name, sum.Metadata().Name}
	}

	idx, err := toolindex.Build(ctx, l.opts.Embedder, l.registry.Tools())
	if err != nil {
		return fmt.Errorf("building tool index: %w", err)
	}
	l.toolIdx = idx
	return nil
}

// AskResult pairs the agent's response with the logged answer id.
type AskResult struct {
	Response agent.Response
	AnswerID string
}

// Ask retrieves the most relevant tools for the question and runs the
// agent over them. The exchange is logged best-effort.
func (l *Library) Ask(ctx context.Context, question string) (AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return AskResult{}, fmt.Errorf("question must not be empty")
	}

	l.mu.RLock()
	if len(l.pairs) == 0 {
		l.mu.RUnlock()
		return AskResult{}, fmt.Errorf("no documents ingested; run ingest first")
	}
	candidates, err := l.toolIdx.Retrieve(ctx, question, l.opts.ToolTopK)
	l.mu.RUnlock()
	if err != nil {
		return AskResult{}, fmt.Errorf("retrieving tools: %w", err)
	}

	config := agent.DefaultConfig()
	config.Tools = candidates
	if l.opts.MaxIterations > 0 {
		config.MaxIterations = l.opts.MaxIterations
	}

	start := time.Now()
	response := agent.New(config, l.opts.Provider).Verbose(l.opts.Verbose).Execute(ctx, question)

	answerID, logErr := l.opts.Store.LogAnswer(ctx, storage.AnswerRecord{
		Question:   question,
		Answer:     response.ResultText(),
		Status:     statusOf(response),
		Provider:   l.opts.Provider.Name(),
		Model:      l.opts.Provider.Model(),
		DurationMs: time.Since(start).Milliseconds(),
	})
	if logErr != nil {
		// The answer is still usable without its log entry.
		answerID = ""
	}

	return AskResult{Response: response, AnswerID: answerID}, nil
}

func statusOf(response agent.Response) string {
	switch response.Type {
	case agent.ResponseSuccess:
		return "success"
	case agent.ResponseTimeout:
		return "timeout"
	default:
		return "failure"
	}
}

// DocumentStatus describes one held document.
type DocumentStatus struct {
	DocID      string
	Path       string
	ChunkCount int
	Tools      []string
}

// Status returns the held documents and their tool names, sorted by id.
func (l *Library) Status() []DocumentStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.pairs))
	for id := range l.pairs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	statuses := make([]DocumentStatus, 0, len(ids))
	for _, id := range ids {
		pair := l.pairs[id]
		statuses = append(statuses, DocumentStatus{
			DocID:      id,
			Path:       pair.Path(),
			ChunkCount: pair.ChunkCount(),
			Tools:      l.toolNames[id],
		})
	}
	return statuses
}

// ToolCount returns the number of registered tools.
func (l *Library) ToolCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.registry.Len()
}

// Clear drops every document from the library and the cache.
func (l *Library) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.opts.Store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	l.pairs = make(map[string]*index.Pair)
	return l.rebuildTools(ctx)
}
