package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/richinex/lectern/embed"
	"github.com/richinex/lectern/index"
	"github.com/richinex/lectern/llm"
	"github.com/richinex/lectern/model"
	"github.com/richinex/lectern/storage"
)

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu      sync.Mutex
	entries map[string]*index.CacheEntry
	answers []storage.AnswerRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]*index.CacheEntry)}
}

func (s *fakeStore) Load(_ context.Context, docID, fingerprint string) (*index.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[docID]
	if !ok || entry.Fingerprint != fingerprint {
		return nil, index.ErrCacheMiss
	}
	return entry, nil
}

func (s *fakeStore) Store(_ context.Context, entry *index.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.DocID] = entry
	return nil
}

func (s *fakeStore) ListDocuments(context.Context) ([]storage.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := []storage.DocumentRecord{}
	for _, entry := range s.entries {
		records = append(records, storage.DocumentRecord{
			DocID:       entry.DocID,
			Path:        entry.Path,
			Fingerprint: entry.Fingerprint,
			ChunkCount:  len(entry.Chunks),
		})
	}
	return records, nil
}

func (s *fakeStore) DeleteDocument(_ context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, docID)
	return nil
}

func (s *fakeStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*index.CacheEntry)
	return nil
}

func (s *fakeStore) LogAnswer(_ context.Context, rec storage.AnswerRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("answer-%d", len(s.answers)+1)
	}
	s.answers = append(s.answers, rec)
	return rec.ID, nil
}

// scriptedProvider replays a fixed sequence of responses.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []llm.LLMResponse
	calls     int
}

func (s *scriptedProvider) Name() string  { return "scripted" }
func (s *scriptedProvider) Model() string { return "scripted-model" }

func (s *scriptedProvider) next() (llm.LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls >= len(s.responses) {
		return llm.LLMResponse{Content: "stub summary"}, nil
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func (s *scriptedProvider) Chat(context.Context, []llm.ChatMessage) (llm.LLMResponse, error) {
	return s.next()
}

func (s *scriptedProvider) ChatWithTools(context.Context, []llm.ChatMessage, []llm.ToolDefinition) (llm.LLMResponse, error) {
	return s.next()
}

func (s *scriptedProvider) StreamChat(ctx context.Context, messages []llm.ChatMessage, chunks chan<- string) (*llm.TokenUsage, error) {
	resp, err := s.next()
	if err != nil {
		return nil, err
	}
	chunks <- resp.Content
	return resp.Usage, nil
}

// countingEmbedder counts calls to detect unwanted re-embedding.
type countingEmbedder struct {
	embed.Embedder
	mu    sync.Mutex
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Embedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Embedder.EmbedBatch(ctx, texts)
}

func testDoc(id, topic string) model.Document {
	return model.Document{
		DocID: id,
		Path:  "/docs/" + id + ".pdf",
		Text: fmt.Sprintf("The %s document covers %s in depth. ", id, topic) +
			strings.TrimSpace(strings.Repeat(fmt.Sprintf("More detail on %s follows here. ", topic), 15)),
	}
}

func newTestLibrary(t *testing.T, provider llm.Provider, store Store) *Library {
	t.Helper()
	lib, err := NewLibrary(Options{
		Embedder: embed.NewHashEmbedder(0),
		Provider: provider,
		Store:    store,
	})
	if err != nil {
		t.Fatalf("NewLibrary failed: %v", err)
	}
	return lib
}

func TestIngestRegistersToolPairs(t *testing.T) {
	lib := newTestLibrary(t, &scriptedProvider{}, newFakeStore())
	ctx := context.Background()

	docs := []model.Document{testDoc("metagpt", "agent roles"), testDoc("longlora", "long context")}
	if err := lib.Ingest(ctx, docs); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if got := lib.ToolCount(); got != 4 {
		t.Errorf("ToolCount = %d, want 4", got)
	}

	statuses := lib.Status()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(statuses))
	}
	if statuses[0].DocID != "longlora" || statuses[1].DocID != "metagpt" {
		t.Errorf("statuses not sorted by id: %v", statuses)
	}
	want := []string{"vector_metagpt", "summary_metagpt"}
	if fmt.Sprint(statuses[1].Tools) != fmt.Sprint(want) {
		t.Errorf("Tools = %v, want %v", statuses[1].Tools, want)
	}
	if statuses[0].ChunkCount == 0 {
		t.Error("expected chunks for ingested document")
	}
}

func TestIngestEnforcesDocumentLimit(t *testing.T) {
	lib := newTestLibrary(t, &scriptedProvider{}, newFakeStore())
	ctx := context.Background()

	var docs []model.Document
	for i := 0; i < MaxDocuments; i++ {
		docs = append(docs, testDoc(fmt.Sprintf("doc%d", i), "topics"))
	}
	if err := lib.Ingest(ctx, docs); err != nil {
		t.Fatalf("Ingest at the limit failed: %v", err)
	}

	if err := lib.Ingest(ctx, []model.Document{testDoc("overflow", "too much")}); !errors.Is(err, ErrDocumentLimit) {
		t.Errorf("expected ErrDocumentLimit past the limit, got %v", err)
	}

	// Replacing a held document stays within the limit.
	if err := lib.Ingest(ctx, []model.Document{testDoc("doc0", "revised topics")}); err != nil {
		t.Errorf("replacement ingest failed: %v", err)
	}
}

func TestIngestPartialFailure(t *testing.T) {
	lib := newTestLibrary(t, &scriptedProvider{}, newFakeStore())
	ctx := context.Background()

	docs := []model.Document{
		testDoc("good", "useful content"),
		{DocID: "empty", Path: "/docs/empty.pdf", Text: "   "},
	}
	err := lib.Ingest(ctx, docs)
	if err == nil {
		t.Fatal("expected error for empty document")
	}
	if !errors.Is(err, index.ErrEmptyDocument) {
		t.Errorf("expected ErrEmptyDocument, got %v", err)
	}

	// The good document still made it in.
	if got := lib.ToolCount(); got != 2 {
		t.Errorf("ToolCount = %d, want 2", got)
	}
}

func TestAskEndToEnd(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "vector_metagpt", Arguments: json.RawMessage(`{"query":"agent roles"}`)}}},
		{Content: "MetaGPT assigns specialized roles (from the metagpt document)."},
	}}
	store := newFakeStore()
	lib := newTestLibrary(t, provider, store)
	ctx := context.Background()

	docs := []model.Document{testDoc("metagpt", "agent roles"), testDoc("longlora", "long context")}
	if err := lib.Ingest(ctx, docs); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	result, err := lib.Ask(ctx, "What roles does the metagpt document describe?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if !result.Response.IsSuccess() {
		t.Fatalf("expected success, got %+v", result.Response)
	}
	if !strings.Contains(result.Response.Result, "specialized roles") {
		t.Errorf("Result = %q", result.Response.Result)
	}
	if result.AnswerID == "" {
		t.Error("expected a logged answer id")
	}

	if len(store.answers) != 1 {
		t.Fatalf("expected 1 logged answer, got %d", len(store.answers))
	}
	logged := store.answers[0]
	if logged.Status != "success" || logged.Provider != "scripted" {
		t.Errorf("logged answer = %+v", logged)
	}
}

func TestAskWithoutDocuments(t *testing.T) {
	lib := newTestLibrary(t, &scriptedProvider{}, newFakeStore())
	if _, err := lib.Ask(context.Background(), "anything"); err == nil {
		t.Error("expected error with no documents")
	}
}

func TestAskRejectsBlankQuestion(t *testing.T) {
	lib := newTestLibrary(t, &scriptedProvider{}, newFakeStore())
	if _, err := lib.Ask(context.Background(), "   "); err == nil {
		t.Error("expected error for blank question")
	}
}

func TestRestoreUsesCacheOnly(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	first := newTestLibrary(t, &scriptedProvider{}, store)
	if err := first.Ingest(ctx, []model.Document{testDoc("metagpt", "agent roles")}); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	counting := &countingEmbedder{Embedder: embed.NewHashEmbedder(0)}
	second, err := NewLibrary(Options{
		Embedder: counting,
		Provider: &scriptedProvider{},
		Store:    store,
	})
	if err != nil {
		t.Fatalf("NewLibrary failed: %v", err)
	}
	embedCallsBefore := counting.calls

	if err := second.Restore(ctx); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	statuses := second.Status()
	if len(statuses) != 1 || statuses[0].DocID != "metagpt" {
		t.Fatalf("Status = %v", statuses)
	}
	if second.ToolCount() != 2 {
		t.Errorf("ToolCount = %d, want 2", second.ToolCount())
	}

	// Restoring re-embeds tool descriptions but never document chunks.
	if counting.calls > embedCallsBefore+1 {
		t.Errorf("expected at most 1 embedding call during restore, got %d", counting.calls-embedCallsBefore)
	}
}

func TestClearDropsEverything(t *testing.T) {
	store := newFakeStore()
	lib := newTestLibrary(t, &scriptedProvider{}, store)
	ctx := context.Background()

	if err := lib.Ingest(ctx, []model.Document{testDoc("metagpt", "agent roles")}); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if err := lib.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if lib.ToolCount() != 0 {
		t.Errorf("ToolCount = %d, want 0", lib.ToolCount())
	}
	if len(store.entries) != 0 {
		t.Errorf("expected empty store, got %d entries", len(store.entries))
	}
	if _, err := lib.Ask(ctx, "anything"); err == nil {
		t.Error("expected Ask to fail after Clear")
	}
}
