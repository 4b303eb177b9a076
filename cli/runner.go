// Command execution for CLI commands.
//
// Information Hiding:
// - Library and provider setup hidden
// - Document loading hidden
// - Output formatting hidden

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/richinex/lectern/agent"
	"github.com/richinex/lectern/app"
	"github.com/richinex/lectern/chunker"
	"github.com/richinex/lectern/config"
	"github.com/richinex/lectern/embed"
	"github.com/richinex/lectern/llm"
	"github.com/richinex/lectern/model"
	"github.com/richinex/lectern/storage"
)

// Options holds CLI execution options.
type Options struct {
	Provider   string
	ConfigPath string
	DBPath     string
	Offline    bool
	Verbose    bool
	Timeout    time.Duration
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{
		Provider: "openai",
		Timeout:  5 * time.Minute,
	}
}

// setup builds the library with its provider, embedder, and store.
// The returned cleanup closes the store.
func setup(opts Options) (*app.Library, func(), error) {
	settings, err := config.NewFromFile(opts.Provider, opts.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	providerType, err := llm.ParseProviderType(settings.LLM.Provider)
	if err != nil {
		return nil, nil, err
	}
	provider, err := providerType.
		Model(settings.LLM.Model).
		MaxTokens(settings.LLM.MaxTokens).
		Temperature(float32(settings.LLM.Temperature)).
		FromEnv()
	if err != nil {
		return nil, nil, err
	}

	var embedder embed.Embedder
	if opts.Offline || settings.Embedding.Offline {
		embedder = embed.NewHashEmbedder(settings.Embedding.HashDimension)
	} else {
		apiKey, err := config.APIKeyFor("openai")
		if err != nil {
			return nil, nil, fmt.Errorf("embeddings need an OpenAI key (or run with --offline): %w", err)
		}
		embedder = embed.NewOpenAIEmbedder(apiKey, settings.Embedding.Model)
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = settings.Storage.Path
	}
	store, err := storage.OpenSqlite(dbPath)
	if err != nil {
		return nil, nil, err
	}

	library, err := app.NewLibrary(app.Options{
		Chunker:       chunker.New(settings.Chunking.Size, settings.Chunking.Overlap),
		Embedder:      embedder,
		Provider:      provider,
		Store:         store,
		ToolTopK:      settings.Agent.ToolTopK,
		MaxIterations: settings.Agent.MaxIterations,
		Verbose:       opts.Verbose,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	return library, func() { store.Close() }, nil
}

// loadDocument reads one file into a document. The document id is the
// file name without its extension.
func loadDocument(path string) (model.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Document{}, fmt.Errorf("reading %q: %w", path, err)
	}

	base := filepath.Base(path)
	docID := strings.TrimSuffix(base, filepath.Ext(base))
	if docID == "" {
		docID = base
	}

	return model.Document{
		DocID: docID,
		Path:  path,
		Text:  string(data),
	}, nil
}

// Ingest indexes the given files and reports the registered tools.
func Ingest(ctx context.Context, paths []string, opts Options) error {
	if len(paths) == 0 {
		return fmt.Errorf("no files given")
	}

	library, cleanup, err := setup(opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := library.Restore(ctx); err != nil {
		return err
	}

	docs := make([]model.Document, 0, len(paths))
	for _, path := range paths {
		doc, err := loadDocument(path)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	fmt.Printf("Indexing %d document(s)...\n", len(docs))
	if err := library.Ingest(ctx, docs); err != nil {
		return err
	}

	for _, status := range library.Status() {
		fmt.Printf("  %s: %d chunks, tools: %s\n",
			status.DocID, status.ChunkCount, strings.Join(status.Tools, ", "))
	}
	return nil
}

// Ask answers one question over the ingested documents.
func Ask(ctx context.Context, question string, opts Options) error {
	library, cleanup, err := setup(opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := library.Restore(ctx); err != nil {
		return err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	result, err := library.Ask(ctx, question)
	if err != nil {
		return err
	}

	response := result.Response
	switch response.Type {
	case agent.ResponseSuccess:
		if opts.Verbose {
			printSteps(response.Steps)
		}
		fmt.Printf("%s\n", response.Result)
		if usage := response.Metadata.TokenUsage; opts.Verbose && usage != nil {
			fmt.Printf("\n(%d LLM calls, %d tokens)\n", response.Metadata.LLMCalls, usage.TotalTokens)
		}
		return nil
	case agent.ResponseFailure:
		fmt.Fprintf(os.Stderr, "Error: %s\n", response.Error)
		return fmt.Errorf("question failed: %s", response.Error)
	case agent.ResponseTimeout:
		fmt.Printf("Ran out of steps. Partial result:\n%s\n", response.PartialResult)
		return fmt.Errorf("question timed out")
	default:
		return fmt.Errorf("unknown response type: %v", response.Type)
	}
}

// Status lists the held documents and recent answers.
func Status(ctx context.Context, opts Options) error {
	library, cleanup, err := setup(opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := library.Restore(ctx); err != nil {
		return err
	}

	statuses := library.Status()
	if len(statuses) == 0 {
		fmt.Println("No documents ingested.")
		return nil
	}

	fmt.Printf("%d document(s), %d tool(s):\n", len(statuses), library.ToolCount())
	for _, status := range statuses {
		fmt.Printf("  %s (%s): %d chunks, tools: %s\n",
			status.DocID, status.Path, status.ChunkCount, strings.Join(status.Tools, ", "))
	}
	return nil
}

// Clear drops every indexed document.
func Clear(ctx context.Context, opts Options) error {
	library, cleanup, err := setup(opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := library.Clear(ctx); err != nil {
		return err
	}
	fmt.Println("Cleared all indexed documents.")
	return nil
}

func printSteps(steps []agent.Step) {
	for _, step := range steps {
		if step.Action == nil {
			continue
		}
		obs := ""
		if step.Observation != nil {
			obs = *step.Observation
			if len(obs) > 200 {
				obs = obs[:200] + "..."
			}
		}
		fmt.Printf("[step %d] %s\n%s\n\n", step.Iteration, *step.Action, obs)
	}
}
