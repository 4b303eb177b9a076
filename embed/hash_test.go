package embed

import (
	"context"
	"math"
	"testing"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "the quick brown fox")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := e.Embed(ctx, "the quick brown fox")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestHashEmbedderUnitLength(t *testing.T) {
	e := NewHashEmbedder(0) // falls back to default dimension
	if e.Dimension() != DefaultHashDimension {
		t.Fatalf("dimension = %d, want %d", e.Dimension(), DefaultHashDimension)
	}

	v, err := e.Embed(context.Background(), "normalization check")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1.0) > 1e-5 {
		t.Errorf("squared norm = %f, want 1.0", sum)
	}
}

func TestHashEmbedderSharedVocabularyCloser(t *testing.T) {
	e := NewHashEmbedder(128)
	ctx := context.Background()

	query, _ := e.Embed(ctx, "summarize the annual report")
	related, _ := e.Embed(ctx, "annual report revenue and expenses summary")
	unrelated, _ := e.Embed(ctx, "penguin migration patterns in antarctica")

	if dot(query, related) <= dot(query, unrelated) {
		t.Error("expected text sharing vocabulary to score higher")
	}
}

func TestHashEmbedderEmptyText(t *testing.T) {
	e := NewHashEmbedder(32)
	v, err := e.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatal("empty text should produce a zero vector")
		}
	}
}

func TestHashEmbedderBatchOrder(t *testing.T) {
	e := NewHashEmbedder(64)
	texts := []string{"first text", "second text", "third text"}

	vectors, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vectors), len(texts))
	}

	for i, text := range texts {
		single, _ := e.Embed(context.Background(), text)
		if dot(single, vectors[i]) < 0.999 {
			t.Errorf("batch vector %d does not match single embedding", i)
		}
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
