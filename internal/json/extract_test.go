package json

import "testing"

func TestExtractJSONPure(t *testing.T) {
	got, err := ExtractJSON(`{"query": "revenue"}`)
	if err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if got != `{"query": "revenue"}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONMarkdownFence(t *testing.T) {
	input := "```json\n{\"query\": \"revenue\"}\n```"
	got, err := ExtractJSON(input)
	if err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if got != `{"query": "revenue"}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONEmbeddedInText(t *testing.T) {
	input := `I will call the tool with {"query": "revenue"} as arguments.`
	got, err := ExtractJSON(input)
	if err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if got != `{"query": "revenue"}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONNoJSON(t *testing.T) {
	if _, err := ExtractJSON("no structured data here"); err == nil {
		t.Error("expected error")
	}
}

func TestExtractJSONFromResponseTyped(t *testing.T) {
	type args struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	got, err := ExtractJSONFromResponse[args]("```\n{\"query\": \"q\", \"top_k\": 3}\n```")
	if err != nil {
		t.Fatalf("ExtractJSONFromResponse failed: %v", err)
	}
	if got.Query != "q" || got.TopK != 3 {
		t.Errorf("got %+v", got)
	}
}
