package embedding

import (
	"context"
	"os"
	"testing"
)

func TestGeminiEmbedLive(t *testing.T) {
	key := os.Getenv("GOOGLE_API_KEY")
	if key == "" {
		t.Skip("GOOGLE_API_KEY not set")
	}
	ctx := context.Background()
	emb, err := NewGemini(ctx, key, "text-embedding-004", 768)
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	defer emb.Close()

	vecs, err := emb.Embed(ctx, []string{"hello world", "goodbye world"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
	if len(vecs[0]) != len(vecs[1]) {
		t.Fatalf("dimension mismatch within one batch: %d vs %d", len(vecs[0]), len(vecs[1]))
	}

	one, err := emb.EmbedOne(ctx, "hello world")
	if err != nil {
		t.Fatalf("EmbedOne: %v", err)
	}
	if len(one) != len(vecs[0]) {
		t.Fatalf("query and batch dimensions differ: %d vs %d", len(one), len(vecs[0]))
	}
}

func TestNewGeminiMissingKey(t *testing.T) {
	_, err := NewGemini(context.Background(), "", "text-embedding-004", 768)
	if err == nil {
		t.Fatal("expected error for missing key")
	}
}
