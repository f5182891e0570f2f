package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"pdf-query-assistant/internal/chunker"
	"pdf-query-assistant/internal/config"
	"pdf-query-assistant/internal/embedding"
	"pdf-query-assistant/internal/history"
	"pdf-query-assistant/internal/rag"
	"pdf-query-assistant/internal/vectorindex"
)

type fixedEmbedder struct {
	model string
	dim   int

	embedCalls    int
	embedOneCalls int
}

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.embedCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fixedEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	f.embedOneCalls++
	return f.vector(text), nil
}

func (f *fixedEmbedder) vector(text string) []float32 {
	v := make([]float32, f.dim)
	for i, r := range text {
		v[i%f.dim] += float32(r) / 1000
	}
	return v
}

func (f *fixedEmbedder) Dimension() int { return f.dim }
func (f *fixedEmbedder) Model() string  { return f.model }

var _ embedding.Embedder = (*fixedEmbedder)(nil)

func newTestAssistant(t *testing.T) *Assistant {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		MaxFileSize:  10 << 20,
		MaxChunkSize: 1000,
		ChunkOverlap: 200,
		TopK:         5,
		Temperature:  0.7,
		IndexPath:    filepath.Join(dir, "index.bin"),
		HistoryPath:  filepath.Join(dir, "chat_history.json"),
	}

	splitter, err := chunker.New(cfg.MaxChunkSize, cfg.ChunkOverlap)
	if err != nil {
		t.Fatalf("chunker.New: %v", err)
	}
	emb := &fixedEmbedder{model: "test-embedding", dim: 4}
	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}

	return &Assistant{
		cfg:       cfg,
		extractor: NewPDFExtractor(cfg.MaxFileSize),
		splitter:  splitter,
		embedder:  emb,
		index:     vectorindex.New(emb),
		history:   store,
	}
}

func TestAskWithoutGenerator(t *testing.T) {
	a := newTestAssistant(t)

	resp, err := a.Ask(context.Background(), "what is this about?", 0)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Answer != generatorUnavailable {
		t.Errorf("answer = %q, want the unavailable notice", resp.Answer)
	}
	if resp.Provider != "" {
		t.Errorf("provider = %q, want empty", resp.Provider)
	}

	msgs := a.History()
	if len(msgs) != 2 {
		t.Fatalf("history has %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("history roles = %q/%q, want user/assistant", msgs[0].Role, msgs[1].Role)
	}
}

func TestReadyReflectsIndexState(t *testing.T) {
	a := newTestAssistant(t)
	if a.Ready() {
		t.Fatal("assistant reports ready with an empty index")
	}
	if err := a.index.Build(context.Background(), []string{"alpha", "beta"}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !a.Ready() {
		t.Fatal("assistant not ready after indexing")
	}
}

func TestSourcePreviews(t *testing.T) {
	long := strings.Repeat("a", sourcePreviewRunes+50)
	results := []vectorindex.Result{
		{ID: 0, Chunk: "short", Score: 0.1},
		{ID: 1, Chunk: long, Score: 0.2},
		{ID: 2, Chunk: "third", Score: 0.3},
		{ID: 3, Chunk: "fourth", Score: 0.4},
	}

	sources := sourcePreviews(results)
	if len(sources) != 3 {
		t.Fatalf("got %d sources, want 3", len(sources))
	}
	if sources[0].Preview != "short" {
		t.Errorf("first preview = %q", sources[0].Preview)
	}
	if got := len([]rune(sources[1].Preview)); got != sourcePreviewRunes+1 {
		t.Errorf("long preview has %d runes, want %d plus ellipsis", got, sourcePreviewRunes+1)
	}
	if !strings.HasSuffix(sources[1].Preview, "…") {
		t.Errorf("long preview not truncated with ellipsis: %q", sources[1].Preview[len(sources[1].Preview)-8:])
	}
}

func TestSwitchProviderValidation(t *testing.T) {
	a := newTestAssistant(t)

	if err := a.SwitchProvider("claude", nil); !errors.Is(err, rag.ErrUnsupportedProvider) {
		t.Errorf("unsupported provider error = %v, want ErrUnsupportedProvider", err)
	}

	t.Setenv("GROQ_API_KEY", "")
	if err := a.SwitchProvider("groq", nil); !errors.Is(err, rag.ErrMissingCredential) {
		t.Errorf("missing credential error = %v, want ErrMissingCredential", err)
	}
}

func TestSwitchProviderInitializesGenerator(t *testing.T) {
	a := newTestAssistant(t)
	a.genErr = errors.New("never initialized")

	t.Setenv("GROQ_API_KEY", "test-key")
	if err := a.SwitchProvider("groq", nil); err != nil {
		t.Fatalf("SwitchProvider: %v", err)
	}
	if err := a.GeneratorError(); err != nil {
		t.Errorf("GeneratorError = %v after successful switch", err)
	}

	var active string
	for _, s := range a.ProviderStatuses() {
		if s.Active {
			active = s.Provider
		}
		if s.Provider == "groq" && !s.Configured {
			t.Error("groq reported unconfigured with GROQ_API_KEY set")
		}
	}
	if active != "groq" {
		t.Errorf("active provider = %q, want groq", active)
	}
}

func TestEvaluateTextQuality(t *testing.T) {
	prose := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 5)
	if got := evaluateTextQuality(prose); got < 0.7 {
		t.Errorf("clean prose scored %v, want >= 0.7", got)
	}
	if got := evaluateTextQuality("ab"); got > 0.2 {
		t.Errorf("tiny fragment scored %v, want <= 0.2", got)
	}
	garbled := strings.Repeat("\x01\x02�", 30)
	if got := evaluateTextQuality(garbled); got > 0.3 {
		t.Errorf("garbled text scored %v, want <= 0.3", got)
	}
}

// A snapshot written under a different embedding model must leave the whole
// query path on the stored model: both assistant metadata and the index's
// own embedder, or retrieval silently mixes vector spaces.
func TestRestoreSnapshotAdoptsStoredModel(t *testing.T) {
	a := newTestAssistant(t)

	legacy := &fixedEmbedder{model: "test-embedding-legacy", dim: 4}
	src := vectorindex.New(legacy)
	if err := src.Build(context.Background(), []string{"alpha facts", "beta facts"}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := src.Save(a.cfg.IndexPath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	configured := a.embedder.(*fixedEmbedder)
	var rebuilt *fixedEmbedder
	a.newEmbedder = func(_ context.Context, model string, dim int) (embedding.Embedder, error) {
		rebuilt = &fixedEmbedder{model: model, dim: dim}
		return rebuilt, nil
	}

	a.restoreSnapshot(context.Background())

	if rebuilt == nil {
		t.Fatal("embedder was not rebuilt for the stored model")
	}
	if got := a.embedder.Model(); got != "test-embedding-legacy" {
		t.Fatalf("assistant embedder model = %q, want the stored identity", got)
	}

	results, err := a.index.Search(context.Background(), "alpha facts", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Chunk != "alpha facts" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if rebuilt.embedOneCalls == 0 {
		t.Error("query was not embedded with the stored model's embedder")
	}
	if configured.embedOneCalls != 0 {
		t.Error("query embedded with the configured model despite the snapshot mismatch")
	}

	doc := a.Document()
	if doc == nil || !doc.Restored {
		t.Fatalf("restored document not reported: %+v", doc)
	}
	if doc.EmbeddingModel != "test-embedding-legacy" {
		t.Errorf("document embedding model = %q, want the stored identity", doc.EmbeddingModel)
	}
}

// When no embedder can be built for the stored model the snapshot is
// discarded and the configured model starts cold.
func TestRestoreSnapshotDiscardedWhenRebuildFails(t *testing.T) {
	a := newTestAssistant(t)

	legacy := &fixedEmbedder{model: "test-embedding-legacy", dim: 4}
	src := vectorindex.New(legacy)
	if err := src.Build(context.Background(), []string{"alpha facts"}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := src.Save(a.cfg.IndexPath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	a.newEmbedder = func(_ context.Context, _ string, _ int) (embedding.Embedder, error) {
		return nil, errors.New("no client for this model")
	}

	a.restoreSnapshot(context.Background())

	if a.Ready() {
		t.Fatal("snapshot kept although no embedder exists for its model")
	}
	if got := a.embedder.Model(); got != "test-embedding" {
		t.Errorf("embedder model = %q, want the configured one", got)
	}
	if a.Document() != nil {
		t.Error("discarded snapshot still reported as a document")
	}
}
