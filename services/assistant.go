package services

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"pdf-query-assistant/internal/chunker"
	"pdf-query-assistant/internal/config"
	"pdf-query-assistant/internal/embedding"
	"pdf-query-assistant/internal/history"
	"pdf-query-assistant/internal/logger"
	"pdf-query-assistant/internal/rag"
	"pdf-query-assistant/internal/vectorindex"
	"pdf-query-assistant/models"
)

// generatorUnavailable is answered when no provider backend could be
// constructed. Chat stays reachable; switching to a configured provider
// recovers it without a restart.
const generatorUnavailable = "Answer generation is not initialized. Please check API keys."

const sourcePreviewRunes = 200

// Assistant wires extraction, chunking, embedding, retrieval, generation and
// chat history into the single-document question answering pipeline. All
// pipeline state is owned here; handlers hold nothing but a reference.
type Assistant struct {
	mu  sync.Mutex
	cfg *config.Config

	extractor *PDFExtractor
	splitter  *chunker.Splitter
	embedder  embedding.Embedder
	// newEmbedder builds an embedder for an arbitrary model identity,
	// used when a snapshot was written under a different model than the
	// configured one.
	newEmbedder func(ctx context.Context, model string, dim int) (embedding.Embedder, error)
	index       *vectorindex.Index
	generator *rag.Generator
	genErr    error
	history   *history.Store

	doc *models.Document
}

// NewAssistant builds the pipeline from configuration. Embedding client
// failures abort construction since neither ingestion nor retrieval can work
// without one; a generator failure is tolerated and surfaced per request.
func NewAssistant(ctx context.Context, cfg *config.Config) (*Assistant, error) {
	splitter, err := chunker.New(cfg.MaxChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("failed to configure chunker: %w", err)
	}

	embedder, err := embedding.NewGemini(ctx, cfg.GoogleAPIKey, cfg.GoogleEmbeddingsModel, cfg.VectorDimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	a := &Assistant{
		cfg:       cfg,
		extractor: NewPDFExtractor(cfg.MaxFileSize),
		splitter:  splitter,
		embedder:  embedder,
		index:     vectorindex.New(embedder),
	}
	a.newEmbedder = func(ctx context.Context, model string, dim int) (embedding.Embedder, error) {
		return embedding.NewGemini(ctx, cfg.GoogleAPIKey, model, dim)
	}

	a.restoreSnapshot(ctx)
	a.initGenerator()

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		logger.Warn("Chat history unavailable", "path", cfg.HistoryPath, "error", err)
	} else {
		a.history = store
	}

	return a, nil
}

// restoreSnapshot loads a persisted index if one exists. A snapshot written
// by a different embedding model rebuilds the embedder for that model so
// that query vectors stay in the stored vector space.
func (a *Assistant) restoreSnapshot(ctx context.Context) {
	loaded, err := a.index.Load(a.cfg.IndexPath)
	if err != nil {
		logger.Warn("Ignoring unreadable index snapshot", "path", a.cfg.IndexPath, "error", err)
		return
	}
	if !loaded || a.index.Len() == 0 {
		return
	}

	if model := a.index.Model(); model != a.embedder.Model() {
		logger.Warn("Snapshot was built with a different embedding model, switching",
			"snapshot_model", model, "configured_model", a.embedder.Model())
		emb, err := a.newEmbedder(ctx, model, a.index.Dimension())
		if err != nil {
			logger.Error("Failed to rebuild embedder for snapshot model, discarding snapshot", "model", model, "error", err)
			a.index = vectorindex.New(a.embedder)
			return
		}
		// Repoint the index's query path too; a.embedder alone only
		// covers metadata and shutdown.
		if err := a.index.SetEmbedder(emb); err != nil {
			logger.Error("Failed to adopt rebuilt embedder, discarding snapshot", "model", model, "error", err)
			a.index = vectorindex.New(a.embedder)
			return
		}
		a.closeEmbedder()
		a.embedder = emb
	}

	a.doc = &models.Document{
		ID:             uuid.New().String(),
		Filename:       "(restored from snapshot)",
		ChunkCount:     a.index.Len(),
		EmbeddingModel: a.index.Model(),
		IngestedAt:     time.Now().UTC(),
		Restored:       true,
	}
	logger.Info("Restored index snapshot", "path", a.cfg.IndexPath, "chunks", a.index.Len(), "model", a.index.Model())
}

func (a *Assistant) initGenerator() {
	provider, err := rag.ParseProvider(a.cfg.LLMProvider)
	if err != nil {
		a.genErr = err
		logger.Error("Configured LLM provider is not supported", "provider", a.cfg.LLMProvider, "error", err)
		return
	}
	gen, err := rag.New(provider, a.cfg.Temperature)
	if err != nil {
		a.genErr = err
		logger.Error("Answer generator unavailable", "provider", provider, "error", err)
		return
	}
	a.generator = gen
}

// Ingest runs the full pipeline on an uploaded PDF: extract, chunk, embed,
// index, persist. The previous document, if any, is replaced wholesale.
func (a *Assistant) Ingest(ctx context.Context, filePath, filename string, sizeBytes int64) (*models.UploadResponse, error) {
	start := time.Now()

	extraction, err := a.extractor.ExtractText(ctx, filePath)
	if err != nil {
		return nil, err
	}

	chunks, err := a.splitter.Split(extraction.Text)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoExtractableText
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.index.Build(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to index document: %w", err)
	}
	if err := a.index.Save(a.cfg.IndexPath); err != nil {
		logger.Warn("Failed to persist index snapshot", "path", a.cfg.IndexPath, "error", err)
	}

	a.doc = &models.Document{
		ID:             uuid.New().String(),
		Filename:       filename,
		SizeBytes:      sizeBytes,
		Pages:          extraction.Pages,
		ChunkCount:     len(chunks),
		WordCount:      extraction.WordCount,
		ExtractMethod:  extraction.Method,
		QualityScore:   extraction.QualityScore,
		EmbeddingModel: a.embedder.Model(),
		IngestedAt:     time.Now().UTC(),
	}

	logger.Info("Document ingested",
		"document_id", a.doc.ID,
		"filename", filename,
		"pages", extraction.Pages,
		"chunks", len(chunks),
		"method", extraction.Method)

	return &models.UploadResponse{
		Document:       a.doc,
		ProcessingTime: time.Since(start) / time.Millisecond,
	}, nil
}

// Ask answers a question against the indexed document. Questions asked
// before any ingestion fall through to the generator's no-context answer.
func (a *Assistant) Ask(ctx context.Context, question string, topK int) (*models.AskResponse, error) {
	if topK <= 0 {
		topK = a.cfg.TopK
	}
	start := time.Now()

	a.appendHistory("user", question, nil)

	a.mu.Lock()
	index := a.index
	gen := a.generator
	a.mu.Unlock()

	var answer string
	var sources []models.Source
	var provider string

	if gen == nil {
		answer = generatorUnavailable
	} else {
		results, err := index.Search(ctx, question, topK)
		if err != nil {
			return nil, fmt.Errorf("retrieval failed: %w", err)
		}
		answer = gen.Generate(ctx, question, results)
		sources = sourcePreviews(results)
		provider = string(gen.Provider())
	}

	meta := map[string]any{"latency_ms": time.Since(start).Milliseconds()}
	if provider != "" {
		meta["provider"] = provider
	}
	if len(sources) > 0 {
		meta["sources"] = sources
	}
	a.appendHistory("assistant", answer, meta)

	return &models.AskResponse{
		Answer:    answer,
		Sources:   sources,
		Provider:  provider,
		LatencyMS: time.Since(start).Milliseconds(),
	}, nil
}

// sourcePreviews keeps the three closest chunks, truncated for display.
func sourcePreviews(results []vectorindex.Result) []models.Source {
	n := len(results)
	if n > 3 {
		n = 3
	}
	sources := make([]models.Source, 0, n)
	for _, r := range results[:n] {
		preview := r.Chunk
		if runes := []rune(preview); len(runes) > sourcePreviewRunes {
			preview = string(runes[:sourcePreviewRunes]) + "…"
		}
		sources = append(sources, models.Source{ID: r.ID, Preview: preview, Score: r.Score})
	}
	return sources
}

func (a *Assistant) appendHistory(role, content string, metadata map[string]any) {
	if a.history == nil {
		return
	}
	if err := a.history.Append(role, content, metadata); err != nil {
		logger.Warn("Failed to append chat history", "role", role, "error", err)
	}
}

// Document returns the currently ingested document, or nil.
func (a *Assistant) Document() *models.Document {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.doc == nil {
		return nil
	}
	doc := *a.doc
	return &doc
}

// History returns the persisted conversation, oldest first.
func (a *Assistant) History() []history.Message {
	if a.history == nil {
		return nil
	}
	return a.history.Messages()
}

// ClearHistory drops the persisted conversation.
func (a *Assistant) ClearHistory() error {
	if a.history == nil {
		return nil
	}
	return a.history.Clear()
}

// SwitchProvider changes the answer backend at runtime. When the generator
// never initialized this is the recovery path: a fresh one is built for the
// requested provider.
func (a *Assistant) SwitchProvider(name string, temperature *float64) error {
	provider, err := rag.ParseProvider(name)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.generator == nil {
		temp := a.cfg.Temperature
		if temperature != nil {
			temp = *temperature
		}
		gen, err := rag.New(provider, temp)
		if err != nil {
			return err
		}
		a.generator = gen
		a.genErr = nil
		logger.Info("Answer generator initialized", "provider", provider)
		return nil
	}

	if err := a.generator.SwitchProvider(provider); err != nil {
		return err
	}
	if temperature != nil {
		if err := a.generator.SetTemperature(*temperature); err != nil {
			return err
		}
	}
	logger.Info("Switched LLM provider", "provider", provider)
	return nil
}

// ProviderStatuses reports credential presence for every supported provider,
// mirroring what operators need before switching.
func (a *Assistant) ProviderStatuses() []models.ProviderStatus {
	a.mu.Lock()
	var active rag.Provider
	if a.generator != nil {
		active = a.generator.Provider()
	}
	a.mu.Unlock()

	statuses := make([]models.ProviderStatus, 0, len(rag.Providers()))
	for _, p := range rag.Providers() {
		envVar := rag.CredentialVar(p)
		statuses = append(statuses, models.ProviderStatus{
			Provider:      string(p),
			CredentialVar: envVar,
			Configured:    os.Getenv(envVar) != "",
			Active:        p == active,
		})
	}
	return statuses
}

// Ready reports whether a document is indexed and queryable.
func (a *Assistant) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.index.Len() > 0
}

// GeneratorError returns the construction error of the answer generator,
// or nil when one is active.
func (a *Assistant) GeneratorError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generator != nil {
		return nil
	}
	return a.genErr
}

func (a *Assistant) closeEmbedder() {
	type closer interface{ Close() error }
	if c, ok := a.embedder.(closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn("Failed to close embedder", "error", err)
		}
	}
}

// Close releases backend clients.
func (a *Assistant) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeEmbedder()
	if a.generator != nil {
		if err := a.generator.Close(); err != nil {
			logger.Warn("Failed to close generator", "error", err)
		}
	}
}
