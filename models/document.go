package models

import "time"

// Document describes the PDF currently backing the index. The assistant
// serves one document at a time; a new upload replaces the previous one.
type Document struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	SizeBytes      int64     `json:"size_bytes"`
	Pages          int       `json:"pages"`
	ChunkCount     int       `json:"chunk_count"`
	WordCount      int       `json:"word_count"`
	ExtractMethod  string    `json:"extract_method"`
	QualityScore   float64   `json:"quality_score"`
	EmbeddingModel string    `json:"embedding_model"`
	IngestedAt     time.Time `json:"ingested_at"`
	Restored       bool      `json:"restored,omitempty"`
}

// UploadResponse is returned after a successful ingestion.
type UploadResponse struct {
	Document       *Document     `json:"document"`
	ProcessingTime time.Duration `json:"processing_time_ms"`
}
