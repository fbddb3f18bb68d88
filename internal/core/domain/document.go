package domain

import "time"

// Metadata keys attached to every stored chunk.
const (
	MetaFileName   = "file_name"
	MetaFileType   = "file_type"
	MetaDocumentID = "document_id"
	MetaChunkID    = "chunk_id"
	MetaPage       = "page"
	MetaTotalPages = "total_pages"
	MetaUploadedBy = "uploaded_by"
)

// Chunk is a slice of a document's text together with its source metadata.
type Chunk struct {
	ID       string         `json:"id"`
	Text     string         `json:"page_content"`
	Metadata map[string]any `json:"metadata"`
}

// ScoredChunk is a chunk returned by a similarity query.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// DocumentSummary describes one uploaded document in the index.
type DocumentSummary struct {
	DocumentID string    `json:"document_id"`
	FileName   string    `json:"file_name"`
	FileType   string    `json:"file_type"`
	TotalPages int       `json:"total_pages"`
	Chunks     int       `json:"chunks"`
	UploadedBy int64     `json:"uploaded_by,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// UploadResult is returned after a document has been chunked and indexed.
type UploadResult struct {
	DocumentID   string   `json:"document_id"`
	FileName     string   `json:"file_name"`
	ChunksStored int      `json:"chunks_stored"`
	ChunkIDs     []string `json:"chunk_ids"`
}

// TokenUsage reports LLM token consumption for one answer.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// SourceMetadata identifies a document chunk that contributed context to an answer.
type SourceMetadata struct {
	FileName   string `json:"file_name"`
	FileType   string `json:"file_type"`
	TotalPages int    `json:"total_pages"`
	Page       int    `json:"page,omitempty"`
}

// Answer is the synthesized response of the QA pipeline.
type Answer struct {
	Content map[string]any   `json:"response_content"`
	Usage   TokenUsage       `json:"token_usage"`
	Sources []SourceMetadata `json:"metadatas"`
}
