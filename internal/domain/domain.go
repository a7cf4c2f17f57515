// Package domain defines the core entities shared across the indexing and
// search pipeline: sources, documents, chunks, background jobs, and the
// search result shapes returned by the hybrid searcher.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SourceType identifies how a source's documents are discovered.
type SourceType string

const (
	SourceTypeDirectory SourceType = "directory"
	SourceTypeBookmarks SourceType = "bookmarks"
)

// DocStatus tracks a document through the indexing lifecycle.
type DocStatus string

const (
	DocStatusNew     DocStatus = "new"
	DocStatusScanned DocStatus = "scanned"
	DocStatusChanged DocStatus = "changed"
	DocStatusIndexed DocStatus = "indexed"
	DocStatusError   DocStatus = "error"
	DocStatusDeleted DocStatus = "deleted"
)

// JobType identifies the kind of background work a job performs.
type JobType string

const (
	JobTypeScanSource JobType = "scan_source"
	JobTypeIndexDoc   JobType = "index_doc"
	JobTypeReindexAll JobType = "reindex_all"
)

// JobStatus tracks a job through its lifecycle.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Source is a registered root that documents are discovered from, either a
// local directory tree or a browser bookmarks export.
type Source struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      SourceType     `json:"type"`
	Path      string         `json:"path"`
	Config    map[string]any `json:"config,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Document is a single indexable item discovered from a source. URI is unique
// across the whole store.
type Document struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	URI       string    `json:"uri"`
	Title     string    `json:"title"`
	MimeType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	Mtime     time.Time `json:"mtime"`
	DocHash   string    `json:"doc_hash,omitempty"`
	Status    DocStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chunk is a contiguous span of a document's extracted text. Offsets are
// byte offsets into the extracted text and are best-effort: a chunk whose
// position cannot be recovered after tokenization keeps StartOffset 0.
type Chunk struct {
	ID          string `json:"id"`
	DocID       string `json:"doc_id"`
	ChunkIndex  int    `json:"chunk_index"`
	Text        string `json:"text"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	ChunkHash   string `json:"chunk_hash"`
}

// Job is a unit of background work processed by the job runner.
type Job struct {
	ID        string         `json:"id"`
	Type      JobType        `json:"type"`
	Status    JobStatus      `json:"status"`
	Progress  float64        `json:"progress"`
	Error     string         `json:"error,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ExtractedContent is the output of a content extractor.
type ExtractedContent struct {
	Text  string
	Title string
	Extra map[string]any
}

// ChunkDraft is a chunk before it is bound to a document and persisted.
type ChunkDraft struct {
	Text        string
	StartOffset int
	EndOffset   int
}

// ScoreBreakdown explains how a search result was ranked. Fields for a
// retrieval leg the chunk did not appear in are zero.
type ScoreBreakdown struct {
	LexScore float64 `json:"lex_score"`
	LexRank  int     `json:"lex_rank"`
	VecScore float64 `json:"vec_score"`
	VecRank  int     `json:"vec_rank"`
}

// SearchResult is a single hydrated hybrid search hit.
type SearchResult struct {
	ChunkID   string         `json:"chunk_id"`
	DocID     string         `json:"doc_id"`
	Text      string         `json:"text"`
	DocTitle  string         `json:"doc_title"`
	DocURI    string         `json:"doc_uri"`
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"score_breakdown"`
}

// NewID returns a fresh entity identifier.
func NewID() string {
	return uuid.NewString()
}
