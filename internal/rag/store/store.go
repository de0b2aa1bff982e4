// Package store defines the persistence contract for textbook chunks and
// provides the Milvus-backed implementation used in production.
package store

import (
	"context"
	"time"
)

// Chunk is the stored retrieval unit: a bounded span of cleaned textbook
// text together with its provenance and position inside the source
// document. IDs are caller-assigned so re-ingesting the same material is
// idempotent.
type Chunk struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	SourceURL      string    `json:"source_url"`
	Section        string    `json:"section,omitempty"`
	PageNumber     int       `json:"page_number,omitempty"`
	ChunkIndex     int       `json:"chunk_index"`
	TotalChunks    int       `json:"total_chunks"`
	OriginalLength int       `json:"original_content_length"`
	ChunkLength    int       `json:"chunk_length"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Embedding      []float32 `json:"-"`
}

// Payload is the typed projection of a search hit's stored fields.
// Different collections name their provenance fields differently, so both
// spellings are carried and resolved through Source and SectionLabel.
// Fields absent from the row stay zero; PageNumber is nil when the row
// has no page. Unrecognized output fields are preserved in Extra.
type Payload struct {
	Content        string         `json:"content"`
	SourceURL      string         `json:"source_url,omitempty"`
	SourceDocument string         `json:"source_document,omitempty"`
	Section        string         `json:"section,omitempty"`
	SectionTitle   string         `json:"section_title,omitempty"`
	PageNumber     *int           `json:"page_number,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// Source returns the origin document identifier, preferring source_url.
func (p *Payload) Source() string {
	if p.SourceURL != "" {
		return p.SourceURL
	}
	return p.SourceDocument
}

// SectionLabel returns the section heading, preferring section_title.
func (p *Payload) SectionLabel() string {
	if p.SectionTitle != "" {
		return p.SectionTitle
	}
	return p.Section
}

// SearchResult is a single similarity hit. Score is the cosine
// similarity in [0, 1], higher meaning more similar. The store returns
// hits ordered highest score first.
type SearchResult struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

// CollectionConfig describes the collection the store operates on.
type CollectionConfig struct {
	Name      string
	Dimension int
}

// Stats reports collection size for the stats endpoint.
type Stats struct {
	Collection string `json:"collection"`
	RowCount   int64  `json:"row_count"`
}

// VectorStore is the persistence boundary for chunks. Implementations
// own the ordering contract on Search (highest score first) and must be
// safe for concurrent use.
type VectorStore interface {
	// CreateCollection ensures the backing collection exists and is
	// ready for writes and searches. Idempotent.
	CreateCollection(ctx context.Context, cfg *CollectionConfig) error

	// Upsert writes chunks, replacing any stored chunk with the same id.
	// Returns the number of chunks written.
	Upsert(ctx context.Context, chunks []*Chunk) (int, error)

	// ExistingIDs reports which of ids are already stored.
	ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)

	// Search returns up to topK nearest chunks for vector, ordered
	// highest score first. An empty result is not an error.
	Search(ctx context.Context, vector []float32, topK int) ([]*SearchResult, error)

	// Retrieve fetches stored chunks by id. Missing ids are skipped.
	// Embeddings are not returned.
	Retrieve(ctx context.Context, ids []string) ([]*Chunk, error)

	// FetchBySource returns every stored chunk for a source document,
	// ordered by chunk index. Embeddings are not returned.
	FetchBySource(ctx context.Context, sourceURL string) ([]*Chunk, error)

	// DeleteByIDs removes chunks by id.
	DeleteByIDs(ctx context.Context, ids []string) error

	// DeleteBySource removes every chunk belonging to a source document
	// and returns the number removed.
	DeleteBySource(ctx context.Context, sourceURL string) (int64, error)

	// Stats returns the collection row count.
	Stats(ctx context.Context) (*Stats, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
