// Package biz implements the retrieval core for textbook question
// answering: chunk construction, similarity retrieval, grounded answer
// generation, lexical grounding verification, the ingest pipeline, and
// the deterministic validation harness that guards retrieval quality.
//
// The pure algorithms (chunking, overlap scoring, grounding,
// comparison) hold no state and are safe for concurrent use. The
// stateful orchestrators (RAGService, Pipeline, Harness) depend on the
// embedding, generation, and vector-store capabilities through narrow
// interfaces injected at construction.
package biz

import "errors"

// Document is one logical span of source material submitted for
// chunking or ingestion. PageNumber is zero when the source has no
// page association.
type Document struct {
	Text       string `json:"text"`
	SourceURL  string `json:"source_url"`
	Section    string `json:"section,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
}

var (
	// ErrInvalidChunkParams rejects non-positive chunk sizes and
	// negative overlaps before any text is touched.
	ErrInvalidChunkParams = errors.New("chunk size must be positive and overlap must not be negative")

	// ErrEmptyQuestion rejects queries with no usable question text.
	ErrEmptyQuestion = errors.New("question must not be empty")

	// ErrNoChunksForSource is returned when a rechunk targets a source
	// with nothing stored.
	ErrNoChunksForSource = errors.New("no stored chunks for source")
)
