package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/scholar-x/internal/pkg/rag/textutil"
	"github.com/kart-io/scholar-x/internal/rag/store"
	"github.com/kart-io/scholar-x/pkg/llm"
)

// excerptLength is the rune budget for the short excerpt carried next
// to the full content of a retrieved chunk.
const excerptLength = 200

// RetrievedContext is one scored chunk returned by similarity search.
// Results are ordered by descending score. PageNumber is nil when the
// stored chunk has no page association.
type RetrievedContext struct {
	ID           string  `json:"id"`
	Content      string  `json:"content"`
	Excerpt      string  `json:"excerpt"`
	SourceURL    string  `json:"source_url"`
	SectionTitle string  `json:"section_title,omitempty"`
	PageNumber   *int    `json:"page_number,omitempty"`
	Score        float64 `json:"similarity_score"`
}

// Retriever embeds queries and resolves them against the vector store.
type Retriever struct {
	embedder     llm.EmbeddingProvider
	store        store.VectorStore
	embeddingDim int
}

// NewRetriever returns a Retriever. embeddingDim is the expected query
// vector dimension; zero disables the dimension check.
func NewRetriever(embedder llm.EmbeddingProvider, vs store.VectorStore, embeddingDim int) *Retriever {
	return &Retriever{embedder: embedder, store: vs, embeddingDim: embeddingDim}
}

// Retrieve embeds the query and returns up to topK chunks ordered by
// descending similarity. A positive threshold drops results scoring
// below it; zero keeps everything the store returns.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, threshold float64) ([]*RetrievedContext, error) {
	vector, err := r.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if r.embeddingDim > 0 && len(vector) != r.embeddingDim {
		logger.Warnw("query embedding dimension differs from configured dimension",
			"got", len(vector),
			"configured", r.embeddingDim,
		)
	}

	hits, err := r.store.Search(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search vector store: %w", err)
	}

	contexts := make([]*RetrievedContext, 0, len(hits))
	for _, hit := range hits {
		if threshold > 0 && hit.Score < threshold {
			continue
		}
		contexts = append(contexts, contextFromHit(hit))
	}

	logger.Debugw("retrieved contexts",
		"requested", topK,
		"hits", len(hits),
		"kept", len(contexts),
		"threshold", threshold,
	)
	return contexts, nil
}

// RetrieveWithSelection retrieves with the query augmented by a
// passage the reader selected. The selection steers the search toward
// the part of the textbook the question is about.
func (r *Retriever) RetrieveWithSelection(ctx context.Context, query, selectedText string, topK int, threshold float64) ([]*RetrievedContext, error) {
	searchText := query
	if strings.TrimSpace(selectedText) != "" {
		searchText = fmt.Sprintf("%s Context: %s", query, selectedText)
	}
	return r.Retrieve(ctx, searchText, topK, threshold)
}

func contextFromHit(hit *store.SearchResult) *RetrievedContext {
	return &RetrievedContext{
		ID:           hit.ID,
		Content:      hit.Payload.Content,
		Excerpt:      textutil.Truncate(hit.Payload.Content, excerptLength),
		SourceURL:    hit.Payload.Source(),
		SectionTitle: hit.Payload.SectionLabel(),
		PageNumber:   hit.Payload.PageNumber,
		Score:        hit.Score,
	}
}
