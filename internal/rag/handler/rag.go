// Package handler provides HTTP handlers for the RAG service.
package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/scholar-x/internal/pkg/httputils"
	"github.com/kart-io/scholar-x/internal/rag/biz"
	"github.com/kart-io/scholar-x/internal/rag/store"
	apierrors "github.com/kart-io/scholar-x/pkg/utils/errors"
)

const defaultQueryTimeout = 60 * time.Second

// RAGHandler handles RAG HTTP requests.
type RAGHandler struct {
	service      biz.Service
	queryTimeout time.Duration
}

// NewRAGHandler creates a new RAGHandler. A non-positive timeout uses
// the default.
func NewRAGHandler(service biz.Service, queryTimeout time.Duration) *RAGHandler {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &RAGHandler{
		service:      service,
		queryTimeout: queryTimeout,
	}
}

// QueryRequest is the request body for a RAG query.
type QueryRequest struct {
	Question     string  `json:"question" binding:"required,min=1,max=2000"`
	SelectedText string  `json:"selected_text" binding:"omitempty,max=5000"`
	TopK         int     `json:"top_k" binding:"omitempty,min=1,max=50"`
	Threshold    float64 `json:"threshold" binding:"omitempty,gt=0,lte=1"`
}

// Query answers a question from the indexed textbook.
func (h *RAGHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteResponse(c, apierrors.ErrRAGInvalidRequest.WithMessage(err.Error()), nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.queryTimeout)
	defer cancel()

	result, err := h.service.Query(ctx, &biz.QueryRequest{
		Question:     req.Question,
		SelectedText: req.SelectedText,
		TopK:         req.TopK,
		Threshold:    req.Threshold,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			httputils.WriteResponse(c, apierrors.ErrRAGQueryTimeout.WithMessage(
				"Query timeout: the request took too long to process. Please try again or simplify your question."), nil)
			return
		}
		if errors.Is(err, biz.ErrEmptyQuestion) {
			httputils.WriteResponse(c, apierrors.ErrRAGEmptyQuery, nil)
			return
		}
		httputils.WriteResponse(c, apierrors.ErrRAGQueryFailed.WithMessage(err.Error()), nil)
		return
	}

	httputils.WriteResponse(c, nil, result)
}

// ValidateQueryRequest is the request body for an answerability check.
type ValidateQueryRequest struct {
	Question     string `json:"question" binding:"required,min=1,max=2000"`
	SelectedText string `json:"selected_text" binding:"omitempty,max=5000"`
}

// ValidateQuery reports whether the indexed material can answer a
// question without generating an answer.
func (h *RAGHandler) ValidateQuery(c *gin.Context) {
	var req ValidateQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteResponse(c, apierrors.ErrRAGInvalidRequest.WithMessage(err.Error()), nil)
		return
	}

	validation, err := h.service.ValidateQuery(c.Request.Context(), req.Question, req.SelectedText)
	if err != nil {
		if errors.Is(err, biz.ErrEmptyQuestion) {
			httputils.WriteResponse(c, apierrors.ErrRAGEmptyQuery, nil)
			return
		}
		httputils.WriteResponse(c, apierrors.ErrRAGQueryFailed.WithMessage(err.Error()), nil)
		return
	}

	httputils.WriteResponse(c, nil, validation)
}

// ValidateAnswerRequest is the request body for a grounding check.
// Contexts are optional; when omitted they are retrieved live.
type ValidateAnswerRequest struct {
	Question string                  `json:"question" binding:"required,min=1,max=2000"`
	Answer   string                  `json:"answer" binding:"required,min=1"`
	Contexts []*biz.RetrievedContext `json:"contexts" binding:"omitempty"`
}

// ValidateAnswer verifies an answer against retrieval contexts.
func (h *RAGHandler) ValidateAnswer(c *gin.Context) {
	var req ValidateAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteResponse(c, apierrors.ErrRAGInvalidRequest.WithMessage(err.Error()), nil)
		return
	}

	report, err := h.service.ValidateAnswer(c.Request.Context(), &biz.AnswerValidationRequest{
		Query:    req.Question,
		Answer:   req.Answer,
		Contexts: req.Contexts,
	})
	if err != nil {
		httputils.WriteResponse(c, apierrors.ErrRAGQueryFailed.WithMessage(err.Error()), nil)
		return
	}

	httputils.WriteResponse(c, nil, report)
}

// DocumentInput is one document submitted for chunking or indexing.
type DocumentInput struct {
	Text       string `json:"text" binding:"required,min=1"`
	SourceURL  string `json:"source_url" binding:"required,url"`
	Section    string `json:"section" binding:"omitempty,max=500"`
	PageNumber int    `json:"page_number" binding:"omitempty,min=1"`
}

func (d *DocumentInput) toDocument() *biz.Document {
	return &biz.Document{
		Text:       d.Text,
		SourceURL:  d.SourceURL,
		Section:    d.Section,
		PageNumber: d.PageNumber,
	}
}

// ChunkDocumentRequest is the request body for chunking a document
// without storing anything. Nil size or overlap use the configured
// defaults.
type ChunkDocumentRequest struct {
	DocumentInput
	ChunkSize *int `json:"chunk_size" binding:"omitempty,min=1"`
	Overlap   *int `json:"chunk_overlap" binding:"omitempty,min=0"`
}

// ChunkResponse returns the produced chunks.
type ChunkResponse struct {
	Chunks []*store.Chunk `json:"chunks"`
	Count  int            `json:"count"`
}

// Chunk splits a document into chunks and returns them.
func (h *RAGHandler) Chunk(c *gin.Context) {
	var req ChunkDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteResponse(c, apierrors.ErrRAGInvalidRequest.WithMessage(err.Error()), nil)
		return
	}

	chunks, err := h.service.ChunkDocument(c.Request.Context(), &biz.ChunkRequest{
		Document:  req.toDocument(),
		ChunkSize: req.ChunkSize,
		Overlap:   req.Overlap,
	})
	if err != nil {
		if errors.Is(err, biz.ErrInvalidChunkParams) {
			httputils.WriteResponse(c, apierrors.ErrRAGInvalidChunking.WithMessage(err.Error()), nil)
			return
		}
		httputils.WriteResponse(c, apierrors.ErrRAGChunkingFailed.WithMessage(err.Error()), nil)
		return
	}

	httputils.WriteResponse(c, nil, &ChunkResponse{Chunks: chunks, Count: len(chunks)})
}

// RechunkRequest is the request body for rebuilding a stored source
// with new chunking parameters.
type RechunkRequest struct {
	SourceURL string `json:"source_url" binding:"required,url"`
	ChunkSize *int   `json:"chunk_size" binding:"omitempty,min=1"`
	Overlap   *int   `json:"chunk_overlap" binding:"omitempty,min=0"`
}

// Rechunk re-chunks and re-indexes one stored source.
func (h *RAGHandler) Rechunk(c *gin.Context) {
	var req RechunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteResponse(c, apierrors.ErrRAGInvalidRequest.WithMessage(err.Error()), nil)
		return
	}

	report, err := h.service.Rechunk(c.Request.Context(), req.SourceURL, req.ChunkSize, req.Overlap)
	if err != nil {
		switch {
		case errors.Is(err, biz.ErrNoChunksForSource):
			httputils.WriteResponse(c, apierrors.ErrRAGNoResults.WithMessage(err.Error()), nil)
		case errors.Is(err, biz.ErrInvalidChunkParams):
			httputils.WriteResponse(c, apierrors.ErrRAGInvalidChunking.WithMessage(err.Error()), nil)
		default:
			httputils.WriteResponse(c, apierrors.ErrRAGIndexFailed.WithMessage(err.Error()), nil)
		}
		return
	}

	httputils.WriteResponse(c, nil, report)
}

// PipelineRequest is the request body for an ingest run.
type PipelineRequest struct {
	Documents []*DocumentInput `json:"documents" binding:"required,min=1,max=1000,dive"`
}

// ExecutePipeline runs the full indexing pipeline over the submitted
// documents.
func (h *RAGHandler) ExecutePipeline(c *gin.Context) {
	var req PipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteResponse(c, apierrors.ErrRAGInvalidRequest.WithMessage(err.Error()), nil)
		return
	}

	documents := make([]*biz.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		documents = append(documents, d.toDocument())
	}

	report, err := h.service.Ingest(c.Request.Context(), documents)
	if err != nil {
		httputils.WriteResponse(c, apierrors.ErrRAGIndexFailed.WithMessage(err.Error()), nil)
		return
	}

	httputils.WriteResponse(c, nil, report)
}

// TestPipeline replays the deterministic fixture suite against live
// retrieval and reports pipeline health.
func (h *RAGHandler) TestPipeline(c *gin.Context) {
	report, err := h.service.RunValidationSuite(c.Request.Context())
	if err != nil {
		httputils.WriteResponse(c, apierrors.ErrRAGValidatorNotReady.WithMessage(err.Error()), nil)
		return
	}

	httputils.WriteResponse(c, nil, report)
}

// Stats returns service metrics and collection statistics.
func (h *RAGHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		httputils.WriteResponse(c, apierrors.ErrRAGStatsUnavailable.WithMessage(err.Error()), nil)
		return
	}

	httputils.WriteResponse(c, nil, stats)
}

// VectorHealth probes the vector store connection.
func (h *RAGHandler) VectorHealth(c *gin.Context) {
	if err := h.service.VectorHealth(c.Request.Context()); err != nil {
		httputils.WriteResponse(c, apierrors.ErrRAGServiceUnavailable.WithMessage(err.Error()), nil)
		return
	}

	httputils.WriteResponse(c, nil, gin.H{"status": "ok"})
}

// ClearCache drops all cached query results.
func (h *RAGHandler) ClearCache(c *gin.Context) {
	if err := h.service.ClearCache(c.Request.Context()); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}

	httputils.WriteResponse(c, nil, gin.H{"cleared": true})
}
