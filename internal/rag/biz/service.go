package biz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/scholar-x/internal/rag/metrics"
	"github.com/kart-io/scholar-x/internal/rag/store"
	"github.com/kart-io/scholar-x/pkg/infra/pool"
	"github.com/kart-io/scholar-x/pkg/llm"
	"github.com/kart-io/scholar-x/pkg/llm/resilience"
)

// QueryRequest carries one question through the service. Non-positive
// TopK and Threshold fall back to the configured tuning.
type QueryRequest struct {
	Question     string
	SelectedText string
	TopK         int
	Threshold    float64
}

// QueryResult is the full answer payload for one query.
type QueryResult struct {
	Query             string              `json:"query"`
	Answer            string              `json:"answer"`
	Contexts          []*RetrievedContext `json:"contexts"`
	Grounded          bool                `json:"is_grounded"`
	Confidence        float64             `json:"confidence"`
	SupportingSources []string            `json:"supporting_sources"`
	FromCache         bool                `json:"from_cache"`
}

// QueryValidation reports whether a query can be answered from the
// indexed material.
type QueryValidation struct {
	Valid           bool     `json:"is_valid"`
	Confidence      float64  `json:"confidence"`
	RelevantSources []string `json:"relevant_sources"`
}

// ChunkRequest asks for a document to be chunked without storage. Nil
// size or overlap use the configured defaults.
type ChunkRequest struct {
	Document  *Document
	ChunkSize *int
	Overlap   *int
}

// AnswerValidationRequest asks for a grounding verdict on an answer
// produced elsewhere. With no contexts supplied, retrieval runs live
// for the query.
type AnswerValidationRequest struct {
	Query    string
	Answer   string
	Contexts []*RetrievedContext
}

// ServiceConfig carries the service construction parameters.
type ServiceConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	TopK           int
	MinSimilarity  float64
	ScoreTolerance float64
	EmbeddingDim   int
	EmbedBatchSize int
}

// TuningConfig holds the hot-reloadable retrieval parameters.
type TuningConfig struct {
	TopK          int     `mapstructure:"top-k" json:"top_k"`
	MinSimilarity float64 `mapstructure:"min-similarity" json:"min_similarity"`
}

// Service is the business surface the transport layer depends on.
type Service interface {
	Query(ctx context.Context, req *QueryRequest) (*QueryResult, error)
	ValidateQuery(ctx context.Context, query, selectedText string) (*QueryValidation, error)
	ValidateAnswer(ctx context.Context, req *AnswerValidationRequest) (*GroundingReport, error)
	ChunkDocument(ctx context.Context, req *ChunkRequest) ([]*store.Chunk, error)
	Rechunk(ctx context.Context, sourceURL string, chunkSize, overlap *int) (*RechunkReport, error)
	Ingest(ctx context.Context, documents []*Document) (*PipelineReport, error)
	RunValidationSuite(ctx context.Context) (*SuiteReport, error)
	ClearCache(ctx context.Context) error
	Stats(ctx context.Context) (map[string]any, error)
	VectorHealth(ctx context.Context) error
}

// RAGService wires retrieval, generation, grounding, caching, and the
// ingest pipeline behind the Service interface.
type RAGService struct {
	retriever *Retriever
	generator *Generator
	pipeline  *Pipeline
	harness   *Harness
	cache     *QueryCache
	store     store.VectorStore
	workers   *pool.Pool
	embedder  llm.EmbeddingProvider
	chat      llm.ChatProvider
	metrics   *metrics.RAGMetrics

	config ServiceConfig

	mu     sync.RWMutex
	tuning TuningConfig
}

var _ Service = (*RAGService)(nil)

// NewRAGService assembles the service from its collaborators. cache
// and workers may be nil; caching then degrades to a no-op and ingest
// chunking runs sequentially.
func NewRAGService(vs store.VectorStore, embedder llm.EmbeddingProvider, chat llm.ChatProvider, cache *QueryCache, workers *pool.Pool, cfg *ServiceConfig) *RAGService {
	retriever := NewRetriever(embedder, vs, cfg.EmbeddingDim)
	chunker := NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)

	return &RAGService{
		retriever: retriever,
		generator: NewGenerator(chat),
		pipeline:  NewPipeline(chunker, embedder, vs, workers, cfg.EmbedBatchSize),
		harness:   NewHarness(retriever, cfg.ScoreTolerance),
		cache:     cache,
		store:     vs,
		workers:   workers,
		embedder:  embedder,
		chat:      chat,
		metrics:   metrics.GetRAGMetrics(),
		config:    *cfg,
		tuning: TuningConfig{
			TopK:          cfg.TopK,
			MinSimilarity: cfg.MinSimilarity,
		},
	}
}

func (s *RAGService) currentTuning() TuningConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tuning
}

// resolveQueryParams applies the current tuning to per-request
// overrides.
func (s *RAGService) resolveQueryParams(topK int, threshold float64) (int, float64) {
	tuning := s.currentTuning()
	if topK <= 0 {
		topK = tuning.TopK
	}
	if threshold <= 0 {
		threshold = tuning.MinSimilarity
	}
	return topK, threshold
}

// Query answers a question from the indexed textbook: retrieve,
// generate, verify grounding. A model failure degrades to a neutral
// apology with a failed grounding verdict instead of an error, so the
// caller always gets an answerable response unless retrieval itself
// is broken or the caller went away.
func (s *RAGService) Query(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, ErrEmptyQuestion
	}
	topK, threshold := s.resolveQueryParams(req.TopK, req.Threshold)

	if cached := s.cachedResult(ctx, req, topK, threshold); cached != nil {
		s.metrics.RecordQuery(true, nil)
		return cached, nil
	}

	start := time.Now()
	contexts, err := s.retriever.RetrieveWithSelection(ctx, req.Question, req.SelectedText, topK, threshold)
	s.metrics.RecordRetrieval(time.Since(start), err)
	if err != nil {
		s.metrics.RecordQuery(false, err)
		return nil, fmt.Errorf("failed to retrieve contexts: %w", err)
	}

	answer, generationFailed, err := s.generateAnswer(ctx, req.Question, contexts)
	if err != nil {
		s.metrics.RecordQuery(false, err)
		return nil, err
	}

	result := &QueryResult{
		Query:             req.Question,
		Answer:            answer,
		Contexts:          contexts,
		SupportingSources: []string{},
	}
	if !generationFailed {
		result.Grounded, result.Confidence = VerifyGrounding(answer, contexts, s.currentTuning().MinSimilarity)
		result.SupportingSources = SupportingSources(answer, contexts)
		if len(contexts) > 0 {
			s.metrics.RecordGrounding(result.Grounded)
		}
		s.cacheResult(req, topK, threshold, result)
	}

	s.metrics.RecordQuery(false, nil)
	return result, nil
}

// generateAnswer runs generation and substitutes a neutral apology
// when the model fails for any reason other than the caller going
// away. The failure flag tells Query to skip grounding and caching.
func (s *RAGService) generateAnswer(ctx context.Context, question string, contexts []*RetrievedContext) (string, bool, error) {
	start := time.Now()
	answer, err := s.generator.Generate(ctx, question, contexts)
	if len(contexts) > 0 {
		s.metrics.RecordLLMCall(time.Since(start), err)
	}
	if err == nil {
		return answer, false, nil
	}
	if ctx.Err() != nil {
		return "", true, ctx.Err()
	}
	logger.Errorw("answer generation failed", "error", err.Error())
	return generationErrorAnswer, true, nil
}

func (s *RAGService) cachedResult(ctx context.Context, req *QueryRequest, topK int, threshold float64) *QueryResult {
	if s.cache == nil {
		return nil
	}
	result, err := s.cache.Get(ctx, req.Question, req.SelectedText, topK, threshold)
	if err != nil {
		logger.Warnw("query cache read failed", "error", err.Error())
		return nil
	}
	if result == nil {
		return nil
	}
	result.FromCache = true
	return result
}

// cacheResult writes the result through the worker pool so the caller
// never waits on Redis.
func (s *RAGService) cacheResult(req *QueryRequest, topK int, threshold float64, result *QueryResult) {
	if s.cache == nil {
		return
	}
	task := func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.cache.Set(cctx, req.Question, req.SelectedText, topK, threshold, result); err != nil {
			logger.Warnw("query cache write failed", "error", err.Error())
		}
	}
	if s.workers == nil {
		task()
		return
	}
	if err := s.workers.Submit(task); err != nil {
		go task()
	}
}

// ValidateQuery reports whether the indexed material can answer the
// query: the mean retrieval score as confidence, validity when any
// context clears the similarity threshold, and the distinct sources
// involved. Retrieval runs unfiltered so below-threshold contexts
// still count toward the confidence.
func (s *RAGService) ValidateQuery(ctx context.Context, query, selectedText string) (*QueryValidation, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuestion
	}
	tuning := s.currentTuning()
	threshold := tuning.MinSimilarity

	contexts, err := s.retriever.RetrieveWithSelection(ctx, query, selectedText, tuning.TopK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve contexts: %w", err)
	}
	if len(contexts) == 0 {
		return &QueryValidation{Valid: false, Confidence: 0, RelevantSources: []string{}}, nil
	}

	var sum float64
	valid := false
	seen := make(map[string]struct{})
	sources := make([]string, 0)
	for _, rc := range contexts {
		sum += rc.Score
		if rc.Score >= threshold {
			valid = true
		}
		if rc.SourceURL == "" {
			continue
		}
		if _, ok := seen[rc.SourceURL]; ok {
			continue
		}
		seen[rc.SourceURL] = struct{}{}
		sources = append(sources, rc.SourceURL)
	}
	sort.Strings(sources)

	return &QueryValidation{
		Valid:           valid,
		Confidence:      sum / float64(len(contexts)),
		RelevantSources: sources,
	}, nil
}

// ValidateAnswer produces a grounding report for an answer. Contexts
// omitted from the request are retrieved live for the query.
func (s *RAGService) ValidateAnswer(ctx context.Context, req *AnswerValidationRequest) (*GroundingReport, error) {
	contexts := req.Contexts
	if len(contexts) == 0 {
		topK, threshold := s.resolveQueryParams(0, 0)
		var err error
		contexts, err = s.retriever.Retrieve(ctx, req.Query, topK, threshold)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve contexts: %w", err)
		}
	}

	grounded, confidence := VerifyGrounding(req.Answer, contexts, s.currentTuning().MinSimilarity)
	if len(contexts) > 0 {
		s.metrics.RecordGrounding(grounded)
	}

	return &GroundingReport{
		Grounded:          grounded,
		Confidence:        confidence,
		Accuracy:          ResponseAccuracy(req.Answer, contexts),
		SupportingSources: SupportingSources(req.Answer, contexts),
	}, nil
}

// ChunkDocument chunks a document without storing anything.
func (s *RAGService) ChunkDocument(_ context.Context, req *ChunkRequest) ([]*store.Chunk, error) {
	size := s.config.ChunkSize
	if req.ChunkSize != nil {
		size = *req.ChunkSize
	}
	overlap := s.config.ChunkOverlap
	if req.Overlap != nil {
		overlap = *req.Overlap
	}
	return NewChunker(size, overlap).ChunkDocument(req.Document)
}

// Rechunk rebuilds one source's stored chunks with a new size and
// overlap, defaulting either to the configured values.
func (s *RAGService) Rechunk(ctx context.Context, sourceURL string, chunkSize, overlap *int) (*RechunkReport, error) {
	size := s.config.ChunkSize
	if chunkSize != nil {
		size = *chunkSize
	}
	ov := s.config.ChunkOverlap
	if overlap != nil {
		ov = *overlap
	}
	return s.pipeline.RechunkAndReindex(ctx, sourceURL, size, ov)
}

// Ingest runs the full pipeline over the documents.
func (s *RAGService) Ingest(ctx context.Context, documents []*Document) (*PipelineReport, error) {
	return s.pipeline.Execute(ctx, documents)
}

// RunValidationSuite replays the fixture suite through live retrieval.
func (s *RAGService) RunValidationSuite(ctx context.Context) (*SuiteReport, error) {
	report, err := s.harness.RunFixtureSuite(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordHarnessRun(report.ValidationPassed)
	return report, nil
}

// ClearCache drops every cached query result.
func (s *RAGService) ClearCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Clear(ctx)
}

// Stats aggregates service metrics, vector store state, cache state,
// worker pool counters, and circuit breaker snapshots.
func (s *RAGService) Stats(ctx context.Context) (map[string]any, error) {
	tuning := s.currentTuning()
	out := map[string]any{
		"metrics": s.metrics.Stats(),
		"tuning": map[string]any{
			"top_k":          tuning.TopK,
			"min_similarity": tuning.MinSimilarity,
			"chunk_size":     s.config.ChunkSize,
			"chunk_overlap":  s.config.ChunkOverlap,
		},
	}

	if stats, err := s.store.Stats(ctx); err != nil {
		logger.Warnw("failed to read vector store stats", "error", err.Error())
		out["vector_store"] = map[string]any{"error": err.Error()}
	} else {
		out["vector_store"] = stats
	}

	if s.cache != nil {
		if stats, err := s.cache.Stats(ctx); err != nil {
			logger.Warnw("failed to read cache stats", "error", err.Error())
		} else {
			out["cache"] = stats
		}
	}

	if s.workers != nil {
		out["workers"] = s.workers.Stats()
	}

	breakers := make(map[string]any)
	for name, provider := range map[string]any{"embedding": s.embedder, "chat": s.chat} {
		if rp, ok := provider.(interface{ CircuitBreaker() *resilience.CircuitBreaker }); ok {
			breakers[name] = rp.CircuitBreaker().Stats()
		}
	}
	if len(breakers) > 0 {
		out["circuit_breakers"] = breakers
	}
	return out, nil
}

// VectorHealth probes the vector store connection.
func (s *RAGService) VectorHealth(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// OnConfigChange applies a reloaded retrieval tuning section. Invalid
// values are rejected and the previous tuning stays in effect.
func (s *RAGService) OnConfigChange(section interface{}) error {
	cfg, ok := section.(*TuningConfig)
	if !ok {
		return fmt.Errorf("unexpected config section type %T", section)
	}
	if cfg.TopK <= 0 {
		return fmt.Errorf("top-k must be positive, got %d", cfg.TopK)
	}
	if cfg.MinSimilarity < 0 || cfg.MinSimilarity > 1 {
		return fmt.Errorf("min-similarity must be within [0, 1], got %v", cfg.MinSimilarity)
	}

	s.mu.Lock()
	previous := s.tuning
	s.tuning = *cfg
	s.mu.Unlock()

	logger.Infow("retrieval tuning reloaded",
		"old_top_k", previous.TopK,
		"new_top_k", cfg.TopK,
		"old_min_similarity", previous.MinSimilarity,
		"new_min_similarity", cfg.MinSimilarity,
	)
	return nil
}
