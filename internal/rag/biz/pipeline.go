package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/scholar-x/internal/rag/metrics"
	"github.com/kart-io/scholar-x/internal/rag/store"
	"github.com/kart-io/scholar-x/pkg/infra/pool"
	"github.com/kart-io/scholar-x/pkg/llm"
	"github.com/kart-io/scholar-x/pkg/llm/resilience"
)

// defaultBatchSize bounds the texts sent to the embedder per call when
// no batch size is configured.
const defaultBatchSize = 96

// StageReport counts processed and failed items of one pipeline stage.
type StageReport struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// StorageReport counts the storage outcome of one pipeline run.
type StorageReport struct {
	Stored  int `json:"stored"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// PipelineReport is the outcome of one ingest run.
type PipelineReport struct {
	Documents  int           `json:"documents"`
	Chunking   StageReport   `json:"chunking"`
	Embedding  StageReport   `json:"embedding"`
	Storage    StorageReport `json:"storage"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	DurationMs int64         `json:"duration_ms"`
}

// RechunkReport is the outcome of rebuilding one source's chunks.
type RechunkReport struct {
	SourceURL string `json:"source_url"`
	OldChunks int    `json:"old_chunks"`
	NewChunks int    `json:"new_chunks"`
	Stored    int    `json:"stored"`
	ChunkSize int    `json:"chunk_size"`
	Overlap   int    `json:"overlap"`
}

// Pipeline runs the ingest flow: chunk documents in parallel, embed
// the surviving chunks in batches with retries, and store them with
// duplicate detection. Failures stay isolated per document and per
// batch; a run always produces a report.
type Pipeline struct {
	chunker   *Chunker
	embedder  llm.EmbeddingProvider
	store     store.VectorStore
	workers   *pool.Pool
	batchSize int
	retry     *resilience.RetryConfig
	metrics   *metrics.RAGMetrics
}

// NewPipeline returns a Pipeline. A nil worker pool chunks documents
// sequentially; a non-positive batchSize falls back to the default.
func NewPipeline(chunker *Chunker, embedder llm.EmbeddingProvider, vs store.VectorStore, workers *pool.Pool, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Pipeline{
		chunker:   chunker,
		embedder:  embedder,
		store:     vs,
		workers:   workers,
		batchSize: batchSize,
		retry: &resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     60 * time.Second,
			Multiplier:   2.0,
		},
		metrics: metrics.GetRAGMetrics(),
	}
}

// Execute ingests the documents end to end and reports per-stage
// counts. Individual document or batch failures are counted, logged,
// and skipped rather than aborting the run.
func (p *Pipeline) Execute(ctx context.Context, documents []*Document) (*PipelineReport, error) {
	report := &PipelineReport{
		Documents: len(documents),
		StartedAt: time.Now().UTC(),
	}

	chunks := p.chunkAll(documents, &report.Chunking)
	embedded := p.embedBatches(ctx, chunks, &report.Embedding)
	p.storeChunks(ctx, embedded, &report.Storage)

	report.FinishedAt = time.Now().UTC()
	report.DurationMs = report.FinishedAt.Sub(report.StartedAt).Milliseconds()

	failures := report.Chunking.Failed + report.Embedding.Failed + report.Storage.Failed
	p.metrics.RecordIngest(len(documents), report.Storage.Stored, report.Storage.Skipped, failures)

	logger.Infow("ingest pipeline finished",
		"documents", len(documents),
		"chunks", report.Chunking.Processed,
		"stored", report.Storage.Stored,
		"skipped", report.Storage.Skipped,
		"failures", failures,
		"duration_ms", report.DurationMs,
	)
	return report, nil
}

// chunkAll chunks every document through the worker pool and filters
// out chunks that fail validation.
func (p *Pipeline) chunkAll(documents []*Document, report *StageReport) []*store.Chunk {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		all []*store.Chunk
	)

	for _, doc := range documents {
		wg.Add(1)
		task := func() {
			defer wg.Done()

			chunks, err := p.chunker.ChunkDocument(doc)
			if err != nil {
				logger.Errorw("document chunking failed",
					"source_url", doc.SourceURL,
					"error", err.Error(),
				)
				mu.Lock()
				report.Failed++
				mu.Unlock()
				return
			}

			kept := make([]*store.Chunk, 0, len(chunks))
			dropped := 0
			for _, chunk := range chunks {
				if p.chunker.ValidateChunk(chunk) {
					kept = append(kept, chunk)
				} else {
					dropped++
				}
			}

			mu.Lock()
			all = append(all, kept...)
			report.Processed += len(kept)
			report.Failed += dropped
			mu.Unlock()
		}

		if p.workers == nil {
			task()
			continue
		}
		if err := p.workers.Submit(task); err != nil {
			go task()
		}
	}
	wg.Wait()
	return all
}

// embedBatches attaches embeddings to the chunks in batches. Each
// batch retries with exponential backoff before being counted failed
// and excluded from storage.
func (p *Pipeline) embedBatches(ctx context.Context, chunks []*store.Chunk, report *StageReport) []*store.Chunk {
	embedded := make([]*store.Chunk, 0, len(chunks))

	for start := 0; start < len(chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Content
		}

		var vectors [][]float32
		attempt := 0
		err := resilience.RetryWithBackoff(ctx, p.retry, func() error {
			attempt++
			if attempt > 1 {
				p.metrics.RecordLLMRetry()
			}
			var embedErr error
			vectors, embedErr = p.embedder.Embed(ctx, texts)
			return embedErr
		})
		if err != nil {
			logger.Errorw("embedding batch failed",
				"batch_start", start,
				"size", len(batch),
				"error", err.Error(),
			)
			report.Failed += len(batch)
			continue
		}
		if len(vectors) != len(batch) {
			logger.Errorw("embedding count mismatch",
				"want", len(batch),
				"got", len(vectors),
			)
			report.Failed += len(batch)
			continue
		}

		for i, vector := range vectors {
			batch[i].Embedding = vector
		}
		embedded = append(embedded, batch...)
		report.Processed += len(batch)
	}
	return embedded
}

// storeChunks upserts the embedded chunks, skipping IDs the store
// already holds.
func (p *Pipeline) storeChunks(ctx context.Context, chunks []*store.Chunk, report *StorageReport) {
	if len(chunks) == 0 {
		return
	}

	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunk.ID
	}

	existing, err := p.store.ExistingIDs(ctx, ids)
	if err != nil {
		logger.Warnw("failed to check existing chunk ids, storing all", "error", err.Error())
		existing = map[string]struct{}{}
	}

	fresh := make([]*store.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if _, ok := existing[chunk.ID]; ok {
			report.Skipped++
			continue
		}
		fresh = append(fresh, chunk)
	}
	if len(fresh) == 0 {
		logger.Infow("all chunks already stored", "skipped", report.Skipped)
		return
	}

	stored, err := p.store.Upsert(ctx, fresh)
	if err != nil {
		logger.Errorw("failed to store chunks", "count", len(fresh), "error", err.Error())
		report.Failed += len(fresh)
		return
	}
	report.Stored = stored
}

// RechunkAndReindex rebuilds one source's chunks with a new size and
// overlap. The rebuilt chunks are embedded before anything is deleted,
// so an embedding failure leaves the stored data untouched.
func (p *Pipeline) RechunkAndReindex(ctx context.Context, sourceURL string, newSize, newOverlap int) (*RechunkReport, error) {
	existing, err := p.store.FetchBySource(ctx, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks for source %s: %w", sourceURL, err)
	}
	if len(existing) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoChunksForSource, sourceURL)
	}

	rechunked, err := Rechunk(existing, newSize, newOverlap)
	if err != nil {
		return nil, err
	}

	var embedReport StageReport
	embedded := p.embedBatches(ctx, rechunked, &embedReport)
	if embedReport.Failed > 0 {
		return nil, fmt.Errorf("failed to embed %d of %d rebuilt chunks for source %s",
			embedReport.Failed, len(rechunked), sourceURL)
	}

	if _, err := p.store.DeleteBySource(ctx, sourceURL); err != nil {
		return nil, fmt.Errorf("failed to delete old chunks for source %s: %w", sourceURL, err)
	}

	stored, err := p.store.Upsert(ctx, embedded)
	if err != nil {
		return nil, fmt.Errorf("failed to store rebuilt chunks for source %s: %w", sourceURL, err)
	}

	logger.Infow("source rechunked",
		"source_url", sourceURL,
		"old_chunks", len(existing),
		"new_chunks", len(rechunked),
		"stored", stored,
	)

	return &RechunkReport{
		SourceURL: sourceURL,
		OldChunks: len(existing),
		NewChunks: len(rechunked),
		Stored:    stored,
		ChunkSize: newSize,
		Overlap:   newOverlap,
	}, nil
}
