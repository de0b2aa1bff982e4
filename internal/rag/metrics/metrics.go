// Package metrics collects service-level counters for the query,
// grounding, validation, and ingest paths. Counters are updated with
// atomic operations so the hot paths never contend on a lock.
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// RAGMetrics aggregates the service counters. Durations accumulate in
// seconds under a dedicated mutex since float64 has no atomic add.
type RAGMetrics struct {
	queriesTotal       uint64
	queriesCacheHits   uint64
	queriesCacheMisses uint64
	queriesErrors      uint64

	retrievalTotal    uint64
	retrievalDuration float64
	retrievalErrors   uint64

	llmCallsTotal    uint64
	llmCallsDuration float64
	llmCallsErrors   uint64
	llmCallsRetries  uint64

	groundingTotal    uint64
	groundingGrounded uint64
	groundingRejected uint64

	harnessRuns   uint64
	harnessPassed uint64
	harnessFailed uint64

	documentsIngested uint64
	chunksIngested    uint64
	chunksSkipped     uint64
	ingestFailures    uint64

	startTime  time.Time
	durationMu sync.Mutex
}

var (
	globalRAGMetrics *RAGMetrics
	ragMetricsOnce   sync.Once
)

// GetRAGMetrics returns the process-wide metrics instance.
func GetRAGMetrics() *RAGMetrics {
	ragMetricsOnce.Do(func() {
		globalRAGMetrics = &RAGMetrics{
			startTime: time.Now(),
		}
	})
	return globalRAGMetrics
}

// RecordQuery records one answered query. Errors count separately and
// do not contribute to the cache hit ratio.
func (m *RAGMetrics) RecordQuery(cacheHit bool, err error) {
	atomic.AddUint64(&m.queriesTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.queriesErrors, 1)
		return
	}
	if cacheHit {
		atomic.AddUint64(&m.queriesCacheHits, 1)
	} else {
		atomic.AddUint64(&m.queriesCacheMisses, 1)
	}
}

// RecordRetrieval records one vector retrieval round trip.
func (m *RAGMetrics) RecordRetrieval(duration time.Duration, err error) {
	atomic.AddUint64(&m.retrievalTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.retrievalErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.retrievalDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordLLMCall records one generation round trip.
func (m *RAGMetrics) RecordLLMCall(duration time.Duration, err error) {
	atomic.AddUint64(&m.llmCallsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.llmCallsErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.llmCallsDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordLLMRetry records one retried LLM attempt.
func (m *RAGMetrics) RecordLLMRetry() {
	atomic.AddUint64(&m.llmCallsRetries, 1)
}

// RecordGrounding records one grounding verification verdict.
func (m *RAGMetrics) RecordGrounding(grounded bool) {
	atomic.AddUint64(&m.groundingTotal, 1)
	if grounded {
		atomic.AddUint64(&m.groundingGrounded, 1)
	} else {
		atomic.AddUint64(&m.groundingRejected, 1)
	}
}

// RecordHarnessRun records one fixture suite run.
func (m *RAGMetrics) RecordHarnessRun(passed bool) {
	atomic.AddUint64(&m.harnessRuns, 1)
	if passed {
		atomic.AddUint64(&m.harnessPassed, 1)
	} else {
		atomic.AddUint64(&m.harnessFailed, 1)
	}
}

// RecordIngest records the outcome counters of one pipeline run.
// Skipped counts chunks dropped as duplicates, failed counts documents
// whose chunking or embedding failed.
func (m *RAGMetrics) RecordIngest(documents, chunks, skipped, failed int) {
	if documents > 0 {
		atomic.AddUint64(&m.documentsIngested, uint64(documents))
	}
	if chunks > 0 {
		atomic.AddUint64(&m.chunksIngested, uint64(chunks))
	}
	if skipped > 0 {
		atomic.AddUint64(&m.chunksSkipped, uint64(skipped))
	}
	if failed > 0 {
		atomic.AddUint64(&m.ingestFailures, uint64(failed))
	}
}

func writeCounter(sb *strings.Builder, name, help string, value uint64) {
	sb.WriteString(fmt.Sprintf("# HELP %s %s\n", name, help))
	sb.WriteString(fmt.Sprintf("# TYPE %s counter\n", name))
	sb.WriteString(fmt.Sprintf("%s %d\n\n", name, value))
}

func writeGauge(sb *strings.Builder, name, help string, value float64) {
	sb.WriteString(fmt.Sprintf("# HELP %s %s\n", name, help))
	sb.WriteString(fmt.Sprintf("# TYPE %s gauge\n", name))
	sb.WriteString(fmt.Sprintf("%s %.6f\n\n", name, value))
}

// Export renders the counters in Prometheus text exposition format.
func (m *RAGMetrics) Export(namespace, subsystem string) string {
	prefix := namespace
	if subsystem != "" {
		prefix = prefix + "_" + subsystem
	}

	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	llmDuration := m.llmCallsDuration
	m.durationMu.Unlock()

	cacheHits := atomic.LoadUint64(&m.queriesCacheHits)
	cacheMisses := atomic.LoadUint64(&m.queriesCacheMisses)
	cacheHitRate := 0.0
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total)
	}

	var sb strings.Builder
	writeCounter(&sb, prefix+"_queries_total", "Total number of answered queries.", atomic.LoadUint64(&m.queriesTotal))
	writeCounter(&sb, prefix+"_queries_cache_hits_total", "Number of cache hits.", cacheHits)
	writeCounter(&sb, prefix+"_queries_cache_misses_total", "Number of cache misses.", cacheMisses)
	writeCounter(&sb, prefix+"_queries_errors_total", "Number of query errors.", atomic.LoadUint64(&m.queriesErrors))
	writeGauge(&sb, prefix+"_cache_hit_rate", "Cache hit rate (0-1).", cacheHitRate)

	writeCounter(&sb, prefix+"_retrieval_total", "Total number of vector retrievals.", atomic.LoadUint64(&m.retrievalTotal))
	writeGauge(&sb, prefix+"_retrieval_duration_seconds_total", "Total retrieval duration.", retrievalDuration)
	writeCounter(&sb, prefix+"_retrieval_errors_total", "Number of retrieval errors.", atomic.LoadUint64(&m.retrievalErrors))

	writeCounter(&sb, prefix+"_llm_calls_total", "Total number of LLM calls.", atomic.LoadUint64(&m.llmCallsTotal))
	writeGauge(&sb, prefix+"_llm_calls_duration_seconds_total", "Total LLM call duration.", llmDuration)
	writeCounter(&sb, prefix+"_llm_calls_errors_total", "Number of LLM call errors.", atomic.LoadUint64(&m.llmCallsErrors))
	writeCounter(&sb, prefix+"_llm_calls_retries_total", "Number of retried LLM attempts.", atomic.LoadUint64(&m.llmCallsRetries))

	writeCounter(&sb, prefix+"_grounding_checks_total", "Total number of grounding verifications.", atomic.LoadUint64(&m.groundingTotal))
	writeCounter(&sb, prefix+"_grounding_grounded_total", "Answers judged grounded.", atomic.LoadUint64(&m.groundingGrounded))
	writeCounter(&sb, prefix+"_grounding_rejected_total", "Answers judged not grounded.", atomic.LoadUint64(&m.groundingRejected))

	writeCounter(&sb, prefix+"_harness_runs_total", "Total number of fixture suite runs.", atomic.LoadUint64(&m.harnessRuns))
	writeCounter(&sb, prefix+"_harness_passed_total", "Fixture suite runs with all queries valid.", atomic.LoadUint64(&m.harnessPassed))
	writeCounter(&sb, prefix+"_harness_failed_total", "Fixture suite runs with at least one invalid query.", atomic.LoadUint64(&m.harnessFailed))

	writeCounter(&sb, prefix+"_documents_ingested_total", "Total documents ingested.", atomic.LoadUint64(&m.documentsIngested))
	writeCounter(&sb, prefix+"_chunks_ingested_total", "Total chunks stored.", atomic.LoadUint64(&m.chunksIngested))
	writeCounter(&sb, prefix+"_chunks_skipped_total", "Chunks skipped as duplicates.", atomic.LoadUint64(&m.chunksSkipped))
	writeCounter(&sb, prefix+"_ingest_failures_total", "Documents that failed ingestion.", atomic.LoadUint64(&m.ingestFailures))

	writeGauge(&sb, prefix+"_uptime_seconds", "Service uptime in seconds.", time.Since(m.startTime).Seconds())

	return sb.String()
}

// Stats returns the current counters as a nested map for the stats
// endpoint.
func (m *RAGMetrics) Stats() map[string]interface{} {
	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	llmDuration := m.llmCallsDuration
	m.durationMu.Unlock()

	cacheHits := atomic.LoadUint64(&m.queriesCacheHits)
	cacheMisses := atomic.LoadUint64(&m.queriesCacheMisses)
	cacheHitRate := 0.0
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total)
	}

	retrievalTotal := atomic.LoadUint64(&m.retrievalTotal)
	avgRetrievalDuration := 0.0
	if retrievalTotal > 0 {
		avgRetrievalDuration = retrievalDuration / float64(retrievalTotal)
	}

	llmTotal := atomic.LoadUint64(&m.llmCallsTotal)
	avgLLMDuration := 0.0
	if llmTotal > 0 {
		avgLLMDuration = llmDuration / float64(llmTotal)
	}

	return map[string]interface{}{
		"queries": map[string]interface{}{
			"total":          atomic.LoadUint64(&m.queriesTotal),
			"cache_hits":     cacheHits,
			"cache_misses":   cacheMisses,
			"cache_hit_rate": cacheHitRate,
			"errors":         atomic.LoadUint64(&m.queriesErrors),
		},
		"retrieval": map[string]interface{}{
			"total":               retrievalTotal,
			"total_duration_secs": retrievalDuration,
			"avg_duration_secs":   avgRetrievalDuration,
			"errors":              atomic.LoadUint64(&m.retrievalErrors),
		},
		"llm": map[string]interface{}{
			"calls_total":         llmTotal,
			"total_duration_secs": llmDuration,
			"avg_duration_secs":   avgLLMDuration,
			"errors":              atomic.LoadUint64(&m.llmCallsErrors),
			"retries":             atomic.LoadUint64(&m.llmCallsRetries),
		},
		"grounding": map[string]interface{}{
			"checks":   atomic.LoadUint64(&m.groundingTotal),
			"grounded": atomic.LoadUint64(&m.groundingGrounded),
			"rejected": atomic.LoadUint64(&m.groundingRejected),
		},
		"validation": map[string]interface{}{
			"runs":   atomic.LoadUint64(&m.harnessRuns),
			"passed": atomic.LoadUint64(&m.harnessPassed),
			"failed": atomic.LoadUint64(&m.harnessFailed),
		},
		"ingest": map[string]interface{}{
			"documents":      atomic.LoadUint64(&m.documentsIngested),
			"chunks":         atomic.LoadUint64(&m.chunksIngested),
			"chunks_skipped": atomic.LoadUint64(&m.chunksSkipped),
			"failures":       atomic.LoadUint64(&m.ingestFailures),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}

// Reset zeroes every counter. Intended for tests.
func (m *RAGMetrics) Reset() {
	atomic.StoreUint64(&m.queriesTotal, 0)
	atomic.StoreUint64(&m.queriesCacheHits, 0)
	atomic.StoreUint64(&m.queriesCacheMisses, 0)
	atomic.StoreUint64(&m.queriesErrors, 0)
	atomic.StoreUint64(&m.retrievalTotal, 0)
	atomic.StoreUint64(&m.retrievalErrors, 0)
	atomic.StoreUint64(&m.llmCallsTotal, 0)
	atomic.StoreUint64(&m.llmCallsErrors, 0)
	atomic.StoreUint64(&m.llmCallsRetries, 0)
	atomic.StoreUint64(&m.groundingTotal, 0)
	atomic.StoreUint64(&m.groundingGrounded, 0)
	atomic.StoreUint64(&m.groundingRejected, 0)
	atomic.StoreUint64(&m.harnessRuns, 0)
	atomic.StoreUint64(&m.harnessPassed, 0)
	atomic.StoreUint64(&m.harnessFailed, 0)
	atomic.StoreUint64(&m.documentsIngested, 0)
	atomic.StoreUint64(&m.chunksIngested, 0)
	atomic.StoreUint64(&m.chunksSkipped, 0)
	atomic.StoreUint64(&m.ingestFailures, 0)

	m.durationMu.Lock()
	m.retrievalDuration = 0
	m.llmCallsDuration = 0
	m.startTime = time.Now()
	m.durationMu.Unlock()
}
