package biz

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/kart-io/scholar-x/internal/rag/store"
	"github.com/kart-io/scholar-x/pkg/llm"
)

// fakeEmbedder returns deterministic unit vectors and records every
// call so tests can assert on batching and search text.
type fakeEmbedder struct {
	mu        sync.Mutex
	dim       int
	err       error
	failFirst int
	batches   [][]string
	singles   []string
}

var _ llm.EmbeddingProvider = (*fakeEmbedder)(nil)

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dim: dim}
}

func (f *fakeEmbedder) vector() []float32 {
	v := make([]float32, f.dim)
	if f.dim > 0 {
		v[0] = 1
	}
	return v
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.batches = append(f.batches, texts)
	if f.failFirst > 0 {
		f.failFirst--
		return nil, errors.New("embedding backend unavailable")
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector()
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.singles = append(f.singles, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.vector(), nil
}

func (f *fakeEmbedder) Name() string { return "fake-embedder" }

func (f *fakeEmbedder) lastSingle() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.singles) == 0 {
		return ""
	}
	return f.singles[len(f.singles)-1]
}

// fakeChat returns a fixed response and records the prompts it saw.
type fakeChat struct {
	response string
	err      error
	prompts  []string
	systems  []string
}

var _ llm.ChatProvider = (*fakeChat)(nil)

func (f *fakeChat) Chat(_ context.Context, _ []llm.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeChat) Generate(_ context.Context, prompt, systemPrompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.systems = append(f.systems, systemPrompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeChat) Name() string { return "fake-chat" }

// fakeStore is an in-memory VectorStore with scripted search results
// and error injection per operation.
type fakeStore struct {
	mu sync.Mutex

	searchHits  []*store.SearchResult
	searchQueue [][]*store.SearchResult
	searchErr   error
	lastVector  []float32
	lastTopK    int

	chunks      map[string]*store.Chunk
	upsertErr   error
	existing    map[string]struct{}
	existingErr error

	deletedIDs     []string
	deletedSources []string
	statsErr       error
	pingErr        error
}

var _ store.VectorStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		chunks:   make(map[string]*store.Chunk),
		existing: make(map[string]struct{}),
	}
}

func (f *fakeStore) CreateCollection(_ context.Context, _ *store.CollectionConfig) error {
	return nil
}

func (f *fakeStore) Upsert(_ context.Context, chunks []*store.Chunk) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	for _, chunk := range chunks {
		f.chunks[chunk.ID] = chunk
	}
	return len(chunks), nil
}

func (f *fakeStore) ExistingIDs(_ context.Context, ids []string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.existingErr != nil {
		return nil, f.existingErr
	}
	found := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := f.existing[id]; ok {
			found[id] = struct{}{}
		}
		if _, ok := f.chunks[id]; ok {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

func (f *fakeStore) Search(_ context.Context, vector []float32, topK int) ([]*store.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastVector = vector
	f.lastTopK = topK
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.searchQueue) > 0 {
		hits := f.searchQueue[0]
		f.searchQueue = f.searchQueue[1:]
		return hits, nil
	}
	if topK > 0 && len(f.searchHits) > topK {
		return f.searchHits[:topK], nil
	}
	return f.searchHits, nil
}

func (f *fakeStore) Retrieve(_ context.Context, ids []string) ([]*store.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*store.Chunk, 0, len(ids))
	for _, id := range ids {
		if chunk, ok := f.chunks[id]; ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchBySource(_ context.Context, sourceURL string) ([]*store.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*store.Chunk
	for _, chunk := range f.chunks {
		if chunk.SourceURL == sourceURL {
			out = append(out, chunk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (f *fakeStore) DeleteByIDs(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletedIDs = append(f.deletedIDs, ids...)
	for _, id := range ids {
		delete(f.chunks, id)
	}
	return nil
}

func (f *fakeStore) DeleteBySource(_ context.Context, sourceURL string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletedSources = append(f.deletedSources, sourceURL)
	var n int64
	for id, chunk := range f.chunks {
		if chunk.SourceURL == sourceURL {
			delete(f.chunks, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) Stats(_ context.Context) (*store.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return &store.Stats{Collection: "fake", RowCount: int64(len(f.chunks))}, nil
}

func (f *fakeStore) Ping(_ context.Context) error { return f.pingErr }

func (f *fakeStore) Close(_ context.Context) error { return nil }

func (f *fakeStore) storedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks)
}

// hit builds a scripted search result.
func hit(id, content, sourceURL, section string, score float64) *store.SearchResult {
	return &store.SearchResult{
		ID:    id,
		Score: score,
		Payload: store.Payload{
			Content:      content,
			SourceURL:    sourceURL,
			SectionTitle: section,
		},
	}
}
