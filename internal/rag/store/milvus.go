package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/scholar-x/pkg/component/milvus"
)

// Collection scalar field names. The embedding and id fields are owned
// by the milvus component.
const (
	fieldContent     = "content"
	fieldSourceURL   = "source_url"
	fieldSection     = "section"
	fieldPageNumber  = "page_number"
	fieldChunkIndex  = "chunk_index"
	fieldTotalChunks = "total_chunks"
	fieldOriginalLen = "original_content_length"
	fieldChunkLen    = "chunk_length"
	fieldCreatedAt   = "created_at"
	fieldUpdatedAt   = "updated_at"
)

var chunkOutputFields = []string{
	"id",
	fieldContent,
	fieldSourceURL,
	fieldSection,
	fieldPageNumber,
	fieldChunkIndex,
	fieldTotalChunks,
	fieldOriginalLen,
	fieldChunkLen,
	fieldCreatedAt,
	fieldUpdatedAt,
}

var searchOutputFields = []string{
	fieldContent,
	fieldSourceURL,
	fieldSection,
	fieldPageNumber,
}

// MilvusStore implements VectorStore on top of the milvus component
// client. Page numbers are stored as int64 with 0 meaning absent.
type MilvusStore struct {
	client     *milvus.Client
	collection string
}

var _ VectorStore = (*MilvusStore)(nil)

// NewMilvusStore creates a store bound to a collection.
func NewMilvusStore(client *milvus.Client, collection string) *MilvusStore {
	return &MilvusStore{
		client:     client,
		collection: collection,
	}
}

// CreateCollection ensures the chunk collection exists with the VarChar
// primary key, cosine-indexed embedding field, and scalar payload
// columns.
func (s *MilvusStore) CreateCollection(ctx context.Context, cfg *CollectionConfig) error {
	name := cfg.Name
	if name == "" {
		name = s.collection
	}
	schema := &milvus.CollectionSchema{
		Name:        name,
		Description: "textbook chunks with provenance metadata",
		Dimension:   cfg.Dimension,
		IDMaxLen:    128,
		MetaFields: []milvus.MetaField{
			{Name: fieldContent, DataType: entity.FieldTypeVarChar, MaxLen: 65535},
			{Name: fieldSourceURL, DataType: entity.FieldTypeVarChar, MaxLen: 1024},
			{Name: fieldSection, DataType: entity.FieldTypeVarChar, MaxLen: 512},
			{Name: fieldPageNumber, DataType: entity.FieldTypeInt64},
			{Name: fieldChunkIndex, DataType: entity.FieldTypeInt64},
			{Name: fieldTotalChunks, DataType: entity.FieldTypeInt64},
			{Name: fieldOriginalLen, DataType: entity.FieldTypeInt64},
			{Name: fieldChunkLen, DataType: entity.FieldTypeInt64},
			{Name: fieldCreatedAt, DataType: entity.FieldTypeInt64},
			{Name: fieldUpdatedAt, DataType: entity.FieldTypeInt64},
		},
	}
	if err := s.client.CreateCollection(ctx, schema); err != nil {
		return fmt.Errorf("failed to create chunk collection %s: %w", name, err)
	}
	return nil
}

// Upsert writes chunks in one batch, replacing stored chunks that share
// an id.
func (s *MilvusStore) Upsert(ctx context.Context, chunks []*Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	data := &milvus.InsertData{
		IDs:        make([]string, len(chunks)),
		Embeddings: make([][]float32, len(chunks)),
		Metadata: map[string][]any{
			fieldContent:     make([]any, len(chunks)),
			fieldSourceURL:   make([]any, len(chunks)),
			fieldSection:     make([]any, len(chunks)),
			fieldPageNumber:  make([]any, len(chunks)),
			fieldChunkIndex:  make([]any, len(chunks)),
			fieldTotalChunks: make([]any, len(chunks)),
			fieldOriginalLen: make([]any, len(chunks)),
			fieldChunkLen:    make([]any, len(chunks)),
			fieldCreatedAt:   make([]any, len(chunks)),
			fieldUpdatedAt:   make([]any, len(chunks)),
		},
	}
	for i, chunk := range chunks {
		data.IDs[i] = chunk.ID
		data.Embeddings[i] = chunk.Embedding
		data.Metadata[fieldContent][i] = chunk.Content
		data.Metadata[fieldSourceURL][i] = chunk.SourceURL
		data.Metadata[fieldSection][i] = chunk.Section
		data.Metadata[fieldPageNumber][i] = int64(chunk.PageNumber)
		data.Metadata[fieldChunkIndex][i] = int64(chunk.ChunkIndex)
		data.Metadata[fieldTotalChunks][i] = int64(chunk.TotalChunks)
		data.Metadata[fieldOriginalLen][i] = int64(chunk.OriginalLength)
		data.Metadata[fieldChunkLen][i] = int64(chunk.ChunkLength)
		data.Metadata[fieldCreatedAt][i] = chunk.CreatedAt.Unix()
		data.Metadata[fieldUpdatedAt][i] = chunk.UpdatedAt.Unix()
	}

	count, err := s.client.Upsert(ctx, s.collection, data)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert chunks: %w", err)
	}
	return int(count), nil
}

// ExistingIDs reports which of ids are already stored.
func (s *MilvusStore) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	if len(ids) == 0 {
		return map[string]struct{}{}, nil
	}
	found, err := s.client.ExistingIDs(ctx, s.collection, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing chunk ids: %w", err)
	}
	existing := make(map[string]struct{}, len(found))
	for _, id := range found {
		existing[id] = struct{}{}
	}
	return existing, nil
}

// Search returns the topK nearest chunks for vector, highest score
// first.
func (s *MilvusStore) Search(ctx context.Context, vector []float32, topK int) ([]*SearchResult, error) {
	hits, err := s.client.Search(ctx, s.collection, vector, topK, searchOutputFields)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	results := make([]*SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, &SearchResult{
			ID:      hit.ID,
			Score:   float64(hit.Score),
			Payload: payloadFromRow(hit.Metadata),
		})
	}
	return results, nil
}

// Retrieve fetches stored chunks by id, in stored chunk-index order.
func (s *MilvusStore) Retrieve(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return []*Chunk{}, nil
	}
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	expr := fmt.Sprintf("id in [%s]", strings.Join(quoted, ", "))
	return s.queryChunks(ctx, expr)
}

// FetchBySource returns every stored chunk for sourceURL ordered by
// chunk index.
func (s *MilvusStore) FetchBySource(ctx context.Context, sourceURL string) ([]*Chunk, error) {
	expr := fmt.Sprintf("%s == %s", fieldSourceURL, strconv.Quote(sourceURL))
	return s.queryChunks(ctx, expr)
}

func (s *MilvusStore) queryChunks(ctx context.Context, expr string) ([]*Chunk, error) {
	rows, err := s.client.QueryByExpr(ctx, s.collection, expr, chunkOutputFields)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks: %w", err)
	}

	chunks := make([]*Chunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, chunkFromRow(row))
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].SourceURL != chunks[j].SourceURL {
			return chunks[i].SourceURL < chunks[j].SourceURL
		}
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
	return chunks, nil
}

// DeleteByIDs removes chunks by id.
func (s *MilvusStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if err := s.client.DeleteByIDs(ctx, s.collection, ids); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// DeleteBySource removes every chunk belonging to sourceURL.
func (s *MilvusStore) DeleteBySource(ctx context.Context, sourceURL string) (int64, error) {
	expr := fmt.Sprintf("%s == %s", fieldSourceURL, strconv.Quote(sourceURL))
	count, err := s.client.DeleteByExpr(ctx, s.collection, expr)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks for source %s: %w", sourceURL, err)
	}
	return count, nil
}

// Stats returns the collection row count.
func (s *MilvusStore) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.client.GetCollectionStats(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection stats: %w", err)
	}
	return &Stats{Collection: s.collection, RowCount: rows}, nil
}

// Ping verifies the Milvus server is reachable.
func (s *MilvusStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close releases the Milvus connection.
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

func payloadFromRow(row map[string]any) Payload {
	p := Payload{}
	for key, value := range row {
		switch key {
		case fieldContent:
			p.Content = asString(value)
		case fieldSourceURL:
			p.SourceURL = asString(value)
		case "source_document":
			p.SourceDocument = asString(value)
		case fieldSection:
			p.Section = asString(value)
		case "section_title":
			p.SectionTitle = asString(value)
		case fieldPageNumber:
			if page := int(asInt64(value)); page > 0 {
				p.PageNumber = &page
			}
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]any)
			}
			p.Extra[key] = value
		}
	}
	return p
}

func chunkFromRow(row milvus.SearchResult) *Chunk {
	chunk := &Chunk{
		ID:             row.ID,
		Content:        asString(row.Metadata[fieldContent]),
		SourceURL:      asString(row.Metadata[fieldSourceURL]),
		Section:        asString(row.Metadata[fieldSection]),
		PageNumber:     int(asInt64(row.Metadata[fieldPageNumber])),
		ChunkIndex:     int(asInt64(row.Metadata[fieldChunkIndex])),
		TotalChunks:    int(asInt64(row.Metadata[fieldTotalChunks])),
		OriginalLength: int(asInt64(row.Metadata[fieldOriginalLen])),
		ChunkLength:    int(asInt64(row.Metadata[fieldChunkLen])),
	}
	if ts := asInt64(row.Metadata[fieldCreatedAt]); ts > 0 {
		chunk.CreatedAt = time.Unix(ts, 0).UTC()
	}
	if ts := asInt64(row.Metadata[fieldUpdatedAt]); ts > 0 {
		chunk.UpdatedAt = time.Unix(ts, 0).UTC()
	}
	return chunk
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	n, _ := v.(int64)
	return n
}
