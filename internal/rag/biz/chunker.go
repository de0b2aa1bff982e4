package biz

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kart-io/logger"

	"github.com/kart-io/scholar-x/internal/pkg/rag/textutil"
	"github.com/kart-io/scholar-x/internal/rag/store"
	"github.com/kart-io/scholar-x/pkg/utils/id"
)

// minChunkContentLength is the advisory lower bound on chunk content,
// in runes. Shorter chunks carry too little signal to embed usefully.
const minChunkContentLength = 10

// BuildChunks splits text into chunks of at most chunkSize units on
// sentence boundaries, falling back to word boundaries for sentences
// that are themselves oversized. A single word longer than chunkSize
// becomes its own chunk rather than being cut mid-word.
//
// When overlap is positive, every chunk after the first is prefixed
// with the trailing sentences of its predecessor, up to overlap units.
// The overlap is computed from the original chunk sequence, so earlier
// prefixes never leak into later ones.
//
// Text that fits inside a single chunk is returned verbatim after
// whitespace trimming, preserving its punctuation and spacing.
func BuildChunks(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 || overlap < 0 {
		return nil, ErrInvalidChunkParams
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return []string{}, nil
	}
	if textutil.CountUnits(trimmed) <= chunkSize {
		return []string{trimmed}, nil
	}

	chunks := assembleChunks(trimmed, chunkSize)
	if overlap > 0 && len(chunks) > 1 {
		chunks = applyOverlap(chunks, overlap)
	}
	return chunks, nil
}

// assembleChunks packs sentences greedily into chunks of at most
// chunkSize units.
func assembleChunks(text string, chunkSize int) []string {
	var (
		chunks       []string
		current      string
		currentUnits int
	)

	flush := func() {
		if current != "" {
			chunks = append(chunks, current)
			current = ""
			currentUnits = 0
		}
	}

	for _, sentence := range textutil.SplitSentences(text) {
		units := textutil.CountUnits(sentence)
		if currentUnits+units > chunkSize {
			if units > chunkSize {
				flush()
				current, currentUnits = splitOversized(sentence, chunkSize, &chunks)
				continue
			}
			flush()
			current, currentUnits = sentence, units
			continue
		}
		if current == "" {
			current, currentUnits = sentence, units
			continue
		}
		current += " " + sentence
		currentUnits += units
	}
	flush()
	return chunks
}

// splitOversized breaks a sentence longer than chunkSize into word
// runs, appending every full run to chunks. The final partial run is
// returned so later sentences can still pack into it.
func splitOversized(sentence string, chunkSize int, chunks *[]string) (string, int) {
	var (
		current      string
		currentUnits int
	)
	for _, word := range strings.Fields(sentence) {
		units := textutil.CountUnits(word)
		if currentUnits+units > chunkSize {
			if current != "" {
				*chunks = append(*chunks, current)
				current, currentUnits = "", 0
			}
			if units > chunkSize {
				*chunks = append(*chunks, word)
				continue
			}
		}
		if current == "" {
			current, currentUnits = word, units
			continue
		}
		current += " " + word
		currentUnits += units
	}
	return current, currentUnits
}

// applyOverlap prefixes each chunk after the first with the trailing
// sentences of its predecessor. Prefixes are always taken from the
// original chunks, never from already-prefixed ones.
func applyOverlap(chunks []string, overlap int) []string {
	result := make([]string, len(chunks))
	result[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		fragment := trailingFragment(chunks[i-1], overlap)
		if fragment == "" {
			result[i] = chunks[i]
			continue
		}
		result[i] = fragment + " " + chunks[i]
	}
	return result
}

// trailingFragment collects whole sentences from the end of text whose
// combined size stays within budget units. The first sentence that
// would overflow the budget stops the walk.
func trailingFragment(text string, budget int) string {
	sentences := textutil.SplitSentences(text)
	var (
		fragment string
		units    int
	)
	for i := len(sentences) - 1; i >= 0; i-- {
		su := textutil.CountUnits(sentences[i])
		if units+su > budget {
			break
		}
		if fragment == "" {
			fragment = sentences[i]
		} else {
			fragment = sentences[i] + " " + fragment
		}
		units += su
	}
	return fragment
}

// Chunker turns documents into persistable chunks using a fixed size
// and overlap configuration.
type Chunker struct {
	chunkSize int
	overlap   int
}

// NewChunker returns a Chunker with the given size and overlap in
// units. Invalid values surface later from ChunkDocument.
func NewChunker(chunkSize, overlap int) *Chunker {
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// ChunkSize reports the configured chunk size in units.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap reports the configured overlap in units.
func (c *Chunker) Overlap() int { return c.overlap }

// ChunkDocument cleans the document text, splits it into chunks, and
// wraps each chunk with identity and provenance metadata. An empty
// document yields an empty slice, not an error.
func (c *Chunker) ChunkDocument(doc *Document) ([]*store.Chunk, error) {
	cleaned := textutil.CleanText(doc.Text)
	if cleaned == "" {
		logger.Warnw("document is empty after cleaning", "source_url", doc.SourceURL)
		return []*store.Chunk{}, nil
	}

	contents, err := BuildChunks(cleaned, c.chunkSize, c.overlap)
	if err != nil {
		return nil, fmt.Errorf("chunking failed for source %s: %w", doc.SourceURL, err)
	}

	now := time.Now().UTC()
	originalLen := utf8.RuneCountInString(cleaned)
	chunks := make([]*store.Chunk, 0, len(contents))
	for i, content := range contents {
		chunks = append(chunks, &store.Chunk{
			ID:             id.NewUUID(),
			Content:        content,
			SourceURL:      doc.SourceURL,
			Section:        doc.Section,
			PageNumber:     doc.PageNumber,
			ChunkIndex:     i,
			TotalChunks:    len(contents),
			OriginalLength: originalLen,
			ChunkLength:    utf8.RuneCountInString(content),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	logger.Debugw("document chunked",
		"source_url", doc.SourceURL,
		"chunks", len(chunks),
		"chunk_size", c.chunkSize,
		"overlap", c.overlap,
	)
	return chunks, nil
}

// ValidateChunk reports whether a chunk is worth embedding and
// storing. Failures are logged and counted by callers but never abort
// a pipeline run.
func (c *Chunker) ValidateChunk(chunk *store.Chunk) bool {
	if chunk == nil {
		return false
	}
	if chunk.ID == "" || chunk.Content == "" || chunk.SourceURL == "" {
		logger.Errorw("chunk is missing required fields",
			"id", chunk.ID,
			"source_url", chunk.SourceURL,
		)
		return false
	}
	if utf8.RuneCountInString(strings.TrimSpace(chunk.Content)) < minChunkContentLength {
		logger.Warnw("chunk content is too short",
			"id", chunk.ID,
			"length", utf8.RuneCountInString(chunk.Content),
		)
		return false
	}
	if utf8.RuneCountInString(chunk.Content) > 2*c.chunkSize {
		logger.Warnw("chunk content exceeds twice the configured size",
			"id", chunk.ID,
			"length", utf8.RuneCountInString(chunk.Content),
			"chunk_size", c.chunkSize,
		)
		return false
	}
	return true
}

// Rechunk rebuilds the chunk set of a single source with a new size
// and overlap. The stored chunks are joined in order and re-split, so
// the result carries fresh IDs and indexes.
func Rechunk(existing []*store.Chunk, newSize, newOverlap int) ([]*store.Chunk, error) {
	if len(existing) == 0 {
		return []*store.Chunk{}, nil
	}

	contents := make([]string, 0, len(existing))
	for _, chunk := range existing {
		contents = append(contents, chunk.Content)
	}

	doc := &Document{
		Text:       strings.Join(contents, " "),
		SourceURL:  existing[0].SourceURL,
		Section:    existing[0].Section,
		PageNumber: existing[0].PageNumber,
	}
	return NewChunker(newSize, newOverlap).ChunkDocument(doc)
}
