// Package rag provides retrieval pipeline configuration options.
package rag

import (
	"fmt"
	"time"

	"github.com/kart-io/scholar-x/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// Options contains retrieval pipeline configuration.
type Options struct {
	// ChunkSize is the unit budget per chunk.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the unit budget carried over between adjacent chunks.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// TopK is the number of results to return from similarity search.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// MinSimilarity is the score threshold below which search hits are
	// dropped. The same threshold gates answer grounding.
	MinSimilarity float64 `json:"min-similarity" mapstructure:"min-similarity"`

	// ScoreTolerance is the allowed score drift when comparing retrieval
	// results against expectations.
	ScoreTolerance float64 `json:"score-tolerance" mapstructure:"score-tolerance"`

	// Collection is the name of the vector store collection.
	Collection string `json:"collection" mapstructure:"collection"`

	// EmbeddingDim is the dimension of embedding vectors.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// EmbedBatchSize is the number of texts embedded per provider call.
	EmbedBatchSize int `json:"embed-batch-size" mapstructure:"embed-batch-size"`

	// QueryTimeout bounds a full query round trip.
	QueryTimeout time.Duration `json:"query-timeout" mapstructure:"query-timeout"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		ChunkSize:      512,
		ChunkOverlap:   50,
		TopK:           5,
		MinSimilarity:  0.7,
		ScoreTolerance: 0.05,
		Collection:     "textbook_chunks",
		EmbeddingDim:   768, // nomic-embed-text dimension
		EmbedBatchSize: 96,
		QueryTimeout:   60 * time.Second,
	}
}

// AddFlags adds flags for retrieval options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.ChunkSize, options.Join(prefixes...)+"rag.chunk-size", o.ChunkSize, "Unit budget per text chunk.")
	fs.IntVar(&o.ChunkOverlap, options.Join(prefixes...)+"rag.chunk-overlap", o.ChunkOverlap, "Overlap unit budget between chunks.")
	fs.IntVar(&o.TopK, options.Join(prefixes...)+"rag.top-k", o.TopK, "Number of results from similarity search.")
	fs.Float64Var(&o.MinSimilarity, options.Join(prefixes...)+"rag.min-similarity", o.MinSimilarity, "Similarity score threshold for retrieval and grounding.")
	fs.Float64Var(&o.ScoreTolerance, options.Join(prefixes...)+"rag.score-tolerance", o.ScoreTolerance, "Allowed score drift in validation comparisons.")
	fs.StringVar(&o.Collection, options.Join(prefixes...)+"rag.collection", o.Collection, "Vector store collection name.")
	fs.IntVar(&o.EmbeddingDim, options.Join(prefixes...)+"rag.embedding-dim", o.EmbeddingDim, "Embedding vector dimension.")
	fs.IntVar(&o.EmbedBatchSize, options.Join(prefixes...)+"rag.embed-batch-size", o.EmbedBatchSize, "Texts embedded per provider call.")
	fs.DurationVar(&o.QueryTimeout, options.Join(prefixes...)+"rag.query-timeout", o.QueryTimeout, "Timeout for a full query round trip.")
}

// Validate validates the retrieval options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("chunk-overlap must not be negative"))
	}
	if o.ChunkOverlap >= o.ChunkSize && o.ChunkSize > 0 {
		errs = append(errs, fmt.Errorf("chunk-overlap must be smaller than chunk-size"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top-k must be positive"))
	}
	if o.MinSimilarity < 0 || o.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("min-similarity must be in [0, 1]"))
	}
	if o.ScoreTolerance < 0 {
		errs = append(errs, fmt.Errorf("score-tolerance must not be negative"))
	}
	if o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("embedding-dim must be positive"))
	}
	if o.EmbedBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embed-batch-size must be positive"))
	}
	return errs
}

// Complete completes the retrieval options with defaults.
func (o *Options) Complete() error {
	if o.Collection == "" {
		o.Collection = "textbook_chunks"
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = 60 * time.Second
	}
	return nil
}
