// Package retriever embeds queries and searches the vector store,
// keeping only candidates within a cosine-distance cutoff.
package retriever

import (
	"context"
	"fmt"

	"github.com/wetlandlabs/wetkb/internal/models"
	"github.com/wetlandlabs/wetkb/internal/types"
)

// ChunkSearcher is the slice of the vector store the retriever needs.
type ChunkSearcher interface {
	Query(ctx context.Context, embedding []float32, limit int) ([]models.ScoredChunk, error)
	QueryInDocument(ctx context.Context, embedding []float32, source string, limit int) ([]models.ScoredChunk, error)
}

type Config struct {
	TopK         int     // default result count for knowledge-base-wide retrieval
	MaxTopK      int     // hard cap on requested result counts
	DocumentTopK int     // default result count for single-document retrieval
	MaxDistance  float32 // relevance cutoff, cosine distance
}

type Retriever struct {
	config   Config
	embedder types.Embedder
	store    ChunkSearcher
}

func NewWithConfig(config Config, embedder types.Embedder, store ChunkSearcher) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if config.TopK == 0 {
		config.TopK = 8
	}
	if config.MaxTopK == 0 {
		config.MaxTopK = 15
	}
	if config.DocumentTopK == 0 {
		config.DocumentTopK = 5
	}
	if config.MaxDistance == 0 {
		config.MaxDistance = 0.8
	}

	return &Retriever{
		config:   config,
		embedder: embedder,
		store:    store,
	}, nil
}

// Retrieve searches the whole knowledge base.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]models.ScoredChunk, error) {
	if topK <= 0 {
		topK = r.config.TopK
	}
	if topK > r.config.MaxTopK {
		topK = r.config.MaxTopK
	}

	embedding, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	chunks, err := r.store.Query(ctx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	return r.filterRelevant(chunks, topK), nil
}

// RetrieveInDocument searches a single source. It overfetches twice the
// requested count before the relevance cutoff so near-misses inside the
// document still have a chance.
func (r *Retriever) RetrieveInDocument(ctx context.Context, source, query string, topK int) ([]models.ScoredChunk, error) {
	if source == "" {
		return nil, fmt.Errorf("document name is required")
	}
	if topK <= 0 {
		topK = r.config.DocumentTopK
	}
	if topK > r.config.MaxTopK {
		topK = r.config.MaxTopK
	}

	embedding, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	chunks, err := r.store.QueryInDocument(ctx, embedding, source, topK*2)
	if err != nil {
		return nil, fmt.Errorf("failed to query document %q: %w", source, err)
	}

	return r.filterRelevant(chunks, topK), nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	embeddings, err := r.embedder.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to create query embeddings: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedder returned no embedding for query")
	}

	return r.embedder.FlattenEmbeddings(embeddings), nil
}

// filterRelevant drops candidates beyond the distance cutoff and trims
// to limit. The store returns chunks ordered by distance already.
func (r *Retriever) filterRelevant(chunks []models.ScoredChunk, limit int) []models.ScoredChunk {
	kept := make([]models.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Distance > r.config.MaxDistance {
			continue
		}
		kept = append(kept, chunk)
		if len(kept) == limit {
			break
		}
	}
	return kept
}
