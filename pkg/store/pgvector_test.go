package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wetlandlabs/wetkb/internal/models"
)

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "clean text", sanitizeUTF8("clean text"))
	assert.Equal(t, "湿地", sanitizeUTF8("湿地"))

	// Invalid bytes are dropped, valid runes survive.
	dirty := "wet" + string([]byte{0xff, 0xfe}) + "land"
	assert.Equal(t, "wetland", sanitizeUTF8(dirty))
}

// hashEmbedder derives a deterministic unit-ish vector from the text so
// integration tests get stable, distinct embeddings without an API key.
type hashEmbedder struct {
	dim int
}

func (h *hashEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		hasher := fnv.New64a()
		hasher.Write([]byte(text))
		seed := hasher.Sum64()

		vec := make([]float32, h.dim)
		for j := range vec {
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[j] = float32(int64(seed%2000)-1000) / 1000.0
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

func (h *hashEmbedder) FlattenEmbeddings(embeddings [][]float32) []float32 {
	var flattened []float32
	for _, emb := range embeddings {
		flattened = append(flattened, emb...)
	}
	return flattened
}

// newLiveStore connects to the database named by TEST_DATABASE_URL and
// provisions a throwaway table. Skipped when the variable is unset.
func newLiveStore(t *testing.T) *VectorStore {
	t.Helper()
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	table := fmt.Sprintf("wetkb_test_%d", os.Getpid())

	vs, err := NewWithConfig(ctx, VectorStoreConfig{
		ConnString:   connString,
		TableName:    table,
		VectorDim:    8,
		EmbedWorkers: 2,
	}, &hashEmbedder{dim: 8})
	require.NoError(t, err)

	t.Cleanup(func() {
		vs.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
		vs.Close()
	})
	return vs
}

func processedDoc(id, source, content string) models.ProcessedDocument {
	return models.ProcessedDocument{
		Document: models.Document{
			ID:       id,
			Source:   source,
			Title:    source,
			Content:  content,
			Metadata: map[string]interface{}{"type": "text"},
		},
		Chunks: []string{content},
	}
}

func TestStoreAndQuery(t *testing.T) {
	vs := newLiveStore(t)
	ctx := context.Background()

	docs := []models.ProcessedDocument{
		processedDoc("d1", "policy.txt", "Wetlands are protected under national law."),
		processedDoc("d2", "birds.txt", "Herons and egrets nest in the marsh."),
	}
	require.NoError(t, vs.Store(ctx, docs))

	embedder := &hashEmbedder{dim: 8}
	embeddings, err := embedder.CreateEmbedding(ctx, []string{"Wetlands are protected under national law."})
	require.NoError(t, err)

	chunks, err := vs.Query(ctx, embedder.FlattenEmbeddings(embeddings), 2)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	// The identical text embeds to the identical vector, so it must
	// rank first with zero distance.
	assert.Equal(t, "policy.txt", chunks[0].Source)
	assert.InDelta(t, 0.0, chunks[0].Distance, 1e-5)
}

func TestStoreUpsertsOnConflict(t *testing.T) {
	vs := newLiveStore(t)
	ctx := context.Background()

	require.NoError(t, vs.Store(ctx, []models.ProcessedDocument{
		processedDoc("d1", "policy.txt", "Original content."),
	}))
	require.NoError(t, vs.Store(ctx, []models.ProcessedDocument{
		processedDoc("d1", "policy.txt", "Updated content."),
	}))

	infos, err := vs.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 1, infos[0].ChunkCount)
}

func TestQueryInDocument(t *testing.T) {
	vs := newLiveStore(t)
	ctx := context.Background()

	require.NoError(t, vs.Store(ctx, []models.ProcessedDocument{
		processedDoc("d1", "National Wetland Policy.pdf", "Protection rules."),
		processedDoc("d2", "Bird Guide.pdf", "Heron habitats."),
	}))

	embedder := &hashEmbedder{dim: 8}
	embeddings, _ := embedder.CreateEmbedding(ctx, []string{"anything"})
	vec := embedder.FlattenEmbeddings(embeddings)

	chunks, err := vs.QueryInDocument(ctx, vec, "wetland policy", 5)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "National Wetland Policy.pdf", chunks[0].Source)
}

func TestListDocuments(t *testing.T) {
	vs := newLiveStore(t)
	ctx := context.Background()

	doc := processedDoc("d1", "policy.txt", "chunk one")
	doc.Chunks = []string{"chunk one", "chunk two", "chunk three"}
	require.NoError(t, vs.Store(ctx, []models.ProcessedDocument{doc}))

	infos, err := vs.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "policy.txt", infos[0].Name)
	assert.Equal(t, 3, infos[0].ChunkCount)
	assert.Equal(t, []string{"text"}, infos[0].ContentTypes)
}

func TestDeleteDocument(t *testing.T) {
	vs := newLiveStore(t)
	ctx := context.Background()

	require.NoError(t, vs.Store(ctx, []models.ProcessedDocument{
		processedDoc("d1", "policy.txt", "content"),
		processedDoc("d2", "other.txt", "content"),
	}))

	deleted, err := vs.DeleteDocument(ctx, "policy.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	infos, err := vs.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "other.txt", infos[0].Name)

	deleted, err = vs.DeleteDocument(ctx, "missing.txt")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
