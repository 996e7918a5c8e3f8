package retriever_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wetlandlabs/wetkb/internal/models"
	"github.com/wetlandlabs/wetkb/pkg/retriever"
)

type fakeEmbedder struct {
	err   error
	calls []string
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts...)
	if f.err != nil {
		return nil, f.err
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = []float32{0.1, 0.2, 0.3}
	}
	return embeddings, nil
}

func (f *fakeEmbedder) FlattenEmbeddings(embeddings [][]float32) []float32 {
	var flattened []float32
	for _, emb := range embeddings {
		flattened = append(flattened, emb...)
	}
	return flattened
}

type fakeSearcher struct {
	chunks     []models.ScoredChunk
	err        error
	lastLimit  int
	lastSource string
}

func (f *fakeSearcher) Query(_ context.Context, _ []float32, limit int) ([]models.ScoredChunk, error) {
	f.lastLimit = limit
	return f.chunks, f.err
}

func (f *fakeSearcher) QueryInDocument(_ context.Context, _ []float32, source string, limit int) ([]models.ScoredChunk, error) {
	f.lastSource = source
	f.lastLimit = limit
	return f.chunks, f.err
}

func chunksWithDistances(distances ...float32) []models.ScoredChunk {
	chunks := make([]models.ScoredChunk, len(distances))
	for i, d := range distances {
		chunks[i] = models.ScoredChunk{
			ID:       fmt.Sprintf("c%d", i),
			Source:   "doc.pdf",
			Content:  "chunk",
			Distance: d,
		}
	}
	return chunks
}

func newRetriever(t *testing.T, emb *fakeEmbedder, s *fakeSearcher) *retriever.Retriever {
	t.Helper()
	r, err := retriever.NewWithConfig(retriever.Config{
		TopK:         8,
		MaxTopK:      15,
		DocumentTopK: 5,
		MaxDistance:  0.5,
	}, emb, s)
	require.NoError(t, err)
	return r
}

func TestNewWithConfigRequiresDeps(t *testing.T) {
	_, err := retriever.NewWithConfig(retriever.Config{}, nil, &fakeSearcher{})
	assert.Error(t, err)

	_, err = retriever.NewWithConfig(retriever.Config{}, &fakeEmbedder{}, nil)
	assert.Error(t, err)
}

func TestRetrieveFiltersByDistance(t *testing.T) {
	s := &fakeSearcher{chunks: chunksWithDistances(0.1, 0.4, 0.6, 0.9)}
	r := newRetriever(t, &fakeEmbedder{}, s)

	chunks, err := r.Retrieve(context.Background(), "wetlands", 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "c0", chunks[0].ID)
	assert.Equal(t, "c1", chunks[1].ID)
	assert.Equal(t, 8, s.lastLimit)
}

func TestRetrieveClampsTopK(t *testing.T) {
	s := &fakeSearcher{}
	r := newRetriever(t, &fakeEmbedder{}, s)

	_, err := r.Retrieve(context.Background(), "q", 100)
	require.NoError(t, err)
	assert.Equal(t, 15, s.lastLimit)
}

func TestRetrieveTrimsToLimit(t *testing.T) {
	s := &fakeSearcher{chunks: chunksWithDistances(0.1, 0.1, 0.1, 0.1)}
	r := newRetriever(t, &fakeEmbedder{}, s)

	chunks, err := r.Retrieve(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestRetrieveRequiresQuery(t *testing.T) {
	r := newRetriever(t, &fakeEmbedder{}, &fakeSearcher{})

	_, err := r.Retrieve(context.Background(), "", 3)
	assert.Error(t, err)
}

func TestRetrieveEmbedderError(t *testing.T) {
	r := newRetriever(t, &fakeEmbedder{err: fmt.Errorf("quota exceeded")}, &fakeSearcher{})

	_, err := r.Retrieve(context.Background(), "q", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestRetrieveStoreError(t *testing.T) {
	r := newRetriever(t, &fakeEmbedder{}, &fakeSearcher{err: fmt.Errorf("connection refused")})

	_, err := r.Retrieve(context.Background(), "q", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query documents")
}

func TestRetrieveInDocumentOverfetches(t *testing.T) {
	s := &fakeSearcher{chunks: chunksWithDistances(0.1, 0.2, 0.3, 0.6)}
	r := newRetriever(t, &fakeEmbedder{}, s)

	chunks, err := r.RetrieveInDocument(context.Background(), "National Wetland Policy", "q", 2)
	require.NoError(t, err)

	// Asked the store for twice the requested count, returned at most
	// the requested count after filtering.
	assert.Equal(t, "National Wetland Policy", s.lastSource)
	assert.Equal(t, 4, s.lastLimit)
	assert.Len(t, chunks, 2)
}

func TestRetrieveInDocumentDefaults(t *testing.T) {
	s := &fakeSearcher{}
	r := newRetriever(t, &fakeEmbedder{}, s)

	_, err := r.RetrieveInDocument(context.Background(), "doc", "q", 0)
	require.NoError(t, err)
	assert.Equal(t, 10, s.lastLimit)
}

func TestRetrieveInDocumentRequiresSource(t *testing.T) {
	r := newRetriever(t, &fakeEmbedder{}, &fakeSearcher{})

	_, err := r.RetrieveInDocument(context.Background(), "", "q", 3)
	assert.Error(t, err)
}
