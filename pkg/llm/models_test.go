package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"models": [
				{
					"name": "models/gemini-1.5-flash",
					"displayName": "Gemini 1.5 Flash",
					"supportedGenerationMethods": ["generateContent", "countTokens"]
				},
				{
					"name": "models/embedding-001",
					"displayName": "Embedding 001",
					"supportedGenerationMethods": ["embedContent"]
				}
			]
		}`))
	}))
	defer server.Close()

	original := listModelsURL
	listModelsURL = server.URL
	defer func() { listModelsURL = original }()

	infos, err := ListModels(context.Background(), "test-key")
	require.NoError(t, err)
	require.Len(t, infos, 2)

	assert.Equal(t, "models/gemini-1.5-flash", infos[0].Name)
	assert.True(t, infos[0].SupportsGeneration())
	assert.False(t, infos[1].SupportsGeneration())
}

func TestListModelsRequiresKey(t *testing.T) {
	_, err := ListModels(context.Background(), "")
	assert.Error(t, err)
}

func TestListModelsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid key"}`, http.StatusForbidden)
	}))
	defer server.Close()

	original := listModelsURL
	listModelsURL = server.URL
	defer func() { listModelsURL = original }()

	_, err := ListModels(context.Background(), "bad-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}
