package types

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"github.com/wetlandlabs/wetkb/internal/models"
)

// Core interfaces

type VectorStore interface {
	Store(ctx context.Context, docs []models.ProcessedDocument) error
	Query(ctx context.Context, embedding []float32, limit int) ([]models.ScoredChunk, error)
	QueryInDocument(ctx context.Context, embedding []float32, source string, limit int) ([]models.ScoredChunk, error)
	ListDocuments(ctx context.Context) ([]models.DocumentInfo, error)
	DeleteDocument(ctx context.Context, source string) (int64, error)
	Close()
}

type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	FlattenEmbeddings(embeddings [][]float32) []float32
}

type Processor interface {
	Process(docs []models.Document) ([]models.ProcessedDocument, error)
}

// Retriever finds knowledge-base chunks relevant to a query. A topK of
// zero or less means the implementation's default.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]models.ScoredChunk, error)
	RetrieveInDocument(ctx context.Context, source, query string, topK int) ([]models.ScoredChunk, error)
}

// DocumentLister reports what is in the knowledge base.
type DocumentLister interface {
	ListDocuments(ctx context.Context) ([]models.DocumentInfo, error)
}

// ToolExecutor exposes function-calling tools to the chat engine.
// Execute never returns a Go error: failures are carried inside the
// ToolResult so they can be shown to the model.
type ToolExecutor interface {
	Schemas() []llms.Tool
	Execute(ctx context.Context, name, arguments string) models.ToolResult
}
