package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/tmc/langchaingo/llms"
	"github.com/wetlandlabs/wetkb/internal/models"
	"github.com/wetlandlabs/wetkb/internal/types"
)

// Executor runs tool calls against the retrieval pipeline.
type Executor struct {
	retriever types.Retriever
	lister    types.DocumentLister
}

func NewExecutor(retriever types.Retriever, lister types.DocumentLister) *Executor {
	return &Executor{
		retriever: retriever,
		lister:    lister,
	}
}

func (e *Executor) Schemas() []llms.Tool {
	return Schemas()
}

// Execute dispatches a tool call by name. arguments is the JSON string
// produced by the model; failures come back inside the ToolResult so
// the model can react to them.
func (e *Executor) Execute(ctx context.Context, name, arguments string) models.ToolResult {
	log.Printf("executing tool %s with args %s", name, arguments)

	args := make(map[string]any)
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return models.ToolResult{
				Error: fmt.Sprintf("invalid tool arguments: %v", err),
			}
		}
	}

	switch name {
	case ToolRetrieveDocuments:
		return e.retrieveDocuments(ctx, args)
	case ToolSearchSpecificDocument:
		return e.searchSpecificDocument(ctx, args)
	case ToolGetDocumentList:
		return e.getDocumentList(ctx)
	default:
		return models.ToolResult{
			Error: fmt.Sprintf("unknown tool: %s", name),
		}
	}
}

func (e *Executor) retrieveDocuments(ctx context.Context, args map[string]any) models.ToolResult {
	// The model occasionally sends "question" instead of "query".
	query := asString(args["query"])
	if query == "" {
		query = asString(args["question"])
	}
	if query == "" {
		return models.ToolResult{Error: "query is required"}
	}

	topK := clamp(asInt(args["top_k"], defaultRetrieveTopK), 1, maxRetrieveTopK)

	chunks, err := e.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return models.ToolResult{Error: err.Error()}
	}

	if len(chunks) == 0 {
		return models.ToolResult{
			Success: true,
			Message: "No relevant documents found",
		}
	}

	docs := asRetrievedDocuments(chunks)
	return models.ToolResult{
		Success:   true,
		Message:   fmt.Sprintf("Retrieved %d relevant documents", len(docs)),
		Documents: docs,
		Count:     len(docs),
	}
}

func (e *Executor) searchSpecificDocument(ctx context.Context, args map[string]any) models.ToolResult {
	documentName := asString(args["document_name"])
	query := asString(args["query"])
	if documentName == "" || query == "" {
		return models.ToolResult{Error: "both document_name and query are required"}
	}

	topK := asInt(args["top_k"], defaultDocumentTopK)
	if topK < 1 {
		topK = defaultDocumentTopK
	}

	chunks, err := e.retriever.RetrieveInDocument(ctx, documentName, query, topK)
	if err != nil {
		return models.ToolResult{Error: err.Error()}
	}

	if len(chunks) == 0 {
		return models.ToolResult{
			Success:          true,
			Message:          fmt.Sprintf("No content found in '%s' for this query", documentName),
			SearchedDocument: documentName,
		}
	}

	docs := asRetrievedDocuments(chunks)
	return models.ToolResult{
		Success:          true,
		Message:          fmt.Sprintf("Retrieved %d chunks from '%s'", len(docs), documentName),
		Documents:        docs,
		Count:            len(docs),
		SearchedDocument: documentName,
	}
}

func (e *Executor) getDocumentList(ctx context.Context) models.ToolResult {
	infos, err := e.lister.ListDocuments(ctx)
	if err != nil {
		return models.ToolResult{Error: err.Error()}
	}

	if len(infos) == 0 {
		return models.ToolResult{
			Error: "No documents loaded in the knowledge base",
		}
	}

	return models.ToolResult{
		Success:        true,
		Message:        fmt.Sprintf("Found %d documents in knowledge base", len(infos)),
		Listing:        infos,
		TotalDocuments: len(infos),
	}
}

func asRetrievedDocuments(chunks []models.ScoredChunk) []models.RetrievedDocument {
	docs := make([]models.RetrievedDocument, 0, len(chunks))
	for _, chunk := range chunks {
		page := "?"
		if chunk.Page > 0 {
			page = strconv.Itoa(chunk.Page)
		}
		contentType := chunk.ContentType
		if contentType == "" {
			contentType = "text"
		}
		source := chunk.Source
		if source == "" {
			source = "Unknown"
		}
		docs = append(docs, models.RetrievedDocument{
			Content: chunk.Content,
			Source:  source,
			Page:    page,
			Type:    contentType,
		})
	}
	return docs
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// asInt coerces the loosely typed numbers models send (floats, numeric
// strings) and falls back to def rather than erroring.
func asInt(v any, def int) int {
	switch n := v.(type) {
	case nil:
		return def
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

func clamp(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
