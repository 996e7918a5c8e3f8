// Package tools defines the function-calling tools the chat model may
// invoke against the knowledge base, and executes them.
package tools

import "github.com/tmc/langchaingo/llms"

const (
	ToolRetrieveDocuments      = "retrieve_documents"
	ToolSearchSpecificDocument = "search_specific_document"
	ToolGetDocumentList        = "get_document_list"
)

const (
	defaultRetrieveTopK = 8
	maxRetrieveTopK     = 15
	defaultDocumentTopK = 5
)

// Schemas returns the tool declarations sent to the model.
func Schemas() []llms.Tool {
	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name: ToolRetrieveDocuments,
				Description: "Retrieve relevant documents from the knowledge base. " +
					"Use this tool when you need to find information to answer the user's question. " +
					"This searches across all available documents.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "The search query to find relevant documents. Should be a clear, specific question or topic.",
						},
						"top_k": map[string]any{
							"type":        "integer",
							"description": "Number of top documents to retrieve (default: 8, max: 15)",
						},
					},
					"required": []string{"query"},
				},
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name: ToolSearchSpecificDocument,
				Description: "Search for information within a specific document only. " +
					"Use this when the user explicitly mentions a document name or asks to use only a specific source.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"document_name": map[string]any{
							"type":        "string",
							"description": "The name of the specific document to search within (e.g., 'National Wetland Policy.pdf')",
						},
						"query": map[string]any{
							"type":        "string",
							"description": "The search query within that specific document",
						},
						"top_k": map[string]any{
							"type":        "integer",
							"description": "Number of top chunks to retrieve from this document (default: 5)",
						},
					},
					"required": []string{"document_name", "query"},
				},
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name: ToolGetDocumentList,
				Description: "Get a list of all available documents in the knowledge base with their metadata. " +
					"Use this when the user asks what documents are available or wants to know the sources.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
					"required":   []string{},
				},
			},
		},
	}
}
