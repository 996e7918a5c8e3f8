package models

// Document is a single source document in the knowledge base before
// chunking. Source is the document name users refer to (e.g.
// "National Wetland Policy.pdf" or a URL for scraped pages).
type Document struct {
	ID       string
	Source   string
	Title    string
	Page     int
	Content  string
	Metadata map[string]interface{}
}

// ProcessedDocument is a document split into chunks ready for embedding.
type ProcessedDocument struct {
	Document
	Chunks []string
}

// ScoredChunk is one stored chunk returned from a similarity search,
// with its cosine distance to the query embedding. Lower is closer.
type ScoredChunk struct {
	ID          string
	Source      string
	Title       string
	Page        int
	ContentType string
	Content     string
	Distance    float32
}

// DocumentInfo is the per-source aggregate reported by the document
// listing tool.
type DocumentInfo struct {
	Name         string   `json:"name"`
	ChunkCount   int      `json:"total_chunks"`
	PageCount    int      `json:"page_count"`
	ContentTypes []string `json:"content_types"`
}

// RetrievedDocument is the shape a retrieval tool hands back to the
// model for a single chunk. Page is a string so unknown pages render
// as "?".
type RetrievedDocument struct {
	Content string `json:"content"`
	Source  string `json:"source"`
	Page    string `json:"page"`
	Type    string `json:"type"`
}

// ToolResult is the outcome of one tool invocation. Tool failures are
// reported through Success/Error rather than Go errors so the model can
// see and react to them.
type ToolResult struct {
	Success          bool                `json:"success"`
	Message          string              `json:"message,omitempty"`
	Error            string              `json:"error,omitempty"`
	Documents        []RetrievedDocument `json:"documents,omitempty"`
	Count            int                 `json:"count,omitempty"`
	SearchedDocument string              `json:"searched_document,omitempty"`
	Listing          []DocumentInfo      `json:"listing,omitempty"`
	TotalDocuments   int                 `json:"total_documents,omitempty"`
}

// Sources returns the unique document names among the retrieved chunks,
// in first-seen order.
func (r ToolResult) Sources() []string {
	var sources []string
	seen := make(map[string]bool)
	for _, doc := range r.Documents {
		if doc.Source != "" && !seen[doc.Source] {
			seen[doc.Source] = true
			sources = append(sources, doc.Source)
		}
	}
	return sources
}
