package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wetlandlabs/wetkb/internal/models"
)

// FormatForPrompt renders a tool result as the text fed back to the
// model as the function response.
func FormatForPrompt(name string, result models.ToolResult) string {
	if !result.Success {
		errText := result.Error
		if errText == "" {
			errText = "Unknown error"
		}
		return fmt.Sprintf("[Tool Error - %s]: %s", name, errText)
	}

	switch name {
	case ToolRetrieveDocuments, ToolSearchSpecificDocument:
		return formatRetrieved(name, result.Documents)
	case ToolGetDocumentList:
		return formatListing(name, result.Listing)
	}

	// Unknown but successful tool, dump the raw result.
	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprintf("[%s]: %s", name, result.Message)
	}
	return fmt.Sprintf("[%s]: %s", name, raw)
}

func formatRetrieved(name string, docs []models.RetrievedDocument) string {
	if len(docs) == 0 {
		return fmt.Sprintf("[%s]: No relevant documents found.", name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s]: Retrieved %d documents:\n\n", name, len(docs))
	for i, doc := range docs {
		fmt.Fprintf(&b, "--- Document %d ---\n", i+1)
		fmt.Fprintf(&b, "Source: %s, Page: %s, Type: %s\n", doc.Source, doc.Page, doc.Type)
		fmt.Fprintf(&b, "Content: %s\n\n", doc.Content)
	}
	return b.String()
}

func formatListing(name string, infos []models.DocumentInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]: Available documents:\n\n", name)
	for _, info := range infos {
		fmt.Fprintf(&b, "- %s: %d chunks, %d pages\n", info.Name, info.ChunkCount, info.PageCount)
	}
	return b.String()
}
