package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolResultSources(t *testing.T) {
	result := ToolResult{
		Documents: []RetrievedDocument{
			{Source: "policy.pdf"},
			{Source: "guide.pdf"},
			{Source: "policy.pdf"},
			{Source: ""},
		},
	}

	// Unique, in first-seen order, empty sources dropped.
	assert.Equal(t, []string{"policy.pdf", "guide.pdf"}, result.Sources())
}

func TestToolResultSourcesEmpty(t *testing.T) {
	assert.Empty(t, ToolResult{}.Sources())
}
