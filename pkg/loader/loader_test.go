package loader_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wetlandlabs/wetkb/internal/models"
	"github.com/wetlandlabs/wetkb/pkg/loader"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoaderRequiresDirectory(t *testing.T) {
	_, err := loader.NewWithConfig(loader.LoaderConfig{})
	assert.Error(t, err)

	_, err = loader.NewWithConfig(loader.LoaderConfig{Dir: "/does/not/exist"})
	assert.Error(t, err)
}

func TestLoaderLoadsSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "policy.txt", "Wetlands must be protected under national law.")
	writeFile(t, dir, "strategy.md", "# Metro Colombo Strategy\n\nThe strategy covers urban wetlands.")
	writeFile(t, dir, "guide.html", `<html><head><title>Field Guide</title></head><body><main><p>Bird species of the marsh.</p></main></body></html>`)
	writeFile(t, dir, "ignore.bin", "binary blob")

	var seen []string
	l, err := loader.NewWithConfig(loader.LoaderConfig{
		Dir: dir,
		OnProgress: func(path string) {
			seen = append(seen, path)
		},
	})
	require.NoError(t, err)

	docs, err := l.Load()
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Len(t, seen, 3)

	bySource := make(map[string]models.Document)
	for _, doc := range docs {
		assert.NotEmpty(t, doc.ID)
		assert.NotEmpty(t, doc.Content)
		bySource[doc.Source] = doc
	}

	txt := bySource["policy.txt"]
	assert.Equal(t, "policy", txt.Title)
	assert.Equal(t, "text", txt.Metadata["type"])

	md := bySource["strategy.md"]
	assert.Equal(t, "Metro Colombo Strategy", md.Title)
	assert.Equal(t, "markdown", md.Metadata["type"])

	html := bySource["guide.html"]
	assert.Equal(t, "Field Guide", html.Title)
	assert.Equal(t, "html", html.Metadata["type"])
	assert.Contains(t, html.Content, "Bird species of the marsh.")
	assert.NotContains(t, html.Content, "<main>")
}

func TestLoaderSkipsEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.txt", "   \n  ")
	writeFile(t, dir, "full.txt", "Some content.")

	l, err := loader.NewWithConfig(loader.LoaderConfig{Dir: dir})
	require.NoError(t, err)

	docs, err := l.Load()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "full.txt", docs[0].Source)
}

func TestLoaderWalksSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "reports")
	require.NoError(t, os.Mkdir(sub, 0755))
	writeFile(t, sub, "annual.txt", "Annual wetland report.")

	l, err := loader.NewWithConfig(loader.LoaderConfig{Dir: dir})
	require.NoError(t, err)

	docs, err := l.Load()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "annual.txt", docs[0].Source)
}
