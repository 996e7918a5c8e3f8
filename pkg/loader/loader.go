// Package loader ingests knowledge-base documents from a local
// directory: plain text, markdown, and HTML files.
package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/wetlandlabs/wetkb/internal/models"
)

type LoaderConfig struct {
	Dir        string
	Extensions []string
	OnProgress func(path string)
}

type Loader struct {
	config LoaderConfig
}

func NewWithConfig(config LoaderConfig) (*Loader, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("document directory is required")
	}
	if len(config.Extensions) == 0 {
		config.Extensions = []string{".txt", ".md", ".markdown", ".html", ".htm"}
	}

	info, err := os.Stat(config.Dir)
	if err != nil {
		return nil, fmt.Errorf("cannot open document directory: %v", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", config.Dir)
	}

	return &Loader{config: config}, nil
}

// Load walks the directory and returns one Document per readable file
// with an allowed extension. Source is the file name, which is what
// users cite in chat.
func (l *Loader) Load() ([]models.Document, error) {
	var documents []models.Document

	err := filepath.WalkDir(l.config.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !l.allowed(path) {
			return nil
		}

		if l.config.OnProgress != nil {
			l.config.OnProgress(path)
		}

		doc, err := l.loadFile(path)
		if err != nil {
			return fmt.Errorf("failed to load %s: %v", path, err)
		}
		if strings.TrimSpace(doc.Content) == "" {
			return nil
		}

		documents = append(documents, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return documents, nil
}

func (l *Loader) allowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range l.config.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func (l *Loader) loadFile(path string) (models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, err
	}

	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(path))

	var title, content, kind string
	switch ext {
	case ".html", ".htm":
		title, content, err = extractHTML(string(data))
		if err != nil {
			return models.Document{}, err
		}
		kind = "html"
	case ".md", ".markdown":
		title, content = extractMarkdown(string(data))
		kind = "markdown"
	default:
		content = string(data)
		kind = "text"
	}

	if title == "" {
		title = strings.TrimSuffix(name, ext)
	}

	return models.Document{
		ID:      uuid.NewString(),
		Source:  name,
		Title:   title,
		Content: content,
		Metadata: map[string]interface{}{
			"path": path,
			"type": kind,
		},
	}, nil
}

// extractHTML pulls the title and the main content area, falling back
// to the body.
func extractHTML(raw string) (title, content string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", "", err
	}

	title = strings.TrimSpace(doc.Find("title").Text())

	selectors := []string{"main", "article", ".content", "#content"}
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}
	if content == "" {
		content = doc.Find("body").Text()
	}

	return title, strings.Join(strings.Fields(content), " "), nil
}

// extractMarkdown uses the first top-level heading as the title.
func extractMarkdown(raw string) (title, content string) {
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			break
		}
	}
	return title, raw
}
