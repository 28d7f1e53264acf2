// Package document loads PDF, text, and Markdown files into Documents that
// the search engine splits and indexes.
package document

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Metadata keys set by the loaders.
const (
	MetaSource     = "source"
	MetaType       = "type"
	MetaPage       = "page"
	MetaChunkIndex = "chunk_index"
)

// ErrUnsupportedType is returned for files whose extension has no loader.
var ErrUnsupportedType = errors.New("unsupported file type")

// Document is a unit of source text plus the metadata carried to every chunk
// split from it.
type Document struct {
	Content  string         `json:"page_content"`
	Metadata map[string]any `json:"metadata"`
}

// Source returns the metadata source or "unknown".
func (d Document) Source() string {
	if s, ok := d.Metadata[MetaSource].(string); ok && s != "" {
		return s
	}
	return "unknown"
}

// Clone returns a copy whose metadata map can be modified independently.
func (d Document) Clone() Document {
	md := make(map[string]any, len(d.Metadata))
	for k, v := range d.Metadata {
		md[k] = v
	}
	return Document{Content: d.Content, Metadata: md}
}

// FromText wraps pasted text as a Document. An empty title becomes "Text Input".
func FromText(content, title string) Document {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Text Input"
	}
	return Document{
		Content:  content,
		Metadata: map[string]any{MetaSource: title, MetaType: "text"},
	}
}

// SetSource overrides the source metadata on every document.
func SetSource(docs []Document, source string) {
	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = map[string]any{}
		}
		docs[i].Metadata[MetaSource] = source
	}
}

// Load loads a directory when dirPath is set, otherwise a single file.
func Load(filePath, dirPath string, opts Options) ([]Document, error) {
	switch {
	case strings.TrimSpace(dirPath) != "":
		return LoadDirectory(dirPath, opts)
	case strings.TrimSpace(filePath) != "":
		return LoadFile(filePath)
	default:
		return nil, fmt.Errorf("either file path or directory path must be provided")
	}
}

// LoadFile loads one file, choosing the loader by extension.
func LoadFile(path string) ([]Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return loadPDF(path)
	case ".md", ".txt":
		return loadText(path)
	default:
		if ext == "" {
			ext = "(none)"
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
}

// Supported reports whether LoadFile has a loader for the path's extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".md", ".txt":
		return true
	}
	return false
}
