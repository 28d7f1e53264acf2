package document

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

func loadText(path string) ([]Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	text := string(raw)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []Document{{
		Content:  text,
		Metadata: map[string]any{MetaSource: path, MetaType: "text"},
	}}, nil
}

// loadPDF extracts plain text page by page. Pages are numbered from zero and
// pages without extractable text are skipped.
func loadPDF(path string) ([]Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	var docs []Document
	fonts := make(map[string]*pdf.Font)
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("extract text from %s page %d: %w", path, i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, Document{
			Content: text,
			Metadata: map[string]any{
				MetaSource: path,
				MetaPage:   i - 1,
				MetaType:   "pdf",
			},
		})
	}
	return docs, nil
}
