// Package textsplit turns documents into bounded, overlapping text windows
// sized for the embedding model.
package textsplit

import (
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/mwiater/semsearch/internal/appconfig"
	"github.com/mwiater/semsearch/internal/document"
)

// DefaultSeparators are tried in order: paragraphs, lines, words, runes.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter splits text into chunks.
type Splitter interface {
	SplitText(text string) []string
}

// RecursiveSplitter splits on the coarsest separator present in the text,
// merges the pieces back into windows of at most ChunkSize runes that overlap
// by up to ChunkOverlap runes, and recurses with finer separators into any
// piece that is still too long.
type RecursiveSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// NewRecursive validates the window sizes and returns a RecursiveSplitter.
func NewRecursive(size, overlap int, separators []string) (*RecursiveSplitter, error) {
	if err := checkSizes(size, overlap); err != nil {
		return nil, err
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &RecursiveSplitter{ChunkSize: size, ChunkOverlap: overlap, Separators: separators}, nil
}

// New builds the splitter selected by the chunking configuration.
func New(cfg appconfig.ChunkingConfig) (Splitter, error) {
	switch cfg.Strategy {
	case "", appconfig.StrategyRecursive:
		return NewRecursive(cfg.Size, cfg.Overlap, cfg.Separators)
	case appconfig.StrategyWords:
		return NewWords(cfg.Size, cfg.Overlap)
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q", cfg.Strategy)
	}
}

func checkSizes(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be greater than zero, got %d", size)
	}
	if overlap < 0 {
		return fmt.Errorf("chunk overlap must be zero or greater, got %d", overlap)
	}
	if overlap >= size {
		return fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, size)
	}
	return nil
}

// SplitText splits text into windows.
func (s *RecursiveSplitter) SplitText(text string) []string {
	return s.split(text, s.Separators)
}

func (s *RecursiveSplitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var chunks, good []string
	for _, piece := range splitKeepSeparator(text, separator) {
		if runeLen(piece) < s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, s.merge(good)...)
			good = nil
		}
		if len(finer) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, finer)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, s.merge(good)...)
	}
	return chunks
}

// merge packs pieces into windows. Separators stay attached to the pieces,
// so pieces are joined without one.
func (s *RecursiveSplitter) merge(pieces []string) []string {
	var (
		windows []string
		current []string
		total   int
	)
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.ChunkSize {
			if total > s.ChunkSize {
				log.Printf("[SPLIT] created a chunk of size %d, which is longer than the specified %d", total, s.ChunkSize)
			}
			if len(current) > 0 {
				if w := joinWindow(current); w != "" {
					windows = append(windows, w)
				}
				for total > s.ChunkOverlap || (total+n > s.ChunkSize && total > 0) {
					total -= runeLen(current[0])
					current = current[1:]
				}
			}
		}
		current = append(current, piece)
		total += n
	}
	if w := joinWindow(current); w != "" {
		windows = append(windows, w)
	}
	return windows
}

// splitKeepSeparator splits text on sep and re-attaches the separator to the
// start of every piece after the first. An empty separator splits into runes.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinWindow(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// SplitDocuments splits every document and copies its metadata onto each
// chunk, adding the chunk's position within its document.
func SplitDocuments(s Splitter, docs []document.Document) []document.Document {
	var out []document.Document
	for _, doc := range docs {
		for i, text := range s.SplitText(doc.Content) {
			chunk := doc.Clone()
			chunk.Content = text
			chunk.Metadata[document.MetaChunkIndex] = i
			out = append(out, chunk)
		}
	}
	return out
}
