package textsplit

import "strings"

// WordSplitter splits text into overlapping windows using word counts as a
// proxy for tokens.
type WordSplitter struct {
	ChunkWords   int
	OverlapWords int
}

// NewWords validates the window sizes and returns a WordSplitter.
func NewWords(size, overlap int) (*WordSplitter, error) {
	if err := checkSizes(size, overlap); err != nil {
		return nil, err
	}
	return &WordSplitter{ChunkWords: size, OverlapWords: overlap}, nil
}

// SplitText splits text into windows of ChunkWords words.
func (w *WordSplitter) SplitText(text string) []string {
	step := w.ChunkWords - w.OverlapWords
	if step <= 0 {
		step = w.ChunkWords
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + w.ChunkWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
