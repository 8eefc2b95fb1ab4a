package splitters

import "strings"

// DefaultChunkSize is the default number of words per chunk.
const DefaultChunkSize = 1000

// WordSplitter splits raw document text into fixed-size word-count chunks.
// Chunks are non-overlapping, split on whitespace-delimited word boundaries,
// and preserve the original word order.
type WordSplitter struct {
	ChunkSize int
}

// NewWordSplitter creates a WordSplitter. A non-positive chunk size falls
// back to the default.
func NewWordSplitter(chunkSize int) *WordSplitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &WordSplitter{ChunkSize: chunkSize}
}

// Split chunks a single text. Empty or whitespace-only text produces zero
// chunks. For W words and chunk size C the result has ceil(W/C) chunks, the
// last possibly shorter.
func (s *WordSplitter) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	chunks := make([]string, 0, (len(words)+s.ChunkSize-1)/s.ChunkSize)
	for start := 0; start < len(words); start += s.ChunkSize {
		end := start + s.ChunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}

// SplitAll chunks a sequence of page texts in order, concatenating the
// per-page chunk lists. Pages that yield no words contribute nothing.
func (s *WordSplitter) SplitAll(pages []string) []string {
	var chunks []string
	for _, page := range pages {
		chunks = append(chunks, s.Split(page)...)
	}
	return chunks
}
