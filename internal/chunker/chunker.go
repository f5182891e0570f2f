// Package chunker splits extracted document text into overlapping passages
// sized for embedding and retrieval.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidConfig is returned when the chunk size or overlap constraints
// are violated.
var ErrInvalidConfig = errors.New("invalid chunking configuration")

// Splitter produces overlapping fixed-size chunks, preferring to cut on
// paragraph, sentence and word boundaries before falling back to hard
// character cuts. Same input and configuration always yield the same output.
type Splitter struct {
	size    int
	overlap int
}

// New validates the configuration and returns a Splitter.
// Requires size > 0 and 0 <= overlap < size.
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, size), got %d", ErrInvalidConfig, overlap)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Size returns the configured maximum chunk length in runes.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the configured overlap length in runes.
func (s *Splitter) Overlap() int { return s.overlap }

// Split chunks text into an ordered sequence of passages. Each chunk after
// the first begins exactly overlap runes before the end of the previous
// chunk, so neighbouring chunks share context across the boundary.
// Empty or whitespace-only input yields an empty sequence; the caller
// decides whether that is an ingestion failure.
func (s *Splitter) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	var chunks []string

	start := 0
	for start < len(runes) {
		end := start + s.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		end = s.cutPoint(runes, start, end)
		chunks = append(chunks, string(runes[start:end]))

		start = end - s.overlap
	}

	return chunks, nil
}

// cutPoint picks the best boundary in (start+overlap, limit]. Boundary
// preference: paragraph break, then sentence end, then word break, then the
// hard limit. The cut must stay past start+overlap so each step makes
// forward progress.
func (s *Splitter) cutPoint(runes []rune, start, limit int) int {
	floor := start + s.overlap + 1
	if floor > limit {
		return limit
	}

	if cut := lastParagraphBreak(runes, floor, limit); cut > 0 {
		return cut
	}
	if cut := lastSentenceEnd(runes, floor, limit); cut > 0 {
		return cut
	}
	if cut := lastWordBreak(runes, floor, limit); cut > 0 {
		return cut
	}
	return limit
}

// lastParagraphBreak finds the end of the last blank-line separator in
// [floor, limit), returning 0 if none exists.
func lastParagraphBreak(runes []rune, floor, limit int) int {
	for i := limit - 1; i > floor; i-- {
		if runes[i-1] == '\n' && runes[i] == '\n' {
			return i + 1
		}
	}
	return 0
}

// lastSentenceEnd finds the position just after the last terminal
// punctuation followed by whitespace in [floor, limit), returning 0 if none.
func lastSentenceEnd(runes []rune, floor, limit int) int {
	for i := limit - 1; i > floor; i-- {
		if isSentenceTerminal(runes[i-1]) && unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return 0
}

// lastWordBreak finds the position just after the last whitespace rune in
// [floor, limit), returning 0 if the window is a single unbroken token.
func lastWordBreak(runes []rune, floor, limit int) int {
	for i := limit - 1; i >= floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return 0
}

func isSentenceTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
