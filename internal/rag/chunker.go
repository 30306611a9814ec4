package rag

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"lms-assistant-backend/models"
)

// Chunking defaults. Upstream extraction inserts "--- Page N ---" markers
// between pages; the chunker reads them back to attribute fragments.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100

	// MaxSnapLoss bounds how much of a window the word-boundary snap may
	// discard. Retracting further than this would inflate the fragment
	// count, so a mid-word split is accepted instead.
	MaxSnapLoss = 0.20
)

var pageMarkerRegex = regexp.MustCompile(`--- Page (\d+) ---`)

// Chunker splits extracted document text into overlapping fixed-size
// fragments with word-boundary snapping.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates the window parameters. Overlap must be positive and
// strictly smaller than size; anything else is a configuration error, never
// silently clamped.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap <= 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in (0, size), got overlap=%d size=%d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk scans content left to right in character offsets. Each window is
// [start, start+size); a window that would end mid-word is retracted to the
// last whitespace, but only when that loses at most MaxSnapLoss of the
// window. Empty or whitespace-only input yields no fragments.
//
// Termination: start advances to end-overlap but never below the previous
// end, so every iteration with content remaining strictly increases start.
func (c *Chunker) Chunk(content string) []models.ChunkDraft {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var drafts []models.ChunkDraft
	runes := []rune(content)
	length := len(runes)
	start := 0
	prevEnd := 0
	chunkIndex := 0

	for start < length {
		end := start + c.size
		if end > length {
			end = length
		}

		// Snap back to a word boundary unless the window already ends on
		// one or at the end of the content.
		if end < length && !endsOnBoundary(runes, end) {
			if cut := lastSpace(runes[start:end]); cut > 0 {
				if float64(end-start-cut) <= MaxSnapLoss*float64(end-start) {
					end = start + cut
				}
			}
		}

		text := strings.TrimSpace(string(runes[start:end]))
		if text != "" {
			drafts = append(drafts, models.ChunkDraft{
				Text:       text,
				PageNumber: inferPageNumber(text),
				ChunkIndex: chunkIndex,
			})
			chunkIndex++
		}

		if end >= length {
			break
		}

		next := end - c.overlap
		if next <= prevEnd {
			next = prevEnd
		}
		if next <= start {
			// Snapping shrank the window below the overlap; step past it.
			next = end
		}
		prevEnd = end
		start = next
	}

	return drafts
}

// endsOnBoundary reports whether position end in runes sits on whitespace
// (either side of the cut), i.e. no word is being split.
func endsOnBoundary(runes []rune, end int) bool {
	if end <= 0 || end >= len(runes) {
		return true
	}
	return isSpace(runes[end-1]) || isSpace(runes[end])
}

// lastSpace returns the index of the last whitespace rune in window, or -1.
func lastSpace(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if isSpace(window[i]) {
			return i
		}
	}
	return -1
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// inferPageNumber returns the page of the first marker embedded in the
// fragment, defaulting to 1 when extraction supplied none.
func inferPageNumber(text string) int {
	m := pageMarkerRegex.FindStringSubmatch(text)
	if m == nil {
		return 1
	}
	page, err := strconv.Atoi(m[1])
	if err != nil || page < 1 {
		return 1
	}
	return page
}
