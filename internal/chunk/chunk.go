// Package chunk splits extracted document text into overlapping windows
// sized in tokens. The window is measured with the cl100k_base BPE
// encoding; when the encoder cannot be initialized the splitter degrades
// to character windows at four characters per token.
package chunk

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/docsift/docsift/internal/domain"
	errs "github.com/docsift/docsift/internal/errors"
)

// charsPerToken approximates token length for the character fallback.
const charsPerToken = 4

// Splitter produces chunk drafts from text using a sliding token window.
type Splitter struct {
	size    int
	overlap int
	enc     *tiktoken.Tiktoken
}

// NewSplitter creates a splitter with the given window size and overlap in
// tokens. Overlap must satisfy 0 <= overlap < size.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, errs.Validation("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, errs.Validation("chunk overlap must satisfy 0 <= overlap < size, got %d", overlap)
	}

	// Encoder init can fail when the BPE tables are unavailable; the
	// splitter still works via the character fallback.
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &Splitter{size: size, overlap: overlap, enc: enc}, nil
}

// Split returns the chunk drafts for text, in order. Empty or
// whitespace-only input yields no chunks.
func (s *Splitter) Split(text string) []domain.ChunkDraft {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if s.enc == nil {
		return s.splitChars(text)
	}
	return s.splitTokens(text)
}

func (s *Splitter) splitTokens(text string) []domain.ChunkDraft {
	tokens := s.enc.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil
	}

	step := s.size - s.overlap
	var drafts []domain.ChunkDraft

	// cursor advances through the original text so repeated chunk content
	// resolves to successive positions, not the first occurrence.
	cursor := 0
	for start := 0; start < len(tokens); start += step {
		end := start + s.size
		if end > len(tokens) {
			end = len(tokens)
		}
		piece := s.enc.Decode(tokens[start:end])

		startOff, endOff, next := locate(text, piece, cursor)
		cursor = next
		drafts = append(drafts, domain.ChunkDraft{
			Text:        piece,
			StartOffset: startOff,
			EndOffset:   endOff,
		})

		if end == len(tokens) {
			break
		}
	}
	return drafts
}

// locate finds piece in text at or after cursor. On a miss both offsets
// stay 0, which marks the span as unrecovered; the chunk text remains
// authoritative.
func locate(text, piece string, cursor int) (start, end, next int) {
	idx := strings.Index(text[cursor:], piece)
	if idx < 0 {
		return 0, 0, cursor
	}
	start = cursor + idx
	return start, start + len(piece), start + 1
}

// splitChars is the fallback path: the same sliding window measured in
// characters instead of tokens.
func (s *Splitter) splitChars(text string) []domain.ChunkDraft {
	runes := []rune(text)

	// Cumulative byte offset of each rune, so drafts report byte offsets
	// consistent with the token path.
	byteOff := make([]int, len(runes)+1)
	for i, r := range runes {
		byteOff[i+1] = byteOff[i] + len(string(r))
	}

	size := s.size * charsPerToken
	step := (s.size - s.overlap) * charsPerToken
	var drafts []domain.ChunkDraft

	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		drafts = append(drafts, domain.ChunkDraft{
			Text:        string(runes[start:end]),
			StartOffset: byteOff[start],
			EndOffset:   byteOff[end],
		})
		if end == len(runes) {
			break
		}
	}
	return drafts
}
