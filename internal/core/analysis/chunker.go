package analysis

import (
	"math"

	"github.com/markdave123-py/Skema/internal/core/textspan"
)

// avgCharsPerToken is the coarse token heuristic used across the pipeline
// (~4 chars ≈ 1 token). It trades boundary precision for determinism; chunk
// sizes are approximate by design.
const avgCharsPerToken = 4

// minWindowChars floors the character window so tiny token budgets never
// produce degenerate one-word chunks.
const minWindowChars = 500

// ChunkParams tunes the sliding-window chunker.
//
// ByteOffsets must be textspan.ByteOffsets(fullText); PageTexts are the
// normalized per-page texts that were joined with PageSeparator to form the
// full text. Both are precomputed by the analyzer so the chunker stays a
// pure function.
type ChunkParams struct {
	ChunkSizeTokens int
	OverlapRatio    float64
	ByteOffsets     []int
	PageTexts       []string
}

// approxTokens estimates the token count of s (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := textspan.RuneCount(s)
	if n <= 0 {
		return 0
	}
	return (n + avgCharsPerToken - 1) / avgCharsPerToken
}

// Chunk splits fullText into overlapping windows and annotates each one with
// char, byte and page provenance. Empty text yields zero chunks. The union
// of all chunks' char ranges covers [0, len) with no holes, and the final
// chunk ends exactly at the text length even when shorter than the window.
func Chunk(fullText string, params ChunkParams) []DocumentChunk {
	runes := []rune(fullText)
	total := len(runes)
	if total == 0 {
		return nil
	}

	windowChars := params.ChunkSizeTokens * avgCharsPerToken
	if windowChars < minWindowChars {
		windowChars = minWindowChars
	}
	overlapChars := int(math.Round(float64(windowChars) * params.OverlapRatio))
	step := windowChars - overlapChars
	if step < 1 {
		step = 1
	}

	offsets := params.ByteOffsets
	if offsets == nil {
		offsets = textspan.ByteOffsets(fullText)
	}
	pageSpans := pageBoundaries(params.PageTexts)

	var chunks []DocumentChunk
	for start := 0; start < total; start += step {
		end := start + windowChars
		if end > total {
			end = total
		}

		text := string(runes[start:end])
		chunks = append(chunks, DocumentChunk{
			Index:         len(chunks),
			Text:          text,
			TokenEstimate: approxTokens(text),
			CharRange:     Span{Start: start, End: end},
			ByteRange:     Span{Start: offsets[start], End: offsets[end]},
			PageRange:     pagesCovered(pageSpans, start, end),
		})

		if end == total {
			break
		}
	}
	return chunks
}

// pageBoundaries computes the [start, end) char span of each page inside the
// joined full text, accounting for PageSeparator between pages.
func pageBoundaries(pageTexts []string) []Span {
	sepLen := textspan.RuneCount(PageSeparator)
	spans := make([]Span, 0, len(pageTexts))

	pos := 0
	for i, p := range pageTexts {
		if i > 0 {
			pos += sepLen
		}
		n := textspan.RuneCount(p)
		spans = append(spans, Span{Start: pos, End: pos + n})
		pos += n
	}
	return spans
}

// pagesCovered intersects the chunk span [start, end) with the page spans.
// A page is covered when the spans overlap. Falls back to page 0 when the
// chunk lands entirely inside a separator gap, so Indices is never empty.
func pagesCovered(pages []Span, start, end int) PageSpan {
	var indices []int
	for i, p := range pages {
		if start < p.End && end > p.Start {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		indices = []int{0}
	}
	return PageSpan{
		StartIndex: indices[0],
		EndIndex:   indices[len(indices)-1],
		Indices:    indices,
	}
}
