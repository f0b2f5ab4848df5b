package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/markdave123-py/Skema/internal/core"
	"github.com/markdave123-py/Skema/internal/core/textspan"
)

// Defaults for chunk sizing when the caller does not override them.
const (
	DefaultChunkSizeTokens = 800
	DefaultOverlapRatio    = 0.15
)

// PageExtractor turns binary document bytes into page-ordered raw text plus
// whatever metadata the format carries. Implementations live in this package
// (pdfExtractor, docconvExtractor); the interface exists so the analyzer can
// be tested without real binaries.
type PageExtractor interface {
	ExtractPages(data []byte, contentType string) (pages []string, meta ExtractedMeta, err error)
}

// ExtractedMeta is the format-level metadata an extractor can recover.
type ExtractedMeta struct {
	Title  string
	Author string
}

// Analyzer computes a content hash, extracts and normalizes per-page text,
// and chunks the joined full text.
type Analyzer struct {
	extractor       PageExtractor
	chunkSizeTokens int
	overlapRatio    float64
}

// Option tweaks analyzer chunk sizing.
type Option func(*Analyzer)

func WithChunkSizeTokens(n int) Option {
	return func(a *Analyzer) { a.chunkSizeTokens = n }
}

func WithOverlapRatio(r float64) Option {
	return func(a *Analyzer) { a.overlapRatio = r }
}

func NewAnalyzer(extractor PageExtractor, opts ...Option) *Analyzer {
	a := &Analyzer{
		extractor:       extractor,
		chunkSizeTokens: DefaultChunkSizeTokens,
		overlapRatio:    DefaultOverlapRatio,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ContentHash returns the hex SHA-256 digest of data. The same function is
// used at upload time and at analysis time so the two can be compared.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Analyze hashes data, verifies it against expectedHash when one is supplied,
// extracts page texts, normalizes them and produces the chunked result.
//
// The hash check runs before any extraction so a corrupted or substituted
// upload fails fast without wasted parsing work.
func (a *Analyzer) Analyze(data []byte, contentType, expectedHash string) (*Result, error) {
	actualHash := ContentHash(data)
	if expectedHash != "" && actualHash != expectedHash {
		return nil, fmt.Errorf("%w: expected %s, got %s", core.ErrContentMismatch, expectedHash, actualHash)
	}

	rawPages, meta, err := a.extractor.ExtractPages(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrExtractionFailure, err)
	}

	pages := make([]PageSummary, 0, len(rawPages))
	pageTexts := make([]string, 0, len(rawPages))
	for i, raw := range rawPages {
		text := NormalizeText(raw)
		pageTexts = append(pageTexts, text)
		pages = append(pages, PageSummary{
			Index:         i,
			Text:          text,
			CharCount:     textspan.RuneCount(text),
			TokenEstimate: approxTokens(text),
		})
	}

	fullText := strings.Join(pageTexts, PageSeparator)
	chunks := Chunk(fullText, ChunkParams{
		ChunkSizeTokens: a.chunkSizeTokens,
		OverlapRatio:    a.overlapRatio,
		ByteOffsets:     textspan.ByteOffsets(fullText),
		PageTexts:       pageTexts,
	})

	return &Result{
		Pages:    pages,
		Chunks:   chunks,
		FullText: fullText,
		Metadata: Metadata{
			ContentHash:   actualHash,
			FileSizeBytes: len(data),
			PageCount:     len(rawPages),
			Title:         meta.Title,
			Author:        meta.Author,
		},
	}, nil
}

// NormalizeText collapses runs of whitespace into single spaces and trims the
// ends. Extraction output tends to carry layout artifacts (hard wraps, double
// spaces) that dilute chunk token density.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	prevSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
			continue
		}
		b.WriteRune(r)
		prevSpace = false
	}
	return strings.TrimSpace(b.String())
}

// FirstAndLastChunks returns the boundary chunks used for bounded-context
// prompting. For a single-chunk document both values are that chunk.
func (r *Result) FirstAndLastChunks() (first, last *DocumentChunk) {
	if len(r.Chunks) == 0 {
		return nil, nil
	}
	return &r.Chunks[0], &r.Chunks[len(r.Chunks)-1]
}
