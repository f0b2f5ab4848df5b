package analysis

// AnalyzerVersion tags every analysis result. Bumping it invalidates all
// cached artifacts for unchanged content, forcing reanalysis the next time a
// document is seen. This is the rollout mechanism for chunking or extraction
// changes; there is no manual cache purge.
const AnalyzerVersion = 1

// PageSeparator joins per-page texts into the full document text. Page
// boundary offsets used for chunk provenance are computed against this exact
// separator, so it must never change without an AnalyzerVersion bump.
const PageSeparator = "\n\n"

// Span is a half-open [Start, End) range.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// PageSpan records which source pages a chunk's text was drawn from.
type PageSpan struct {
	StartIndex int   `json:"start_index"`
	EndIndex   int   `json:"end_index"`
	Indices    []int `json:"indices"`
}

// DocumentChunk is one overlapping, token-bounded slice of the full document
// text, annotated with character, byte and page provenance. Chunks are
// produced in index order and never mutated after creation.
//
// CharRange is measured in code points over the full text; ByteRange is the
// corresponding span in the UTF-8 encoding. TokenEstimate is a coarse
// character-count heuristic (~4 chars per token), not an exact tokenizer
// count.
type DocumentChunk struct {
	Index         int      `json:"index"`
	Text          string   `json:"text"`
	TokenEstimate int      `json:"token_estimate"`
	CharRange     Span     `json:"char_range"`
	ByteRange     Span     `json:"byte_range"`
	PageRange     PageSpan `json:"page_range"`
}

// PageSummary is the normalized text of one physical page.
type PageSummary struct {
	Index         int    `json:"index"`
	Text          string `json:"text"`
	CharCount     int    `json:"char_count"`
	TokenEstimate int    `json:"token_estimate"`
}

// Metadata describes the analyzed binary.
type Metadata struct {
	ContentHash   string `json:"content_hash"`
	FileSizeBytes int    `json:"file_size_bytes"`
	PageCount     int    `json:"page_count"`
	Title         string `json:"title,omitempty"`
	Author        string `json:"author,omitempty"`
}

// Result is the full output of analyzing one document. It is produced once
// per unique (content hash, analyzer version) pair and persisted as a single
// opaque JSON blob in object storage.
type Result struct {
	Pages    []PageSummary   `json:"pages"`
	Chunks   []DocumentChunk `json:"chunks"`
	FullText string          `json:"full_text"`
	Metadata Metadata        `json:"metadata"`
}
