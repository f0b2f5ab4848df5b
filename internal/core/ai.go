package core

import "context"

// EmbeddingProvider produces one vector per input text, order-preserved.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// ModelID identifies the provider/model pair embeddings are keyed by.
	ModelID() (provider, model string)
}

// ColumnProposal is one column the model proposes for the workflow table,
// with a concrete value extracted from the current document.
type ColumnProposal struct {
	Name           string `json:"name"`
	OutputType     string `json:"output_type"`
	AutoPopulate   bool   `json:"auto_populate"`
	Primary        bool   `json:"primary"`
	Confidence     string `json:"confidence"` // high | medium | low
	Rationale      string `json:"rationale"`
	WhyUseful      string `json:"why_useful"`
	ExtractedValue string `json:"extracted_value"`
}

// SuggestionResponse is the schema-validated structured output of a
// column-suggestion call.
type SuggestionResponse struct {
	DocumentType string           `json:"document_type"`
	Rationale    string           `json:"rationale"`
	Columns      []ColumnProposal `json:"columns"`
}

// LLMProvider abstracts the language model.
type LLMProvider interface {
	// SuggestColumns sends the prompt with a structured-output schema and
	// returns the validated suggestion object.
	SuggestColumns(ctx context.Context, systemPrompt, userPrompt string) (*SuggestionResponse, error)

	// Generate returns free-text output, used by cell compute.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
