// Package suggest prompts the language model to infer a document's type and
// propose table columns with concrete values extracted from it, then merges
// the proposals into a workflow's running column list.
package suggest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/Skema/internal/core"
	"github.com/markdave123-py/Skema/internal/core/analysis"
	"github.com/markdave123-py/Skema/internal/models"
)

const systemPrompt = `You are a document analyst that designs table schemas.
Given metadata and excerpts from one document, infer the document type and
propose columns for a table where each row is one such document.

Rules:
- Every column must come with the concrete value extracted from THIS document.
- Never output placeholder values such as "N/A", "TBD", "unknown", "<value>"
  or an empty string. If you cannot extract a real value, omit the column.
- Prefer a small set of high-signal columns over an exhaustive one.
- Mark exactly one column as primary: the one that best identifies the document.`

// Engine runs column suggestion against an analyzed document.
type Engine struct {
	llm core.LLMProvider
}

func NewEngine(llm core.LLMProvider) *Engine {
	return &Engine{llm: llm}
}

// Output is the validated result of one suggestion call.
type Output struct {
	DocumentType string
	Rationale    string
	Columns      []core.ColumnProposal
}

// Suggest builds a bounded-context prompt from document metadata plus only
// the first and last chunk, so prompt size stays stable no matter how long
// the document is, and returns the model's proposals after normalization and
// placeholder filtering.
func (e *Engine) Suggest(ctx context.Context, result *analysis.Result, existing []models.SuggestedColumn) (*Output, error) {
	userPrompt := buildPrompt(result, existing)

	resp, err := e.llm.SuggestColumns(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: suggest columns: %v", core.ErrProvider, err)
	}

	out := &Output{
		DocumentType: resp.DocumentType,
		Rationale:    resp.Rationale,
	}
	for _, col := range resp.Columns {
		if IsPlaceholderValue(col.ExtractedValue) {
			log.Printf("suggest: dropping column %q with placeholder value %q", col.Name, col.ExtractedValue)
			continue
		}
		col.Name = NormalizeColumnName(col.Name)
		if col.Name == "" {
			continue
		}
		out.Columns = append(out.Columns, col)
	}
	return out, nil
}

func buildPrompt(result *analysis.Result, existing []models.SuggestedColumn) string {
	var b strings.Builder

	b.WriteString("Document metadata:\n")
	fmt.Fprintf(&b, "- pages: %d\n", result.Metadata.PageCount)
	fmt.Fprintf(&b, "- size: %d bytes\n", result.Metadata.FileSizeBytes)
	if result.Metadata.Title != "" {
		fmt.Fprintf(&b, "- title: %s\n", result.Metadata.Title)
	}
	if result.Metadata.Author != "" {
		fmt.Fprintf(&b, "- author: %s\n", result.Metadata.Author)
	}

	first, last := result.FirstAndLastChunks()
	if first != nil {
		b.WriteString("\nOpening excerpt:\n")
		b.WriteString(first.Text)
		b.WriteString("\n")
	}
	if last != nil && last != first {
		b.WriteString("\nClosing excerpt:\n")
		b.WriteString(last.Text)
		b.WriteString("\n")
	}

	if len(existing) > 0 {
		b.WriteString("\nColumns already in the table (reuse these names when the document has a matching value):\n")
		for _, col := range existing {
			fmt.Fprintf(&b, "- %s (%s)\n", col.Name, col.OutputType)
		}
	}
	return b.String()
}

// placeholderValues are rejected verbatim (case-insensitive) on top of the
// bracket-pattern checks below.
var placeholderValues = map[string]struct{}{
	"":            {},
	"n/a":         {},
	"na":          {},
	"none":        {},
	"null":        {},
	"nil":         {},
	"tbd":         {},
	"todo":        {},
	"unknown":     {},
	"placeholder": {},
	"value":       {},
	"example":     {},
	"...":         {},
	"-":           {},
	"--":          {},
}

// IsPlaceholderValue reports whether an extracted value looks like the model
// dodged extraction instead of reading the document. The prompt already
// forbids placeholders; this is the programmatic backstop.
func IsPlaceholderValue(v string) bool {
	v = strings.TrimSpace(v)
	if _, ok := placeholderValues[strings.ToLower(v)]; ok {
		return true
	}
	if strings.HasPrefix(v, "<") && strings.HasSuffix(v, ">") {
		return true
	}
	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		return true
	}
	if strings.HasPrefix(v, "{") && strings.HasSuffix(v, "}") {
		return true
	}
	return false
}

// NormalizeColumnName title-cases each word while preserving all-caps
// acronyms, so "invoice ID" normalizes to "Invoice ID".
func NormalizeColumnName(name string) string {
	words := strings.Fields(strings.TrimSpace(name))
	for i, w := range words {
		if isAcronym(w) {
			continue
		}
		runes := []rune(strings.ToLower(w))
		runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// isAcronym reports whether a word is all-caps with at least two letters
// (ID, VAT, ISBN).
func isAcronym(w string) bool {
	letters := 0
	for _, r := range w {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			letters++
		}
	}
	return letters >= 2
}

// Merge folds one file's proposals into the workflow's column list. A
// case-insensitive name match appends the file's value to the existing
// column; no match appends a new column at the end. Applying the same merge
// twice is a no-op, which keeps the suggestion step safely retryable.
func Merge(existing []models.SuggestedColumn, workflowID, fileID string, proposals []core.ColumnProposal) []models.SuggestedColumn {
	merged := make([]models.SuggestedColumn, len(existing))
	copy(merged, existing)

	byName := make(map[string]int, len(merged))
	for i, col := range merged {
		byName[strings.ToLower(col.Name)] = i
	}

	for _, p := range proposals {
		key := strings.ToLower(p.Name)
		if i, ok := byName[key]; ok {
			if merged[i].ExtractedValues == nil {
				merged[i].ExtractedValues = make(map[string]string)
			}
			merged[i].ExtractedValues[fileID] = p.ExtractedValue
			continue
		}

		merged = append(merged, models.SuggestedColumn{
			ID:           uuid.NewString(),
			WorkflowID:   workflowID,
			Name:         p.Name,
			OutputType:   p.OutputType,
			AutoPopulate: p.AutoPopulate,
			Primary:      p.Primary,
			Provenance:   "suggested",
			Confidence:   p.Confidence,
			Rationale:    p.Rationale,
			WhyUseful:    p.WhyUseful,
			ExtractedValues: map[string]string{
				fileID: p.ExtractedValue,
			},
			Position:  len(merged),
			CreatedAt: time.Now(),
		})
		byName[key] = len(merged) - 1
	}
	return merged
}
