package suggest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Skema/internal/core"
	"github.com/markdave123-py/Skema/internal/core/analysis"
	"github.com/markdave123-py/Skema/internal/models"
)

type fakeLLM struct {
	resp       *core.SuggestionResponse
	err        error
	userPrompt string
}

func (f *fakeLLM) SuggestColumns(ctx context.Context, systemPrompt, userPrompt string) (*core.SuggestionResponse, error) {
	f.userPrompt = userPrompt
	return f.resp, f.err
}

func (f *fakeLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", errors.New("not used")
}

func chunkedResult() *analysis.Result {
	return &analysis.Result{
		Chunks: []analysis.DocumentChunk{
			{Index: 0, Text: "OPENING TEXT"},
			{Index: 1, Text: "MIDDLE TEXT"},
			{Index: 2, Text: "CLOSING TEXT"},
		},
		Metadata: analysis.Metadata{
			PageCount:     3,
			FileSizeBytes: 4096,
			Title:         "Q3 Invoice",
			Author:        "Acme Corp",
		},
	}
}

func TestSuggestFiltersPlaceholdersAndNormalizes(t *testing.T) {
	llm := &fakeLLM{resp: &core.SuggestionResponse{
		DocumentType: "invoice",
		Rationale:    "standard invoice layout",
		Columns: []core.ColumnProposal{
			{Name: "invoice ID", ExtractedValue: "INV-042", Primary: true},
			{Name: "total amount", ExtractedValue: "N/A"},
			{Name: "due date", ExtractedValue: "<value>"},
			{Name: "vendor name", ExtractedValue: "Acme Corp"},
		},
	}}
	e := NewEngine(llm)

	out, err := e.Suggest(context.Background(), chunkedResult(), nil)
	require.NoError(t, err)

	assert.Equal(t, "invoice", out.DocumentType)
	require.Len(t, out.Columns, 2)
	assert.Equal(t, "Invoice ID", out.Columns[0].Name)
	assert.Equal(t, "Vendor Name", out.Columns[1].Name)
}

func TestSuggestPromptIsBoundedContext(t *testing.T) {
	llm := &fakeLLM{resp: &core.SuggestionResponse{}}
	e := NewEngine(llm)

	existing := []models.SuggestedColumn{{Name: "Invoice ID", OutputType: "text"}}
	_, err := e.Suggest(context.Background(), chunkedResult(), existing)
	require.NoError(t, err)

	assert.Contains(t, llm.userPrompt, "OPENING TEXT")
	assert.Contains(t, llm.userPrompt, "CLOSING TEXT")
	assert.NotContains(t, llm.userPrompt, "MIDDLE TEXT", "interior chunks must stay out of the prompt")
	assert.Contains(t, llm.userPrompt, "Q3 Invoice")
	assert.Contains(t, llm.userPrompt, "Invoice ID (text)")
}

func TestSuggestProviderError(t *testing.T) {
	llm := &fakeLLM{err: errors.New("model overloaded")}
	e := NewEngine(llm)

	_, err := e.Suggest(context.Background(), chunkedResult(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrProvider))
}

func TestIsPlaceholderValue(t *testing.T) {
	placeholders := []string{
		"", "   ", "N/A", "n/a", "tbd", " TBD ", "unknown", "none",
		"null", "...", "-", "--", "<value>", "<insert date>", "[amount]",
		"{placeholder}",
	}
	for _, v := range placeholders {
		assert.True(t, IsPlaceholderValue(v), "expected placeholder: %q", v)
	}

	real := []string{"Acme Corp", "0", "2024-01-01", "INV-042", "a-b", "$1,250.00"}
	for _, v := range real {
		assert.False(t, IsPlaceholderValue(v), "expected real value: %q", v)
	}
}

func TestNormalizeColumnName(t *testing.T) {
	cases := map[string]string{
		"invoice ID":     "Invoice ID",
		"total amount":   "Total Amount",
		"VAT number":     "VAT Number",
		"  due   date  ": "Due Date",
		"ISBN":           "ISBN",
		"Vendor":         "Vendor",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeColumnName(in), "input %q", in)
	}
}

func TestMergeNewAndMatchingColumns(t *testing.T) {
	existing := []models.SuggestedColumn{{
		ID:         "col-1",
		WorkflowID: "wf-1",
		Name:       "Invoice ID",
		OutputType: "text",
		ExtractedValues: map[string]string{
			"file-1": "INV-001",
		},
		Position: 0,
	}}

	proposals := []core.ColumnProposal{
		{Name: "invoice id", ExtractedValue: "INV-002"}, // case-insensitive match
		{Name: "Vendor Name", ExtractedValue: "Acme Corp", Confidence: "high"},
	}

	merged := Merge(existing, "wf-1", "file-2", proposals)
	require.Len(t, merged, 2)

	assert.Equal(t, "col-1", merged[0].ID, "matching column keeps its identity")
	assert.Equal(t, map[string]string{
		"file-1": "INV-001",
		"file-2": "INV-002",
	}, merged[0].ExtractedValues)

	added := merged[1]
	assert.Equal(t, "Vendor Name", added.Name)
	assert.Equal(t, "wf-1", added.WorkflowID)
	assert.Equal(t, "suggested", added.Provenance)
	assert.Equal(t, 1, added.Position)
	assert.Equal(t, map[string]string{"file-2": "Acme Corp"}, added.ExtractedValues)
	assert.NotEmpty(t, added.ID)
}

func TestMergeIdempotent(t *testing.T) {
	proposals := []core.ColumnProposal{
		{Name: "Invoice ID", ExtractedValue: "INV-007"},
		{Name: "Total", ExtractedValue: "99.50"},
	}

	once := Merge(nil, "wf-1", "file-1", proposals)
	twice := Merge(once, "wf-1", "file-1", proposals)

	require.Len(t, twice, len(once))
	for i := range once {
		assert.Equal(t, once[i].Name, twice[i].Name)
		assert.Equal(t, once[i].Position, twice[i].Position)
		assert.Equal(t, once[i].ExtractedValues, twice[i].ExtractedValues)
	}
}

func TestMergeLeavesInputSliceAlone(t *testing.T) {
	existing := []models.SuggestedColumn{{Name: "Invoice ID", ExtractedValues: map[string]string{"file-1": "INV-001"}}}
	merged := Merge(existing, "wf-1", "file-2", []core.ColumnProposal{{Name: "Total", ExtractedValue: "10"}})
	assert.Len(t, existing, 1)
	assert.Len(t, merged, 2)
}
