package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/Skema/internal/core"
)

type GeminiLLM struct {
	client    *genai.Client
	modelName string
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// suggestionSchema constrains the model output to the suggestion shape.
// Gemini validates against it server-side; a schema violation surfaces as a
// generation error rather than unparsable text.
var suggestionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"document_type": {Type: genai.TypeString},
		"rationale":     {Type: genai.TypeString},
		"columns": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":            {Type: genai.TypeString},
					"output_type":     {Type: genai.TypeString, Enum: []string{"text", "number", "date", "boolean"}},
					"auto_populate":   {Type: genai.TypeBoolean},
					"primary":         {Type: genai.TypeBoolean},
					"confidence":      {Type: genai.TypeString, Enum: []string{"high", "medium", "low"}},
					"rationale":       {Type: genai.TypeString},
					"why_useful":      {Type: genai.TypeString},
					"extracted_value": {Type: genai.TypeString},
				},
				Required: []string{"name", "output_type", "confidence", "extracted_value"},
			},
		},
	},
	Required: []string{"document_type", "columns"},
}

// SuggestColumns runs a structured-output generation and decodes the JSON
// response into the suggestion shape.
func (g *GeminiLLM) SuggestColumns(ctx context.Context, systemPrompt, userPrompt string) (*core.SuggestionResponse, error) {
	m := g.client.GenerativeModel(g.modelName)
	m.ResponseMIMEType = "application/json"
	m.ResponseSchema = suggestionSchema
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return nil, fmt.Errorf("gemini suggest: %w", err)
	}
	raw := collectText(resp)
	if raw == "" {
		return nil, fmt.Errorf("gemini suggest: empty response")
	}

	var out core.SuggestionResponse
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("gemini suggest: decode response: %w", err)
	}
	return &out, nil
}

func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := g.client.GenerativeModel(g.modelName)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return collectText(resp), nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

var _ core.LLMProvider = (*GeminiLLM)(nil)
