package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "Analyzing", Analyzing().String())
	assert.Equal(t, "Suggesting columns", SuggestingColumns().String())
	assert.Equal(t, "Ready", Ready().String())
	assert.Equal(t, "Error: boom", Failed("boom").String())
}

func TestParseStatusRoundTrip(t *testing.T) {
	for _, s := range []FileStatus{
		Analyzing(),
		SuggestingColumns(),
		Ready(),
		Failed("extraction failed: corrupt xref"),
	} {
		assert.Equal(t, s, ParseStatus(s.String()))
	}
}

func TestParseStatusUnknownString(t *testing.T) {
	got := ParseStatus("something the pipeline never wrote")
	assert.Equal(t, StatusError, got.Kind)
	assert.Equal(t, "something the pipeline never wrote", got.Message)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, Analyzing().IsTerminal())
	assert.False(t, SuggestingColumns().IsTerminal())
	assert.True(t, Ready().IsTerminal())
	assert.True(t, Failed("x").IsTerminal())
}
