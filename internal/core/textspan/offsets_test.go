package textspan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteOffsets_ASCII(t *testing.T) {
	text := "hello world"
	offsets := ByteOffsets(text)

	require.Len(t, offsets, len(text)+1)
	for i := range offsets {
		assert.Equal(t, i, offsets[i], "ascii text maps 1:1")
	}
}

func TestByteOffsets_Multibyte(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"latin accents", "café résumé"},
		{"cjk", "日本語のテキスト"},
		{"emoji above basic plane", "a😀b🎉c"},
		{"mixed", "prix: 10€ 😀 fin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offsets := ByteOffsets(tt.text)

			require.Len(t, offsets, RuneCount(tt.text)+1)
			assert.Equal(t, 0, offsets[0])
			assert.Equal(t, len(tt.text), offsets[len(offsets)-1],
				"last offset must equal the UTF-8 byte length")

			// Offsets are strictly increasing: every rune occupies at
			// least one byte.
			for i := 1; i < len(offsets); i++ {
				assert.Greater(t, offsets[i], offsets[i-1])
			}
		})
	}
}

func TestByteOffsets_SurrogatePairRunes(t *testing.T) {
	// U+1F600 encodes as 4 bytes in UTF-8 and would be a surrogate pair
	// in UTF-16; it must count as a single position here.
	text := "😀"
	offsets := ByteOffsets(text)

	require.Len(t, offsets, 2)
	assert.Equal(t, 4, offsets[1])
}
