// Package textspan maps character positions in decoded text to byte
// positions in its UTF-8 encoding.
package textspan

import "unicode/utf8"

// ByteOffsets returns offsets[0..len(runes)] where offsets[i] is the byte
// length of the UTF-8 encoding of the first i runes of text. Iteration is by
// code point, so multi-byte runes and characters above the basic plane never
// split a chunk boundary mid-character.
//
// Invariant: offsets[len] == len([]byte(text)), and for ASCII-only text
// offsets[i] == i for every i.
func ByteOffsets(text string) []int {
	offsets := make([]int, 0, len(text)+1)
	offsets = append(offsets, 0)

	bytePos := 0
	for _, r := range text {
		bytePos += utf8.RuneLen(r)
		offsets = append(offsets, bytePos)
	}
	return offsets
}

// RuneCount returns the number of code points in text. Callers index the
// ByteOffsets slice by rune position, not by byte position.
func RuneCount(text string) int {
	return utf8.RuneCountInString(text)
}
