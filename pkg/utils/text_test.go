package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRune(t *testing.T) {
	tests := []struct {
		r    rune
		want Script
	}{
		{'ก', ScriptThai},
		{'ๆ', ScriptThai},
		{'๒', ScriptDigit},
		{'7', ScriptDigit},
		{'A', ScriptLatin},
		{' ', ScriptSpace},
		{'\n', ScriptSpace},
		{',', ScriptPunct},
		{'+', ScriptPunct},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyRune(tt.r), "rune %q", tt.r)
	}
}

func TestHasThai(t *testing.T) {
	assert.True(t, HasThai("API การใช้งาน"))
	assert.False(t, HasThai("API v2"))
	assert.False(t, HasThai("๒๕๖๗"))
}

func TestHasNonThaiWord(t *testing.T) {
	assert.True(t, HasNonThaiWord("การใช้งาน API"))
	assert.True(t, HasNonThaiWord("ปี2024"))
	assert.False(t, HasNonThaiWord("สาหร่าย วากาเมะ"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "long...", Truncate("long text here", 4))
	assert.Equal(t, "x", Truncate("x", 0))
	assert.Equal(t, "สาหร...", Truncate("สาหร่าย", 4))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.1, Clamp(0.01, 0.1, 3.0))
	assert.Equal(t, 3.0, Clamp(9, 0.1, 3.0))
	assert.Equal(t, 1.5, Clamp(1.5, 0.1, 3.0))
}
