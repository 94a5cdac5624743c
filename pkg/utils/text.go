// Package utils provides shared utilities for script classification, math, and logging.
package utils

import (
	"unicode"
	"unicode/utf8"
)

// Script is a coarse character class used when splitting mixed Thai/Latin text.
type Script int

const (
	ScriptOther Script = iota
	ScriptThai
	ScriptLatin
	ScriptDigit
	ScriptSpace
	ScriptPunct
)

// IsThai reports whether r is in the Thai Unicode block (U+0E00–U+0E7F).
func IsThai(r rune) bool {
	return r >= 0x0E00 && r <= 0x0E7F
}

// IsThaiDigit reports whether r is a Thai digit (๐–๙).
func IsThaiDigit(r rune) bool {
	return r >= 0x0E50 && r <= 0x0E59
}

// ClassifyRune returns the Script of a single rune. Thai digits count as digits so that
// "๒๕๖๗" groups like "2024".
func ClassifyRune(r rune) Script {
	switch {
	case IsThaiDigit(r):
		return ScriptDigit
	case IsThai(r):
		return ScriptThai
	case unicode.IsSpace(r):
		return ScriptSpace
	case unicode.IsDigit(r):
		return ScriptDigit
	case unicode.IsLetter(r):
		return ScriptLatin
	case unicode.IsPunct(r) || unicode.IsSymbol(r):
		return ScriptPunct
	default:
		return ScriptOther
	}
}

// HasThai reports whether s contains at least one Thai character.
func HasThai(s string) bool {
	for _, r := range s {
		if IsThai(r) && !IsThaiDigit(r) {
			return true
		}
	}
	return false
}

// HasNonThaiWord reports whether s contains a Latin letter or a digit.
func HasNonThaiWord(s string) bool {
	for _, r := range s {
		switch ClassifyRune(r) {
		case ScriptLatin, ScriptDigit:
			return true
		}
	}
	return false
}

// IsWordLike reports whether s is made only of letters, digits, and Thai marks.
func IsWordLike(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch ClassifyRune(r) {
		case ScriptThai, ScriptLatin, ScriptDigit:
		default:
			return false
		}
	}
	return true
}

// IsBlank reports whether s is empty or whitespace only.
func IsBlank(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// RuneLen returns the number of characters in s.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
