package segment

// cannotStart reports runes that attach to the preceding consonant: following vowels,
// above/below vowels, tone marks and other diacritics.
func cannotStart(r rune) bool {
	switch {
	case r >= 0x0E30 && r <= 0x0E3A:
		return true
	case r == 0x0E45:
		return true
	case r >= 0x0E47 && r <= 0x0E4E:
		return true
	}
	return false
}

// cannotEnd reports runes that must be followed by a consonant in the same cluster:
// leading vowels (เ แ โ ใ ไ) and mai han-akat.
func cannotEnd(r rune) bool {
	return (r >= 0x0E40 && r <= 0x0E44) || r == 0x0E31
}

// boundaries marks the offsets in runes where a token may start or end without splitting
// a Thai character cluster. Both ends of the slice are always valid.
func boundaries(runes []rune) []bool {
	n := len(runes)
	valid := make([]bool, n+1)
	valid[0] = true
	valid[n] = true
	for i := 1; i < n; i++ {
		valid[i] = !cannotStart(runes[i]) && !cannotEnd(runes[i-1])
	}
	return valid
}

func nextBoundary(valid []bool, i int) int {
	for j := i + 1; j < len(valid); j++ {
		if valid[j] {
			return j
		}
	}
	return len(valid) - 1
}
