// Package dictionary holds the Thai vocabulary used for segmentation and compound matching.
//
// A Snapshot is immutable once built. Updates build a new Snapshot and swap it into a Store,
// so a request that read Current() once sees one consistent vocabulary for its lifetime.
package dictionary

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// DefaultFrequency is used for words that carry no frequency, including custom words.
const DefaultFrequency = 1

// Entry is a vocabulary word with its relative frequency.
type Entry struct {
	Word      string
	Frequency int
}

// Completion is a compound that a fragment is a strict prefix or suffix of.
type Completion struct {
	Word      string   `json:"word"`
	Parts     []string `json:"parts"`
	Prefix    bool     `json:"prefix"`
	Frequency int      `json:"frequency"`
}

// Stats describes a snapshot for diagnostics.
type Stats struct {
	Version       uint64 `json:"version"`
	WordCount     int    `json:"word_count"`
	BaseCount     int    `json:"base_count"`
	CustomCount   int    `json:"custom_count"`
	CompoundCount int    `json:"compound_count"`
	MaxWordLength int    `json:"max_word_length"`
}

// Snapshot is an immutable view of the vocabulary.
type Snapshot struct {
	version   uint64
	freq      map[string]int
	baseCount int
	custom    []string
	full      *Trie
	split     *Trie
	compounds map[string][]string
	// sorted compounds and their reversed forms for prefix/suffix lookup
	byPrefix []string
	bySuffix []string
}

// Build creates a snapshot from base entries and custom words. Custom words that are
// already base words keep the base frequency.
func Build(version uint64, base []Entry, custom []string) *Snapshot {
	s := &Snapshot{
		version: version,
		freq:    make(map[string]int, len(base)+len(custom)),
		full:    newTrie(),
		split:   newTrie(),
	}
	for _, e := range base {
		w := normalize(e.Word)
		if w == "" {
			continue
		}
		f := e.Frequency
		if f <= 0 {
			f = DefaultFrequency
		}
		if old, ok := s.freq[w]; !ok || f > old {
			if !ok {
				s.baseCount++
			}
			s.freq[w] = f
		}
	}
	seen := make(map[string]bool, len(custom))
	for _, w := range custom {
		w = normalize(w)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		s.custom = append(s.custom, w)
		if _, ok := s.freq[w]; !ok {
			s.freq[w] = DefaultFrequency
		}
	}
	sort.Strings(s.custom)

	for w := range s.freq {
		s.full.insert(w)
	}
	s.compounds = findCompounds(s.full, s.freq)
	for w := range s.freq {
		if _, ok := s.compounds[w]; !ok {
			s.split.insert(w)
		}
	}
	for w := range s.compounds {
		s.byPrefix = append(s.byPrefix, w)
		s.bySuffix = append(s.bySuffix, reverse(w))
	}
	sort.Strings(s.byPrefix)
	sort.Strings(s.bySuffix)
	return s
}

// findCompounds returns word -> parts for every word that other vocabulary words cover
// completely with at least two parts. Among minimal covers the one with the longest
// earliest part wins.
func findCompounds(full *Trie, freq map[string]int) map[string][]string {
	out := make(map[string][]string)
	for w := range freq {
		runes := []rune(w)
		n := len(runes)
		if n < 2 {
			continue
		}
		// best[i] = fewest parts covering runes[i:], next[i] = end of the chosen part
		best := make([]int, n+1)
		next := make([]int, n+1)
		for i := range best {
			best[i] = -1
		}
		best[n] = 0
		for i := n - 1; i >= 0; i-- {
			ends := full.Matches(runes, i)
			for k := len(ends) - 1; k >= 0; k-- {
				e := ends[k]
				if i == 0 && e == n {
					continue
				}
				if best[e] < 0 {
					continue
				}
				if c := best[e] + 1; best[i] < 0 || c < best[i] {
					best[i] = c
					next[i] = e
				}
			}
		}
		if best[0] < 2 {
			continue
		}
		parts := make([]string, 0, best[0])
		for i := 0; i < n; i = next[i] {
			parts = append(parts, string(runes[i:next[i]]))
		}
		out[w] = parts
	}
	return out
}

// Version is the monotonically increasing snapshot number.
func (s *Snapshot) Version() uint64 { return s.version }

// Full is the complete vocabulary used by ordinary segmentation.
func (s *Snapshot) Full() *Trie { return s.full }

// Split is the vocabulary with compounds removed, used for compound-aware segmentation.
func (s *Snapshot) Split() *Trie { return s.split }

// Contains reports whether word is a vocabulary word.
func (s *Snapshot) Contains(word string) bool {
	_, ok := s.freq[word]
	return ok
}

// Frequency returns the frequency of word, or 0 when it is unknown.
func (s *Snapshot) Frequency(word string) int {
	return s.freq[word]
}

// IsCompound reports whether word decomposes into other vocabulary words.
func (s *Snapshot) IsCompound(word string) bool {
	_, ok := s.compounds[word]
	return ok
}

// Parts returns the constituent words of a compound, or nil.
func (s *Snapshot) Parts(word string) []string {
	p, ok := s.compounds[word]
	if !ok {
		return nil
	}
	return append([]string(nil), p...)
}

// CustomWords returns the custom words in sorted order.
func (s *Snapshot) CustomWords() []string {
	return append([]string(nil), s.custom...)
}

// Compounds returns the compound-pattern table as a sorted list of words.
func (s *Snapshot) Compounds() []string {
	return append([]string(nil), s.byPrefix...)
}

// Stats summarizes the snapshot.
func (s *Snapshot) Stats() Stats {
	return Stats{
		Version:       s.version,
		WordCount:     len(s.freq),
		BaseCount:     s.baseCount,
		CustomCount:   len(s.custom),
		CompoundCount: len(s.compounds),
		MaxWordLength: s.full.MaxLen(),
	}
}

// CompletionsFor returns compounds for which fragment is a strict prefix or suffix.
// Prefix matches come first. Within each group the order is frequency descending, then
// shorter compound first, then lexicographic. limit <= 0 means no limit.
func (s *Snapshot) CompletionsFor(fragment string, limit int) []Completion {
	fragment = normalize(fragment)
	if fragment == "" {
		return nil
	}
	var prefix, suffix []Completion
	seen := make(map[string]bool)

	for i := sort.SearchStrings(s.byPrefix, fragment); i < len(s.byPrefix); i++ {
		w := s.byPrefix[i]
		if !strings.HasPrefix(w, fragment) {
			break
		}
		if w == fragment {
			continue
		}
		seen[w] = true
		prefix = append(prefix, s.completion(w, true))
	}

	rev := reverse(fragment)
	for i := sort.SearchStrings(s.bySuffix, rev); i < len(s.bySuffix); i++ {
		r := s.bySuffix[i]
		if !strings.HasPrefix(r, rev) {
			break
		}
		w := reverse(r)
		if w == fragment || seen[w] {
			continue
		}
		suffix = append(suffix, s.completion(w, false))
	}

	sortCompletions(prefix)
	sortCompletions(suffix)
	out := append(prefix, suffix...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Snapshot) completion(word string, prefix bool) Completion {
	return Completion{
		Word:      word,
		Parts:     s.Parts(word),
		Prefix:    prefix,
		Frequency: s.freq[word],
	}
}

func sortCompletions(c []Completion) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Frequency != c[j].Frequency {
			return c[i].Frequency > c[j].Frequency
		}
		li, lj := utf8.RuneCountInString(c[i].Word), utf8.RuneCountInString(c[j].Word)
		if li != lj {
			return li < lj
		}
		return c[i].Word < c[j].Word
	})
}

func normalize(w string) string {
	return strings.TrimSpace(w)
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
