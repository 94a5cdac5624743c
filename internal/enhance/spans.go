package enhance

import (
	"sort"
	"unicode"

	"github.com/hyperjump/kham/internal/query"
	"github.com/hyperjump/kham/internal/segment"
	"github.com/hyperjump/kham/pkg/utils"
)

// term is a string searched for in field text.
type term struct {
	text  []rune
	typ   HighlightType
	conf  float64
	query string
	// compound is recorded in compound_matches when the term matches
	compound string
}

// buildTerms derives match terms from a processed query. Without compound highlighting
// only the query tokens themselves are matched, all as exact.
func buildTerms(q *query.Result, compound bool) []term {
	var terms []term
	seen := make(map[string]bool)
	add := func(t term) {
		key := string(t.typ) + "\x00" + string(t.text)
		if len(t.text) == 0 || seen[key] {
			return
		}
		seen[key] = true
		terms = append(terms, t)
	}
	for _, tok := range q.QueryTokens {
		exact := term{text: lowerRunes(tok.Original), typ: HighlightExact, conf: ConfidenceExact, query: tok.Original}
		if compound && len(tok.CompoundParts) > 0 && !tok.IsPartial {
			exact.compound = tok.Original
		}
		add(exact)
		if !compound {
			continue
		}
		if tok.IsPartial {
			for _, c := range tok.Completions() {
				add(term{text: lowerRunes(c.Word), typ: HighlightSynonym, conf: ConfidenceSynonym, query: c.Word, compound: c.Word})
			}
			continue
		}
		for _, part := range tok.CompoundParts {
			add(term{text: lowerRunes(part), typ: HighlightFuzzy, conf: ConfidenceFuzzy, query: part, compound: tok.Original})
		}
	}
	return terms
}

// fieldText is a field prepared for matching.
type fieldText struct {
	runes  []rune
	lower  []rune
	starts []int // token start offsets, ascending
	ends   []int // token end offsets, parallel to starts
}

func newFieldText(text string, seg *segment.TokenizationResult) *fieldText {
	runes := []rune(text)
	ft := &fieldText{runes: runes, lower: lowerRuneSlice(runes)}
	if seg != nil {
		for i, tok := range seg.Tokens {
			if utils.IsBlank(tok) {
				continue
			}
			ft.starts = append(ft.starts, seg.WordBoundaries[i])
			ft.ends = append(ft.ends, seg.WordBoundaries[i]+utils.RuneLen(tok))
		}
	}
	return ft
}

// find returns every start offset of needle in the lowered field, non-overlapping.
func (f *fieldText) find(needle []rune) []int {
	var out []int
	n, m := len(f.lower), len(needle)
	if m == 0 || m > n {
		return nil
	}
	for i := 0; i+m <= n; {
		if equalRunes(f.lower[i:i+m], needle) {
			out = append(out, i)
			i += m
			continue
		}
		i++
	}
	return out
}

// covering returns the extent of the tokens overlapping [s, e). ok is false when the field
// was not segmented.
func (f *fieldText) covering(s, e int) (cs, ce int, ok bool) {
	if len(f.starts) == 0 {
		return s, e, false
	}
	// first token whose end is after s
	i := sort.Search(len(f.ends), func(k int) bool { return f.ends[k] > s })
	if i == len(f.ends) || f.starts[i] >= e {
		return s, e, false
	}
	cs, ce = f.starts[i], f.ends[i]
	for j := i + 1; j < len(f.starts) && f.starts[j] < e; j++ {
		ce = f.ends[j]
	}
	return cs, ce, true
}

// matchField finds spans for all terms in one field and the compounds they satisfy.
func matchField(f *fieldText, terms []term, classify bool) ([]HighlightSpan, []string) {
	var spans []HighlightSpan
	var compounds []string
	for _, t := range terms {
		for _, s := range f.find(t.text) {
			e := s + len(t.text)
			span := HighlightSpan{Start: s, End: e, HighlightType: t.typ, Confidence: t.conf, MatchedQuery: t.query}
			compound := t.compound
			if classify && t.typ == HighlightExact {
				if cs, ce, ok := f.covering(s, e); ok && (cs != s || ce != e) && utils.HasThai(string(f.runes[cs:ce])) {
					span.HighlightType = HighlightCompoundPartial
					span.Confidence = partialBase + partialRange*float64(e-s)/float64(ce-cs)
					compound = string(f.runes[cs:ce])
				}
			}
			spans = append(spans, span)
			if classify && compound != "" {
				compounds = append(compounds, compound)
			}
		}
	}
	spans = mergeSpans(spans)
	for i := range spans {
		spans[i].Text = string(f.runes[spans[i].Start:spans[i].End])
	}
	return spans, compounds
}

// mergeSpans merges overlapping or touching spans of the same type. The merged span keeps
// the highest confidence and the query of the span that had it. Output is ordered by start,
// then type.
func mergeSpans(spans []HighlightSpan) []HighlightSpan {
	if len(spans) < 2 {
		return spans
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].HighlightType != spans[j].HighlightType {
			return spans[i].HighlightType < spans[j].HighlightType
		}
		return spans[i].Start < spans[j].Start
	})
	out := []HighlightSpan{spans[0]}
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.HighlightType == last.HighlightType && s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
			}
			if s.Confidence > last.Confidence {
				last.Confidence = s.Confidence
				last.MatchedQuery = s.MatchedQuery
			}
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].HighlightType < out[j].HighlightType
	})
	return out
}

func lowerRunes(s string) []rune {
	return lowerRuneSlice([]rune(s))
}

func lowerRuneSlice(r []rune) []rune {
	out := make([]rune, len(r))
	for i, c := range r {
		out[i] = unicode.ToLower(c)
	}
	return out
}

func equalRunes(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
