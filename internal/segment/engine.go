package segment

import (
	"fmt"

	"github.com/hyperjump/kham/internal/config"
	"github.com/hyperjump/kham/internal/dictionary"
)

// Span is a token within a Thai run. Known is false for out-of-vocabulary text.
type Span struct {
	Start int
	End   int
	Known bool
}

// Engine splits a run of Thai characters into spans that tile it completely.
type Engine interface {
	Name() string
	Segment(runes []rune, vocab *dictionary.Trie) ([]Span, error)
}

// NewEngine returns the engine registered under name.
func NewEngine(name string) (Engine, error) {
	switch name {
	case config.EngineMaximal:
		return maximalEngine{}, nil
	case config.EngineLongest:
		return longestEngine{}, nil
	default:
		return nil, fmt.Errorf("unknown segmentation engine %q", name)
	}
}

// maximalEngine picks the segmentation with the fewest out-of-vocabulary runes and, among
// those, the fewest tokens.
type maximalEngine struct{}

func (maximalEngine) Name() string { return config.EngineMaximal }

type pathCost struct {
	unknown int
	tokens  int
}

func (c pathCost) less(o pathCost) bool {
	if c.unknown != o.unknown {
		return c.unknown < o.unknown
	}
	return c.tokens < o.tokens
}

func (maximalEngine) Segment(runes []rune, vocab *dictionary.Trie) ([]Span, error) {
	n := len(runes)
	if n == 0 {
		return nil, nil
	}
	valid := boundaries(runes)
	cost := make([]pathCost, n+1)
	reached := make([]bool, n+1)
	prev := make([]int, n+1)
	known := make([]bool, n+1)
	reached[0] = true

	relax := func(from, to int, c pathCost, k bool) {
		if !reached[to] || c.less(cost[to]) {
			reached[to] = true
			cost[to] = c
			prev[to] = from
			known[to] = k
		}
	}

	for i := 0; i < n; i++ {
		if !reached[i] || !valid[i] {
			continue
		}
		base := cost[i]
		for _, e := range vocab.Matches(runes, i) {
			if valid[e] {
				relax(i, e, pathCost{base.unknown, base.tokens + 1}, true)
			}
		}
		j := nextBoundary(valid, i)
		relax(i, j, pathCost{base.unknown + (j - i), base.tokens + 1}, false)
	}
	if !reached[n] {
		return nil, fmt.Errorf("no segmentation path covers %d runes", n)
	}

	var rev []Span
	for e := n; e > 0; e = prev[e] {
		rev = append(rev, Span{Start: prev[e], End: e, Known: known[e]})
	}
	spans := make([]Span, len(rev))
	for i := range rev {
		spans[i] = rev[len(rev)-1-i]
	}
	return mergeUnknown(spans), nil
}

// longestEngine greedily takes the longest dictionary word at each position.
type longestEngine struct{}

func (longestEngine) Name() string { return config.EngineLongest }

func (longestEngine) Segment(runes []rune, vocab *dictionary.Trie) ([]Span, error) {
	n := len(runes)
	valid := boundaries(runes)
	var spans []Span
	for i := 0; i < n; {
		end := -1
		for _, e := range vocab.Matches(runes, i) {
			if valid[e] {
				end = e
			}
		}
		if end > 0 {
			spans = append(spans, Span{Start: i, End: end, Known: true})
			i = end
			continue
		}
		j := nextBoundary(valid, i)
		spans = append(spans, Span{Start: i, End: j})
		i = j
	}
	return mergeUnknown(spans), nil
}

// mergeUnknown joins consecutive out-of-vocabulary spans into one.
func mergeUnknown(spans []Span) []Span {
	out := spans[:0]
	for _, s := range spans {
		if len(out) > 0 && !s.Known && !out[len(out)-1].Known {
			out[len(out)-1].End = s.End
			continue
		}
		out = append(out, s)
	}
	return out
}

// checkSpans verifies that spans tile [0, n) in order.
func checkSpans(spans []Span, n int) error {
	pos := 0
	for _, s := range spans {
		if s.Start != pos || s.End <= s.Start {
			return fmt.Errorf("invalid span [%d,%d) at offset %d", s.Start, s.End, pos)
		}
		pos = s.End
	}
	if pos != n {
		return fmt.Errorf("spans cover %d of %d runes", pos, n)
	}
	return nil
}
