// Package query expands a user query into weighted tokens and alternative query strings
// that also reach documents where the query is only part of a compound word.
package query

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kham/internal/config"
	"github.com/hyperjump/kham/internal/dictionary"
	"github.com/hyperjump/kham/internal/segment"
	"github.com/hyperjump/kham/pkg/utils"
)

// Type classifies a query token.
type Type string

const (
	TypeFullWord        Type = "full_word"
	TypePartialCompound Type = "partial_compound"
	TypeMixedScript     Type = "mixed_script"
	TypeUnknown         Type = "unknown"
)

// Mode names the processing path.
type Mode string

const (
	ModeGeneral  Mode = "general"
	ModeCompound Mode = "compound"
)

// fragmentPenalty applies to partial tokens that are not words on their own.
const fragmentPenalty = 0.75

// ProcessedToken is one token of a query.
type ProcessedToken struct {
	Original       string   `json:"original"`
	Processed      string   `json:"processed"`
	QueryType      Type     `json:"query_type"`
	IsPartial      bool     `json:"is_partial"`
	CompoundParts  []string `json:"compound_parts"`
	SearchVariants []string `json:"search_variants"`
	BoostScore     float64  `json:"boost_score"`

	offset      int
	completions []dictionary.Completion
}

// Offset is the character offset of the token in the original query.
func (t ProcessedToken) Offset() int { return t.offset }

// Completions returns the compounds a partial token may complete, best first.
func (t ProcessedToken) Completions() []dictionary.Completion { return t.completions }

// Result is the output of query processing.
type Result struct {
	OriginalQuery        string           `json:"original_query"`
	ProcessedQuery       string           `json:"processed_query"`
	QueryTokens          []ProcessedToken `json:"query_tokens"`
	SearchVariants       []string         `json:"search_variants"`
	SuggestedCompletions []string         `json:"suggested_completions,omitempty"`
	ProcessingMetadata   map[string]any   `json:"processing_metadata"`
}

// HasPartial reports whether any token is a partial compound.
func (r *Result) HasPartial() bool {
	for _, t := range r.QueryTokens {
		if t.IsPartial {
			return true
		}
	}
	return false
}

// HasMixedScript reports whether any token is mixed_script.
func (r *Result) HasMixedScript() bool {
	for _, t := range r.QueryTokens {
		if t.QueryType == TypeMixedScript {
			return true
		}
	}
	return false
}

// Options are per-request switches.
type Options struct {
	EnablePartialMatching bool `json:"enable_partial_matching"`
	EnableQueryExpansion  bool `json:"enable_query_expansion"`
	IncludeSuggestions    bool `json:"include_suggestions"`
	// MaxSuggestions <= 0 uses the configured default.
	MaxSuggestions int `json:"max_suggestions"`
}

// DefaultOptions enables every feature.
func DefaultOptions() Options {
	return Options{EnablePartialMatching: true, EnableQueryExpansion: true, IncludeSuggestions: true}
}

// Recorder receives per-query counts.
type Recorder interface {
	ObserveQuery(mode string, variants int, partialTokens int)
}

// Processor classifies query tokens and builds query variants.
type Processor struct {
	seg      *segment.Segmenter
	cfg      config.QueryConfig
	logger   *zap.Logger
	recorder Recorder
}

// New creates a Processor.
func New(seg *segment.Segmenter, cfg config.QueryConfig, logger *zap.Logger) *Processor {
	if cfg.MaxVariants <= 0 {
		cfg.MaxVariants = 5
	}
	if cfg.MaxCompoundVariants <= 0 {
		cfg.MaxCompoundVariants = 8
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = 5
	}
	if cfg.MaxCompletionsPerToken <= 0 {
		cfg.MaxCompletionsPerToken = 3
	}
	if cfg.MinFragmentLength <= 0 {
		cfg.MinFragmentLength = 2
	}
	if cfg.PartialBoost == 0 {
		cfg.PartialBoost = 0.8
	}
	if cfg.CompoundPartialBoost == 0 {
		cfg.CompoundPartialBoost = 0.6
	}
	return &Processor{seg: seg, cfg: cfg, logger: utils.OrNop(logger)}
}

// SetRecorder sets a recorder for query statistics.
func (p *Processor) SetRecorder(r Recorder) { p.recorder = r }

// Segmenter returns the segmenter used for queries.
func (p *Processor) Segmenter() *segment.Segmenter { return p.seg }

// MaxVariants returns the variant cap for mode.
func (p *Processor) MaxVariants(mode Mode) int {
	if mode == ModeCompound {
		return p.cfg.MaxCompoundVariants
	}
	return p.cfg.MaxVariants
}

func emptyResult(res *Result, opts Options, elapsedMs float64) *Result {
	res.ProcessingMetadata["empty_query"] = true
	res.ProcessingMetadata["processing_time_ms"] = elapsedMs
	if opts.IncludeSuggestions {
		res.SuggestedCompletions = []string{}
	}
	return res
}

// ProcessSearchQuery is the general-purpose path.
func (p *Processor) ProcessSearchQuery(q string, opts Options) (*Result, error) {
	return p.Process(q, opts, ModeGeneral)
}

// ProcessPartialCompoundQuery is the path for queries known to target compound words:
// the query is split with compounds broken into parts, more completions and variants are
// produced, and partial tokens get a lower boost.
func (p *Processor) ProcessPartialCompoundQuery(q string, opts Options) (*Result, error) {
	return p.Process(q, opts, ModeCompound)
}

// Process runs the given path.
func (p *Processor) Process(q string, opts Options, mode Mode) (*Result, error) {
	started := time.Now()
	snap := p.seg.Dictionary().Current()
	res := &Result{
		OriginalQuery:  q,
		QueryTokens:    []ProcessedToken{},
		SearchVariants: []string{},
		ProcessingMetadata: map[string]any{
			"mode":               string(mode),
			"engine":             p.seg.EngineName(),
			"dictionary_version": snap.Version(),
		},
	}
	if utils.IsBlank(q) {
		return emptyResult(res, opts, 0), nil
	}
	res.ProcessingMetadata["empty_query"] = false

	segMode := segment.ModeStandard
	if mode == ModeCompound {
		segMode = segment.ModeCompound
	}
	tr, err := p.seg.Segment(snap, q, segMode)
	if err != nil {
		return nil, err
	}

	queryHasThai := utils.HasThai(q)
	partial := 0
	for i, tok := range tr.Tokens {
		if !utils.IsWordLike(tok) {
			continue
		}
		pt := p.classify(snap, tok, tr.Known[i], queryHasThai, opts, mode)
		pt.offset = tr.WordBoundaries[i]
		if pt.IsPartial {
			partial++
		}
		res.QueryTokens = append(res.QueryTokens, pt)
	}
	// a query of only punctuation or symbols has nothing to search for
	if len(res.QueryTokens) == 0 {
		return emptyResult(res, opts, utils.Millis(time.Since(started).Nanoseconds())), nil
	}

	processed := make([]string, len(res.QueryTokens))
	for i, t := range res.QueryTokens {
		processed[i] = t.Processed
	}
	res.ProcessedQuery = strings.Join(processed, " ")

	var truncated bool
	res.SearchVariants, truncated = p.buildVariants(res, processed, opts, mode)

	if opts.IncludeSuggestions {
		limit := opts.MaxSuggestions
		if limit <= 0 {
			limit = p.cfg.MaxSuggestions
		}
		res.SuggestedCompletions = suggestions(q, res.QueryTokens, limit)
	}

	res.ProcessingMetadata["token_count"] = len(res.QueryTokens)
	res.ProcessingMetadata["partial_tokens"] = partial
	res.ProcessingMetadata["variants_truncated"] = truncated
	res.ProcessingMetadata["processing_time_ms"] = utils.Millis(time.Since(started).Nanoseconds())
	if p.recorder != nil {
		p.recorder.ObserveQuery(string(mode), len(res.SearchVariants), partial)
	}
	return res, nil
}

func (p *Processor) classify(snap *dictionary.Snapshot, tok string, known, queryHasThai bool, opts Options, mode Mode) ProcessedToken {
	pt := ProcessedToken{
		Original:       tok,
		Processed:      tok,
		QueryType:      TypeUnknown,
		CompoundParts:  []string{},
		SearchVariants: []string{},
		BoostScore:     1.0,
	}
	hasThai := utils.HasThai(tok)
	hasOther := utils.HasNonThaiWord(tok)

	switch {
	case (hasThai && hasOther) || (!hasThai && hasOther && queryHasThai):
		pt.QueryType = TypeMixedScript
		return pt
	case opts.EnablePartialMatching && hasThai && utils.RuneLen(tok) >= p.cfg.MinFragmentLength:
		limit := p.cfg.MaxCompletionsPerToken
		if mode == ModeCompound {
			limit *= 2
		}
		if completions := snap.CompletionsFor(tok, limit); len(completions) > 0 {
			boost := p.cfg.PartialBoost
			if mode == ModeCompound {
				boost = p.cfg.CompoundPartialBoost
			}
			if !snap.Contains(tok) {
				boost *= fragmentPenalty
			}
			pt.QueryType = TypePartialCompound
			pt.IsPartial = true
			pt.BoostScore = clampBoost(boost)
			pt.CompoundParts = completions[0].Parts
			pt.completions = completions
			for _, c := range completions {
				pt.SearchVariants = append(pt.SearchVariants, c.Word)
			}
			return pt
		}
	}

	if known && (snap.Contains(tok) || !hasThai) {
		pt.QueryType = TypeFullWord
		if parts := snap.Parts(tok); len(parts) > 0 {
			pt.CompoundParts = parts
			pt.SearchVariants = append(pt.SearchVariants, strings.Join(parts, " "))
		}
	}
	pt.BoostScore = clampBoost(pt.BoostScore)
	return pt
}

// buildVariants returns deduplicated query strings, processed query first, capped at the
// limit for mode. The second return value reports whether candidates were dropped.
func (p *Processor) buildVariants(res *Result, processed []string, opts Options, mode Mode) ([]string, bool) {
	var candidates []string
	candidates = append(candidates, res.ProcessedQuery)
	if opts.EnableQueryExpansion {
		candidates = append(candidates, strings.TrimSpace(res.OriginalQuery))
		for i, t := range res.QueryTokens {
			for _, alt := range t.SearchVariants {
				candidates = append(candidates, substitute(processed, i, alt))
			}
		}
		if mode == ModeCompound {
			candidates = append(candidates, p.compoundVariants(res, processed)...)
		}
	}

	limit := p.MaxVariants(mode)
	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, limit)
	truncated := false
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		if len(out) == limit {
			truncated = true
			break
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, truncated
}

// compoundVariants adds the form with every partial token completed at once and the
// unspaced form that matches untokenized text.
func (p *Processor) compoundVariants(res *Result, processed []string) []string {
	var out []string
	all := append([]string(nil), processed...)
	completed := 0
	for i, t := range res.QueryTokens {
		if t.IsPartial && len(t.completions) > 0 {
			all[i] = t.completions[0].Word
			completed++
		}
	}
	if completed > 1 {
		out = append(out, strings.Join(all, " "))
	}
	if len(processed) > 1 {
		out = append(out, strings.Join(processed, ""))
	}
	return out
}

func substitute(processed []string, i int, alt string) string {
	parts := append([]string(nil), processed...)
	parts[i] = alt
	return strings.Join(parts, " ")
}

// suggestions replaces each prefix-partial token in the original query with the compounds
// it starts, keeping the rest of the query as typed.
func suggestions(q string, tokens []ProcessedToken, limit int) []string {
	out := []string{}
	seen := make(map[string]bool)
	runes := []rune(q)
	for _, t := range tokens {
		if !t.IsPartial {
			continue
		}
		start := t.offset
		end := start + utils.RuneLen(t.Original)
		for _, c := range t.completions {
			if !c.Prefix {
				continue
			}
			s := string(runes[:start]) + c.Word + string(runes[end:])
			if seen[s] {
				continue
			}
			if len(out) == limit {
				return out
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func clampBoost(b float64) float64 {
	return utils.Clamp(b, config.MinBoost, config.MaxBoost)
}
