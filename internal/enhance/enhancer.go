// Package enhance re-anchors highlights on the original text of search hits and adjusts
// their scores so compound-word matches are not ranked below plain substring matches.
package enhance

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kham/internal/config"
	"github.com/hyperjump/kham/internal/dictionary"
	"github.com/hyperjump/kham/internal/query"
	"github.com/hyperjump/kham/internal/segment"
	"github.com/hyperjump/kham/pkg/utils"
)

// Recorder receives enhancement counts.
type Recorder interface {
	ObserveEnhancement(hits, failed int, seconds float64)
}

// Enhancer post-processes search hits.
type Enhancer struct {
	qp       *query.Processor
	cfg      config.EnhanceConfig
	suffix   string
	logger   *zap.Logger
	recorder Recorder
}

// New creates an Enhancer. tokenizedSuffix names the companion fields written at index time.
func New(qp *query.Processor, cfg config.EnhanceConfig, tokenizedSuffix string, logger *zap.Logger) *Enhancer {
	if cfg.DefaultScore == 0 {
		cfg.DefaultScore = 1.0
	}
	if tokenizedSuffix == "" {
		tokenizedSuffix = "_tokenized"
	}
	return &Enhancer{qp: qp, cfg: cfg, suffix: tokenizedSuffix, logger: utils.OrNop(logger)}
}

// SetRecorder sets a recorder for enhancement statistics.
func (e *Enhancer) SetRecorder(r Recorder) { e.recorder = r }

// Enhance processes originalQuery and enhances hits against it.
func (e *Enhancer) Enhance(ctx context.Context, hits []map[string]any, originalQuery string, opts Options) (*Result, error) {
	q, err := e.qp.ProcessSearchQuery(originalQuery, query.DefaultOptions())
	if err != nil {
		return nil, err
	}
	return e.EnhanceWithQuery(ctx, hits, q, opts)
}

// EnhanceWithQuery enhances hits against an already processed query. A hit that cannot be
// enhanced is returned with its original score and no highlights. If ctx ends, partial
// results are discarded and ctx.Err() is returned.
func (e *Enhancer) EnhanceWithQuery(ctx context.Context, hits []map[string]any, q *query.Result, opts Options) (*Result, error) {
	started := time.Now()
	fields := opts.HighlightFields
	if len(fields) == 0 {
		fields = e.cfg.HighlightFields
	}
	snap := e.qp.Segmenter().Dictionary().Current()
	terms := buildTerms(q, opts.EnableCompoundHighlighting)

	res := &Result{
		Hits:          make([]EnhancedHit, 0, len(hits)),
		QueryAnalysis: analyze(q),
		EnhancementMetadata: Metadata{
			TotalHits:            len(hits),
			HighlightFields:      fields,
			CompoundHighlighting: opts.EnableCompoundHighlighting,
			RelevanceBoosting:    opts.EnableRelevanceBoosting,
		},
	}
	for i, hit := range hits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		eh, err := e.enhanceHit(snap, hit, terms, fields, opts)
		if err != nil {
			e.logger.Warn("hit enhancement failed, passing through",
				zap.Int("index", i), zap.Any("id", hit["id"]), zap.Error(err))
			res.EnhancementMetadata.FailedHits++
			res.Hits = append(res.Hits, e.passThrough(hit, err))
			continue
		}
		res.EnhancementMetadata.EnhancedHits++
		res.Hits = append(res.Hits, *eh)
	}
	if opts.EnableRelevanceBoosting {
		sort.SliceStable(res.Hits, func(i, j int) bool {
			return res.Hits[i].EnhancedScore > res.Hits[j].EnhancedScore
		})
	}
	elapsed := time.Since(started)
	res.EnhancementMetadata.ProcessingTimeMs = utils.Millis(elapsed.Nanoseconds())
	if e.recorder != nil {
		e.recorder.ObserveEnhancement(len(hits), res.EnhancementMetadata.FailedHits, elapsed.Seconds())
	}
	return res, nil
}

func (e *Enhancer) enhanceHit(snap *dictionary.Snapshot, hit map[string]any, terms []term, fields []string, opts Options) (eh *EnhancedHit, err error) {
	defer func() {
		if r := recover(); r != nil {
			eh, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	if hit == nil {
		return nil, fmt.Errorf("hit is not an object")
	}
	base := e.baseScore(hit)
	out := &EnhancedHit{
		OriginalHit:           hit,
		EnhancedScore:         base,
		HighlightSpans:        map[string][]HighlightSpan{},
		CompoundMatches:       []string{},
		OriginalTextPreserved: map[string]string{},
		TokenizedText:         map[string]string{},
		RelevanceFactors:      map[string]float64{"base_score": base},
	}

	seenCompound := make(map[string]bool)
	for _, field := range fields {
		raw, ok := hit[field]
		if !ok || raw == nil {
			continue
		}
		text, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("field %q is %T, not text", field, raw)
		}
		out.OriginalTextPreserved[field] = text
		if tok, ok := hit[field+e.suffix].(string); ok {
			out.TokenizedText[field] = tok
		}

		var seg *segment.TokenizationResult
		if opts.EnableCompoundHighlighting && text != "" {
			seg, err = e.qp.Segmenter().Segment(snap, text, segment.ModeStandard)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field, err)
			}
		}
		spans, compounds := matchField(newFieldText(text, seg), terms, opts.EnableCompoundHighlighting)
		if len(spans) > 0 {
			out.HighlightSpans[field] = spans
		}
		for _, c := range compounds {
			if !seenCompound[c] {
				seenCompound[c] = true
				out.CompoundMatches = append(out.CompoundMatches, c)
			}
		}
	}

	if opts.EnableRelevanceBoosting {
		e.score(out, base)
	}
	return out, nil
}

// score adds a bonus bounded by MaxBoostRatio * |base|. The strongest exact span counts
// fully; the other spans together can add at most half a signal, so weak partial matches
// alone never reach the bonus of one exact match.
func (e *Enhancer) score(h *EnhancedHit, base float64) {
	maxExact, others := 0.0, 0.0
	for _, spans := range h.HighlightSpans {
		for _, s := range spans {
			if s.HighlightType == HighlightExact {
				maxExact = math.Max(maxExact, s.Confidence)
			} else {
				others += s.Confidence
			}
		}
	}
	compound := 0.5 * (1 - math.Exp(-others))
	signal := math.Min(1, maxExact+compound)
	bonus := math.Abs(base) * e.cfg.MaxBoostRatio * signal

	h.EnhancedScore = base + bonus
	h.RelevanceFactors["exact_signal"] = maxExact
	h.RelevanceFactors["compound_signal"] = compound
	h.RelevanceFactors["signal"] = signal
	h.RelevanceFactors["bonus"] = bonus
	h.RelevanceFactors["max_boost_ratio"] = e.cfg.MaxBoostRatio
}

func (e *Enhancer) passThrough(hit map[string]any, err error) EnhancedHit {
	base := e.cfg.DefaultScore
	if hit != nil {
		base = e.baseScore(hit)
	}
	return EnhancedHit{
		OriginalHit:           hit,
		EnhancedScore:         base,
		HighlightSpans:        map[string][]HighlightSpan{},
		CompoundMatches:       []string{},
		OriginalTextPreserved: map[string]string{},
		TokenizedText:         map[string]string{},
		RelevanceFactors:      map[string]float64{"base_score": base},
		EnhancementError:      err.Error(),
	}
}

// baseScore reads _score, then _rankingScore, and falls back to the configured default.
func (e *Enhancer) baseScore(hit map[string]any) float64 {
	for _, key := range []string{"_score", "_rankingScore"} {
		if v, ok := number(hit[key]); ok {
			return v
		}
	}
	return e.cfg.DefaultScore
}

// BaseScore exposes the score lookup used for enhancement.
func (e *Enhancer) BaseScore(hit map[string]any) float64 { return e.baseScore(hit) }

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func analyze(q *query.Result) QueryAnalysis {
	qa := QueryAnalysis{
		OriginalQuery:   q.OriginalQuery,
		ProcessedQuery:  q.ProcessedQuery,
		TokenCount:      len(q.QueryTokens),
		IsMixedLanguage: q.HasMixedScript(),
		PartialTokens:   []string{},
		CompoundWords:   []string{},
		SearchVariants:  q.SearchVariants,
	}
	for _, t := range q.QueryTokens {
		if t.IsPartial {
			qa.PartialTokens = append(qa.PartialTokens, t.Original)
			qa.HasCompoundWords = true
			continue
		}
		if len(t.CompoundParts) > 0 {
			qa.CompoundWords = append(qa.CompoundWords, t.Original)
			qa.HasCompoundWords = true
		}
	}
	return qa
}
