package search

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kham/internal/analytics"
	"github.com/hyperjump/kham/internal/apperr"
	"github.com/hyperjump/kham/internal/cache"
	"github.com/hyperjump/kham/internal/enhance"
	"github.com/hyperjump/kham/internal/meili"
	"github.com/hyperjump/kham/internal/query"
	"github.com/hyperjump/kham/pkg/utils"
)

const (
	defaultLimit = 20
	maxLimit     = 1000
)

// Request is a full-pipeline search.
type Request struct {
	Query                      string   `json:"query"`
	Index                      string   `json:"index,omitempty"`
	Limit                      int      `json:"limit"`
	Offset                     int      `json:"offset"`
	Filter                     string   `json:"filter,omitempty"`
	HighlightFields            []string `json:"highlight_fields,omitempty"`
	MultiVariant               bool     `json:"multi_variant"`
	CompoundMode               bool     `json:"compound_mode"`
	EnablePartialMatching      bool     `json:"enable_partial_matching"`
	EnableQueryExpansion       bool     `json:"enable_query_expansion"`
	EnableCompoundHighlighting bool     `json:"enable_compound_highlighting"`
	EnableRelevanceBoosting    bool     `json:"enable_relevance_boosting"`
	SessionID                  string   `json:"session_id,omitempty"`
}

// DefaultRequest returns a request with every enhancement enabled. Callers decode onto it
// so omitted flags keep their defaults.
func DefaultRequest() Request {
	return Request{
		Limit:                      defaultLimit,
		MultiVariant:               true,
		EnablePartialMatching:      true,
		EnableQueryExpansion:       true,
		EnableCompoundHighlighting: true,
		EnableRelevanceBoosting:    true,
	}
}

// Response is the result of Search.
type Response struct {
	Index               string                `json:"index"`
	Hits                []enhance.EnhancedHit `json:"hits"`
	EstimatedTotalHits  int64                 `json:"estimated_total_hits"`
	Offset              int                   `json:"offset"`
	Limit               int                   `json:"limit"`
	Variants            []string              `json:"variants"`
	QueryAnalysis       enhance.QueryAnalysis `json:"query_analysis"`
	EnhancementMetadata enhance.Metadata      `json:"enhancement_metadata"`
	CacheHit            bool                  `json:"cache_hit"`
	ProcessingTimeMs    float64               `json:"processing_time_ms"`
}

// Search processes the query, searches every variant concurrently, merges the hits by
// primary key keeping the best score, enhances them and returns the requested page.
func (s *Service) Search(ctx context.Context, req Request) (resp *Response, err error) {
	started := time.Now()
	if req.Offset < 0 || req.Limit < 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "offset and limit must not be negative")
	}
	if req.Limit == 0 {
		req.Limit = defaultLimit
	}
	if req.Limit > maxLimit {
		return nil, apperr.Newf(apperr.KindInvalidInput, "limit must be at most %d", maxLimit)
	}
	uid := s.indexOrDefault(req.Index)
	mode := query.ModeGeneral
	if req.CompoundMode {
		mode = query.ModeCompound
	}

	var (
		q        *query.Result
		cacheHit bool
		total    int64
	)
	defer func() {
		elapsed := time.Since(started)
		ev := analytics.Event{
			Type:      analytics.EventSearch,
			Query:     req.Query,
			Mode:      string(mode),
			SessionID: req.SessionID,
			TotalHits: int(total),
			LatencyMs: utils.Millis(elapsed.Nanoseconds()),
			CacheHit:  cacheHit,
			Failed:    err != nil,
		}
		if q != nil {
			ev.Variants = len(q.SearchVariants)
			for _, t := range q.QueryTokens {
				if t.IsPartial {
					ev.PartialTokens++
				}
			}
		}
		s.tracker.Track(ev)
		if s.recorder != nil && err == nil {
			s.recorder.ObserveSearch(cacheHit, len(resp.Hits), elapsed.Seconds())
		}
	}()

	q, err = s.queries.Process(req.Query, query.Options{
		EnablePartialMatching: req.EnablePartialMatching,
		EnableQueryExpansion:  req.EnableQueryExpansion,
	}, mode)
	if err != nil {
		return nil, err
	}

	resp = &Response{
		Index:    uid,
		Hits:     []enhance.EnhancedHit{},
		Offset:   req.Offset,
		Limit:    req.Limit,
		Variants: q.SearchVariants,
	}
	if len(q.SearchVariants) == 0 {
		resp.ProcessingTimeMs = utils.Millis(time.Since(started).Nanoseconds())
		return resp, nil
	}

	variants := q.SearchVariants
	if !req.MultiVariant {
		variants = []string{q.ProcessedQuery}
	}
	resp.Variants = variants

	var set candidateSet
	set, cacheHit, err = s.candidates(ctx, uid, variants, req.Offset+req.Limit, req.Filter)
	if err != nil {
		return nil, err
	}
	total = set.EstimatedTotal

	enhanced, err := s.enhancer.EnhanceWithQuery(ctx, set.Hits, q, enhance.Options{
		HighlightFields:            req.HighlightFields,
		EnableCompoundHighlighting: req.EnableCompoundHighlighting,
		EnableRelevanceBoosting:    req.EnableRelevanceBoosting,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTimeout, err, "search cancelled")
	}

	resp.EstimatedTotalHits = total
	resp.Hits = page(enhanced.Hits, req.Offset, req.Limit)
	resp.QueryAnalysis = enhanced.QueryAnalysis
	resp.EnhancementMetadata = enhanced.EnhancementMetadata
	resp.CacheHit = cacheHit
	resp.ProcessingTimeMs = utils.Millis(time.Since(started).Nanoseconds())
	return resp, nil
}

// candidateSet is the merged, capped hit list of one multi-variant search.
// EstimatedTotal is the backend's estimate of all matches, not len(Hits).
type candidateSet struct {
	Hits           []map[string]any `json:"hits"`
	EstimatedTotal int64            `json:"estimated_total"`
}

// candidates returns up to n merged hits for variants. The merged list is cached per
// dictionary version so a dictionary change never serves hits for stale variants.
func (s *Service) candidates(ctx context.Context, uid string, variants []string, n int, filter string) (candidateSet, bool, error) {
	version := s.Segmenter().Dictionary().Current().Version()
	key := cache.Key("search", uid, strconv.FormatUint(version, 10), strconv.Itoa(n), filter,
		strings.Join(variants, "\x1e"))
	raw, cached, err := s.loader.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		set, err := s.fanOut(ctx, uid, variants, n, filter)
		if err != nil {
			return nil, err
		}
		return json.Marshal(set)
	})
	if err != nil {
		if ctx.Err() != nil {
			return candidateSet{}, false, apperr.Wrap(apperr.KindTimeout, ctx.Err(), "search cancelled")
		}
		return candidateSet{}, false, err
	}
	var set candidateSet
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&set); err != nil {
		return candidateSet{}, false, apperr.Wrap(apperr.KindInternal, err, "decode cached hits")
	}
	return set, cached, nil
}

// fanOut runs one backend search per variant. The first failure cancels the others.
// The estimate is the largest per-variant estimate, never less than the merged count.
func (s *Service) fanOut(ctx context.Context, uid string, variants []string, n int, filter string) (candidateSet, error) {
	results := make([][]map[string]any, len(variants))
	estimates := make([]int64, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range variants {
		g.Go(func() error {
			res, err := s.backend.Search(gctx, uid, meili.SearchRequest{
				Query:            v,
				Limit:            n,
				Filter:           filter,
				ShowRankingScore: true,
			})
			if err != nil {
				return err
			}
			results[i] = res.Hits
			estimates[i] = res.EstimatedTotalHits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return candidateSet{}, apperr.Wrap(apperr.KindTimeout, ctx.Err(), "search cancelled")
		}
		return candidateSet{}, err
	}
	merged := mergeHits(results, s.pk, s.enhancer.BaseScore)
	estimate := int64(len(merged))
	for _, e := range estimates {
		estimate = max(estimate, e)
	}
	s.logger.Debug("variant search finished", zap.String("index", uid),
		zap.Int("variants", len(variants)), zap.Int("hits", len(merged)))
	if len(merged) > n {
		merged = merged[:n]
	}
	return candidateSet{Hits: merged, EstimatedTotal: estimate}, nil
}

func page(hits []enhance.EnhancedHit, offset, limit int) []enhance.EnhancedHit {
	if offset >= len(hits) {
		return []enhance.EnhancedHit{}
	}
	end := offset + limit
	if end > len(hits) {
		end = len(hits)
	}
	return hits[offset:end]
}
