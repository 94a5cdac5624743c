// Package search composes the tokenization core with a search backend: index setup and
// ingestion, multi-variant search with enhancement, and the dictionary admin operations.
package search

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kham/internal/analytics"
	"github.com/hyperjump/kham/internal/apperr"
	"github.com/hyperjump/kham/internal/cache"
	"github.com/hyperjump/kham/internal/config"
	"github.com/hyperjump/kham/internal/enhance"
	"github.com/hyperjump/kham/internal/query"
	"github.com/hyperjump/kham/internal/segment"
	"github.com/hyperjump/kham/internal/tasks"
	"github.com/hyperjump/kham/internal/tokenproc"
	"github.com/hyperjump/kham/pkg/utils"
)

// Recorder receives end-to-end search observations.
type Recorder interface {
	ObserveSearch(cacheHit bool, hits int, seconds float64)
}

// Deps are the collaborators of a Service. Backend, Tokens, Queries and Enhancer are
// required; the rest may be nil.
type Deps struct {
	Backend   Backend
	Tokens    *tokenproc.Processor
	Queries   *query.Processor
	Enhancer  *enhance.Enhancer
	Cache     cache.Cache
	Tasks     *tasks.Queue
	Analytics analytics.Tracker
	Recorder  Recorder
	// CustomDictionaryPath receives the custom vocabulary after admin changes.
	CustomDictionaryPath string
}

// Service runs the ingestion and search pipelines.
type Service struct {
	backend   Backend
	tokens    *tokenproc.Processor
	queries   *query.Processor
	enhancer  *enhance.Enhancer
	loader    *cache.Loader
	tasks     *tasks.Queue
	tracker   analytics.Tracker
	recorder  Recorder
	dictPath  string
	index     string
	pk        string
	pollEvery time.Duration
	logger    *zap.Logger
}

// New creates a Service. cfg supplies the default index, primary key and task polling interval.
func New(deps Deps, cfg config.MeiliSearchConfig, logger *zap.Logger) *Service {
	c := deps.Cache
	if c == nil {
		c = cache.Noop{}
	}
	var loaderOpts []cache.LoaderOption
	if cfg.Timeout > 0 {
		loaderOpts = append(loaderOpts, cache.WithComputeTimeout(cfg.Timeout*time.Duration(cfg.MaxRetries+1)))
	}
	var tracker analytics.Tracker = nopTracker{}
	if deps.Analytics != nil {
		tracker = deps.Analytics
	}
	return &Service{
		backend:   deps.Backend,
		tokens:    deps.Tokens,
		queries:   deps.Queries,
		enhancer:  deps.Enhancer,
		loader:    cache.NewLoader(c, loaderOpts...),
		tasks:     deps.Tasks,
		tracker:   tracker,
		recorder:  deps.Recorder,
		dictPath:  deps.CustomDictionaryPath,
		index:     cfg.Index,
		pk:        cfg.PrimaryKey,
		pollEvery: cfg.TaskPollInterval,
		logger:    utils.OrNop(logger).With(zap.String("component", "search")),
	}
}

type nopTracker struct{}

func (nopTracker) Track(analytics.Event) {}

// Backend returns the configured backend.
func (s *Service) Backend() Backend { return s.backend }

// Segmenter returns the segmenter shared by all pipelines.
func (s *Service) Segmenter() *segment.Segmenter { return s.queries.Segmenter() }

// Tokens returns the token processor.
func (s *Service) Tokens() *tokenproc.Processor { return s.tokens }

// Tasks returns the task queue, or nil when indexing is synchronous only.
func (s *Service) Tasks() *tasks.Queue { return s.tasks }

// CacheStats reports the query cache counters.
func (s *Service) CacheStats() cache.Stats { return s.loader.Cache().Stats() }

// Health checks the backend.
func (s *Service) Health(ctx context.Context) error {
	return s.backend.Health(ctx)
}

// Tokenize segments text. Confidence scores are dropped unless includeConfidence is set.
func (s *Service) Tokenize(ctx context.Context, text string, compound, includeConfidence bool) (*segment.TokenizationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindTimeout, err, "tokenize cancelled")
	}
	seg := s.Segmenter()
	var (
		res *segment.TokenizationResult
		err error
	)
	if compound {
		res, err = seg.SegmentCompoundWords(text)
	} else {
		res, err = seg.SegmentText(text)
	}
	if err != nil {
		return nil, err
	}
	if !includeConfidence {
		res.ConfidenceScores = nil
	}
	s.tracker.Track(analytics.Event{
		Type:      analytics.EventTokenize,
		Mode:      modeName(compound),
		LatencyMs: res.ProcessingTimeMs,
	})
	return res, nil
}

// ProcessDocuments runs the token processor over docs without touching the backend.
func (s *Service) ProcessDocuments(ctx context.Context, docs []map[string]any, force bool) (*tokenproc.BatchResult, error) {
	res, err := s.tokens.ProcessBatch(ctx, docs, force)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTimeout, err, "document processing cancelled")
	}
	return res, nil
}

// ProcessQuery processes q. Results are cached per dictionary version and options, so a
// cached result carries only its serialized fields.
func (s *Service) ProcessQuery(ctx context.Context, q string, opts query.Options, mode query.Mode) (*query.Result, bool, error) {
	started := time.Now()
	snap := s.Segmenter().Dictionary().Current()
	key := cache.Key("query", string(mode), strconv.FormatUint(snap.Version(), 10), optionsKey(opts), q)
	raw, cached, err := s.loader.GetOrCompute(ctx, key, func(context.Context) ([]byte, error) {
		res, err := s.queries.Process(q, opts, mode)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	})
	if err != nil {
		return nil, false, err
	}
	var res query.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false, apperr.Wrap(apperr.KindInternal, err, "decode processed query")
	}
	partial := 0
	for _, t := range res.QueryTokens {
		if t.IsPartial {
			partial++
		}
	}
	s.tracker.Track(analytics.Event{
		Type:          analytics.EventQueryProcess,
		Query:         q,
		Mode:          string(mode),
		Variants:      len(res.SearchVariants),
		PartialTokens: partial,
		LatencyMs:     utils.Millis(time.Since(started).Nanoseconds()),
		CacheHit:      cached,
	})
	return &res, cached, nil
}

// Enhance enhances hits produced by a caller's own search.
func (s *Service) Enhance(ctx context.Context, hits []map[string]any, originalQuery string, opts enhance.Options) (*enhance.Result, error) {
	res, err := s.enhancer.Enhance(ctx, hits, originalQuery, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.KindTimeout, err, "enhancement cancelled")
		}
		return nil, err
	}
	s.tracker.Track(analytics.Event{
		Type:      analytics.EventEnhance,
		Query:     originalQuery,
		TotalHits: len(hits),
		LatencyMs: res.EnhancementMetadata.ProcessingTimeMs,
		Failed:    res.EnhancementMetadata.FailedHits > 0,
	})
	return res, nil
}

func optionsKey(o query.Options) string {
	b := func(v bool) string { return strconv.FormatBool(v) }
	return strings.Join([]string{
		b(o.EnablePartialMatching), b(o.EnableQueryExpansion), b(o.IncludeSuggestions),
		strconv.Itoa(o.MaxSuggestions),
	}, ",")
}

func modeName(compound bool) string {
	if compound {
		return string(query.ModeCompound)
	}
	return string(query.ModeGeneral)
}
