package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kham/internal/analytics"
	"github.com/hyperjump/kham/internal/cache"
	"github.com/hyperjump/kham/internal/config"
	"github.com/hyperjump/kham/internal/dictionary"
	"github.com/hyperjump/kham/internal/enhance"
	"github.com/hyperjump/kham/internal/localindex"
	"github.com/hyperjump/kham/internal/meili"
	"github.com/hyperjump/kham/internal/metrics"
	"github.com/hyperjump/kham/internal/query"
	"github.com/hyperjump/kham/internal/search"
	"github.com/hyperjump/kham/internal/segment"
	"github.com/hyperjump/kham/internal/server"
	"github.com/hyperjump/kham/internal/tasks"
	"github.com/hyperjump/kham/internal/tokenproc"
	"github.com/hyperjump/kham/pkg/utils"
)

// Core is the tokenization stack shared by the server and the offline commands.
type Core struct {
	Dictionary *dictionary.Store
	Segmenter  *segment.Segmenter
	Queries    *query.Processor
}

// newCore loads the dictionaries and builds the segmenter and query processor.
// m may be nil.
func newCore(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Core, error) {
	logger = utils.OrNop(logger)
	base, err := dictionary.LoadBase(cfg.Tokenizer.BaseDictionaryPath)
	if err != nil {
		return nil, err
	}
	custom, err := dictionary.LoadCustom(cfg.Tokenizer.CustomDictionaryPath)
	if err != nil {
		return nil, err
	}
	store := dictionary.NewStore(base, custom)

	opts := []segment.Option{segment.WithLogger(logger)}
	if m != nil {
		opts = append(opts, segment.WithRecorder(m))
	}
	seg, err := segment.New(store, cfg.Tokenizer, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize segmenter: %w", err)
	}
	qp := query.New(seg, cfg.Query, logger)
	if m != nil {
		qp.SetRecorder(m)
	}
	return &Core{Dictionary: store, Segmenter: seg, Queries: qp}, nil
}

// App holds the initialized services of a running kham server.
type App struct {
	*Core
	Config    *config.Config
	Metrics   *metrics.Metrics
	Analytics *analytics.Collector
	Service   *search.Service
	Server    *server.Server

	closers []func() error
	logger  *zap.Logger
}

// Close releases everything NewApp opened, last opened first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("shutdown step failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) onClose(fn func() error) { a.closers = append(a.closers, fn) }

// NewApp wires the configured backend, cache, task queue, analytics and HTTP server.
// Background workers run until ctx ends or Close is called. On error, whatever was
// already opened is closed.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	logger = utils.OrNop(logger)
	app := &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	if cfg.Metrics.Enabled {
		app.Metrics = metrics.New()
	}
	m := app.Metrics

	core, err := newCore(cfg, logger, m)
	if err != nil {
		return nil, err
	}
	app.Core = core
	if m != nil {
		m.SetDictionaryWords(core.Dictionary.Current().Stats().WordCount)
	}

	tokens := tokenproc.New(core.Segmenter, cfg.Processing, logger)
	enhancer := enhance.New(core.Queries, cfg.Enhance, cfg.Processing.TokenizedSuffix, logger)
	if m != nil {
		enhancer.SetRecorder(m)
	}

	var backend search.Backend
	switch cfg.Backend {
	case config.BackendBleve:
		idx := localindex.New(cfg.Bleve, cfg.Processing, logger)
		app.onClose(idx.Close)
		backend = idx
	default:
		opts := []meili.Option{meili.WithLogger(logger)}
		if m != nil {
			opts = append(opts, meili.WithRecorder(m))
		}
		backend = meili.New(cfg.MeiliSearch, opts...)
	}
	logger.Info("search backend initialized", zap.String("backend", backend.Name()))

	c, err := cache.New(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	app.onClose(c.Close)

	store, err := tasks.NewStore(cfg.Tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize task store: %w", err)
	}
	app.onClose(store.Close)
	queue := tasks.NewQueue(store, cfg.Tasks, logger)
	if m != nil {
		queue.SetRecorder(m)
	}
	queue.Start(ctx)
	app.onClose(func() error { queue.Stop(); return nil })

	deps := search.Deps{
		Backend:              backend,
		Tokens:               tokens,
		Queries:              core.Queries,
		Enhancer:             enhancer,
		Cache:                c,
		Tasks:                queue,
		CustomDictionaryPath: cfg.Tokenizer.CustomDictionaryPath,
	}
	if m != nil {
		deps.Recorder = m
	}
	var agg *analytics.Aggregator
	if cfg.Analytics.Enabled {
		agg = analytics.NewAggregator(cfg.Analytics)
		var sink analytics.Sink
		if cfg.Analytics.Kafka.Enabled {
			sink = analytics.NewKafkaSink(cfg.Analytics.Kafka)
			logger.Info("publishing analytics events to kafka",
				zap.Strings("brokers", cfg.Analytics.Kafka.Brokers),
				zap.String("topic", cfg.Analytics.Kafka.Topic))
		}
		app.Analytics = analytics.NewCollector(agg, sink, cfg.Analytics.BufferSize, logger)
		app.Analytics.Start(ctx)
		app.onClose(app.Analytics.Close)
		deps.Analytics = app.Analytics
	}

	app.Service = search.New(deps, cfg.MeiliSearch, logger)

	if cfg.Tokenizer.WatchDictionary && cfg.Tokenizer.CustomDictionaryPath != "" {
		svc := app.Service
		reloader := dictionary.NewReloader(cfg.Tokenizer.CustomDictionaryPath, core.Dictionary,
			dictionary.WithLogger(logger),
			dictionary.OnReload(func(snap *dictionary.Snapshot) {
				if err := svc.InvalidateCache(context.Background()); err != nil {
					logger.Warn("cache invalidation after reload failed", zap.Error(err))
				}
				if m != nil {
					m.SetDictionaryWords(snap.Stats().WordCount)
				}
			}))
		if err := reloader.Start(ctx); err != nil {
			logger.Warn("dictionary watch disabled", zap.String("path", cfg.Tokenizer.CustomDictionaryPath), zap.Error(err))
		} else {
			app.onClose(func() error { reloader.Stop(); return nil })
		}
	}

	app.Server = server.NewServer(app.Service, agg, m, cfg.Server, logger)
	return app, nil
}
