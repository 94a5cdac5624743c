// Package localindex provides a bleve-backed search backend for offline use and tests.
// Tokenized fields are analyzed by whitespace only, so the separators written by the
// token processor define the terms, the same way MeiliSearch sees them.
package localindex

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/hyperjump/kham/internal/apperr"
	"github.com/hyperjump/kham/internal/config"
	"github.com/hyperjump/kham/internal/meili"
	"github.com/hyperjump/kham/pkg/utils"
)

const (
	tokenizedAnalyzer = "kham_tokenized"
	sourceField       = "kham_source"
)

type index struct {
	bleve      bleve.Index
	primaryKey string
	settings   meili.Settings
}

// Index is a set of named bleve indexes.
type Index struct {
	path   string
	fields []string
	suffix string
	logger *zap.Logger

	mu      sync.RWMutex
	indexes map[string]*index
	closed  bool
}

// New creates a backend. With an empty cfg.Path every index lives in memory; otherwise each
// index is a directory under cfg.Path and is reopened when it already exists.
func New(cfg config.BleveConfig, proc config.ProcessingConfig, logger *zap.Logger) *Index {
	suffix := proc.TokenizedSuffix
	if suffix == "" {
		suffix = "_tokenized"
	}
	return &Index{
		path:    cfg.Path,
		fields:  proc.Fields,
		suffix:  suffix,
		logger:  utils.OrNop(logger),
		indexes: make(map[string]*index),
	}
}

// Name identifies the backend.
func (x *Index) Name() string { return "bleve" }

// Health fails once the backend is closed.
func (x *Index) Health(ctx context.Context) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return apperr.New(apperr.KindSearchUnavailable, "local index is closed")
	}
	return nil
}

func (x *Index) buildMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(tokenizedAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     whitespace.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register tokenized analyzer: %w", err)
	}

	doc := bleve.NewDocumentMapping()
	for _, f := range x.fields {
		original := bleve.NewTextFieldMapping()
		original.Analyzer = standard.Name
		doc.AddFieldMappingsAt(f, original)

		tokenized := bleve.NewTextFieldMapping()
		tokenized.Analyzer = tokenizedAnalyzer
		tokenized.IncludeTermVectors = true
		doc.AddFieldMappingsAt(f+x.suffix, tokenized)
	}
	source := bleve.NewTextFieldMapping()
	source.Index = false
	source.Store = true
	source.IncludeInAll = false
	doc.AddFieldMappingsAt(sourceField, source)

	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im, nil
}

// GetIndex reports whether uid exists, opening it from disk if needed.
func (x *Index) GetIndex(ctx context.Context, uid string) (meili.IndexLookup, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return meili.IndexLookup{}, apperr.New(apperr.KindSearchUnavailable, "local index is closed")
	}
	if idx, ok := x.indexes[uid]; ok {
		return meili.IndexLookup{Status: meili.IndexExists, Index: &meili.Index{UID: uid, PrimaryKey: idx.primaryKey}}, nil
	}
	if x.path == "" {
		return meili.IndexLookup{Status: meili.IndexNotFound}, nil
	}
	dir := filepath.Join(x.path, uid)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return meili.IndexLookup{Status: meili.IndexNotFound}, nil
		}
		return meili.IndexLookup{}, apperr.Wrap(apperr.KindInternal, err, "stat index directory")
	}
	b, err := bleve.Open(dir)
	if err != nil {
		return meili.IndexLookup{}, apperr.Wrap(apperr.KindInternal, err, "failed to open bleve index")
	}
	x.indexes[uid] = &index{bleve: b}
	return meili.IndexLookup{Status: meili.IndexExists, Index: &meili.Index{UID: uid}}, nil
}

// EnsureIndex creates uid when it does not exist and reports whether it was created.
func (x *Index) EnsureIndex(ctx context.Context, uid, primaryKey string) (bool, error) {
	lookup, err := x.GetIndex(ctx, uid)
	if err != nil {
		return false, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if lookup.Status == meili.IndexExists {
		if idx := x.indexes[uid]; idx != nil && idx.primaryKey == "" {
			idx.primaryKey = primaryKey
		}
		return false, nil
	}
	im, err := x.buildMapping()
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, err, "build index mapping")
	}
	var b bleve.Index
	if x.path == "" {
		b, err = bleve.NewMemOnly(im)
	} else {
		if err = os.MkdirAll(x.path, 0o755); err == nil {
			b, err = bleve.New(filepath.Join(x.path, uid), im)
		}
	}
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, err, "failed to create bleve index")
	}
	x.indexes[uid] = &index{bleve: b, primaryKey: primaryKey}
	x.logger.Info("created local index", zap.String("index", uid))
	return true, nil
}

// ApplySettings records the searchable attributes used by Search.
func (x *Index) ApplySettings(ctx context.Context, uid string, s meili.Settings) error {
	idx, err := x.get(uid)
	if err != nil {
		return err
	}
	x.mu.Lock()
	idx.settings = s
	x.mu.Unlock()
	return nil
}

// IndexDocuments adds or replaces documents keyed by primaryKey.
func (x *Index) IndexDocuments(ctx context.Context, uid, primaryKey string, docs []map[string]any) error {
	if len(docs) == 0 {
		return nil
	}
	idx, err := x.get(uid)
	if err != nil {
		return err
	}
	if primaryKey == "" {
		primaryKey = idx.primaryKey
	}
	batch := idx.bleve.NewBatch()
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return apperr.Wrap(apperr.KindTimeout, err, "indexing cancelled")
		}
		id, ok := docID(doc[primaryKey])
		if !ok {
			return apperr.Newf(apperr.KindInvalidInput, "document %d has no usable %q", i, primaryKey)
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return apperr.Wrap(apperr.KindInvalidInput, err, fmt.Sprintf("encode document %s", id))
		}
		fields := make(map[string]any, len(doc)+1)
		for k, v := range doc {
			fields[k] = v
		}
		fields[sourceField] = string(raw)
		if err := batch.Index(id, fields); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "batch index")
		}
	}
	if err := idx.bleve.Batch(batch); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "failed to index batch")
	}
	return nil
}

// Search runs q against the searchable attributes. Any query term may match, and the last
// term also matches as a prefix of tokenized terms. Hits carry the stored document plus
// a "_score".
func (x *Index) Search(ctx context.Context, uid string, req meili.SearchRequest) (*meili.SearchResponse, error) {
	idx, err := x.get(uid)
	if err != nil {
		return nil, err
	}
	x.mu.RLock()
	attrs := req.AttributesToSearchOn
	if len(attrs) == 0 {
		attrs = idx.settings.SearchableAttributes
	}
	x.mu.RUnlock()
	if len(attrs) == 0 {
		attrs = x.defaultAttributes()
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	resp := &meili.SearchResponse{Hits: []map[string]any{}, Query: req.Query, Limit: limit, Offset: req.Offset}
	q := x.buildQuery(req.Query, attrs)
	if q == nil {
		return resp, nil
	}

	sr := bleve.NewSearchRequestOptions(q, limit, req.Offset, false)
	sr.Fields = []string{sourceField}
	res, err := idx.bleve.SearchInContext(ctx, sr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.KindTimeout, err, "search cancelled")
		}
		return nil, apperr.Wrap(apperr.KindSearchEngine, err, "bleve search failed")
	}
	for _, hit := range res.Hits {
		doc := map[string]any{}
		if raw, ok := hit.Fields[sourceField].(string); ok {
			dec := json.NewDecoder(strings.NewReader(raw))
			dec.UseNumber()
			if err := dec.Decode(&doc); err != nil {
				x.logger.Warn("stored document is not valid JSON", zap.String("id", hit.ID), zap.Error(err))
			}
		}
		doc["_score"] = hit.Score
		resp.Hits = append(resp.Hits, doc)
	}
	resp.EstimatedTotalHits = int64(res.Total)
	resp.ProcessingTimeMs = res.Took.Milliseconds()
	return resp, nil
}

func (x *Index) buildQuery(text string, attrs []string) blevequery.Query {
	terms := strings.Fields(strings.ToLower(text))
	if len(terms) == 0 {
		return nil
	}
	last := terms[len(terms)-1]
	var qs []blevequery.Query
	for _, field := range attrs {
		mq := bleve.NewMatchQuery(text)
		mq.SetField(field)
		qs = append(qs, mq)
		if strings.HasSuffix(field, x.suffix) && utils.RuneLen(last) > 1 {
			pq := bleve.NewPrefixQuery(last)
			pq.SetField(field)
			pq.SetBoost(0.5)
			qs = append(qs, pq)
		}
	}
	return bleve.NewDisjunctionQuery(qs...)
}

func (x *Index) defaultAttributes() []string {
	out := make([]string, 0, 2*len(x.fields))
	for _, f := range x.fields {
		out = append(out, f+x.suffix)
	}
	return append(out, x.fields...)
}

// DocCount returns the number of documents in uid.
func (x *Index) DocCount(uid string) (uint64, error) {
	idx, err := x.get(uid)
	if err != nil {
		return 0, err
	}
	return idx.bleve.DocCount()
}

// Close closes every open index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	var firstErr error
	for uid, idx := range x.indexes {
		if err := idx.bleve.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close index %s: %w", uid, err)
		}
	}
	x.indexes = map[string]*index{}
	x.closed = true
	return firstErr
}

func (x *Index) get(uid string) (*index, error) {
	x.mu.RLock()
	idx, ok := x.indexes[uid]
	closed := x.closed
	x.mu.RUnlock()
	if closed {
		return nil, apperr.New(apperr.KindSearchUnavailable, "local index is closed")
	}
	if ok {
		return idx, nil
	}
	lookup, err := x.GetIndex(context.Background(), uid)
	if err != nil {
		return nil, err
	}
	if lookup.Status != meili.IndexExists {
		return nil, &apperr.Error{Kind: apperr.KindNotFound, Message: fmt.Sprintf("index %q not found", uid), Code: "index_not_found"}
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.indexes[uid], nil
}

func docID(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case json.Number:
		return id.String(), true
	case float64:
		if id != float64(int64(id)) {
			return "", false
		}
		return strconv.FormatInt(int64(id), 10), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	}
	return "", false
}
