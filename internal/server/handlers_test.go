package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kham/internal/analytics"
	"github.com/hyperjump/kham/internal/config"
	"github.com/hyperjump/kham/internal/dictionary"
	"github.com/hyperjump/kham/internal/enhance"
	"github.com/hyperjump/kham/internal/localindex"
	"github.com/hyperjump/kham/internal/metrics"
	"github.com/hyperjump/kham/internal/query"
	"github.com/hyperjump/kham/internal/search"
	"github.com/hyperjump/kham/internal/segment"
	"github.com/hyperjump/kham/internal/tasks"
	"github.com/hyperjump/kham/internal/tokenproc"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.MeiliSearch.TaskPollInterval = 5 * time.Millisecond
	m := metrics.New()

	store := dictionary.NewStore(dictionary.DefaultBase(), []string{"วากาเมะ", "สลัด"})
	seg, err := segment.New(store, cfg.Tokenizer, segment.WithRecorder(m))
	if err != nil {
		t.Fatal(err)
	}
	qp := query.New(seg, cfg.Query, nil)
	idx := localindex.New(cfg.Bleve, cfg.Processing, nil)
	t.Cleanup(func() { _ = idx.Close() })

	queue := tasks.NewQueue(tasks.NewMemoryStore(), cfg.Tasks, nil)
	queue.Start(context.Background())
	t.Cleanup(queue.Stop)

	agg := analytics.NewAggregator(cfg.Analytics)
	svc := search.New(search.Deps{
		Backend:   idx,
		Tokens:    tokenproc.New(seg, cfg.Processing, nil),
		Queries:   qp,
		Enhancer:  enhance.New(qp, cfg.Enhance, cfg.Processing.TokenizedSuffix, nil),
		Tasks:     queue,
		Analytics: analytics.NewCollector(agg, nil, 0, nil),
		Recorder:  m,
	}, cfg.MeiliSearch, nil)

	srv := NewServer(svc, agg, m, cfg.Server, zap.NewNop())
	return srv, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHandleTokenize(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/tokenize", `{"text":"สาหร่ายวากาเมะ","include_confidence":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", w.Code, w.Body.String())
	}
	var out segment.TokenizationResult
	decodeBody(t, w, &out)
	if got := strings.Join(out.Tokens, "|"); got != "สาหร่าย|วากาเมะ" {
		t.Errorf("tokens: got %s", got)
	}
	if len(out.WordBoundaries) != 2 || out.WordBoundaries[1] != 7 {
		t.Errorf("boundaries: got %v", out.WordBoundaries)
	}
	if len(out.ConfidenceScores) != 2 {
		t.Errorf("confidence_scores: got %v", out.ConfidenceScores)
	}
}

func TestHandleTokenize_EmptyText(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/tokenize", `{"text":""}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]json.RawMessage
	decodeBody(t, w, &out)
	if string(out["tokens"]) != "[]" || string(out["word_boundaries"]) != "[]" {
		t.Errorf("want empty arrays, got tokens=%s boundaries=%s", out["tokens"], out["word_boundaries"])
	}
	if string(out["processing_time_ms"]) != "0" {
		t.Errorf("processing_time_ms: got %s", out["processing_time_ms"])
	}
	if _, ok := out["confidence_scores"]; ok {
		t.Error("confidence_scores should be omitted unless requested")
	}
}

func TestHandleTokenize_InvalidBody(t *testing.T) {
	_, h := newTestServer(t)
	for _, body := range []string{`{"text":`, `{}`, ``} {
		w := do(t, h, http.MethodPost, "/tokenize", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status %d, want 400", body, w.Code)
			continue
		}
		var out errorBody
		decodeBody(t, w, &out)
		if out.Kind != "invalid_input" || out.Error == "" {
			t.Errorf("body %q: error body %+v", body, out)
		}
	}
}

func TestHandleQueryProcess_MixedScript(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/query/process", `{"query":"API การใช้งาน"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", w.Code, w.Body.String())
	}
	var out query.Result
	decodeBody(t, w, &out)
	if !strings.Contains(out.ProcessedQuery, "API") {
		t.Errorf("processed_query lost Latin text: %q", out.ProcessedQuery)
	}
	mixed := false
	for _, tok := range out.QueryTokens {
		if tok.QueryType == query.TypeMixedScript {
			mixed = true
		}
	}
	if !mixed {
		t.Error("expected a mixed_script token")
	}
	found := false
	for _, v := range out.SearchVariants {
		if v == out.ProcessedQuery {
			found = true
		}
	}
	if !found {
		t.Errorf("processed_query %q missing from variants %v", out.ProcessedQuery, out.SearchVariants)
	}
	if out.ProcessingMetadata["cached"] != false {
		t.Errorf("first call should not be cached: %v", out.ProcessingMetadata["cached"])
	}
}

func TestHandleQueryCompound(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/query/compound", `{"query":"วากาเมะ","max_suggestions":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", w.Code, w.Body.String())
	}
	w = do(t, h, http.MethodPost, "/query/compound", `{"query":"x","max_suggestions":-1}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative max_suggestions: status %d", w.Code)
	}
}

func TestHandleEnhance_FlagsOffKeepScores(t *testing.T) {
	_, h := newTestServer(t)
	body := `{
		"search_results": {"hits": [
			{"id": 1, "title": "สาหร่ายวากาเมะ", "_score": 0.42},
			{"id": 2, "title": "ร้านอาหาร", "_score": 3}
		]},
		"original_query": "วากาเมะ",
		"highlight_fields": ["title"],
		"enable_compound_highlighting": false,
		"enable_relevance_boosting": false
	}`
	w := do(t, h, http.MethodPost, "/search/enhance", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", w.Code, w.Body.String())
	}
	var out enhance.Result
	decodeBody(t, w, &out)
	if len(out.Hits) != 2 {
		t.Fatalf("hits: got %d", len(out.Hits))
	}
	want := []float64{0.42, 3}
	for i, hit := range out.Hits {
		if hit.EnhancedScore != want[i] {
			t.Errorf("hit %d: enhanced_score %v, want %v", i, hit.EnhancedScore, want[i])
		}
	}
	spans := out.Hits[0].HighlightSpans["title"]
	if len(spans) != 1 || spans[0].Start != 7 || spans[0].End != 14 || spans[0].HighlightType != enhance.HighlightExact {
		t.Errorf("spans: got %+v", spans)
	}
}

func TestHandleIndexAndSearch(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/indexes/menu/setup", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("setup: status %d body %s", w.Code, w.Body.String())
	}

	docs := `[
		{"id": "1", "title": "สาหร่ายวากาเมะ", "content": "สลัดสาหร่าย"},
		{"id": "2", "title": "ร้านอาหาร"},
		{"title": 5}
	]`
	w = do(t, h, http.MethodPost, "/indexes/menu/documents", docs)
	if w.Code != http.StatusOK {
		t.Fatalf("index: status %d body %s", w.Code, w.Body.String())
	}
	var idx search.IndexResult
	decodeBody(t, w, &idx)
	b := idx.Batch
	if b.ProcessedCount+b.FailedCount+b.SkippedCount != b.Total || b.Total != 3 || b.FailedCount != 1 {
		t.Errorf("batch counts: %+v", b)
	}

	w = do(t, h, http.MethodPost, "/search", `{"query":"วากาเมะ","index":"menu","session_id":"s1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("search: status %d body %s", w.Code, w.Body.String())
	}
	var res search.Response
	decodeBody(t, w, &res)
	if len(res.Hits) == 0 {
		t.Fatal("expected the seaweed document to be found")
	}
	if res.Hits[0].OriginalHit["id"] != "1" {
		t.Errorf("top hit: got %v", res.Hits[0].OriginalHit["id"])
	}
	if len(res.Hits[0].HighlightSpans["title"]) == 0 {
		t.Error("expected a highlight on the original title")
	}

	w = do(t, h, http.MethodGet, "/analytics", "")
	var stats analytics.Stats
	decodeBody(t, w, &stats)
	if stats.TotalSearches != 1 || stats.ActiveSessions != 1 {
		t.Errorf("analytics: searches=%d sessions=%d", stats.TotalSearches, stats.ActiveSessions)
	}
	w = do(t, h, http.MethodPost, "/analytics/reset", "")
	if w.Code != http.StatusOK {
		t.Errorf("reset: status %d", w.Code)
	}
}

func TestHandleIndexDocuments_Async(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/indexes/menu/documents?wait=false", `[{"id":"1","title":"สลัด"}]`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: got %d body %s", w.Code, w.Body.String())
	}
	var out struct {
		Task tasks.Task `json:"task"`
	}
	decodeBody(t, w, &out)
	if out.Task.ID == "" || out.Task.Status != tasks.StatusEnqueued {
		t.Fatalf("task: %+v", out.Task)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		w = do(t, h, http.MethodGet, "/tasks/"+out.Task.ID, "")
		var task tasks.Task
		decodeBody(t, w, &task)
		if task.Status.Done() {
			if task.Status != tasks.StatusSucceeded {
				t.Errorf("task failed: %s", task.Error)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}

	w = do(t, h, http.MethodGet, "/tasks?limit=10", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), out.Task.ID) {
		t.Errorf("list tasks: status %d body %s", w.Code, w.Body.String())
	}
	w = do(t, h, http.MethodGet, "/tasks/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing task: status %d", w.Code)
	}
	w = do(t, h, http.MethodPost, "/indexes/menu/documents?wait=maybe", `[]`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad wait param: status %d", w.Code)
	}
}

func TestHandleProcessDocuments_Idempotent(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/documents/process", `[{"id":"1","title":"สาหร่ายวากาเมะ"}]`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", w.Code, w.Body.String())
	}
	var first tokenproc.BatchResult
	decodeBody(t, w, &first)
	if len(first.Documents) != 1 {
		t.Fatalf("documents: %+v", first)
	}
	again, _ := json.Marshal([]map[string]any{first.Documents[0].Document})
	w = do(t, h, http.MethodPost, "/documents/process", string(again))
	var second tokenproc.BatchResult
	decodeBody(t, w, &second)
	if second.SkippedCount != 1 {
		t.Errorf("expected the tokenized document to be skipped: %+v", second)
	}
	if first.Documents[0].Document["title_tokenized"] != second.Documents[0].Document["title_tokenized"] {
		t.Errorf("tokenized field changed: %v -> %v",
			first.Documents[0].Document["title_tokenized"], second.Documents[0].Document["title_tokenized"])
	}
}

func TestHandleDictionaryWords(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/dictionary/words", `{"words":["ผักสลัด"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("add: status %d body %s", w.Code, w.Body.String())
	}
	var change search.DictionaryChange
	decodeBody(t, w, &change)
	if change.Changed != 1 {
		t.Errorf("changed: got %d", change.Changed)
	}

	w = do(t, h, http.MethodGet, "/dictionary", "")
	if !strings.Contains(w.Body.String(), "ผักสลัด") {
		t.Errorf("dictionary missing added word: %s", w.Body.String())
	}

	w = do(t, h, http.MethodDelete, "/dictionary/words", `{"words":["ผักสลัด"]}`)
	decodeBody(t, w, &change)
	if change.Changed != 1 {
		t.Errorf("removed: got %d", change.Changed)
	}
	w = do(t, h, http.MethodPost, "/dictionary/words", `{"words":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty words: status %d", w.Code)
	}
}

func TestHandleHealthAndStats(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodGet, "/health", "")
	var health map[string]interface{}
	decodeBody(t, w, &health)
	if health["status"] != "ok" || health["backend"] != "bleve" {
		t.Errorf("health: %v", health)
	}

	w = do(t, h, http.MethodGet, "/tokenize/stats", "")
	var stats map[string]interface{}
	decodeBody(t, w, &stats)
	if stats["engine"] != config.EngineMaximal {
		t.Errorf("engine: %v", stats["engine"])
	}

	do(t, h, http.MethodPost, "/tokenize", `{"text":"สลัด"}`)
	w = do(t, h, http.MethodGet, "/metrics", "")
	if !strings.Contains(w.Body.String(), "kham_segmentation_duration_seconds") {
		t.Error("metrics endpoint should expose segmentation histogram")
	}
	if !strings.Contains(w.Body.String(), `route="/tokenize"`) {
		t.Error("metrics endpoint should label requests by route")
	}
}
