package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kham/internal/apperr"
	"github.com/hyperjump/kham/internal/enhance"
	"github.com/hyperjump/kham/internal/query"
	"github.com/hyperjump/kham/internal/search"
)

type tokenizeRequest struct {
	Text              *string `json:"text"`
	IncludeConfidence bool    `json:"include_confidence"`
}

func (s *Server) handleTokenize(compound bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenizeRequest
		if err := decode(w, r, &req); err != nil {
			s.respondError(w, r, err)
			return
		}
		if req.Text == nil {
			s.respondError(w, r, apperr.New(apperr.KindInvalidInput, "text is required"))
			return
		}
		res, err := s.svc.Tokenize(r.Context(), *req.Text, compound, req.IncludeConfidence)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleTokenizeStats(w http.ResponseWriter, r *http.Request) {
	seg := s.svc.Segmenter()
	tp := s.svc.Tokens()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"engine":            seg.EngineName(),
		"fallback_engine":   seg.FallbackName(),
		"keep_whitespace":   seg.KeepWhitespace(),
		"dictionary":        seg.Dictionary().Current().Stats(),
		"separator":         tp.Separator(),
		"non_separators":    tp.NonSeparatorTokens(),
		"fields":            tp.Fields(),
		"searchable_fields": tp.SearchableAttributes(),
		"backend":           s.svc.Backend().Name(),
		"cache":             s.svc.CacheStats(),
	})
}

type queryRequest struct {
	Query *string `json:"query"`
	query.Options
}

func (s *Server) handleQuery(compound bool) http.HandlerFunc {
	mode := query.ModeGeneral
	if compound {
		mode = query.ModeCompound
	}
	return func(w http.ResponseWriter, r *http.Request) {
		req := queryRequest{Options: query.DefaultOptions()}
		if err := decode(w, r, &req); err != nil {
			s.respondError(w, r, err)
			return
		}
		if req.Query == nil {
			s.respondError(w, r, apperr.New(apperr.KindInvalidInput, "query is required"))
			return
		}
		if req.MaxSuggestions < 0 {
			s.respondError(w, r, apperr.New(apperr.KindInvalidInput, "max_suggestions must not be negative"))
			return
		}
		res, cached, err := s.svc.ProcessQuery(r.Context(), *req.Query, req.Options, mode)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		if res.ProcessingMetadata == nil {
			res.ProcessingMetadata = map[string]any{}
		}
		res.ProcessingMetadata["cached"] = cached
		s.respondJSON(w, http.StatusOK, res)
	}
}

type enhanceRequest struct {
	SearchResults struct {
		Hits []map[string]any `json:"hits"`
	} `json:"search_results"`
	OriginalQuery string `json:"original_query"`
	enhance.Options
}

func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	req := enhanceRequest{Options: enhance.Options{
		EnableCompoundHighlighting: true,
		EnableRelevanceBoosting:    true,
	}}
	if err := decode(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.svc.Enhance(r.Context(), req.SearchResults.Hits, req.OriginalQuery, req.Options)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req := search.DefaultRequest()
	if err := decode(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("limit", req.Limit))
	res, err := s.svc.Search(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleSetupIndex(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.SetupIndex(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, res)
}

func (s *Server) handleIndexDocuments(w http.ResponseWriter, r *http.Request) {
	wait, err := boolParam(r, "wait", true)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	force, err := boolParam(r, "force", false)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var docs []map[string]any
	if err := decode(w, r, &docs); err != nil {
		s.respondError(w, r, err)
		return
	}
	uid := chi.URLParam(r, "uid")
	if !wait {
		task, err := s.svc.SubmitIndexDocuments(r.Context(), uid, docs, force)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusAccepted, map[string]interface{}{"task": task})
		return
	}
	res, err := s.svc.IndexDocuments(r.Context(), uid, docs, force)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleProcessDocuments(w http.ResponseWriter, r *http.Request) {
	force, err := boolParam(r, "force", false)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var docs []map[string]any
	if err := decode(w, r, &docs); err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.svc.ProcessDocuments(r.Context(), docs, force)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := s.svc.Tasks()
	if q == nil {
		s.respondError(w, r, apperr.New(apperr.KindNotFound, "background tasks are not enabled"))
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, r, apperr.New(apperr.KindInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	ts, err := q.List(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"tasks": ts})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	q := s.svc.Tasks()
	if q == nil {
		s.respondError(w, r, apperr.New(apperr.KindNotFound, "background tasks are not enabled"))
		return
	}
	t, err := q.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, t)
}

type wordsRequest struct {
	Words []string `json:"words"`
}

func (s *Server) handleDictionary(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.svc.Dictionary())
}

func (s *Server) handleAddWords(w http.ResponseWriter, r *http.Request) {
	var req wordsRequest
	if err := decode(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.svc.AddWords(r.Context(), req.Words)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleRemoveWords(w http.ResponseWriter, r *http.Request) {
	var req wordsRequest
	if err := decode(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.svc.RemoveWords(r.Context(), req.Words)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if s.analytics == nil {
		s.respondError(w, r, apperr.New(apperr.KindNotFound, "analytics are not enabled"))
		return
	}
	s.respondJSON(w, http.StatusOK, s.analytics.Stats())
}

func (s *Server) handleAnalyticsReset(w http.ResponseWriter, r *http.Request) {
	if s.analytics == nil {
		s.respondError(w, r, apperr.New(apperr.KindNotFound, "analytics are not enabled"))
		return
	}
	s.analytics.Reset()
	s.logger.Info("analytics reset")
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleHealth reports ok when the backend answers and degraded otherwise. Tokenization
// endpoints keep working without the backend, so a degraded service still returns 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":             "ok",
		"backend":            s.svc.Backend().Name(),
		"backend_status":     "available",
		"dictionary_version": s.svc.Segmenter().Dictionary().Current().Version(),
	}
	if err := s.svc.Health(r.Context()); err != nil {
		resp["status"] = "degraded"
		resp["backend_status"] = string(apperr.KindOf(err))
		resp["backend_error"] = apperr.Message(err)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func boolParam(r *http.Request, name string, def bool) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, apperr.Newf(apperr.KindInvalidInput, "%s must be true or false", name)
	}
	return b, nil
}
