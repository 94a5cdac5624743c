package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kham/internal/analytics"
	"github.com/hyperjump/kham/internal/apperr"
	"github.com/hyperjump/kham/internal/meili"
	"github.com/hyperjump/kham/internal/tasks"
	"github.com/hyperjump/kham/internal/tokenproc"
	"github.com/hyperjump/kham/pkg/utils"
)

// TaskIndexDocuments is the task type of background ingestion.
const TaskIndexDocuments = "index_documents"

// SetupResult describes an index after setup.
type SetupResult struct {
	Index    string         `json:"index"`
	Created  bool           `json:"created"`
	Backend  string         `json:"backend"`
	Settings meili.Settings `json:"settings"`
}

// IndexResult is the outcome of a synchronous ingestion.
type IndexResult struct {
	Index   string                 `json:"index"`
	Indexed int                    `json:"indexed"`
	Batch   *tokenproc.BatchResult `json:"batch"`
}

// Settings returns the index settings the token processor expects: tokenized fields are
// searchable ahead of the originals, and the separator and non-separator tokens match the
// ones inserted at index time.
func (s *Service) Settings() meili.Settings {
	st := meili.Settings{
		SearchableAttributes: s.tokens.SearchableAttributes(),
		NonSeparatorTokens:   s.tokens.NonSeparatorTokens(),
	}
	if sep := s.tokens.Separator(); !utils.IsBlank(sep) {
		st.SeparatorTokens = []string{sep}
	}
	return st
}

// SetupIndex creates uid if it is missing and applies Settings.
func (s *Service) SetupIndex(ctx context.Context, uid string) (*SetupResult, error) {
	uid = s.indexOrDefault(uid)
	created, err := s.backend.EnsureIndex(ctx, uid, s.pk)
	if err != nil {
		return nil, err
	}
	settings := s.Settings()
	if err := s.backend.ApplySettings(ctx, uid, settings); err != nil {
		return nil, err
	}
	s.logger.Info("index ready", zap.String("index", uid), zap.Bool("created", created),
		zap.String("backend", s.backend.Name()))
	return &SetupResult{Index: uid, Created: created, Backend: s.backend.Name(), Settings: settings}, nil
}

// IndexDocuments tokenizes docs and adds the successful ones to uid. Per-document failures
// are reported in the batch; only backend failures and cancellation return an error.
func (s *Service) IndexDocuments(ctx context.Context, uid string, docs []map[string]any, force bool) (*IndexResult, error) {
	started := time.Now()
	uid = s.indexOrDefault(uid)
	batch, err := s.ProcessDocuments(ctx, docs, force)
	if err != nil {
		return nil, err
	}
	indexable := batch.IndexableDocuments()
	if len(indexable) > 0 {
		if err := s.ensureReady(ctx, uid); err != nil {
			return nil, err
		}
		if err := s.backend.IndexDocuments(ctx, uid, s.pk, indexable); err != nil {
			s.tracker.Track(analytics.Event{Type: analytics.EventIndex, Failed: true,
				LatencyMs: utils.Millis(time.Since(started).Nanoseconds())})
			return nil, err
		}
	}
	if batch.FailedCount > 0 {
		s.logger.Warn("some documents failed processing", zap.String("index", uid),
			zap.Int("failed", batch.FailedCount), zap.Int("total", batch.Total))
	}
	s.tracker.Track(analytics.Event{
		Type:      analytics.EventIndex,
		Documents: len(indexable),
		LatencyMs: utils.Millis(time.Since(started).Nanoseconds()),
	})
	return &IndexResult{Index: uid, Indexed: len(indexable), Batch: batch}, nil
}

// SubmitIndexDocuments runs IndexDocuments as a background task.
func (s *Service) SubmitIndexDocuments(ctx context.Context, uid string, docs []map[string]any, force bool) (*tasks.Task, error) {
	if s.tasks == nil {
		return nil, apperr.New(apperr.KindInternal, "background tasks are not enabled")
	}
	uid = s.indexOrDefault(uid)
	return s.tasks.Submit(ctx, TaskIndexDocuments, func(ctx context.Context) (map[string]any, error) {
		details := map[string]any{"index": uid, "total": len(docs)}
		res, err := s.IndexDocuments(ctx, uid, docs, force)
		if err != nil {
			return details, err
		}
		details["indexed"] = res.Indexed
		details["processed_count"] = res.Batch.ProcessedCount
		details["failed_count"] = res.Batch.FailedCount
		details["skipped_count"] = res.Batch.SkippedCount
		if len(res.Batch.Errors) > 0 {
			details["errors"] = res.Batch.Errors
		}
		return details, nil
	})
}

// WaitTask blocks until a task finishes.
func (s *Service) WaitTask(ctx context.Context, id string) (*tasks.Task, error) {
	if s.tasks == nil {
		return nil, apperr.New(apperr.KindInternal, "background tasks are not enabled")
	}
	return s.tasks.Wait(ctx, id, s.pollEvery)
}

// ensureReady sets uid up only when it does not exist yet.
func (s *Service) ensureReady(ctx context.Context, uid string) error {
	lookup, err := s.backend.GetIndex(ctx, uid)
	if err != nil {
		return err
	}
	switch lookup.Status {
	case meili.IndexExists:
		return nil
	case meili.IndexNotFound:
		_, err := s.SetupIndex(ctx, uid)
		return err
	default:
		return apperr.Newf(apperr.KindSearchEngine, "index %s: unknown status", uid)
	}
}

func (s *Service) indexOrDefault(uid string) string {
	if uid == "" {
		return s.index
	}
	return uid
}
