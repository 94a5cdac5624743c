package search

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/kham/internal/apperr"
	"github.com/hyperjump/kham/internal/dictionary"
)

// DictionaryInfo describes the active dictionary.
type DictionaryInfo struct {
	dictionary.Stats
	CustomWords []string `json:"custom_words"`
}

// DictionaryChange is the outcome of an admin change.
type DictionaryChange struct {
	Changed int              `json:"changed"`
	Stats   dictionary.Stats `json:"stats"`
}

// NewDictionaryInfo describes snap.
func NewDictionaryInfo(snap *dictionary.Snapshot) DictionaryInfo {
	words := snap.CustomWords()
	if words == nil {
		words = []string{}
	}
	return DictionaryInfo{Stats: snap.Stats(), CustomWords: words}
}

// Dictionary describes the active dictionary.
func (s *Service) Dictionary() DictionaryInfo {
	return NewDictionaryInfo(s.Segmenter().Dictionary().Current())
}

// AddWords merges words into the custom vocabulary.
func (s *Service) AddWords(ctx context.Context, words []string) (*DictionaryChange, error) {
	if len(words) == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "words must not be empty")
	}
	snap, n := s.Segmenter().Dictionary().Add(words)
	return s.afterChange(ctx, snap, n, "added")
}

// RemoveWords removes words from the custom vocabulary. Base dictionary words stay.
func (s *Service) RemoveWords(ctx context.Context, words []string) (*DictionaryChange, error) {
	if len(words) == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "words must not be empty")
	}
	snap, n := s.Segmenter().Dictionary().Remove(words)
	return s.afterChange(ctx, snap, n, "removed")
}

// afterChange persists the custom vocabulary and drops cached queries. Cache keys carry
// the dictionary version, so invalidation only reclaims space.
func (s *Service) afterChange(ctx context.Context, snap *dictionary.Snapshot, n int, verb string) (*DictionaryChange, error) {
	change := &DictionaryChange{Changed: n, Stats: snap.Stats()}
	if n == 0 {
		return change, nil
	}
	if s.dictPath != "" {
		if err := dictionary.SaveCustom(s.dictPath, snap.CustomWords()); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, err, "persist custom dictionary")
		}
	}
	if err := s.InvalidateCache(ctx); err != nil {
		s.logger.Warn("failed to invalidate query cache", zap.Error(err))
	}
	s.logger.Info("dictionary updated", zap.String("change", verb), zap.Int("words", n),
		zap.Uint64("version", snap.Version()))
	return change, nil
}

// InvalidateCache drops every cached query and search.
func (s *Service) InvalidateCache(ctx context.Context) error {
	return s.loader.Cache().Invalidate(ctx)
}
