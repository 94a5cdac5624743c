// Package segment splits mixed Thai, Latin, digit and punctuation text into word tokens.
package segment

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kham/internal/apperr"
	"github.com/hyperjump/kham/internal/config"
	"github.com/hyperjump/kham/internal/dictionary"
	"github.com/hyperjump/kham/pkg/utils"
)

// Confidence values attached to tokens.
const (
	ConfidenceKnown   = 1.0
	ConfidenceUnknown = 0.5
)

// Mode selects the vocabulary used for Thai runs.
type Mode int

const (
	// ModeStandard keeps dictionary compounds as single tokens.
	ModeStandard Mode = iota
	// ModeCompound splits compounds into their parts.
	ModeCompound
)

// TokenizationResult is the output of one segmentation call. Offsets are character offsets.
type TokenizationResult struct {
	OriginalText     string    `json:"original_text"`
	Tokens           []string  `json:"tokens"`
	WordBoundaries   []int     `json:"word_boundaries"`
	ConfidenceScores []float64 `json:"confidence_scores,omitempty"`
	ProcessingTimeMs float64   `json:"processing_time_ms"`
	Engine           string    `json:"engine"`
	// Known reports, per token, whether it is a vocabulary word or a non-Thai token.
	Known             []bool `json:"-"`
	DictionaryVersion uint64 `json:"-"`
}

// Recorder receives segmentation timings.
type Recorder interface {
	ObserveSegmentation(engine string, seconds float64, fallback bool)
}

// Segmenter runs the primary engine on each Thai run and falls back to the secondary
// engine when the primary fails.
type Segmenter struct {
	store          *dictionary.Store
	primary        Engine
	fallback       Engine
	keepWhitespace bool
	logger         *zap.Logger
	recorder       Recorder
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Segmenter) { s.logger = utils.OrNop(l) }
}

// WithEngines overrides the configured engines.
func WithEngines(primary, fallback Engine) Option {
	return func(s *Segmenter) {
		s.primary = primary
		s.fallback = fallback
	}
}

// WithRecorder sets a timing recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Segmenter) { s.recorder = r }
}

// New creates a Segmenter reading vocabulary from store.
func New(store *dictionary.Store, cfg config.TokenizerConfig, opts ...Option) (*Segmenter, error) {
	s := &Segmenter{
		store:          store,
		keepWhitespace: cfg.KeepWhitespaceOrDefault(),
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	var err error
	if s.primary == nil {
		if s.primary, err = NewEngine(cfg.Engine); err != nil {
			return nil, err
		}
	}
	if s.fallback == nil && cfg.FallbackEngine != "" {
		if s.fallback, err = NewEngine(cfg.FallbackEngine); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// EngineName returns the primary engine name.
func (s *Segmenter) EngineName() string { return s.primary.Name() }

// FallbackName returns the fallback engine name, or "".
func (s *Segmenter) FallbackName() string {
	if s.fallback == nil {
		return ""
	}
	return s.fallback.Name()
}

// KeepWhitespace reports whether whitespace tokens are emitted.
func (s *Segmenter) KeepWhitespace() bool { return s.keepWhitespace }

// Dictionary returns the store backing this segmenter.
func (s *Segmenter) Dictionary() *dictionary.Store { return s.store }

// SegmentText segments text with the full vocabulary.
func (s *Segmenter) SegmentText(text string) (*TokenizationResult, error) {
	return s.Segment(s.store.Current(), text, ModeStandard)
}

// SegmentCompoundWords segments text with compounds split into their parts.
func (s *Segmenter) SegmentCompoundWords(text string) (*TokenizationResult, error) {
	return s.Segment(s.store.Current(), text, ModeCompound)
}

// Segment segments text against a specific snapshot. An empty text yields an empty result
// with zero processing time. If both engines fail on a Thai run the error is of kind
// segmentation_failed.
func (s *Segmenter) Segment(snap *dictionary.Snapshot, text string, mode Mode) (*TokenizationResult, error) {
	res := &TokenizationResult{
		OriginalText:      text,
		Tokens:            []string{},
		WordBoundaries:    []int{},
		ConfidenceScores:  []float64{},
		Engine:            s.primary.Name(),
		DictionaryVersion: snap.Version(),
	}
	if text == "" {
		return res, nil
	}
	started := time.Now()
	vocab := snap.Full()
	if mode == ModeCompound {
		vocab = snap.Split()
	}

	runes := []rune(text)
	usedFallback := false
	for i := 0; i < len(runes); {
		class := runClass(runes[i])
		j := i + 1
		if class != classSingle {
			for j < len(runes) && runClass(runes[j]) == class {
				j++
			}
		}
		switch class {
		case classThai:
			spans, fellBack, err := s.segmentRun(runes[i:j], vocab)
			if err != nil {
				return nil, err
			}
			usedFallback = usedFallback || fellBack
			for _, sp := range spans {
				conf := ConfidenceUnknown
				if sp.Known {
					conf = ConfidenceKnown
				}
				res.add(string(runes[i+sp.Start:i+sp.End]), i+sp.Start, conf, sp.Known)
			}
		case classSpace:
			if s.keepWhitespace {
				res.add(string(runes[i:j]), i, ConfidenceKnown, true)
			}
		default:
			res.add(string(runes[i:j]), i, ConfidenceKnown, true)
		}
		i = j
	}

	if usedFallback && s.fallback != nil {
		res.Engine = s.fallback.Name()
	}
	elapsed := time.Since(started)
	res.ProcessingTimeMs = utils.Millis(elapsed.Nanoseconds())
	if s.recorder != nil {
		s.recorder.ObserveSegmentation(res.Engine, elapsed.Seconds(), usedFallback)
	}
	return res, nil
}

func (r *TokenizationResult) add(tok string, offset int, conf float64, known bool) {
	r.Tokens = append(r.Tokens, tok)
	r.WordBoundaries = append(r.WordBoundaries, offset)
	r.ConfidenceScores = append(r.ConfidenceScores, conf)
	r.Known = append(r.Known, known)
}

// segmentRun tries the primary engine and then the fallback.
func (s *Segmenter) segmentRun(run []rune, vocab *dictionary.Trie) ([]Span, bool, error) {
	spans, err := runEngine(s.primary, run, vocab)
	if err == nil {
		return spans, false, nil
	}
	if s.fallback == nil {
		return nil, false, apperr.Wrap(apperr.KindSegmentation, err, "segmentation engine failed")
	}
	s.logger.Warn("primary segmentation engine failed, using fallback",
		zap.String("engine", s.primary.Name()),
		zap.String("fallback", s.fallback.Name()),
		zap.Error(err))
	spans, ferr := runEngine(s.fallback, run, vocab)
	if ferr != nil {
		return nil, true, apperr.Wrap(apperr.KindSegmentation,
			fmt.Errorf("%s: %v; %s: %w", s.primary.Name(), err, s.fallback.Name(), ferr),
			"all segmentation engines failed")
	}
	return spans, true, nil
}

// runEngine calls e and converts panics and malformed output into errors.
func runEngine(e Engine, run []rune, vocab *dictionary.Trie) (spans []Span, err error) {
	defer func() {
		if r := recover(); r != nil {
			spans = nil
			err = fmt.Errorf("engine %s panicked: %v", e.Name(), r)
		}
	}()
	spans, err = e.Segment(run, vocab)
	if err != nil {
		return nil, err
	}
	if err := checkSpans(spans, len(run)); err != nil {
		return nil, fmt.Errorf("engine %s: %w", e.Name(), err)
	}
	return spans, nil
}

type charClass int

const (
	classThai charClass = iota
	classWord
	classSpace
	classSingle
)

// runClass groups runes into runs. Latin letters and digits form one word run; each
// punctuation rune and each Thai repetition or abbreviation mark is its own token.
func runClass(r rune) charClass {
	if r == 'ๆ' || r == 'ฯ' || r == '฿' {
		return classSingle
	}
	switch utils.ClassifyRune(r) {
	case utils.ScriptThai:
		return classThai
	case utils.ScriptLatin, utils.ScriptDigit:
		return classWord
	case utils.ScriptSpace:
		return classSpace
	default:
		return classSingle
	}
}
