// Package tokenproc prepares documents for a search engine that splits on whitespace:
// Thai text is segmented and rejoined with an explicit separator, next to the original.
package tokenproc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kham/internal/apperr"
	"github.com/hyperjump/kham/internal/config"
	"github.com/hyperjump/kham/internal/segment"
	"github.com/hyperjump/kham/pkg/utils"
)

// Field is one processed text field.
type Field struct {
	Original   string `json:"original"`
	Tokenized  string `json:"tokenized"`
	TokenCount int    `json:"token_count"`
}

// ProcessedDocument is a document with tokenized companions added for each text field.
type ProcessedDocument struct {
	ID       string           `json:"id"`
	Fields   map[string]Field `json:"fields"`
	Document map[string]any   `json:"document"`
	Skipped  bool             `json:"skipped"`
}

// Processor turns segmentation output into separator-joined text.
type Processor struct {
	seg    *segment.Segmenter
	cfg    config.ProcessingConfig
	nonSep map[string]bool
	logger *zap.Logger
}

// New creates a Processor.
func New(seg *segment.Segmenter, cfg config.ProcessingConfig, logger *zap.Logger) *Processor {
	nonSep := make(map[string]bool, len(cfg.NonSeparatorTokens))
	for _, t := range cfg.NonSeparatorTokens {
		nonSep[t] = true
	}
	if cfg.Separator == "" {
		cfg.Separator = " "
	}
	if cfg.TokenizedSuffix == "" {
		cfg.TokenizedSuffix = "_tokenized"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Processor{seg: seg, cfg: cfg, nonSep: nonSep, logger: utils.OrNop(logger)}
}

// Separator returns the string inserted between tokens.
func (p *Processor) Separator() string { return p.cfg.Separator }

// NonSeparatorTokens returns tokens that never start a new unit.
func (p *Processor) NonSeparatorTokens() []string {
	return append([]string(nil), p.cfg.NonSeparatorTokens...)
}

// Fields returns the configured text fields.
func (p *Processor) Fields() []string { return append([]string(nil), p.cfg.Fields...) }

// IDField returns the document primary key field.
func (p *Processor) IDField() string { return p.cfg.IDField }

// TokenizedField returns the name of the tokenized companion of field.
func (p *Processor) TokenizedField(field string) string { return field + p.cfg.TokenizedSuffix }

// SearchableAttributes lists the tokenized fields followed by the original fields.
func (p *Processor) SearchableAttributes() []string {
	out := make([]string, 0, 2*len(p.cfg.Fields))
	for _, f := range p.cfg.Fields {
		out = append(out, p.TokenizedField(f))
	}
	return append(out, p.cfg.Fields...)
}

// ProcessTokenizationResult joins tokens with the separator. Whitespace and existing
// separators collapse into a single separator; non-separator tokens attach to the token
// before them.
func (p *Processor) ProcessTokenizationResult(res *segment.TokenizationResult) string {
	var b strings.Builder
	for _, tok := range res.Tokens {
		if utils.IsBlank(tok) || p.isSeparator(tok) {
			continue
		}
		if b.Len() > 0 && !p.nonSep[tok] {
			b.WriteString(p.cfg.Separator)
		}
		b.WriteString(tok)
	}
	return b.String()
}

func (p *Processor) isSeparator(tok string) bool {
	sep := strings.TrimSpace(p.cfg.Separator)
	return sep != "" && strings.Trim(tok, sep) == ""
}

// TokenizeText segments text and returns the processed field.
func (p *Processor) TokenizeText(text string) (Field, error) {
	res, err := p.seg.SegmentText(text)
	if err != nil {
		return Field{}, err
	}
	count := 0
	for _, tok := range res.Tokens {
		if !utils.IsBlank(tok) && !p.isSeparator(tok) {
			count++
		}
	}
	return Field{Original: text, Tokenized: p.ProcessTokenizationResult(res), TokenCount: count}, nil
}

// ProcessDocument adds a tokenized companion for each configured text field present in doc.
// A document that already carries every companion is returned unchanged with Skipped set,
// unless force is true. The input map is not modified.
func (p *Processor) ProcessDocument(ctx context.Context, doc map[string]any, force bool) (*ProcessedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.New(apperr.KindInvalidInput, "document must be a JSON object")
	}
	out := make(map[string]any, len(doc)+len(p.cfg.Fields))
	for k, v := range doc {
		out[k] = v
	}

	id, err := documentID(out[p.cfg.IDField])
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, err, fmt.Sprintf("invalid %q", p.cfg.IDField))
	}
	if id == "" {
		if !p.cfg.GenerateIDs {
			return nil, apperr.Newf(apperr.KindInvalidInput, "document is missing %q", p.cfg.IDField)
		}
		id = uuid.NewString()
		out[p.cfg.IDField] = id
	}

	present := make([]string, 0, len(p.cfg.Fields))
	for _, f := range p.cfg.Fields {
		v, ok := out[f]
		if !ok || v == nil {
			continue
		}
		if _, ok := v.(string); !ok {
			return nil, apperr.Newf(apperr.KindInvalidInput, "field %q must be a string, got %T", f, v)
		}
		present = append(present, f)
	}
	if len(present) == 0 {
		return nil, apperr.Newf(apperr.KindInvalidInput, "document %s has none of the fields %v", id, p.cfg.Fields)
	}

	pd := &ProcessedDocument{ID: id, Fields: make(map[string]Field, len(present)), Document: out}
	if !force && p.alreadyTokenized(out, present) {
		for _, f := range present {
			tok := out[p.TokenizedField(f)].(string)
			pd.Fields[f] = Field{Original: out[f].(string), Tokenized: tok, TokenCount: len(strings.Fields(tok))}
		}
		pd.Skipped = true
		return pd, nil
	}

	for _, f := range present {
		field, err := p.TokenizeText(out[f].(string))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f, err)
		}
		pd.Fields[f] = field
		out[p.TokenizedField(f)] = field.Tokenized
	}
	return pd, nil
}

func (p *Processor) alreadyTokenized(doc map[string]any, present []string) bool {
	for _, f := range present {
		if _, ok := doc[p.TokenizedField(f)].(string); !ok {
			return false
		}
	}
	return true
}

// documentID accepts string and numeric ids, as MeiliSearch does.
func documentID(v any) (string, error) {
	switch id := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(id), nil
	case json.Number:
		return id.String(), nil
	case float64:
		if id != float64(int64(id)) {
			return "", fmt.Errorf("id %v is not an integer", id)
		}
		return strconv.FormatInt(int64(id), 10), nil
	case int:
		return strconv.Itoa(id), nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	default:
		return "", fmt.Errorf("unsupported id type %T", v)
	}
}
