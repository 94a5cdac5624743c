package tokenproc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kham/internal/apperr"
	"github.com/hyperjump/kham/internal/config"
	"github.com/hyperjump/kham/internal/dictionary"
	"github.com/hyperjump/kham/internal/segment"
)

func newProcessor(t *testing.T, mutate func(*config.ProcessingConfig)) *Processor {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if mutate != nil {
		mutate(&cfg.Processing)
	}
	store := dictionary.NewStore(dictionary.DefaultBase(), []string{"วากาเมะ"})
	seg, err := segment.New(store, cfg.Tokenizer)
	require.NoError(t, err)
	return New(seg, cfg.Processing, nil)
}

func TestProcessTokenizationResult(t *testing.T) {
	p := newProcessor(t, nil)
	tests := []struct {
		in   string
		want string
	}{
		{"สาหร่ายวากาเมะ", "สาหร่าย วากาเมะ"},
		{"ดีๆ  มาก", "ดีๆ มาก"},
		{"API การใช้งาน", "API การใช้งาน"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		f, err := p.TokenizeText(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, f.Tokenized, "input %q", tt.in)
		assert.Equal(t, tt.in, f.Original)
	}
}

func TestProcessTokenizationResult_CustomSeparatorIsIdempotent(t *testing.T) {
	p := newProcessor(t, func(c *config.ProcessingConfig) { c.Separator = "|" })
	first, err := p.TokenizeText("สาหร่ายวากาเมะ")
	require.NoError(t, err)
	assert.Equal(t, "สาหร่าย|วากาเมะ", first.Tokenized)
	assert.Equal(t, 2, first.TokenCount)

	second, err := p.TokenizeText(first.Tokenized)
	require.NoError(t, err)
	assert.Equal(t, first.Tokenized, second.Tokenized)
}

func TestProcessDocument(t *testing.T) {
	p := newProcessor(t, nil)
	doc := map[string]any{"id": "1", "title": "สาหร่ายวากาเมะ", "content": "ซุปมิโซะ", "price": 120.0}
	pd, err := p.ProcessDocument(context.Background(), doc, false)
	require.NoError(t, err)
	assert.Equal(t, "1", pd.ID)
	assert.False(t, pd.Skipped)
	assert.Equal(t, "สาหร่าย วากาเมะ", pd.Document["title_tokenized"])
	assert.Equal(t, "ซุป มิโซะ", pd.Document["content_tokenized"])
	assert.Equal(t, "สาหร่ายวากาเมะ", pd.Document["title"], "original text is preserved")
	assert.Equal(t, 120.0, pd.Document["price"])
	_, mutated := doc["title_tokenized"]
	assert.False(t, mutated, "input document must not be modified")
}

func TestProcessDocument_Idempotent(t *testing.T) {
	p := newProcessor(t, nil)
	ctx := context.Background()
	first, err := p.ProcessDocument(ctx, map[string]any{"id": 7.0, "title": "การใช้งานระบบค้นหา"}, false)
	require.NoError(t, err)
	assert.Equal(t, "7", first.ID)

	second, err := p.ProcessDocument(ctx, first.Document, false)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.Document["title_tokenized"], second.Document["title_tokenized"])

	forced, err := p.ProcessDocument(ctx, first.Document, true)
	require.NoError(t, err)
	assert.False(t, forced.Skipped)
	assert.Equal(t, first.Document["title_tokenized"], forced.Document["title_tokenized"])
}

func TestProcessDocument_Errors(t *testing.T) {
	p := newProcessor(t, nil)
	ctx := context.Background()
	tests := []struct {
		name string
		doc  map[string]any
	}{
		{"missing id", map[string]any{"title": "ไทย"}},
		{"fractional id", map[string]any{"id": 1.5, "title": "ไทย"}},
		{"non-string field", map[string]any{"id": "1", "title": 42}},
		{"no text fields", map[string]any{"id": "1", "body": "ไทย"}},
		{"nil", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ProcessDocument(ctx, tt.doc, false)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
		})
	}
}

func TestProcessDocument_GenerateIDs(t *testing.T) {
	p := newProcessor(t, func(c *config.ProcessingConfig) { c.GenerateIDs = true })
	pd, err := p.ProcessDocument(context.Background(), map[string]any{"title": "ภาษาไทย"}, false)
	require.NoError(t, err)
	assert.Len(t, pd.ID, 36)
	assert.Equal(t, pd.ID, pd.Document["id"])
}

func TestSearchableAttributes(t *testing.T) {
	p := newProcessor(t, nil)
	assert.Equal(t, []string{"title_tokenized", "content_tokenized", "title", "content"}, p.SearchableAttributes())
	assert.Equal(t, "title_tokenized", p.TokenizedField("title"))
}
