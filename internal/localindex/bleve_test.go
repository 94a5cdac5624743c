package localindex

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kham/internal/apperr"
	"github.com/hyperjump/kham/internal/config"
	"github.com/hyperjump/kham/internal/meili"
)

func processing() config.ProcessingConfig {
	return config.ProcessingConfig{Fields: []string{"title", "content"}, TokenizedSuffix: "_tokenized"}
}

func TestIndex_SearchMatchesTokenizedField(t *testing.T) {
	idx := New(config.BleveConfig{}, processing(), nil)
	defer func() {
		_ = idx.Close()
	}()
	ctx := context.Background()

	created, err := idx.EnsureIndex(ctx, "docs", "id")
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if !created {
		t.Fatal("expected index to be created")
	}
	docs := []map[string]any{
		{"id": "1", "content": "สาหร่ายวากาเมะ", "content_tokenized": "สาหร่าย วากาเมะ"},
		{"id": "2", "content": "ร้านอาหาร", "content_tokenized": "ร้าน อาหาร"},
	}
	if err := idx.IndexDocuments(ctx, "docs", "id", docs); err != nil {
		t.Fatalf("IndexDocuments: %v", err)
	}
	if n, _ := idx.DocCount("docs"); n != 2 {
		t.Errorf("DocCount = %d, want 2", n)
	}

	resp, err := idx.Search(ctx, "docs", meili.SearchRequest{Query: "วากาเมะ"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(resp.Hits))
	}
	hit := resp.Hits[0]
	if hit["id"] != "1" {
		t.Errorf("hit id = %v, want 1", hit["id"])
	}
	if hit["content"] != "สาหร่ายวากาเมะ" {
		t.Errorf("original text not preserved: %v", hit["content"])
	}
	if s, ok := hit["_score"].(float64); !ok || s <= 0 {
		t.Errorf("_score = %v, want positive float", hit["_score"])
	}
}

func TestIndex_PrefixOnLastTerm(t *testing.T) {
	idx := New(config.BleveConfig{}, processing(), nil)
	defer func() {
		_ = idx.Close()
	}()
	ctx := context.Background()
	if _, err := idx.EnsureIndex(ctx, "docs", "id"); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	docs := []map[string]any{{"id": 1.0, "title": "Search API", "title_tokenized": "search api"}}
	if err := idx.IndexDocuments(ctx, "docs", "id", docs); err != nil {
		t.Fatalf("IndexDocuments: %v", err)
	}
	resp, err := idx.Search(ctx, "docs", meili.SearchRequest{Query: "sea"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(resp.Hits))
	}
	if resp.Hits[0]["id"] != json.Number("1") {
		t.Errorf("id = %#v, want json.Number(1)", resp.Hits[0]["id"])
	}
}

func TestIndex_SearchableAttributesFromSettings(t *testing.T) {
	idx := New(config.BleveConfig{}, processing(), nil)
	defer func() {
		_ = idx.Close()
	}()
	ctx := context.Background()
	if _, err := idx.EnsureIndex(ctx, "docs", "id"); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	docs := []map[string]any{{"id": "a", "title": "golang", "content": "rust", "title_tokenized": "golang", "content_tokenized": "rust"}}
	if err := idx.IndexDocuments(ctx, "docs", "id", docs); err != nil {
		t.Fatalf("IndexDocuments: %v", err)
	}
	if err := idx.ApplySettings(ctx, "docs", meili.Settings{SearchableAttributes: []string{"title_tokenized"}}); err != nil {
		t.Fatalf("ApplySettings: %v", err)
	}
	resp, err := idx.Search(ctx, "docs", meili.SearchRequest{Query: "rust"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Hits) != 0 {
		t.Errorf("content should not be searchable, got %d hits", len(resp.Hits))
	}
}

func TestIndex_EnsureIsIdempotentAndMissingIndexIsNotFound(t *testing.T) {
	idx := New(config.BleveConfig{}, processing(), nil)
	defer func() {
		_ = idx.Close()
	}()
	ctx := context.Background()

	lookup, err := idx.GetIndex(ctx, "docs")
	if err != nil || lookup.Status != meili.IndexNotFound {
		t.Fatalf("GetIndex = %v, %v; want not found", lookup.Status, err)
	}
	if _, err := idx.EnsureIndex(ctx, "docs", "id"); err != nil {
		t.Fatal(err)
	}
	created, err := idx.EnsureIndex(ctx, "docs", "id")
	if err != nil || created {
		t.Errorf("second EnsureIndex = %v, %v; want false, nil", created, err)
	}

	_, err = idx.Search(ctx, "other", meili.SearchRequest{Query: "x"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Search on missing index: err = %v, want not_found", err)
	}
}

func TestIndex_DocumentWithoutIDIsRejected(t *testing.T) {
	idx := New(config.BleveConfig{}, processing(), nil)
	defer func() {
		_ = idx.Close()
	}()
	ctx := context.Background()
	if _, err := idx.EnsureIndex(ctx, "docs", "id"); err != nil {
		t.Fatal(err)
	}
	err := idx.IndexDocuments(ctx, "docs", "", []map[string]any{{"title": "x"}})
	if !apperr.Is(err, apperr.KindInvalidInput) {
		t.Errorf("err = %v, want invalid_input", err)
	}
}

func TestIndex_ReopensFromDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bleve")
	ctx := context.Background()

	idx := New(config.BleveConfig{Path: dir}, processing(), nil)
	if _, err := idx.EnsureIndex(ctx, "docs", "id"); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexDocuments(ctx, "docs", "id", []map[string]any{{"id": "1", "title_tokenized": "ภาษา ไทย"}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}
	if err := idx.Health(ctx); err == nil {
		t.Error("closed index should be unhealthy")
	}

	idx = New(config.BleveConfig{Path: dir}, processing(), nil)
	defer func() {
		_ = idx.Close()
	}()
	created, err := idx.EnsureIndex(ctx, "docs", "id")
	if err != nil || created {
		t.Fatalf("EnsureIndex after reopen = %v, %v", created, err)
	}
	resp, err := idx.Search(ctx, "docs", meili.SearchRequest{Query: "ไทย"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Hits) != 1 {
		t.Errorf("got %d hits after reopen, want 1", len(resp.Hits))
	}
}
