package search

import (
	"context"

	"github.com/hyperjump/kham/internal/meili"
)

// Backend is the search engine the service indexes into and queries. meili.Client and
// localindex.Index implement it.
type Backend interface {
	Name() string
	Health(ctx context.Context) error
	GetIndex(ctx context.Context, uid string) (meili.IndexLookup, error)
	EnsureIndex(ctx context.Context, uid, primaryKey string) (bool, error)
	ApplySettings(ctx context.Context, uid string, s meili.Settings) error
	IndexDocuments(ctx context.Context, uid, primaryKey string, docs []map[string]any) error
	Search(ctx context.Context, uid string, req meili.SearchRequest) (*meili.SearchResponse, error)
}
