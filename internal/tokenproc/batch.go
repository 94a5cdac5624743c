package tokenproc

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DocumentError records why one document in a batch failed.
type DocumentError struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

// BatchResult reports a batch. ProcessedCount + FailedCount + SkippedCount == Total.
type BatchResult struct {
	Total          int                 `json:"total"`
	ProcessedCount int                 `json:"processed_count"`
	FailedCount    int                 `json:"failed_count"`
	SkippedCount   int                 `json:"skipped_count"`
	Documents      []ProcessedDocument `json:"documents"`
	Errors         []DocumentError     `json:"errors"`
}

// IndexableDocuments returns the documents to send to a search engine, in input order.
func (r *BatchResult) IndexableDocuments() []map[string]any {
	out := make([]map[string]any, 0, len(r.Documents))
	for _, d := range r.Documents {
		out = append(out, d.Document)
	}
	return out
}

type outcome struct {
	doc *ProcessedDocument
	err error
}

// ProcessBatch processes documents independently, at most MaxConcurrent at a time.
// A failing document is recorded in Errors and never aborts the batch; only cancellation
// of ctx returns an error.
func (p *Processor) ProcessBatch(ctx context.Context, docs []map[string]any, force bool) (*BatchResult, error) {
	results := make([]outcome, len(docs))
	sem := semaphore.NewWeighted(int64(p.cfg.MaxConcurrent))
	var wg sync.WaitGroup
	for i := range docs {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					results[i] = outcome{err: fmt.Errorf("panic processing document: %v", r)}
				}
			}()
			doc, err := p.ProcessDocument(ctx, docs[i], force)
			results[i] = outcome{doc: doc, err: err}
		}(i)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	br := &BatchResult{
		Total:     len(docs),
		Documents: make([]ProcessedDocument, 0, len(docs)),
		Errors:    []DocumentError{},
	}
	for i, r := range results {
		if r.err != nil {
			br.FailedCount++
			id, _ := documentID(docs[i][p.cfg.IDField])
			br.Errors = append(br.Errors, DocumentError{Index: i, ID: id, Error: r.err.Error()})
			p.logger.Debug("document processing failed", zap.Int("index", i), zap.String("id", id), zap.Error(r.err))
			continue
		}
		if r.doc.Skipped {
			br.SkippedCount++
		} else {
			br.ProcessedCount++
		}
		br.Documents = append(br.Documents, *r.doc)
	}
	return br, nil
}
