// Package meili is a small MeiliSearch HTTP client covering the calls the service makes:
// index lookup and creation, settings, document writes, search and task polling.
package meili

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/kham/internal/apperr"
	"github.com/hyperjump/kham/internal/config"
	"github.com/hyperjump/kham/internal/resilience"
	"github.com/hyperjump/kham/pkg/utils"
)

// Recorder receives per-call outcomes. outcome is "ok" or an error kind.
type Recorder interface {
	ObserveBackendCall(operation, outcome string, seconds float64)
}

// Client talks to one MeiliSearch instance.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
	timeout  time.Duration
	poll     time.Duration
	logger   *zap.Logger
	recorder Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = utils.OrNop(l) }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRecorder sets a call recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// New creates a client from cfg.
func New(cfg config.MeiliSearchConfig, opts ...Option) *Client {
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		if b := int(cfg.RequestsPerSecond); b > burst {
			burst = b
		}
	}
	poll := cfg.TaskPollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{},
		limiter: rate.NewLimiter(limit, burst),
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.MaxRetries + 1,
			InitialDelay: cfg.RetryInitialDelay,
			MaxDelay:     cfg.RetryMaxDelay,
		},
		timeout: cfg.Timeout,
		poll:    poll,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the backend.
func (c *Client) Name() string { return "meilisearch" }

// Health checks that the engine is reachable and reports itself available.
func (c *Client) Health(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, "health", http.MethodGet, "/health", nil, &body); err != nil {
		return err
	}
	if body.Status != "available" {
		return apperr.Newf(apperr.KindSearchUnavailable, "search engine status %q", body.Status)
	}
	return nil
}

// GetIndex looks up an index. A missing index is reported through Status, not as an error.
func (c *Client) GetIndex(ctx context.Context, uid string) (IndexLookup, error) {
	var idx Index
	err := c.do(ctx, "get_index", http.MethodGet, "/indexes/"+url.PathEscape(uid), nil, &idx)
	if err == nil {
		return IndexLookup{Status: IndexExists, Index: &idx}, nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Code == "index_not_found" {
		return IndexLookup{Status: IndexNotFound}, nil
	}
	return IndexLookup{Status: IndexUnknown}, err
}

// CreateIndex enqueues index creation.
func (c *Client) CreateIndex(ctx context.Context, uid, primaryKey string) (*TaskInfo, error) {
	body := map[string]string{"uid": uid}
	if primaryKey != "" {
		body["primaryKey"] = primaryKey
	}
	var info TaskInfo
	if err := c.do(ctx, "create_index", http.MethodPost, "/indexes", body, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// EnsureIndex creates the index when it does not exist and waits for creation to finish.
// It reports whether the index was created.
func (c *Client) EnsureIndex(ctx context.Context, uid, primaryKey string) (bool, error) {
	lookup, err := c.GetIndex(ctx, uid)
	if err != nil {
		return false, err
	}
	switch lookup.Status {
	case IndexExists:
		return false, nil
	case IndexNotFound:
		info, err := c.CreateIndex(ctx, uid, primaryKey)
		if err != nil {
			return false, err
		}
		if _, err := c.WaitForTask(ctx, info.TaskUID); err != nil {
			return false, err
		}
		c.logger.Info("created index", zap.String("index", uid), zap.String("primary_key", primaryKey))
		return true, nil
	default:
		return false, apperr.Newf(apperr.KindInternal, "unexpected index status %s", lookup.Status)
	}
}

// UpdateSettings enqueues a settings update.
func (c *Client) UpdateSettings(ctx context.Context, uid string, s Settings) (*TaskInfo, error) {
	var info TaskInfo
	if err := c.do(ctx, "update_settings", http.MethodPatch, "/indexes/"+url.PathEscape(uid)+"/settings", s, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ApplySettings updates settings and waits for the engine to apply them.
func (c *Client) ApplySettings(ctx context.Context, uid string, s Settings) error {
	info, err := c.UpdateSettings(ctx, uid, s)
	if err != nil {
		return err
	}
	_, err = c.WaitForTask(ctx, info.TaskUID)
	return err
}

// AddDocuments enqueues adding or replacing documents.
func (c *Client) AddDocuments(ctx context.Context, uid, primaryKey string, docs []map[string]any) (*TaskInfo, error) {
	path := "/indexes/" + url.PathEscape(uid) + "/documents"
	if primaryKey != "" {
		path += "?primaryKey=" + url.QueryEscape(primaryKey)
	}
	var info TaskInfo
	if err := c.do(ctx, "add_documents", http.MethodPost, path, docs, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// IndexDocuments adds documents and waits for indexing to finish.
func (c *Client) IndexDocuments(ctx context.Context, uid, primaryKey string, docs []map[string]any) error {
	if len(docs) == 0 {
		return nil
	}
	info, err := c.AddDocuments(ctx, uid, primaryKey, docs)
	if err != nil {
		return err
	}
	_, err = c.WaitForTask(ctx, info.TaskUID)
	return err
}

// Search runs one search request.
func (c *Client) Search(ctx context.Context, uid string, req SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	if err := c.do(ctx, "search", http.MethodPost, "/indexes/"+url.PathEscape(uid)+"/search", req, &resp); err != nil {
		return nil, err
	}
	if resp.Hits == nil {
		resp.Hits = []map[string]any{}
	}
	return &resp, nil
}

// GetTask fetches the state of an engine task.
func (c *Client) GetTask(ctx context.Context, taskUID int64) (*Task, error) {
	var t Task
	if err := c.do(ctx, "get_task", http.MethodGet, fmt.Sprintf("/tasks/%d", taskUID), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// WaitForTask polls a task until it finishes. A failed or canceled task is an error of
// kind search_engine_error carrying the engine's error code.
func (c *Client) WaitForTask(ctx context.Context, taskUID int64) (*Task, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		t, err := c.GetTask(ctx, taskUID)
		if err != nil {
			return nil, err
		}
		switch t.Status {
		case TaskSucceeded:
			return t, nil
		case TaskFailed, TaskCanceled:
			e := &apperr.Error{Kind: apperr.KindSearchEngine, Message: fmt.Sprintf("task %d %s", taskUID, t.Status)}
			if t.Error != nil {
				e.Message = fmt.Sprintf("task %d failed: %s", taskUID, t.Error.Message)
				e.Code = t.Error.Code
			}
			return t, e
		}
		select {
		case <-ctx.Done():
			return nil, apperr.Wrap(apperr.KindTimeout, ctx.Err(), fmt.Sprintf("waiting for task %d", taskUID))
		case <-ticker.C:
		}
	}
}

// do sends one logical request with rate limiting and retries, decoding the JSON response
// into out when it is non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return apperr.Wrap(apperr.KindInvalidInput, err, "encode request")
		}
	}
	started := time.Now()
	err := resilience.Retry(ctx, c.logger, "meilisearch."+op, c.retry, func(ctx context.Context) error {
		return c.attempt(ctx, method, path, payload, out)
	})
	if err != nil {
		err = classify(ctx, op, err)
	}
	if c.recorder != nil {
		outcome := "ok"
		if err != nil {
			outcome = string(apperr.KindOf(err))
		}
		c.recorder.ObserveBackendCall(op, outcome, time.Since(started).Seconds())
	}
	return err
}

// attempt performs a single HTTP round trip. Errors that should not be retried are
// marked permanent.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return resilience.Permanent(apperr.Wrap(apperr.KindTimeout, err, "rate limit wait"))
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return resilience.Permanent(apperr.Wrap(apperr.KindInternal, err, "create request"))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindSearchUnavailable, err, "search engine unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return resilience.Permanent(apperr.Wrap(apperr.KindSearchEngine, err, "decode response"))
	}
	return nil
}

// statusError converts an error response. 429 and 5xx are retried; other statuses are
// permanent.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body ErrorBody
	_ = json.Unmarshal(raw, &body)
	if body.Message == "" {
		body.Message = strings.TrimSpace(string(raw))
	}
	if body.Message == "" {
		body.Message = http.StatusText(resp.StatusCode)
	}

	e := &apperr.Error{
		Kind:    apperr.KindSearchEngine,
		Message: fmt.Sprintf("search engine returned %d: %s", resp.StatusCode, body.Message),
		Code:    body.Code,
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		e.Kind = apperr.KindSearchUnavailable
		e.Retryable = true
		return e
	case resp.StatusCode >= 500:
		e.Retryable = true
		return e
	case resp.StatusCode == http.StatusNotFound && body.Code == "":
		e.Kind = apperr.KindNotFound
	}
	return resilience.Permanent(e)
}

// classify makes sure the final error of a call is an *apperr.Error.
func classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return apperr.Wrap(apperr.KindTimeout, err, op+" cancelled")
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		if appErr.Kind == apperr.KindSearchUnavailable {
			return &apperr.Error{
				Kind:      apperr.KindSearchUnavailable,
				Message:   fmt.Sprintf("%s: %s", op, appErr.Message),
				Err:       err,
				Retryable: true,
				Code:      appErr.Code,
			}
		}
		return err
	}
	return apperr.Wrap(apperr.KindInternal, err, op)
}
