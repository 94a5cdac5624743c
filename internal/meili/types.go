package meili

import "time"

// Index describes a MeiliSearch index.
type Index struct {
	UID        string    `json:"uid"`
	PrimaryKey string    `json:"primaryKey,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// IndexStatus is the outcome of an index lookup that reached the engine.
type IndexStatus int

const (
	// IndexUnknown means the lookup itself failed; the accompanying error says why.
	IndexUnknown IndexStatus = iota
	IndexExists
	IndexNotFound
)

func (s IndexStatus) String() string {
	switch s {
	case IndexExists:
		return "exists"
	case IndexNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// IndexLookup is the result of GetIndex. Index is set only when Status is IndexExists.
type IndexLookup struct {
	Status IndexStatus
	Index  *Index
}

// Settings is the subset of index settings the service manages.
type Settings struct {
	SearchableAttributes []string `json:"searchableAttributes,omitempty"`
	DisplayedAttributes  []string `json:"displayedAttributes,omitempty"`
	SeparatorTokens      []string `json:"separatorTokens,omitempty"`
	NonSeparatorTokens   []string `json:"nonSeparatorTokens,omitempty"`
}

// TaskStatus is the lifecycle state of an engine task.
type TaskStatus string

const (
	TaskEnqueued   TaskStatus = "enqueued"
	TaskProcessing TaskStatus = "processing"
	TaskSucceeded  TaskStatus = "succeeded"
	TaskFailed     TaskStatus = "failed"
	TaskCanceled   TaskStatus = "canceled"
)

// Done reports whether the task reached a final state.
func (s TaskStatus) Done() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskCanceled
}

// TaskInfo is returned by asynchronous write operations.
type TaskInfo struct {
	TaskUID    int64      `json:"taskUid"`
	IndexUID   string     `json:"indexUid"`
	Status     TaskStatus `json:"status"`
	Type       string     `json:"type"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
}

// Task is the full state of an engine task.
type Task struct {
	UID        int64          `json:"uid"`
	IndexUID   string         `json:"indexUid"`
	Status     TaskStatus     `json:"status"`
	Type       string         `json:"type"`
	Details    map[string]any `json:"details,omitempty"`
	Error      *ErrorBody     `json:"error,omitempty"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
	StartedAt  *time.Time     `json:"startedAt,omitempty"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
}

// ErrorBody is the error payload MeiliSearch returns for failed requests and tasks.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
	Link    string `json:"link,omitempty"`
}

// SearchRequest is the body of a search call.
type SearchRequest struct {
	Query                 string   `json:"q"`
	Offset                int      `json:"offset,omitempty"`
	Limit                 int      `json:"limit,omitempty"`
	AttributesToRetrieve  []string `json:"attributesToRetrieve,omitempty"`
	AttributesToHighlight []string `json:"attributesToHighlight,omitempty"`
	AttributesToSearchOn  []string `json:"attributesToSearchOn,omitempty"`
	Filter                string   `json:"filter,omitempty"`
	ShowRankingScore      bool     `json:"showRankingScore,omitempty"`
}

// SearchResponse is the result of a search call. Numbers inside hits decode as json.Number.
type SearchResponse struct {
	Hits               []map[string]any `json:"hits"`
	Query              string           `json:"query"`
	ProcessingTimeMs   int64            `json:"processingTimeMs"`
	Limit              int              `json:"limit"`
	Offset             int              `json:"offset"`
	EstimatedTotalHits int64            `json:"estimatedTotalHits"`
}
