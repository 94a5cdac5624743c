package analytics

import "time"

// EventType names what produced an event.
type EventType string

const (
	EventSearch       EventType = "search"
	EventQueryProcess EventType = "query_process"
	EventTokenize     EventType = "tokenize"
	EventEnhance      EventType = "enhance"
	EventIndex        EventType = "index_documents"
)

// Event is one observed request.
type Event struct {
	Type          EventType `json:"type"`
	Query         string    `json:"query,omitempty"`
	Mode          string    `json:"mode,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	TotalHits     int       `json:"total_hits"`
	Variants      int       `json:"variants"`
	PartialTokens int       `json:"partial_tokens"`
	Documents     int       `json:"documents,omitempty"`
	LatencyMs     float64   `json:"latency_ms"`
	CacheHit      bool      `json:"cache_hit"`
	Failed        bool      `json:"failed,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
