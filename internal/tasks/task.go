// Package tasks runs background work with observable status.
package tasks

import (
	"context"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Done reports whether s is final.
func (s Status) Done() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Task is one unit of background work.
type Task struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Status     Status         `json:"status"`
	Error      string         `json:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

func (t *Task) clone() *Task {
	c := *t
	if t.Details != nil {
		c.Details = make(map[string]any, len(t.Details))
		for k, v := range t.Details {
			c.Details[k] = v
		}
	}
	return &c
}

// Store persists task state.
type Store interface {
	Save(ctx context.Context, t *Task) error
	// Get returns nil, nil when the task does not exist.
	Get(ctx context.Context, id string) (*Task, error)
	// List returns the most recently enqueued tasks first.
	List(ctx context.Context, limit int) ([]*Task, error)
	Close() error
}
