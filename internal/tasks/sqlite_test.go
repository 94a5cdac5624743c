package tasks

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kham/internal/config"
)

func TestSQLiteStore_SaveGetList(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "tasks.db"))
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := &Task{ID: "a", Type: "index_documents", Status: StatusEnqueued, EnqueuedAt: base}
	second := &Task{ID: "b", Type: "setup_index", Status: StatusEnqueued, EnqueuedAt: base.Add(time.Second)}
	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	started := base.Add(2 * time.Second)
	finished := base.Add(3 * time.Second)
	first.Status = StatusFailed
	first.Error = "boom"
	first.Details = map[string]any{"failed_count": 2}
	first.StartedAt = &started
	first.FinishedAt = &finished
	require.NoError(t, s.Save(ctx, first))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, float64(2), got.Details["failed_count"])
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(started))
	assert.True(t, got.EnqueuedAt.Equal(base))

	missing, err := s.Get(ctx, "zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Nil(t, list[0].StartedAt)
}

func TestSQLiteStore_MarksInterruptedTasksFailed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &Task{ID: "x", Type: "t", Status: StatusProcessing, EnqueuedAt: time.Now()}))
	require.NoError(t, s.Save(ctx, &Task{ID: "y", Type: "t", Status: StatusSucceeded, EnqueuedAt: time.Now()}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()
	x, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, x.Status)
	assert.Equal(t, "interrupted by restart", x.Error)
	y, err := s.Get(ctx, "y")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, y.Status)
}

func TestQueue_WithSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	q := NewQueue(s, config.TasksConfig{Workers: 1, QueueSize: 4}, nil)
	q.Start(context.Background())
	defer func() {
		q.Stop()
		_ = s.Close()
	}()

	task, err := q.Submit(context.Background(), "t", func(context.Context) (map[string]any, error) {
		return map[string]any{"n": 1}, nil
	})
	require.NoError(t, err)
	got, err := q.Wait(context.Background(), task.ID, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
}
