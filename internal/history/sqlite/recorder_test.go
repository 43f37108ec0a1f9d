package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediabatch/internal/domain"
	"mediabatch/internal/history"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	r := NewRecorder(db)
	require.NoError(t, r.Init(context.Background()))
	return r
}

func TestRecorder_RecordAndList(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	require.NoError(t, r.Record(ctx, history.Record{
		JobID:      "job-1",
		SourceURL:  "https://example.com/a.mp4",
		Title:      "Episode 1",
		Quality:    "1080p",
		Format:     "mp4",
		State:      domain.JobStateCompleted,
		BytesTotal: 1 << 20,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	}))
	require.NoError(t, r.Record(ctx, history.Record{
		JobID:     "job-2",
		SourceURL: "https://example.com/b.mp4",
		State:     domain.JobStateFailed,
		ErrorKind: string(domain.ErrorKindTransfer),
	}))

	records, err := r.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// newest first
	assert.Equal(t, "job-2", records[0].JobID)
	assert.Equal(t, domain.JobStateFailed, records[0].State)
	assert.Equal(t, string(domain.ErrorKindTransfer), records[0].ErrorKind)
	assert.True(t, records[0].StartedAt.IsZero())

	assert.Equal(t, "job-1", records[1].JobID)
	assert.Equal(t, "Episode 1", records[1].Title)
	assert.Equal(t, int64(1<<20), records[1].BytesTotal)
	assert.Equal(t, started, records[1].StartedAt.UTC())
}

func TestRecorder_ListHonorsLimit(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Record(ctx, history.Record{
			JobID:     "job",
			SourceURL: "https://example.com/a.mp4",
			State:     domain.JobStateCompleted,
		}))
	}

	records, err := r.List(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestRecorder_Clear(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, history.Record{
		JobID:     "job-1",
		SourceURL: "https://example.com/a.mp4",
		State:     domain.JobStateCancelled,
	}))
	require.NoError(t, r.Clear(ctx))

	records, err := r.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
