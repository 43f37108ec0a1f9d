package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediabatch/internal/domain"
)

func TestEnqueue_AssignsUniqueIDs(t *testing.T) {
	q := New()

	first, err := q.Enqueue("https://example.com/a.mp4", "best", "mp4")
	require.NoError(t, err)
	second, err := q.Enqueue("https://example.com/b.mp4", "best", "mp4")
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, domain.JobStateQueued, first.State)
	assert.False(t, first.CreatedAt.IsZero())
}

func TestEnqueue_RejectsInvalidURLs(t *testing.T) {
	q := New()

	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"no scheme", "example.com/video.mp4"},
		{"unsupported scheme", "ftp://example.com/video.mp4"},
		{"http without host", "http:///video.mp4"},
		{"magnet without exact topic", "magnet:?dn=video"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Enqueue(tt.url, "", "")
			assert.ErrorIs(t, err, domain.ErrInvalidURL)
		})
	}
	assert.Equal(t, 0, q.Len(), "rejected URLs must not produce jobs")
}

func TestEnqueue_AcceptsMagnetLinks(t *testing.T) {
	q := New()

	job, err := q.Enqueue("magnet:?xt=urn:btih:c9e15763f722f23e98a29decdfae341b98d53056", "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateQueued, job.State)
}

func TestSnapshot_PreservesInsertionOrder(t *testing.T) {
	q := New()
	urls := []string{
		"https://example.com/1.mp4",
		"https://example.com/2.mp4",
		"https://example.com/3.mp4",
	}
	for _, u := range urls {
		_, err := q.Enqueue(u, "", "")
		require.NoError(t, err)
	}

	var seen []string
	for job := range q.Snapshot() {
		seen = append(seen, job.SourceURL)
	}
	assert.Equal(t, urls, seen)
}

func TestSnapshot_IsRestartableAndFixedAtCallTime(t *testing.T) {
	q := New()
	_, err := q.Enqueue("https://example.com/1.mp4", "", "")
	require.NoError(t, err)

	snap := q.Snapshot()

	_, err = q.Enqueue("https://example.com/2.mp4", "", "")
	require.NoError(t, err)

	for range 2 {
		count := 0
		for range snap {
			count++
		}
		assert.Equal(t, 1, count, "snapshot must not observe later enqueues and must restart")
	}
}

func TestRemove_QueuedJob(t *testing.T) {
	q := New()
	job, err := q.Enqueue("https://example.com/a.mp4", "", "")
	require.NoError(t, err)

	require.NoError(t, q.Remove(job.ID))
	assert.Equal(t, 0, q.Len())
}

func TestRemove_ActiveJobRejected(t *testing.T) {
	q := New()
	job, err := q.Enqueue("https://example.com/a.mp4", "", "")
	require.NoError(t, err)

	q.Mutate(job.ID, func(j *domain.Job) { j.State = domain.JobStateDownloading })

	err = q.Remove(job.ID)
	var invalidState *domain.InvalidStateError
	require.ErrorAs(t, err, &invalidState)
	assert.Equal(t, domain.JobStateDownloading, invalidState.State)
	assert.Equal(t, 1, q.Len())
}

func TestRemove_PausedJobRejected(t *testing.T) {
	q := New()
	job, err := q.Enqueue("https://example.com/a.mp4", "", "")
	require.NoError(t, err)

	q.Mutate(job.ID, func(j *domain.Job) { j.State = domain.JobStatePaused })

	// the controller is parked on a paused job; it must be cancelled, not removed
	err = q.Remove(job.ID)
	var invalidState *domain.InvalidStateError
	require.ErrorAs(t, err, &invalidState)
	assert.Equal(t, domain.JobStatePaused, invalidState.State)
	assert.Equal(t, 1, q.Len())
}

func TestRemove_UnknownJob(t *testing.T) {
	q := New()
	assert.ErrorIs(t, q.Remove("nope"), domain.ErrJobNotFound)
}

func TestNextEligible_SkipsPausedJobs(t *testing.T) {
	q := New()
	paused, err := q.Enqueue("https://example.com/paused.mp4", "", "")
	require.NoError(t, err)
	queued, err := q.Enqueue("https://example.com/queued.mp4", "", "")
	require.NoError(t, err)

	q.Mutate(paused.ID, func(j *domain.Job) { j.State = domain.JobStatePaused })

	next, ok := q.NextEligible()
	require.True(t, ok)
	assert.Equal(t, queued.ID, next.ID)
}

func TestNextEligible_EmptyWhenAllPausedOrTerminal(t *testing.T) {
	q := New()
	job, err := q.Enqueue("https://example.com/a.mp4", "", "")
	require.NoError(t, err)
	q.Mutate(job.ID, func(j *domain.Job) { j.State = domain.JobStatePaused })

	_, ok := q.NextEligible()
	assert.False(t, ok)
}

func TestJob_ReturnsCopy(t *testing.T) {
	q := New()
	job, err := q.Enqueue("https://example.com/a.mp4", "", "")
	require.NoError(t, err)

	copied, ok := q.Job(job.ID)
	require.True(t, ok)
	copied.State = domain.JobStateFailed

	stored, ok := q.Job(job.ID)
	require.True(t, ok)
	assert.Equal(t, domain.JobStateQueued, stored.State)
}
