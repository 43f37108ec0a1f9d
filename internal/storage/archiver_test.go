package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediabatch/internal/domain"
	"mediabatch/internal/progress"
	"mediabatch/internal/queue"
)

type fakeService struct {
	mu      sync.Mutex
	uploads []string
}

func (f *fakeService) UploadPath(_ context.Context, localPath string, _ UploadOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, localPath)
	return "s3://bucket/" + localPath, nil
}

func (f *fakeService) ListObjects(context.Context, string, string) ([]ObjectInfo, error) {
	return nil, nil
}

func (f *fakeService) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...)
}

func TestArchiver_UploadsCompletedJobs(t *testing.T) {
	bus := progress.NewBus()
	q := queue.New()
	svc := &fakeService{}

	job, err := q.Enqueue("https://example.com/a.mp4", "", "")
	require.NoError(t, err)
	q.Mutate(job.ID, func(j *domain.Job) {
		j.State = domain.JobStateCompleted
		j.OutputPath = "/downloads/a.mp4"
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := NewArchiver(bus, q, svc, UploadOptions{Bucket: "bucket"}, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run(ctx)
	}()
	time.Sleep(50 * time.Millisecond) // let Run subscribe before publishing

	// progress ticks must not trigger uploads
	bus.Publish(progress.Event{JobID: job.ID, State: domain.JobStateDownloading})
	bus.Publish(progress.Event{JobID: job.ID, State: domain.JobStateCompleted})

	assert.Eventually(t, func() bool {
		return len(svc.uploaded()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"/downloads/a.mp4"}, svc.uploaded())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("archiver did not stop on context cancel")
	}
}

func TestArchiver_SkipsJobsWithoutOutput(t *testing.T) {
	bus := progress.NewBus()
	q := queue.New()
	svc := &fakeService{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := NewArchiver(bus, q, svc, UploadOptions{Bucket: "bucket"}, nil)
	go a.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// unknown job id: nothing to look up, nothing to upload
	bus.Publish(progress.Event{JobID: "missing", State: domain.JobStateCompleted})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, svc.uploaded())
}
