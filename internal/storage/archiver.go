package storage

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"mediabatch/internal/domain"
	"mediabatch/internal/progress"
	"mediabatch/internal/queue"
)

// Archiver watches for completed jobs and copies their output to object
// storage. It is optional; when no bucket is configured it is never started.
type Archiver struct {
	bus     *progress.Bus
	queue   *queue.Queue
	service Service
	opts    UploadOptions
	logger  *logrus.Logger
}

func NewArchiver(bus *progress.Bus, q *queue.Queue, service Service, opts UploadOptions, logger *logrus.Logger) *Archiver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Archiver{
		bus:     bus,
		queue:   q,
		service: service,
		opts:    opts,
		logger:  logger,
	}
}

// Run consumes completion events until the context is done.
func (a *Archiver) Run(ctx context.Context) {
	events := a.bus.Subscribe()
	defer a.bus.Unsubscribe(events)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.State != domain.JobStateCompleted {
				continue
			}
			a.archive(ctx, event.JobID)
		}
	}
}

func (a *Archiver) archive(ctx context.Context, jobID string) {
	logger := a.logger.WithField("job_id", jobID)

	job, ok := a.queue.Job(jobID)
	if !ok || job.OutputPath == "" {
		logger.Warn("completed job has no output to archive")
		return
	}

	opts := a.opts
	lastLog := time.Time{}
	opts.ProgressCallback = func(done, total int64) {
		if time.Since(lastLog) < 500*time.Millisecond && done != total {
			return
		}
		lastLog = time.Now()
		logger.Infof("archive progress: %d/%d bytes", done, total)
	}

	dest, err := a.service.UploadPath(ctx, job.OutputPath, opts)
	if err != nil {
		logger.Errorf("archive upload: %v", err)
		return
	}
	logger.Infof("archived to %s", dest)
}
