package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mediabatch/internal/domain"
	"mediabatch/internal/engine"
	"mediabatch/internal/history"
	"mediabatch/internal/progress"
	"mediabatch/internal/queue"
)

// Config tunes the execution controller.
type Config struct {
	ResolveTimeout   time.Duration
	ProgressInterval time.Duration
	ProgressBytes    int64
	Logger           *logrus.Logger
}

// Controller serializes execution of the queue, one job at a time, and
// translates batch-level commands into job transitions and engine calls.
// All job-state mutation happens on a single execution goroutine; commands
// arriving from other goroutines are delivered as signals.
type Controller struct {
	cfg      Config
	queue    *queue.Queue
	fetcher  engine.Fetcher
	sink     progress.Sink
	recorder history.Recorder

	mu           sync.Mutex
	running      bool
	currentID    string
	pausedID     string
	signal       *transferSignal
	cancelPhase  context.CancelFunc
	resumeCh     chan struct{}
	cancelParked chan struct{}
	abort        bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, q *queue.Queue, fetcher engine.Fetcher, sink progress.Sink, recorder history.Recorder) *Controller {
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 30 * time.Second
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 500 * time.Millisecond
	}
	if cfg.ProgressBytes <= 0 {
		cfg.ProgressBytes = 256 * 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Controller{
		cfg:          cfg,
		queue:        q,
		fetcher:      fetcher,
		sink:         sink,
		recorder:     recorder,
		resumeCh:     make(chan struct{}, 1),
		cancelParked: make(chan struct{}, 1),
	}
}

// Start binds the controller to its base context. It does not begin executing
// jobs; that is StartBatch's job.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx, c.cancel = context.WithCancel(ctx)
}

// Shutdown stops the execution goroutine and waits for it to drain.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// StartBatch begins pulling jobs until the queue is exhausted or CancelAll
// is issued. Calling it while a batch is already running is a no-op.
func (c *Controller) StartBatch() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running || c.ctx == nil {
		return
	}
	c.running = true
	c.abort = false

	c.wg.Add(1)
	go c.run(c.ctx)
}

// Running reports whether a batch loop is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// PauseCurrent signals the in-flight transfer to suspend. The job moves to
// paused once the engine acknowledges at the next chunk boundary.
func (c *Controller) PauseCurrent() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentID == "" || c.signal == nil {
		return &domain.InvalidStateError{Command: "pause"}
	}
	job, ok := c.queue.Job(c.currentID)
	if !ok || job.State != domain.JobStateDownloading {
		return &domain.InvalidStateError{Command: "pause", State: job.State}
	}
	c.signal.pause.Store(true)
	return nil
}

// ResumeCurrent re-invokes the engine for the paused job with its stored
// resume token.
func (c *Controller) ResumeCurrent() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pausedID == "" {
		return &domain.InvalidStateError{Command: "resume"}
	}
	select {
	case c.resumeCh <- struct{}{}:
	default:
	}
	return nil
}

// CancelCurrent stops the in-flight or paused job and lets the controller
// advance to the next eligible one.
func (c *Controller) CancelCurrent() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pausedID != "" {
		select {
		case c.cancelParked <- struct{}{}:
		default:
		}
		return nil
	}
	if c.currentID == "" || c.signal == nil {
		return &domain.InvalidStateError{Command: "cancel"}
	}
	c.signal.cancel.Store(true)
	if c.cancelPhase != nil {
		c.cancelPhase()
	}
	return nil
}

// CancelAll cancels the in-flight job (if any) and moves every remaining
// queued or paused job straight to cancelled without invoking the engine.
func (c *Controller) CancelAll() {
	c.mu.Lock()
	c.abort = true
	currentID := c.currentID
	if c.signal != nil {
		c.signal.cancel.Store(true)
	}
	if c.cancelPhase != nil {
		c.cancelPhase()
	}
	if c.pausedID != "" {
		select {
		case c.cancelParked <- struct{}{}:
		default:
		}
	}
	c.mu.Unlock()

	for job := range c.queue.Snapshot() {
		if job.ID == currentID {
			continue
		}
		if job.State != domain.JobStateQueued && job.State != domain.JobStatePaused {
			continue
		}
		c.finish(job.ID, domain.JobStateCancelled, nil)
	}
}

func (c *Controller) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		c.wg.Done()
	}()

	for {
		if ctx.Err() != nil || c.aborted() {
			return
		}
		job, ok := c.queue.NextEligible()
		if !ok {
			return
		}
		c.execute(ctx, job.ID)
	}
}

func (c *Controller) aborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.abort
}

// execute drives one job from queued to a terminal or paused-then-terminal
// state. A failure here never aborts the batch.
func (c *Controller) execute(ctx context.Context, id string) {
	sig := &transferSignal{}

	c.mu.Lock()
	c.currentID = id
	c.signal = sig
	aborted := c.abort
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.currentID = ""
		c.pausedID = ""
		c.signal = nil
		c.cancelPhase = nil
		c.mu.Unlock()
	}()

	// CancelAll may have raced this job past the run loop's abort check;
	// it must not reach the engine.
	if aborted {
		c.finish(id, domain.JobStateCancelled, nil)
		return
	}

	job, ok := c.queue.Job(id)
	if !ok {
		return
	}
	logger := c.cfg.Logger.WithField("job_id", id)

	c.queue.Mutate(id, func(j *domain.Job) {
		j.StartedAt = time.Now().UTC()
	})
	c.transition(id, domain.JobStateResolving, nil)

	info, err := c.resolve(ctx, job.SourceURL, sig)
	if sig.ShouldCancel() {
		logger.Info("job cancelled while resolving")
		c.finish(id, domain.JobStateCancelled, nil)
		return
	}
	if err != nil {
		kind := domain.ErrorKindResolve
		if errors.Is(err, context.DeadlineExceeded) {
			kind = domain.ErrorKindResolveTimeout
		}
		logger.Errorf("resolve failed: %v", err)
		c.finish(id, domain.JobStateFailed, &domain.JobError{Kind: kind, Detail: err.Error()})
		return
	}

	c.queue.Mutate(id, func(j *domain.Job) {
		if info.Title != "" {
			j.Title = info.Title
		}
		j.Progress.BytesTotal = info.BytesTotal
	})
	c.transition(id, domain.JobStateDownloading, nil)

	resumeToken := job.ResumeToken
	for {
		job, _ = c.queue.Job(id)
		res, err := c.fetcher.Transfer(ctx, engine.TransferRequest{
			URL:         job.SourceURL,
			Quality:     job.Quality,
			Format:      job.Format,
			ResumeToken: resumeToken,
			OnProgress:  c.progressFunc(id),
			Signal:      sig,
		})

		switch {
		case err == nil:
			c.queue.Mutate(id, func(j *domain.Job) {
				j.ResumeToken = ""
				if res != nil {
					j.OutputPath = res.OutputPath
				}
			})
			logger.Info("download completed")
			c.finish(id, domain.JobStateCompleted, nil)
			return

		case errors.Is(err, engine.ErrPaused):
			if res != nil {
				c.queue.Mutate(id, func(j *domain.Job) {
					j.ResumeToken = res.ResumeToken
				})
			}
			c.mu.Lock()
			c.pausedID = id
			c.mu.Unlock()
			c.transition(id, domain.JobStatePaused, nil)
			logger.Info("download paused")

			// a cancel issued while the engine was acknowledging the pause
			// landed on the transfer signal, which nobody polls while parked
			if sig.ShouldCancel() {
				c.clearParked()
				c.finish(id, domain.JobStateCancelled, nil)
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-c.cancelParked:
				c.clearParked()
				c.finish(id, domain.JobStateCancelled, nil)
				return
			case <-c.resumeCh:
				c.clearParked()
				sig.pause.Store(false)
				parked, ok := c.queue.Job(id)
				if !ok {
					logger.Warn("paused job disappeared, dropping it")
					return
				}
				resumeToken = parked.ResumeToken
				c.transition(id, domain.JobStateDownloading, nil)
				logger.Info("download resumed")
			}

		case errors.Is(err, engine.ErrCancelled):
			logger.Info("download cancelled")
			c.finish(id, domain.JobStateCancelled, nil)
			return

		default:
			if res != nil && res.ResumeToken != "" {
				c.queue.Mutate(id, func(j *domain.Job) {
					j.ResumeToken = res.ResumeToken
				})
			}
			logger.Errorf("transfer failed: %v", err)
			c.finish(id, domain.JobStateFailed, &domain.JobError{Kind: domain.ErrorKindTransfer, Detail: err.Error()})
			return
		}
	}
}

// resolve runs the engine's metadata step under the configured timeout. The
// cancel function is published so CancelCurrent can interrupt a hung resolve.
func (c *Controller) resolve(ctx context.Context, url string, sig *transferSignal) (*engine.ResolveInfo, error) {
	resolveCtx, cancel := context.WithTimeout(ctx, c.cfg.ResolveTimeout)
	defer cancel()

	c.mu.Lock()
	c.cancelPhase = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancelPhase = nil
		c.mu.Unlock()
	}()

	info, err := c.fetcher.Resolve(resolveCtx, url)
	if err != nil {
		if resolveCtx.Err() == context.DeadlineExceeded {
			return nil, context.DeadlineExceeded
		}
		return nil, err
	}
	if info == nil {
		info = &engine.ResolveInfo{}
	}
	return info, err
}

func (c *Controller) clearParked() {
	c.mu.Lock()
	c.pausedID = ""
	c.mu.Unlock()
	// drop stale signals left over from the parked window
	select {
	case <-c.resumeCh:
	default:
	}
	select {
	case <-c.cancelParked:
	default:
	}
}

// progressFunc returns the engine progress callback for one job, coalescing
// high frequency callbacks to the bounded event interval.
func (c *Controller) progressFunc(id string) func(received, total int64) {
	var (
		lastEmit  time.Time
		lastBytes int64
		lastTick  time.Time
	)
	return func(received, total int64) {
		now := time.Now()
		var rate int64
		if !lastTick.IsZero() {
			if elapsed := now.Sub(lastTick).Seconds(); elapsed > 0 {
				rate = int64(float64(received-lastBytes) / elapsed)
			}
		}

		var snapshot domain.Job
		c.queue.Mutate(id, func(j *domain.Job) {
			if received > j.Progress.BytesReceived {
				j.Progress.BytesReceived = received
			}
			if total > 0 {
				j.Progress.BytesTotal = total
			}
			if rate > 0 {
				j.Progress.Rate = rate
			}
			snapshot = *j
		})

		if now.Sub(lastEmit) < c.cfg.ProgressInterval && received-lastBytes < c.cfg.ProgressBytes {
			return
		}
		lastEmit = now
		lastTick = now
		lastBytes = received
		c.emit(snapshot)
	}
}

// transition commits a state change and emits the event synchronously. It
// reports whether the state machine accepted the move.
func (c *Controller) transition(id string, to domain.JobState, jobErr *domain.JobError) bool {
	var snapshot domain.Job
	ok := c.queue.Mutate(id, func(j *domain.Job) {
		if !j.State.CanTransition(to) {
			return
		}
		j.State = to
		j.Err = jobErr
		if to.Terminal() {
			j.FinishedAt = time.Now().UTC()
		}
		snapshot = *j
	})
	if !ok || snapshot.ID == "" {
		return false
	}
	c.emit(snapshot)
	return true
}

// finish moves a job to a terminal state and hands the outcome to the
// history recorder. A job some other path already finished is left alone so
// it is never recorded twice.
func (c *Controller) finish(id string, to domain.JobState, jobErr *domain.JobError) {
	if !c.transition(id, to, jobErr) {
		return
	}
	if job, ok := c.queue.Job(id); ok {
		c.record(job)
	}
}

func (c *Controller) emit(job domain.Job) {
	if c.sink == nil {
		return
	}
	c.sink.Publish(progress.Event{
		JobID:         job.ID,
		State:         job.State,
		BytesReceived: job.Progress.BytesReceived,
		BytesTotal:    job.Progress.BytesTotal,
		Rate:          job.Progress.Rate,
		Timestamp:     time.Now().UTC(),
	})
}

func (c *Controller) record(job domain.Job) {
	if c.recorder == nil || !job.State.Terminal() {
		return
	}
	rec := history.Record{
		JobID:      job.ID,
		SourceURL:  job.SourceURL,
		Title:      job.Title,
		Quality:    job.Quality,
		Format:     job.Format,
		State:      job.State,
		BytesTotal: job.Progress.BytesTotal,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.Err != nil {
		rec.ErrorKind = string(job.Err.Kind)
	}
	recordCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.recorder.Record(recordCtx, rec); err != nil {
		c.cfg.Logger.WithField("job_id", job.ID).Errorf("persist history record: %v", err)
	}
}
