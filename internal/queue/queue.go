package queue

import (
	"fmt"
	"iter"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediabatch/internal/domain"
)

// Queue holds the ordered batch of jobs. Insertion order is execution order.
// All access goes through the queue mutex so the execution goroutine and
// callers on other goroutines never race on job fields.
type Queue struct {
	mu   sync.Mutex
	jobs []*domain.Job
}

func New() *Queue {
	return &Queue{}
}

// Enqueue validates the URL, creates a queued job and appends it.
func (q *Queue) Enqueue(rawURL, quality, format string) (domain.Job, error) {
	if err := validateURL(rawURL); err != nil {
		return domain.Job{}, err
	}

	job := &domain.Job{
		ID:        uuid.NewString(),
		SourceURL: rawURL,
		Quality:   quality,
		Format:    format,
		State:     domain.JobStateQueued,
		CreatedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	return *job, nil
}

// Remove drops a queued or terminal job. Active and paused jobs must be
// cancelled first; the controller may still hold their execution slot.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, job := range q.jobs {
		if job.ID != id {
			continue
		}
		if job.State.Active() || job.State == domain.JobStatePaused {
			return &domain.InvalidStateError{Command: "remove", State: job.State}
		}
		q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
		return nil
	}
	return domain.ErrJobNotFound
}

// NextEligible returns a copy of the earliest queued job, if any. Paused jobs
// are skipped over until they are explicitly resumed.
func (q *Queue) NextEligible() (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.jobs {
		if job.State == domain.JobStateQueued {
			return *job, true
		}
	}
	return domain.Job{}, false
}

// Job returns a copy of the job with the given id.
func (q *Queue) Job(id string) (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.jobs {
		if job.ID == id {
			return *job, true
		}
	}
	return domain.Job{}, false
}

// Mutate runs fn against the stored job under the queue lock. It reports
// whether the job exists.
func (q *Queue) Mutate(id string, fn func(*domain.Job)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.jobs {
		if job.ID == id {
			fn(job)
			return true
		}
	}
	return false
}

// Snapshot returns a restartable sequence over a copy of the job list taken
// at call time. It does not observe later queue changes.
func (q *Queue) Snapshot() iter.Seq[domain.Job] {
	q.mu.Lock()
	copied := make([]domain.Job, len(q.jobs))
	for i, job := range q.jobs {
		copied[i] = *job
	}
	q.mu.Unlock()

	return func(yield func(domain.Job) bool) {
		for _, job := range copied {
			if !yield(job) {
				return
			}
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidURL, rawURL)
	}
	switch parsed.Scheme {
	case "http", "https":
		if parsed.Host == "" {
			return fmt.Errorf("%w: missing host in %s", domain.ErrInvalidURL, rawURL)
		}
	case "magnet":
		if parsed.Query().Get("xt") == "" {
			return fmt.Errorf("%w: magnet link without exact topic: %s", domain.ErrInvalidURL, rawURL)
		}
	default:
		return fmt.Errorf("%w: unsupported scheme %q", domain.ErrInvalidURL, parsed.Scheme)
	}
	return nil
}
