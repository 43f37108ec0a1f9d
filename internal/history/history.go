package history

import (
	"context"
	"time"

	"mediabatch/internal/domain"
)

// Record is the persisted outcome of one terminal job.
type Record struct {
	ID         int64
	JobID      string
	SourceURL  string
	Title      string
	Quality    string
	Format     string
	State      domain.JobState
	BytesTotal int64
	ErrorKind  string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Recorder persists terminal job outcomes.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
	List(ctx context.Context, limit int) ([]Record, error)
	Clear(ctx context.Context) error
}
