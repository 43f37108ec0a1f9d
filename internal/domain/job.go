package domain

import "time"

type JobState string

const (
	JobStateQueued      JobState = "queued"
	JobStateResolving   JobState = "resolving"
	JobStateDownloading JobState = "downloading"
	JobStatePaused      JobState = "paused"
	JobStateCompleted   JobState = "completed"
	JobStateFailed      JobState = "failed"
	JobStateCancelled   JobState = "cancelled"
)

func (s JobState) String() string {
	return string(s)
}

// Active reports whether the job currently owns the execution slot.
func (s JobState) Active() bool {
	return s == JobStateResolving || s == JobStateDownloading
}

// Terminal reports whether the job can make no further transitions.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateCancelled
}

var transitions = map[JobState][]JobState{
	JobStateQueued:      {JobStateResolving, JobStateCancelled},
	JobStateResolving:   {JobStateDownloading, JobStateFailed, JobStateCancelled},
	JobStateDownloading: {JobStateCompleted, JobStatePaused, JobStateFailed, JobStateCancelled},
	JobStatePaused:      {JobStateDownloading, JobStateCancelled},
}

// CanTransition reports whether the state machine permits moving to the given state.
func (s JobState) CanTransition(to JobState) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Progress captures the transfer position of a single downloading run.
// BytesTotal stays zero until the resolve step learns the stream size.
type Progress struct {
	BytesReceived int64
	BytesTotal    int64
	Rate          int64
}

// Job represents one requested media download tracked by the system.
type Job struct {
	ID          string
	SourceURL   string
	Quality     string
	Format      string
	Title       string
	State       JobState
	Progress    Progress
	ResumeToken string
	OutputPath  string
	Err         *JobError
	CreatedAt   time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}
