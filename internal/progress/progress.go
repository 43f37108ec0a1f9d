package progress

import (
	"time"

	"mediabatch/internal/domain"
)

// Event is one observation of a job: either a state transition or a bounded
// progress tick while downloading.
type Event struct {
	JobID         string
	State         domain.JobState
	BytesReceived int64
	BytesTotal    int64
	Rate          int64
	Timestamp     time.Time
}

// Sink receives events synchronously with the transition that produced them.
// Implemented by the GUI/CLI/logging layers, not by the core.
type Sink interface {
	Publish(event Event)
}

// Multi fans one event out to several sinks in order.
type Multi []Sink

func (m Multi) Publish(event Event) {
	for _, sink := range m {
		sink.Publish(event)
	}
}
