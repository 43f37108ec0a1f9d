package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mediabatch/internal/domain"
)

// LogSink writes events to a logrus logger. State changes always log;
// download ticks are throttled so fast transfers do not flood the log.
type LogSink struct {
	logger *logrus.Logger

	mu        sync.Mutex
	lastState map[string]domain.JobState
	lastLog   map[string]time.Time
}

func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{
		logger:    logger,
		lastState: make(map[string]domain.JobState),
		lastLog:   make(map[string]time.Time),
	}
}

func (s *LogSink) Publish(event Event) {
	s.mu.Lock()
	changed := s.lastState[event.JobID] != event.State
	s.lastState[event.JobID] = event.State
	now := time.Now()
	throttled := !changed && now.Sub(s.lastLog[event.JobID]) < 500*time.Millisecond
	if !throttled {
		s.lastLog[event.JobID] = now
	}
	if event.State.Terminal() {
		delete(s.lastState, event.JobID)
		delete(s.lastLog, event.JobID)
	}
	s.mu.Unlock()

	if throttled {
		return
	}

	entry := s.logger.WithField("job_id", event.JobID)
	if changed {
		entry.Infof("job %s", event.State)
		return
	}

	if event.BytesTotal > 0 {
		percent := float64(event.BytesReceived) / float64(event.BytesTotal) * 100
		entry.Infof("download progress: %.1f%% (%s/%s) at %s/s",
			percent, formatBytes(event.BytesReceived), formatBytes(event.BytesTotal), formatBytes(event.Rate))
		return
	}
	entry.Infof("download progress: %s received at %s/s",
		formatBytes(event.BytesReceived), formatBytes(event.Rate))
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB",
		float64(b)/float64(div),
		"KMGTPE"[exp],
	)
}

var _ Sink = (*LogSink)(nil)
