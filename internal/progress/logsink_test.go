package progress

import (
	"testing"

	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"mediabatch/internal/domain"
)

func TestLogSink_StateChangesAlwaysLog(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	sink := NewLogSink(logger)

	sink.Publish(Event{JobID: "job-1", State: domain.JobStateResolving})
	sink.Publish(Event{JobID: "job-1", State: domain.JobStateDownloading})
	sink.Publish(Event{JobID: "job-1", State: domain.JobStateCompleted})

	assert.Len(t, hook.Entries, 3)
}

func TestLogSink_ThrottlesProgressTicks(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	sink := NewLogSink(logger)

	sink.Publish(Event{JobID: "job-1", State: domain.JobStateDownloading, BytesReceived: 100, BytesTotal: 1000})
	for i := 0; i < 20; i++ {
		sink.Publish(Event{JobID: "job-1", State: domain.JobStateDownloading, BytesReceived: int64(200 + i), BytesTotal: 1000})
	}

	// one for the state change, then at most one unthrottled tick
	assert.LessOrEqual(t, len(hook.Entries), 2)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512B"},
		{2048, "2.0KiB"},
		{5 * 1024 * 1024, "5.0MiB"},
		{3 * 1024 * 1024 * 1024, "3.0GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.in))
	}
}
