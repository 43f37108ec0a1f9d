package controller

import (
	"sync/atomic"

	"mediabatch/internal/engine"
)

// transferSignal carries pause/cancel intent from caller goroutines to the
// engine, which polls it at chunk boundaries.
type transferSignal struct {
	pause  atomic.Bool
	cancel atomic.Bool
}

func (s *transferSignal) ShouldPause() bool {
	return s.pause.Load()
}

func (s *transferSignal) ShouldCancel() bool {
	return s.cancel.Load()
}

var _ engine.Signal = (*transferSignal)(nil)
