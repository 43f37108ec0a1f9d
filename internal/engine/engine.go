package engine

import (
	"context"
	"errors"
	"fmt"
)

// Fetcher is the external capability that resolves a URL to stream metadata
// and performs the byte transfer. The core never inspects protocol details.
type Fetcher interface {
	Resolve(ctx context.Context, url string) (*ResolveInfo, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// ResolveInfo carries stream metadata learned before the transfer starts.
// BytesTotal is zero when the size is unknown up front.
type ResolveInfo struct {
	Title      string
	FileName   string
	BytesTotal int64
	Formats    []Format
}

// Format describes one downloadable rendition of the source.
type Format struct {
	ID       string
	Height   int
	Ext      string
	FileSize int64
}

// Signal delivers cooperative pause/cancel to an in-flight transfer.
// Implementations of Transfer must poll it at chunk boundaries so that
// pause/cancel latency stays bounded.
type Signal interface {
	ShouldPause() bool
	ShouldCancel() bool
}

type TransferRequest struct {
	URL         string
	Quality     string
	Format      string
	ResumeToken string
	OnProgress  func(received, total int64)
	Signal      Signal
}

// TransferResult reports the outcome of a transfer. When the transfer was
// interrupted (ErrPaused, or a TransferError with a usable checkpoint) the
// result still carries the resume token for a later restart.
type TransferResult struct {
	OutputPath  string
	ResumeToken string
}

var (
	// ErrPaused is returned by Transfer when the pause signal was honored.
	ErrPaused = errors.New("transfer paused")

	// ErrCancelled is returned by Transfer when the cancel signal was honored.
	ErrCancelled = errors.New("transfer cancelled")
)

// ResolveError wraps a failure to retrieve stream metadata.
type ResolveError struct {
	URL   string
	Cause error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.URL, e.Cause)
}

func (e *ResolveError) Unwrap() error {
	return e.Cause
}

// TransferError wraps a mid-download failure.
type TransferError struct {
	Cause error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer: %v", e.Cause)
}

func (e *TransferError) Unwrap() error {
	return e.Cause
}
