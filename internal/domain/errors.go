package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL rejects input that is not a syntactically valid remote media reference.
	ErrInvalidURL = errors.New("invalid media URL")

	// ErrJobNotFound reports a lookup for an unknown job id.
	ErrJobNotFound = errors.New("job not found")
)

// InvalidStateError reports a command issued against a job whose state does
// not accept it. The job is left untouched.
type InvalidStateError struct {
	Command string
	State   JobState
}

func (e *InvalidStateError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("%s not allowed: no active job", e.Command)
	}
	return fmt.Sprintf("%s not allowed while job is %s", e.Command, e.State)
}

// ErrorKind classifies terminal job failures for history and observers.
type ErrorKind string

const (
	ErrorKindResolve        ErrorKind = "resolve"
	ErrorKindResolveTimeout ErrorKind = "resolve_timeout"
	ErrorKindTransfer       ErrorKind = "transfer"
)

// JobError carries the classified failure of a job in the failed state.
type JobError struct {
	Kind   ErrorKind
	Detail string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}
