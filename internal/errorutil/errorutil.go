package errorutil

import "errors"

// ErrDataIntegrity is a base error type to use for failures that are due to
// unrecoverable data integrity issues.
var ErrDataIntegrity = errors.New("data integrity error")

var (
	// ErrAlreadyRunning is returned when a profiler is started twice.
	ErrAlreadyRunning = errors.New("profiler already running")
	// ErrNotRunning is returned when a profiler is stopped without being started.
	ErrNotRunning = errors.New("profiler not running")
	// ErrMismatchedReturn marks a return event with no open call on its thread.
	ErrMismatchedReturn = errors.New("return event without a matching call")
	// ErrNoDataAvailable is returned when results are read before any session completed.
	ErrNoDataAvailable = errors.New("no completed profiling session")
)
