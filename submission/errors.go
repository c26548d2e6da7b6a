package submission

import "errors"

var (
	// ErrAlreadyQueued is returned when a job for the same target is waiting.
	ErrAlreadyQueued = errors.New("relval: already queued for submission")

	// ErrAlreadyRunning is returned when a worker is running a job for the same target.
	ErrAlreadyRunning = errors.New("relval: submission already running")

	// ErrStopped is returned when submitting to a stopped pool.
	ErrStopped = errors.New("relval: submission pool is stopped")
)
