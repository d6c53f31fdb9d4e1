package domain

import "errors"

// Domain errors represent error conditions in the bulkship domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("bulkship: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("bulkship: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("bulkship: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("bulkship: invalid configuration")

	// ErrMissingToken is returned when no destination token is configured.
	ErrMissingToken = errors.New("bulkship: token not specified")

	// ErrBusy is returned when a stored batch is locked by another sender.
	ErrBusy = errors.New("bulkship: stored batch is locked")

	// ErrGone is returned when a stored batch no longer exists.
	ErrGone = errors.New("bulkship: stored batch is gone")

	// ErrMalformedRequest is returned when a stored batch cannot be replayed.
	ErrMalformedRequest = errors.New("bulkship: malformed stored request")

	// ErrTransient marks failures that are worth retrying later.
	ErrTransient = errors.New("bulkship: transient delivery failure")

	// ErrPermanent marks failures that will never succeed.
	ErrPermanent = errors.New("bulkship: permanent delivery failure")
)
