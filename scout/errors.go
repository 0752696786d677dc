package scout

import "errors"

// ErrNotFound is returned when the referenced scout does not exist.
var ErrNotFound = errors.New("scout: not found")

// ErrUnauthenticated is returned when a trigger carries no valid caller.
var ErrUnauthenticated = errors.New("scout: unauthenticated")

// ErrForbidden is returned when the caller does not own the scout.
var ErrForbidden = errors.New("scout: not authorized for this scout")

// ErrNotRunnable is returned when a scout is inactive or its
// configuration is incomplete. Never retried.
var ErrNotRunnable = errors.New("scout: not runnable")

// ErrAlreadyRunning is returned when a scout already has a running
// execution. The storage layer guarantees at most one.
var ErrAlreadyRunning = errors.New("scout: execution already running")

// ErrInvalidInput is returned when scout fields fail validation.
var ErrInvalidInput = errors.New("scout: invalid input")

// ErrKeyRejected is returned (possibly wrapped) by agents when the
// scrape provider refuses the API key. The orchestrator reacts by
// invalidating the user's personal key.
var ErrKeyRejected = errors.New("scout: api key rejected by provider")
