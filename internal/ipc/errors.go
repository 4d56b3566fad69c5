package ipc

import "errors"

// Sentinel errors returned by channel operations. Syscall context is
// attached by wrapping; match with errors.Is.
var (
	// ErrCreate indicates pipe/socket/segment/semaphore allocation failed.
	ErrCreate = errors.New("resource creation failed")

	// ErrSpawn indicates the receiver child process could not be started.
	ErrSpawn = errors.New("child process spawn failed")

	// ErrInvalidState indicates an operation issued by the wrong role or
	// on an inactive channel.
	ErrInvalidState = errors.New("operation not valid in current state")

	// ErrWrite and ErrRead indicate I/O syscall failures on an open channel.
	ErrWrite = errors.New("write failed")
	ErrRead  = errors.New("read failed")

	// ErrMessageTooLarge indicates a message exceeding the channel's fixed
	// buffer, detected before any write is attempted.
	ErrMessageTooLarge = errors.New("message exceeds channel capacity")

	// ErrLockTimeout indicates a bounded semaphore wait expired.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrNotAttached indicates a shared-memory operation before create/attach.
	ErrNotAttached = errors.New("not attached to shared memory")

	// ErrNotFound indicates an attach to a nonexistent shared-memory key.
	ErrNotFound = errors.New("shared memory segment not found")

	// ErrParse indicates a malformed command record.
	ErrParse = errors.New("malformed command")
)

// Operation status tags recorded after every send/receive attempt.
const (
	StatusIdle        = "idle"
	StatusReady       = "ready"
	StatusSent        = "sent"
	StatusReceived    = "received"
	StatusEOF         = "eof"
	StatusClosed      = "closed"
	StatusErrCreate   = "error_create"
	StatusErrSpawn    = "error_spawn"
	StatusErrWrite    = "error_write"
	StatusErrRead     = "error_read"
	StatusErrState    = "error_invalid_state"
	StatusErrTooLarge = "error_too_large"
	StatusErrLock     = "error_lock_timeout"
	StatusErrAttach   = "error_not_attached"
)
