package entrycache

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrentWriteConflict: a Write intent met a generation that is still being written.
	ErrConcurrentWriteConflict = errors.New("entrycache: concurrent write conflict")
	// ErrNoActiveEntry: recreate without a live readable generation.
	ErrNoActiveEntry = errors.New("entrycache: no active entry")
	// ErrWriterFailed: the generation a caller waited on was abandoned.
	ErrWriterFailed = errors.New("entrycache: writer failed")
	// ErrNotCached: read-only open of a key without a readable generation.
	ErrNotCached = errors.New("entrycache: entry not cached")
	// ErrWithdrawn: the attachment was withdrawn before it resolved.
	ErrWithdrawn = errors.New("entrycache: attachment withdrawn")
	// ErrClosed: the Access is closed.
	ErrClosed = errors.New("entrycache: closed")
	// ErrNotWriter: Complete/Abandon on a handle that does not own a writing generation.
	ErrNotWriter = errors.New("entrycache: handle is not the writer")
	// ErrWriterClosed is the cause recorded when a writer handle is closed unfinished.
	ErrWriterClosed = errors.New("entrycache: writer closed without completing")
	// ErrInvalidKey: empty key.
	ErrInvalidKey = errors.New("entrycache: invalid key")
)

// WriterFailedError is delivered to every attachment queued on an abandoned generation.
// errors.Is(err, ErrWriterFailed) holds, and Cause is reachable through errors.Is/As.
type WriterFailedError struct {
	Key        string
	Generation uint64
	Cause      error
}

func (e *WriterFailedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("entrycache: writer of %q (gen %d) failed", e.Key, e.Generation)
	}
	return fmt.Sprintf("entrycache: writer of %q (gen %d) failed: %v", e.Key, e.Generation, e.Cause)
}

func (e *WriterFailedError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrWriterFailed}
	}
	return []error{ErrWriterFailed, e.Cause}
}

// PersistError reports a failure to encode or store a generation.
type PersistError struct {
	Key        string
	Generation uint64
	Op         string // "encode", "frame", "set"
	Err        error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("entrycache: persist %q (gen %d) %s: %v", e.Key, e.Generation, e.Op, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
