package logstore

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by every operation on a closed log.
	ErrClosed = errors.New("logstore: log is closed")

	// ErrMemoryOnly is returned by Sync on an in-memory instance.
	ErrMemoryOnly = errors.New("logstore: in-memory log cannot sync")

	// ErrNoIndex means the named index was not declared in OpenOptions.
	ErrNoIndex = errors.New("logstore: no such index")

	// ErrNoFold means the named fold was not declared in OpenOptions.
	ErrNoFold = errors.New("logstore: no such fold")

	// ErrCorrupt marks damage in the primary file or its committed-length
	// accounting.
	ErrCorrupt = errors.New("logstore: corrupt")

	// ErrInvalidOptions marks an unusable OpenOptions configuration.
	ErrInvalidOptions = errors.New("logstore: invalid options")
)

// LogError wraps a lower-level failure with the operation and directory it
// happened in.
type LogError struct {
	Op  string
	Dir string
	Err error
}

func (e *LogError) Error() string {
	if e.Dir == "" {
		return fmt.Sprintf("logstore %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("logstore %s %s: %v", e.Op, e.Dir, e.Err)
}

func (e *LogError) Unwrap() error {
	return e.Err
}

func wrapErr(op, dir string, err error) error {
	return &LogError{Op: op, Dir: dir, Err: err}
}
