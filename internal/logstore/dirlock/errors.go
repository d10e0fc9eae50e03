package dirlock

import "fmt"

// LockError reports a failed lock operation on a log directory.
type LockError struct {
	Op  string
	Dir string
	Err error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("dirlock %s %s: %v", e.Op, e.Dir, e.Err)
}

func (e *LockError) Unwrap() error {
	return e.Err
}

func wrapLockErr(op, dir string, err error) error {
	return &LockError{Op: op, Dir: dir, Err: err}
}
