package fold

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupt marks a damaged fold checkpoint file. Fold state is fully
	// derivable from the primary log; rebuilding is a caller decision.
	ErrCorrupt = errors.New("fold: corrupt")

	ErrInvalidDef = errors.New("fold: invalid definition")
)

// FileError reports a problem with a durable fold checkpoint file.
type FileError struct {
	Op   string
	Name string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("fold %s: %s %s: %v", e.Name, e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func wrapFileErr(op, name, path string, err error) error {
	return &FileError{
		Op:   op,
		Name: name,
		Path: path,
		Err:  err,
	}
}
