package index

import (
	"errors"
	"fmt"
)

var (
	// ErrProgramming marks caller defects (bad reference ranges, misused
	// retraction outputs), as opposed to storage damage.
	ErrProgramming = errors.New("index: programming error")

	// ErrCorrupt marks a damaged durable index file. Indexes are fully
	// derivable from the primary log, but rebuilding is a caller decision.
	ErrCorrupt = errors.New("index: corrupt")

	ErrInvalidDef = errors.New("index: invalid definition")
)

// shortEntryEcho bounds how large an entry may be for its bytes to be
// echoed in a range error message.
const shortEntryEcho = 128

// RangeError reports an extraction function returning a Reference outside
// the entry's bounds. Short entries are echoed to aid debugging.
type RangeError struct {
	Start   uint64
	End     uint64
	DataLen int
	// Data holds the entry bytes when the entry is short enough to echo.
	Data []byte
}

func newRangeError(start, end uint64, data []byte) *RangeError {
	e := &RangeError{
		Start:   start,
		End:     end,
		DataLen: len(data),
	}
	if len(data) < shortEntryEcho {
		e.Data = data
	}
	return e
}

func (e *RangeError) Error() string {
	msg := fmt.Sprintf("index func returned range [%d, %d) but the entry only has %d bytes",
		e.Start, e.End, e.DataLen)
	if e.Data != nil {
		msg += fmt.Sprintf("; entry = %q", e.Data)
	}
	return msg
}

func (e *RangeError) Is(target error) bool {
	return target == ErrProgramming
}

// MisuseError reports a Remove/RemovePrefix output used where a plain key
// was required.
type MisuseError struct {
	Kind OutputKind
}

func newMisuseError(kind OutputKind) *MisuseError {
	return &MisuseError{Kind: kind}
}

func (e *MisuseError) Error() string {
	return fmt.Sprintf("index output %s carries a retraction instruction, not a key", e.Kind)
}

func (e *MisuseError) Is(target error) bool {
	return target == ErrProgramming
}

// FileError reports a problem with a durable index file.
type FileError struct {
	Op   string
	Name string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("index %s: %s %s: %v", e.Name, e.Op, e.Path, e.Err)
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
