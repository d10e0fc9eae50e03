package meta

import (
	"errors"
	"fmt"
)

type MetaErrorKind int

const (
	MetaErrorKindNotFound MetaErrorKind = iota + 1
	MetaErrorKindUnsupportedVersion
	MetaErrorKindEncode
	MetaErrorKindDecode
	MetaErrorKindWrite
	MetaErrorKindUnknown
)

var (
	// ErrUninitialized means the directory has no metadata file, i.e. no
	// log has ever been created there.
	ErrUninitialized = errors.New("meta: log not initialized")

	ErrUnsupportedVersion = errors.New("meta: unsupported version")
	ErrEncode             = errors.New("meta: unable to encode to JSON")
	ErrDecode             = errors.New("meta: unable to decode from JSON")
	ErrWrite              = errors.New("meta: unable to write to file")
)

type MetaError struct {
	Kind MetaErrorKind
	Dir  string
	Err  error
}

func (e *MetaError) Error() string {
	return fmt.Sprintf("meta error (%v) in %s: %v", e.Kind, e.Dir, e.Err)
}

func (e *MetaError) Unwrap() error {
	switch e.Kind {
	case MetaErrorKindNotFound:
		return ErrUninitialized
	case MetaErrorKindUnsupportedVersion:
		return ErrUnsupportedVersion
	case MetaErrorKindEncode:
		return ErrEncode
	case MetaErrorKindDecode:
		return ErrDecode
	case MetaErrorKindWrite:
		return ErrWrite
	default:
		return e.Err
	}
}
