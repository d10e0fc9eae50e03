package entry

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrTruncated           = errors.New("entry: truncated")
	ErrTooLarge            = errors.New("entry: too large")
	ErrInvalidChecksumType = errors.New("entry: invalid checksum type")
	ErrChecksumMismatch    = errors.New("entry: checksum mismatch")
	ErrCorrupt             = errors.New("entry: corrupt")
)

type ParseErrorKind uint8

const (
	KindTruncated ParseErrorKind = iota
	KindTooLarge
	KindInvalidChecksumType
	KindChecksumMismatch
	KindCorrupt
)

func (k ParseErrorKind) String() string {
	switch k {
	case KindTruncated:
		return "truncated"
	case KindTooLarge:
		return "too_large"
	case KindInvalidChecksumType:
		return "invalid_checksum_type"
	case KindChecksumMismatch:
		return "checksum_mismatch"
	case KindCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// ParseError reports a frame that could not be decoded. Everything except
// KindTruncated indicates corruption of committed bytes.
type ParseError struct {
	Kind ParseErrorKind
	// Offset is the starting byte offset of the frame (at the length prefix).
	Offset uint64
	// DeclaredLen is the payload length read from the length prefix.
	DeclaredLen uint32
	// RawChecksumType is the raw checksum-type byte, if one was read.
	RawChecksumType byte
	Want            int
	Have            int
	Err             error
}

func (e *ParseError) Error() string {
	cause := "<nil>"
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return fmt.Sprintf("entry parse error kind=%s offset=%d len=%d cktype=0x%02x want=%d have=%d: %s",
		e.Kind.String(), e.Offset, e.DeclaredLen, e.RawChecksumType, e.Want, e.Have, cause)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	switch target {
	case ErrTruncated:
		return e.Kind == KindTruncated
	case ErrTooLarge:
		return e.Kind == KindTooLarge
	case ErrInvalidChecksumType:
		return e.Kind == KindInvalidChecksumType
	case ErrChecksumMismatch:
		return e.Kind == KindChecksumMismatch
	case ErrCorrupt:
		return e.Kind == KindCorrupt
	}
	return false
}

func AsParseError(err error) (*ParseError, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func IsCleanEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

func IsTruncation(err error) bool {
	return errors.Is(err, ErrTruncated)
}

// IsCorruption reports whether err indicates damaged committed bytes, as
// opposed to a clean or truncated tail.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorrupt) || errors.Is(err, ErrTooLarge) ||
		errors.Is(err, ErrInvalidChecksumType) || errors.Is(err, ErrChecksumMismatch)
}
