package entry

import (
	"encoding/binary"
	"io"
)

// FrameReader streams frames from an io.Reader, tracking byte offsets.
// A clean end of input is reported as io.EOF; a partial trailing frame is
// a ParseError with KindTruncated.
type FrameReader struct {
	r      io.Reader
	offset uint64
}

// NewFrameReader creates a FrameReader whose reported offsets start at base.
func NewFrameReader(r io.Reader, base uint64) *FrameReader {
	return &FrameReader{
		r:      r,
		offset: base,
	}
}

// Next reads the next frame from the underlying reader.
func (fr *FrameReader) Next() (Frame, error) {
	frameStart := fr.offset

	hdr := make([]byte, LenHeaderSize+ChecksumTypeSize)
	n, err := io.ReadFull(fr.r, hdr)
	if err != nil {
		fr.offset += uint64(n)
		if err == io.EOF && n == 0 {
			return Frame{}, io.EOF
		}
		return Frame{}, &ParseError{
			Kind:   KindTruncated,
			Offset: frameStart,
			Want:   len(hdr),
			Have:   n,
			Err:    io.ErrUnexpectedEOF,
		}
	}

	payloadLen := binary.LittleEndian.Uint32(hdr[:LenHeaderSize])
	if payloadLen > MaxEntrySize {
		return Frame{}, &ParseError{
			Kind:        KindTooLarge,
			Offset:      frameStart,
			DeclaredLen: payloadLen,
			Want:        MaxEntrySize,
			Have:        int(payloadLen),
			Err:         ErrTooLarge,
		}
	}

	rawType := hdr[LenHeaderSize]
	ct := ChecksumType(rawType)
	if !ct.valid() {
		return Frame{}, &ParseError{
			Kind:            KindInvalidChecksumType,
			Offset:          frameStart,
			DeclaredLen:     payloadLen,
			RawChecksumType: rawType,
			Err:             ErrInvalidChecksumType,
		}
	}

	rest := make([]byte, int(payloadLen)+ct.Size())
	n, err = io.ReadFull(fr.r, rest)
	if err != nil {
		fr.offset += uint64(len(hdr) + n)
		return Frame{}, &ParseError{
			Kind:            KindTruncated,
			Offset:          frameStart,
			DeclaredLen:     payloadLen,
			RawChecksumType: rawType,
			Want:            len(rest),
			Have:            n,
			Err:             io.ErrUnexpectedEOF,
		}
	}
	fr.offset += uint64(len(hdr) + len(rest))

	// The checksummed region is the type byte plus the payload.
	body := make([]byte, ChecksumTypeSize+int(payloadLen))
	body[0] = rawType
	copy(body[ChecksumTypeSize:], rest[:payloadLen])
	if !verify(ct, body, rest[payloadLen:]) {
		return Frame{}, &ParseError{
			Kind:            KindChecksumMismatch,
			Offset:          frameStart,
			DeclaredLen:     payloadLen,
			RawChecksumType: rawType,
			Err:             ErrChecksumMismatch,
		}
	}

	return Frame{
		Payload:  rest[:payloadLen],
		Checksum: ct,
		Offset:   frameStart,
		Size:     uint64(len(hdr) + len(rest)),
	}, nil
}

// Offset returns the byte offset the next frame would start at.
func (fr *FrameReader) Offset() uint64 {
	return fr.offset
}
