package entry

import (
	"encoding/binary"
	"io"
)

// EncodedSize returns the total frame size for a payload of the given
// length under the given checksum policy.
func EncodedSize(payloadLen int, policy ChecksumType) uint64 {
	ct := policy.resolve(payloadLen)
	return uint64(LenHeaderSize + ChecksumTypeSize + payloadLen + ct.Size())
}

// Encode frames a payload under the given checksum policy:
//
//	u32 payload length | u8 checksum type | payload | checksum
//
// The checksum covers the checksum-type byte and the payload. Zero-length
// payloads are legal.
func Encode(payload []byte, policy ChecksumType) ([]byte, error) {
	if len(payload) > MaxEntrySize {
		return nil, &ParseError{
			Kind:        KindTooLarge,
			DeclaredLen: uint32(len(payload)), //nolint:gosec
			Want:        MaxEntrySize,
			Have:        len(payload),
			Err:         ErrTooLarge,
		}
	}

	ct := policy.resolve(len(payload))
	data := make([]byte, LenHeaderSize+ChecksumTypeSize+len(payload), EncodedSize(len(payload), policy))
	binary.LittleEndian.PutUint32(data[:LenHeaderSize], uint32(len(payload))) //nolint:gosec
	data[LenHeaderSize] = byte(ct)
	copy(data[LenHeaderSize+ChecksumTypeSize:], payload)

	data = append(data, sum(ct, data[LenHeaderSize:])...)
	return data, nil
}

// DecodePrefix decodes exactly one frame from the start of data, allowing
// trailing bytes. The frame's Offset is reported as 0; callers tracking
// positions within a larger sequence add their own base.
func DecodePrefix(data []byte) (Frame, error) {
	if len(data) < LenHeaderSize+ChecksumTypeSize {
		return Frame{}, &ParseError{
			Kind: KindTruncated,
			Want: LenHeaderSize + ChecksumTypeSize,
			Have: len(data),
			Err:  io.ErrUnexpectedEOF,
		}
	}

	payloadLen := binary.LittleEndian.Uint32(data[:LenHeaderSize])
	if payloadLen > MaxEntrySize {
		return Frame{}, &ParseError{
			Kind:        KindTooLarge,
			DeclaredLen: payloadLen,
			Want:        MaxEntrySize,
			Have:        int(payloadLen),
			Err:         ErrTooLarge,
		}
	}

	rawType := data[LenHeaderSize]
	ct := ChecksumType(rawType)
	if !ct.valid() {
		return Frame{}, &ParseError{
			Kind:            KindInvalidChecksumType,
			DeclaredLen:     payloadLen,
			RawChecksumType: rawType,
			Err:             ErrInvalidChecksumType,
		}
	}

	total := LenHeaderSize + ChecksumTypeSize + int(payloadLen) + ct.Size()
	if len(data) < total {
		return Frame{}, &ParseError{
			Kind:            KindTruncated,
			DeclaredLen:     payloadLen,
			RawChecksumType: rawType,
			Want:            total,
			Have:            len(data),
			Err:             io.ErrUnexpectedEOF,
		}
	}

	body := data[LenHeaderSize : LenHeaderSize+ChecksumTypeSize+int(payloadLen)]
	want := data[LenHeaderSize+ChecksumTypeSize+int(payloadLen) : total]
	if !verify(ct, body, want) {
		return Frame{}, &ParseError{
			Kind:            KindChecksumMismatch,
			DeclaredLen:     payloadLen,
			RawChecksumType: rawType,
			Err:             ErrChecksumMismatch,
		}
	}

	return Frame{
		Payload:  body[ChecksumTypeSize:],
		Checksum: ct,
		Offset:   0,
		Size:     uint64(total),
	}, nil
}

// Decode decodes a frame from data, requiring that data contains exactly
// one frame with no trailing bytes.
func Decode(data []byte) (Frame, error) {
	f, err := DecodePrefix(data)
	if err != nil {
		return Frame{}, err
	}
	if uint64(len(data)) != f.Size {
		return Frame{}, &ParseError{
			Kind:        KindCorrupt,
			DeclaredLen: uint32(len(f.Payload)), //nolint:gosec
			Want:        int(f.Size),
			Have:        len(data),
			Err:         ErrCorrupt,
		}
	}
	return f, nil
}
