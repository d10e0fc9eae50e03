package entry_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/julianstephens/logstore/internal/logstore/entry"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	testCases := []struct {
		name    string
		policy  entry.ChecksumType
		payload []byte
		want    entry.ChecksumType
	}{
		{"crc32c_short", entry.ChecksumCRC32C, []byte("hello"), entry.ChecksumCRC32C},
		{"xxhash64_short", entry.ChecksumXxhash64, []byte("hello"), entry.ChecksumXxhash64},
		{"auto_short_picks_narrow", entry.ChecksumAuto, []byte("hello"), entry.ChecksumCRC32C},
		{"auto_long_picks_wide", entry.ChecksumAuto, bytes.Repeat([]byte("x"), entry.AutoChecksumPivot), entry.ChecksumXxhash64},
		{"empty_payload", entry.ChecksumAuto, []byte{}, entry.ChecksumCRC32C},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := entry.Encode(tc.payload, tc.policy)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if uint64(len(encoded)) != entry.EncodedSize(len(tc.payload), tc.policy) {
				t.Errorf("expected size %d, got %d", entry.EncodedSize(len(tc.payload), tc.policy), len(encoded))
			}

			f, err := entry.Decode(encoded)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.Checksum != tc.want {
				t.Errorf("expected checksum type %v, got %v", tc.want, f.Checksum)
			}
			if !bytes.Equal(f.Payload, tc.payload) {
				t.Errorf("payload mismatch")
			}
			if f.Size != uint64(len(encoded)) {
				t.Errorf("expected frame size %d, got %d", len(encoded), f.Size)
			}
		})
	}
}

func TestDecodeErrorDetection(t *testing.T) {
	valid, err := entry.Encode([]byte("some-data"), entry.ChecksumAuto)
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name         string
		prepare      func() []byte
		expectedKind entry.ParseErrorKind
	}{
		{"truncated_header", func() []byte {
			return valid[:3]
		}, entry.KindTruncated},
		{"truncated_body", func() []byte {
			return valid[:len(valid)-2]
		}, entry.KindTruncated},
		{"payload_bit_flip", func() []byte {
			corrupted := bytes.Clone(valid)
			corrupted[entry.LenHeaderSize+entry.ChecksumTypeSize] ^= 0xFF
			return corrupted
		}, entry.KindChecksumMismatch},
		{"checksum_bit_flip", func() []byte {
			corrupted := bytes.Clone(valid)
			corrupted[len(corrupted)-1] ^= 0xFF
			return corrupted
		}, entry.KindChecksumMismatch},
		{"invalid_checksum_type", func() []byte {
			corrupted := bytes.Clone(valid)
			corrupted[entry.LenHeaderSize] = 0x7F
			return corrupted
		}, entry.KindInvalidChecksumType},
		{"too_large_length", func() []byte {
			buf := make([]byte, entry.LenHeaderSize+entry.ChecksumTypeSize)
			binary.LittleEndian.PutUint32(buf, uint32(entry.MaxEntrySize+1))
			return buf
		}, entry.KindTooLarge},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := entry.DecodePrefix(tc.prepare())
			if err == nil {
				t.Fatal("expected error, got none")
			}
			pe, ok := entry.AsParseError(err)
			if !ok {
				t.Fatalf("expected ParseError, got %T", err)
			}
			if pe.Kind != tc.expectedKind {
				t.Errorf("expected Kind=%v, got %v", tc.expectedKind, pe.Kind)
			}
		})
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	encoded, err := entry.Encode([]byte("data"), entry.ChecksumCRC32C)
	if err != nil {
		t.Fatal(err)
	}
	withTrailer := append(bytes.Clone(encoded), 0x00)

	// DecodePrefix tolerates trailing bytes; Decode does not.
	if _, err := entry.DecodePrefix(withTrailer); err != nil {
		t.Fatalf("DecodePrefix: unexpected error: %v", err)
	}
	_, err = entry.Decode(withTrailer)
	pe, ok := entry.AsParseError(err)
	if !ok || pe.Kind != entry.KindCorrupt {
		t.Fatalf("expected KindCorrupt, got %v", err)
	}
}

func TestEncodeTooLarge(t *testing.T) {
	_, err := entry.Encode(make([]byte, entry.MaxEntrySize+1), entry.ChecksumAuto)
	if err == nil {
		t.Fatal("expected error for oversized payload")
	}
	pe, ok := entry.AsParseError(err)
	if !ok || pe.Kind != entry.KindTooLarge {
		t.Fatalf("expected KindTooLarge, got %v", err)
	}
}

func TestIsCorruption(t *testing.T) {
	encoded, err := entry.Encode([]byte("data"), entry.ChecksumCRC32C)
	if err != nil {
		t.Fatal(err)
	}
	corrupted := bytes.Clone(encoded)
	corrupted[len(corrupted)-1] ^= 0x01

	_, err = entry.Decode(corrupted)
	if !entry.IsCorruption(err) {
		t.Errorf("expected corruption classification for %v", err)
	}

	_, err = entry.DecodePrefix(encoded[:2])
	if entry.IsCorruption(err) {
		t.Errorf("truncation should not classify as corruption: %v", err)
	}
	if !entry.IsTruncation(err) {
		t.Errorf("expected truncation classification for %v", err)
	}
}
