package entry

const (
	// LenHeaderSize is the length of the payload-length prefix.
	LenHeaderSize = 4
	// ChecksumTypeSize is the length of the checksum-type byte.
	ChecksumTypeSize = 1
	// MaxEntrySize bounds a single entry payload.
	MaxEntrySize = 16 * 1024 * 1024 // 16 MB
	// AutoChecksumPivot is the payload size at which ChecksumAuto switches
	// from the narrow to the wide checksum.
	AutoChecksumPivot = 256
)

// ChecksumType selects the checksum algorithm protecting an entry.
type ChecksumType uint8

const (
	// ChecksumAuto picks ChecksumCRC32C or ChecksumXxhash64 based on
	// payload size. Never appears on the wire.
	ChecksumAuto ChecksumType = iota

	// ChecksumXxhash64 is the wide (8-byte) checksum. Efficient on 64-bit
	// platforms; the default pick for larger entries.
	ChecksumXxhash64

	// ChecksumCRC32C is the narrow (4-byte) checksum (Castagnoli
	// polynomial). Takes less space; a good fit for short entries.
	ChecksumCRC32C
)

func (t ChecksumType) String() string {
	switch t {
	case ChecksumAuto:
		return "auto"
	case ChecksumXxhash64:
		return "xxhash64"
	case ChecksumCRC32C:
		return "crc32c"
	default:
		return "unknown"
	}
}

// Size returns the number of checksum bytes a concrete type occupies on
// the wire. ChecksumAuto has no wire representation and reports 0.
func (t ChecksumType) Size() int {
	switch t {
	case ChecksumXxhash64:
		return 8
	case ChecksumCRC32C:
		return 4
	default:
		return 0
	}
}

// valid reports whether t is a concrete on-wire checksum type.
func (t ChecksumType) valid() bool {
	return t == ChecksumXxhash64 || t == ChecksumCRC32C
}

// resolve maps ChecksumAuto to a concrete type for the given payload size.
func (t ChecksumType) resolve(payloadLen int) ChecksumType {
	if t != ChecksumAuto {
		return t
	}
	if payloadLen < AutoChecksumPivot {
		return ChecksumCRC32C
	}
	return ChecksumXxhash64
}

// Frame is one decoded entry together with its position in the sequence it
// was read from.
type Frame struct {
	// Payload is the entry's opaque bytes.
	Payload []byte
	// Checksum is the concrete checksum type the frame was written with.
	Checksum ChecksumType
	// Offset is the byte offset of the frame's length prefix.
	Offset uint64
	// Size is the total encoded size of the frame.
	Size uint64
}
