package entry

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/julianstephens/go-utils/checksum"
)

// sum computes the checksum of data for a concrete checksum type and
// returns it in little-endian wire form.
func sum(t ChecksumType, data []byte) []byte {
	switch t {
	case ChecksumXxhash64:
		out := make([]byte, 8)
		binary.LittleEndian.PutUint64(out, xxhash.Sum64(data))
		return out
	case ChecksumCRC32C:
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, checksum.CRC32C(data))
		return out
	default:
		return nil
	}
}

// verify reports whether want matches the checksum of data for the given
// concrete checksum type. The checksummed region covers the checksum-type
// byte and the payload, so a flipped type byte also fails verification.
func verify(t ChecksumType, data []byte, want []byte) bool {
	switch t {
	case ChecksumXxhash64:
		if len(want) != 8 {
			return false
		}
		return xxhash.Sum64(data) == binary.LittleEndian.Uint64(want)
	case ChecksumCRC32C:
		if len(want) != 4 {
			return false
		}
		return checksum.VerifyCRC32C(data, binary.LittleEndian.Uint32(want))
	default:
		return false
	}
}
