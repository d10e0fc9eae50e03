package fold

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/julianstephens/go-utils/checksum"
	"github.com/julianstephens/go-utils/helpers"
)

const (
	fileMagic   = "LSFD"
	fileVersion = 1
)

// State wraps a live aggregate with its progress accounting. coveredLen is
// how many primary-sequence bytes the in-memory aggregate reflects;
// flushedLen is how many the on-disk checkpoint reflects.
type State struct {
	def        Def
	fold       Fold
	coveredLen uint64
	flushedLen uint64
}

// NewState creates fresh aggregate state for the definition.
func NewState(def Def) *State {
	return &State{
		def:  def,
		fold: def.New(),
	}
}

func (s *State) Def() Def           { return s.def }
func (s *State) CoveredLen() uint64 { return s.coveredLen }
func (s *State) FlushedLen() uint64 { return s.flushedLen }

// Value returns the live aggregate. Callers must treat it as read-only.
func (s *State) Value() Fold {
	return s.fold
}

// Lag is how many primary-sequence bytes the durable checkpoint trails the
// in-memory state by.
func (s *State) Lag() uint64 {
	return s.coveredLen - s.flushedLen
}

// Apply consumes one entry in commit order. end is the offset one past the
// entry's frame, which becomes the new covered length.
func (s *State) Apply(data []byte, end uint64) error {
	if err := s.fold.Fold(data); err != nil {
		return fmt.Errorf("fold %s: %w", s.def.Name, err)
	}
	s.coveredLen = end
	return nil
}

func (s *State) path(dir string) string {
	return filepath.Join(dir, s.def.FileName())
}

// Load reads the durable checkpoint for def from dir. A missing file
// yields fresh state; a damaged file is a corruption error.
func Load(dir string, def Def) (*State, error) {
	s := NewState(def)
	path := s.path(dir)
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, wrapFileErr("read", def.Name, path, err)
	}
	if err := s.unmarshal(data); err != nil {
		return nil, wrapFileErr("load", def.Name, path, err)
	}
	s.flushedLen = s.coveredLen
	return s, nil
}

// Flush atomically rewrites the durable checkpoint and advances
// flushedLen. Callers must hold the directory's exclusive lock and record
// the new flushed length in metadata afterwards.
func (s *State) Flush(dir string, fsync bool) error {
	path := s.path(dir)
	encoded, err := s.marshal()
	if err != nil {
		return wrapFileErr("encode", s.def.Name, path, err)
	}
	if err := helpers.AtomicFileWrite(path, encoded); err != nil {
		return wrapFileErr("write", s.def.Name, path, err)
	}
	if fsync {
		d, err := os.Open(dir) //nolint:gosec
		if err != nil {
			return wrapFileErr("sync", s.def.Name, path, err)
		}
		defer func() { _ = d.Close() }()
		if err := d.Sync(); err != nil {
			return wrapFileErr("sync", s.def.Name, path, err)
		}
	}
	s.flushedLen = s.coveredLen
	return nil
}

func (s *State) marshal() ([]byte, error) {
	body, err := s.fold.MarshalBinary()
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	buf.WriteString(fileMagic)
	buf.WriteByte(fileVersion)
	_ = binary.Write(buf, binary.LittleEndian, s.coveredLen)
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(body))) //nolint:gosec
	buf.Write(body)
	crc := checksum.CRC32C(buf.Bytes())
	_ = binary.Write(buf, binary.LittleEndian, crc)
	return buf.Bytes(), nil
}

func (s *State) unmarshal(data []byte) error {
	headerSize := len(fileMagic) + 1 + 8 + 4
	if len(data) < headerSize+4 {
		return fmt.Errorf("%w: file too short (%d bytes)", ErrCorrupt, len(data))
	}

	body, trailer := data[:len(data)-4], data[len(data)-4:]
	if !checksum.VerifyCRC32C(body, binary.LittleEndian.Uint32(trailer)) {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if string(body[:len(fileMagic)]) != fileMagic {
		return fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if body[len(fileMagic)] != fileVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, body[len(fileMagic)])
	}

	pos := len(fileMagic) + 1
	s.coveredLen = binary.LittleEndian.Uint64(body[pos:])
	pos += 8
	blen := int(binary.LittleEndian.Uint32(body[pos:]))
	pos += 4
	if pos+blen != len(body) {
		return fmt.Errorf("%w: state length %d does not match file", ErrCorrupt, blen)
	}

	s.fold.Reset()
	if err := s.fold.UnmarshalBinary(body[pos:]); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}
