package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/julianstephens/go-utils/checksum"
	"github.com/julianstephens/go-utils/helpers"
)

const (
	fileMagic   = "LSIX"
	fileVersion = 1
)

// Table is the runtime state of one index: the durable key→offset map
// loaded from disk, merged with the in-memory tail replayed beyond the
// durably-indexed length.
//
// coveredLen is how many primary-sequence bytes the in-memory map
// reflects; flushedLen is how many the on-disk file reflects. The
// difference is the index's lag.
type Table struct {
	def        Def
	keys       map[string][]uint64
	coveredLen uint64
	flushedLen uint64
}

// NewTable creates an empty table for the definition.
func NewTable(def Def) *Table {
	return &Table{
		def:  def,
		keys: make(map[string][]uint64),
	}
}

func (t *Table) Def() Def           { return t.def }
func (t *Table) CoveredLen() uint64 { return t.coveredLen }
func (t *Table) FlushedLen() uint64 { return t.flushedLen }

// Lag is how many primary-sequence bytes the durable file trails the
// in-memory state by.
func (t *Table) Lag() uint64 {
	return t.coveredLen - t.flushedLen
}

// Apply runs the extraction function over one entry and folds the outputs
// into the map. offset is the entry's logical offset; end is the offset
// one past the entry's frame, which becomes the new covered length.
//
// All outputs are validated before any mutation, so a programming error
// leaves the table unchanged.
func (t *Table) Apply(data []byte, offset, end uint64) error {
	outs := t.def.Func(data)
	for _, o := range outs {
		if o.Kind == OutputReference {
			if _, err := o.KeyBytes(data); err != nil {
				return err
			}
		}
	}

	for _, o := range outs {
		switch o.Kind {
		case OutputReference, OutputOwned:
			key, err := o.KeyBytes(data)
			if err != nil {
				return err
			}
			k := string(key)
			t.keys[k] = append(t.keys[k], offset)
		case OutputRemove:
			delete(t.keys, string(o.Key))
		case OutputRemovePrefix:
			prefix := string(o.Key)
			for k := range t.keys {
				if strings.HasPrefix(k, prefix) {
					delete(t.keys, k)
				}
			}
		}
	}
	t.coveredLen = end
	return nil
}

// Lookup returns the offsets of all entries whose extraction output
// included key, in insertion order. The returned slice is a copy.
func (t *Table) Lookup(key []byte) []uint64 {
	offs := t.keys[string(key)]
	if len(offs) == 0 {
		return nil
	}
	out := make([]uint64, len(offs))
	copy(out, offs)
	return out
}

// Len returns the number of distinct keys currently indexed.
func (t *Table) Len() int {
	return len(t.keys)
}

func (t *Table) path(dir string) string {
	return filepath.Join(dir, t.def.FileName())
}

// Load reads the durable table for def from dir. A missing file yields a
// fresh empty table; a damaged file is a corruption error and is never
// repaired here.
func Load(dir string, def Def) (*Table, error) {
	t := NewTable(def)
	path := t.path(dir)
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, wrapFileErr("read", def.Name, path, err)
	}
	if err := t.unmarshal(data); err != nil {
		return nil, wrapFileErr("load", def.Name, path, err)
	}
	t.flushedLen = t.coveredLen
	return t, nil
}

// Flush atomically rewrites the durable file to match the in-memory state
// and advances flushedLen. Callers must hold the directory's exclusive
// lock and record the new flushed length in metadata afterwards.
func (t *Table) Flush(dir string, fsync bool) error {
	path := t.path(dir)
	if err := helpers.AtomicFileWrite(path, t.marshal()); err != nil {
		return wrapFileErr("write", t.def.Name, path, err)
	}
	if fsync {
		d, err := os.Open(dir) //nolint:gosec
		if err != nil {
			return wrapFileErr("sync", t.def.Name, path, err)
		}
		defer func() { _ = d.Close() }()
		if err := d.Sync(); err != nil {
			return wrapFileErr("sync", t.def.Name, path, err)
		}
	}
	t.flushedLen = t.coveredLen
	return nil
}

// marshal encodes the table: magic, version, covered length, sorted key
// records, CRC32C trailer. Sorting makes the encoding deterministic.
func (t *Table) marshal() []byte {
	sorted := make([]string, 0, len(t.keys))
	for k := range t.keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	buf := new(bytes.Buffer)
	buf.WriteString(fileMagic)
	buf.WriteByte(fileVersion)
	_ = binary.Write(buf, binary.LittleEndian, t.coveredLen)
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(sorted))) //nolint:gosec
	for _, k := range sorted {
		offs := t.keys[k]
		_ = binary.Write(buf, binary.LittleEndian, uint32(len(k))) //nolint:gosec
		buf.WriteString(k)
		_ = binary.Write(buf, binary.LittleEndian, uint32(len(offs))) //nolint:gosec
		for _, off := range offs {
			_ = binary.Write(buf, binary.LittleEndian, off)
		}
	}
	crc := checksum.CRC32C(buf.Bytes())
	_ = binary.Write(buf, binary.LittleEndian, crc)
	return buf.Bytes()
}

func (t *Table) unmarshal(data []byte) error {
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
	t.coveredLen = binary.LittleEndian.Uint64(body[pos:])
	pos += 8
	count := binary.LittleEndian.Uint32(body[pos:])
	pos += 4

	t.keys = make(map[string][]uint64, count)
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(body) {
			return fmt.Errorf("%w: truncated key record %d", ErrCorrupt, i)
		}
		klen := int(binary.LittleEndian.Uint32(body[pos:]))
		pos += 4
		if pos+klen+4 > len(body) {
			return fmt.Errorf("%w: truncated key record %d", ErrCorrupt, i)
		}
		key := string(body[pos : pos+klen])
		pos += klen
		n := int(binary.LittleEndian.Uint32(body[pos:]))
		pos += 4
		if pos+n*8 > len(body) {
			return fmt.Errorf("%w: truncated offsets for key record %d", ErrCorrupt, i)
		}
		offs := make([]uint64, n)
		for j := 0; j < n; j++ {
			offs[j] = binary.LittleEndian.Uint64(body[pos:])
			pos += 8
		}
		t.keys[key] = offs
	}
	if pos != len(body) {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(body)-pos)
	}
	return nil
}
