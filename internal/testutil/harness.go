// Package testutil holds shared fixtures for engine and e2e tests: a
// reference index, a counting fold, and small open/append/collect helpers.
package testutil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"testing"

	tst "github.com/julianstephens/go-utils/tests"
	"github.com/julianstephens/logstore/internal/logstore"
	"github.com/julianstephens/logstore/internal/logstore/fold"
	"github.com/julianstephens/logstore/internal/logstore/index"
)

// FirstWordIndex extracts the first space-delimited token of each entry as
// a reference key.
func FirstWordIndex(name string) index.Def {
	return index.NewDef(name, func(data []byte) []index.Output {
		end := bytes.IndexByte(data, ' ')
		if end < 0 {
			end = len(data)
		}
		return []index.Output{index.Reference(0, uint64(end))}
	})
}

// CountFold counts entries and sums payload bytes.
type CountFold struct {
	Entries uint64
	Bytes   uint64
}

func (c *CountFold) Fold(entry []byte) error {
	c.Entries++
	c.Bytes += uint64(len(entry))
	return nil
}

func (c *CountFold) MarshalBinary() ([]byte, error) {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out, c.Entries)
	binary.LittleEndian.PutUint64(out[8:], c.Bytes)
	return out, nil
}

func (c *CountFold) UnmarshalBinary(data []byte) error {
	if len(data) != 16 {
		return errors.New("count fold: bad state length")
	}
	c.Entries = binary.LittleEndian.Uint64(data)
	c.Bytes = binary.LittleEndian.Uint64(data[8:])
	return nil
}

func (c *CountFold) Reset() {
	*c = CountFold{}
}

// CountFoldDef returns a fold definition producing CountFold state.
func CountFoldDef(name string) fold.Def {
	return fold.NewDef(name, func() fold.Fold { return &CountFold{} })
}

// MustOpen opens the log and registers a cleanup close.
func MustOpen(t *testing.T, o *logstore.OpenOptions, dir string) *logstore.Log {
	t.Helper()
	l, err := o.Open(dir)
	tst.RequireNoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// AppendAll appends every payload and returns the offsets.
func AppendAll(t *testing.T, l *logstore.Log, payloads ...string) []uint64 {
	t.Helper()
	offsets := make([]uint64, 0, len(payloads))
	for _, p := range payloads {
		off, err := l.Append([]byte(p))
		tst.RequireNoError(t, err)
		offsets = append(offsets, off)
	}
	return offsets
}

// Collect iterates the whole log and returns every payload in order.
func Collect(t *testing.T, l *logstore.Log) [][]byte {
	t.Helper()
	var out [][]byte
	it := l.Iter()
	for {
		e, err := it.Next()
		if err == io.EOF {
			return out
		}
		tst.RequireNoError(t, err)
		out = append(out, e.Data)
	}
}

// FlipByte XOR-flips one byte of a file in place.
func FlipByte(t *testing.T, path string, pos int64) {
	t.Helper()
	data, err := os.ReadFile(path) // nolint:gosec
	tst.RequireNoError(t, err)
	tst.AssertTrue(t, pos >= 0 && pos < int64(len(data)), "flip position out of range")
	data[pos] ^= 0xFF
	tst.RequireNoError(t, os.WriteFile(path, data, 0o600))
}
