package index_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/julianstephens/logstore/internal/logstore/index"
)

// firstWord extracts the first space-delimited token as a reference into
// the entry.
func firstWord(data []byte) []index.Output {
	end := bytes.IndexByte(data, ' ')
	if end < 0 {
		end = len(data)
	}
	return []index.Output{index.Reference(0, uint64(end))}
}

func TestDefDerivedNames(t *testing.T) {
	def := index.NewDef("parents", firstWord)
	assert.Equal(t, "index-parents", def.FileName())
	assert.Equal(t, "idx:parents", def.MetaName())
	assert.Equal(t, uint64(index.DefaultLagThreshold), def.LagThreshold)

	def = def.WithLagThreshold(0)
	assert.Equal(t, uint64(0), def.LagThreshold)
}

func TestDefValidate(t *testing.T) {
	assert.NoError(t, index.NewDef("ok", firstWord).Validate())

	testCases := []struct {
		name string
		def  index.Def
	}{
		{"empty_name", index.NewDef("", firstWord)},
		{"path_separator", index.NewDef("a/b", firstWord)},
		{"dotdot", index.NewDef("..name", firstWord)},
		{"nil_func", index.NewDef("name", nil)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate()
			assert.Error(t, err)
			assert.True(t, errors.Is(err, index.ErrInvalidDef))
		})
	}
}

func TestTableApplyAndLookup(t *testing.T) {
	tbl := index.NewTable(index.NewDef("words", firstWord))

	assert.NoError(t, tbl.Apply([]byte("alpha one"), 0, 20))
	assert.NoError(t, tbl.Apply([]byte("beta two"), 20, 40))
	assert.NoError(t, tbl.Apply([]byte("alpha three"), 40, 60))

	assert.Equal(t, []uint64{0, 40}, tbl.Lookup([]byte("alpha")))
	assert.Equal(t, []uint64{20}, tbl.Lookup([]byte("beta")))
	assert.Zero(t, tbl.Lookup([]byte("gamma")))
	assert.Equal(t, uint64(60), tbl.CoveredLen())
}

func TestTableRemove(t *testing.T) {
	ownedKey := func(data []byte) []index.Output {
		if data[0] == '-' {
			return []index.Output{index.Remove(data[1:])}
		}
		return []index.Output{index.Owned(bytes.Clone(data))}
	}
	tbl := index.NewTable(index.NewDef("keys", ownedKey))

	assert.NoError(t, tbl.Apply([]byte("k1"), 0, 10))
	assert.NoError(t, tbl.Apply([]byte("k2"), 10, 20))
	assert.NoError(t, tbl.Apply([]byte("-k1"), 20, 30))

	assert.Zero(t, tbl.Lookup([]byte("k1")))
	assert.Equal(t, []uint64{10}, tbl.Lookup([]byte("k2")))

	// Re-adding after removal starts fresh.
	assert.NoError(t, tbl.Apply([]byte("k1"), 30, 40))
	assert.Equal(t, []uint64{30}, tbl.Lookup([]byte("k1")))
}

func TestTableRemovePrefix(t *testing.T) {
	fn := func(data []byte) []index.Output {
		if data[0] == '-' {
			return []index.Output{index.RemovePrefix(data[1:])}
		}
		return []index.Output{index.Owned(bytes.Clone(data))}
	}
	tbl := index.NewTable(index.NewDef("prefixed", fn))

	assert.NoError(t, tbl.Apply([]byte("user:1"), 0, 10))
	assert.NoError(t, tbl.Apply([]byte("user:2"), 10, 20))
	assert.NoError(t, tbl.Apply([]byte("group:1"), 20, 30))
	assert.NoError(t, tbl.Apply([]byte("-user:"), 30, 40))

	assert.Zero(t, tbl.Lookup([]byte("user:1")))
	assert.Zero(t, tbl.Lookup([]byte("user:2")))
	assert.Equal(t, []uint64{20}, tbl.Lookup([]byte("group:1")))
}

func TestReferenceOutOfRangeIsProgrammingError(t *testing.T) {
	bad := func(data []byte) []index.Output {
		return []index.Output{index.Reference(0, uint64(len(data))+5)}
	}
	tbl := index.NewTable(index.NewDef("bad", bad))

	err := tbl.Apply([]byte("short"), 0, 14)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, index.ErrProgramming))
	// Short entries are echoed in the message.
	assert.Contains(t, err.Error(), `"short"`)
	// A programming error leaves the table and its coverage unchanged.
	assert.Equal(t, uint64(0), tbl.CoveredLen())
	assert.Equal(t, 0, tbl.Len())
}

func TestLongEntryNotEchoed(t *testing.T) {
	bad := func(data []byte) []index.Output {
		return []index.Output{index.Reference(0, uint64(len(data))+1)}
	}
	tbl := index.NewTable(index.NewDef("bad", bad))

	long := bytes.Repeat([]byte("z"), 4096)
	err := tbl.Apply(long, 0, 5000)
	assert.Error(t, err)
	assert.NotContains(t, err.Error(), "zzzz")
}

func TestRetractionOutputIsNotAKey(t *testing.T) {
	_, err := index.Remove([]byte("k")).KeyBytes(nil)
	assert.True(t, errors.Is(err, index.ErrProgramming))
	_, err = index.RemovePrefix([]byte("k")).KeyBytes(nil)
	assert.True(t, errors.Is(err, index.ErrProgramming))
}

func TestFlushLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	def := index.NewDef("words", firstWord)

	tbl := index.NewTable(def)
	assert.NoError(t, tbl.Apply([]byte("alpha one"), 0, 20))
	assert.NoError(t, tbl.Apply([]byte("beta two"), 20, 45))
	assert.Equal(t, uint64(45), tbl.Lag())

	assert.NoError(t, tbl.Flush(dir, false))
	assert.Equal(t, uint64(0), tbl.Lag())
	assert.Equal(t, uint64(45), tbl.FlushedLen())

	loaded, err := index.Load(dir, def)
	assert.NoError(t, err)
	assert.Equal(t, uint64(45), loaded.CoveredLen())
	assert.Equal(t, uint64(45), loaded.FlushedLen())
	assert.Equal(t, []uint64{0}, loaded.Lookup([]byte("alpha")))
	assert.Equal(t, []uint64{20}, loaded.Lookup([]byte("beta")))
}

func TestLoadMissingFileIsFresh(t *testing.T) {
	loaded, err := index.Load(t.TempDir(), index.NewDef("absent", firstWord))
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), loaded.CoveredLen())
	assert.Equal(t, 0, loaded.Len())
}

func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	def := index.NewDef("words", firstWord)

	tbl := index.NewTable(def)
	assert.NoError(t, tbl.Apply([]byte("alpha"), 0, 16))
	assert.NoError(t, tbl.Flush(dir, false))

	path := filepath.Join(dir, def.FileName())
	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	data[len(data)/2] ^= 0xFF
	assert.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = index.Load(dir, def)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, index.ErrCorrupt))
}
