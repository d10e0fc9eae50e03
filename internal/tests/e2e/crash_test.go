package e2e_test

import (
	"os"
	"path/filepath"
	"testing"

	tst "github.com/julianstephens/go-utils/tests"
	"github.com/julianstephens/logstore/internal/logstore"
	"github.com/julianstephens/logstore/internal/logstore/entry"
	"github.com/julianstephens/logstore/internal/logstore/meta"
	"github.com/julianstephens/logstore/internal/testutil"
)

func primary(dir string) string {
	return filepath.Join(dir, logstore.PrimaryFileName)
}

// A crash after data writes but before the metadata write leaves frames
// past the committed length. They must stay invisible and be truncated
// away by the next sync.
func TestCrashedTailIsInvisibleAndTruncated(t *testing.T) {
	dir := t.TempDir()
	l := testutil.MustOpen(t, baseOpts(), dir)
	testutil.AppendAll(t, l, "committed entry")
	tst.RequireNoError(t, l.Sync())
	tst.RequireNoError(t, l.Close())

	// Simulate the crash: valid frames on disk, metadata never advanced.
	garbage, err := entry.Encode([]byte("never committed"), entry.ChecksumAuto)
	tst.RequireNoError(t, err)
	f, err := os.OpenFile(primary(dir), os.O_WRONLY|os.O_APPEND, 0o600) // nolint:gosec
	tst.RequireNoError(t, err)
	_, err = f.Write(garbage)
	tst.RequireNoError(t, err)
	tst.RequireNoError(t, f.Close())

	l2 := testutil.MustOpen(t, baseOpts(), dir)
	got := testutil.Collect(t, l2)
	tst.RequireDeepEqual(t, len(got), 1)
	tst.RequireDeepEqual(t, string(got[0]), "committed entry")

	m, err := meta.Load(dir)
	tst.RequireNoError(t, err)

	// An appending sync drops the tail before writing new frames.
	testutil.AppendAll(t, l2, "second entry")
	tst.RequireNoError(t, l2.Sync())

	info, err := os.Stat(primary(dir))
	tst.RequireNoError(t, err)
	m2, err := meta.Load(dir)
	tst.RequireNoError(t, err)
	tst.RequireDeepEqual(t, uint64(info.Size()), m2.PrimaryLen)
	tst.AssertTrue(t, m2.PrimaryLen > m.PrimaryLen, "committed length must advance")

	got = testutil.Collect(t, l2)
	tst.RequireDeepEqual(t, len(got), 2)
	tst.RequireDeepEqual(t, string(got[1]), "second entry")
}

// A sync with nothing buffered still removes a crashed tail discovered at
// open, so `logstore sync` alone repairs the file.
func TestEmptySyncTruncatesCrashedTail(t *testing.T) {
	dir := t.TempDir()
	l := testutil.MustOpen(t, baseOpts(), dir)
	testutil.AppendAll(t, l, "committed entry")
	tst.RequireNoError(t, l.Sync())
	committed := l.CommittedLen()
	tst.RequireNoError(t, l.Close())

	garbage, err := entry.Encode([]byte("never committed"), entry.ChecksumAuto)
	tst.RequireNoError(t, err)
	f, err := os.OpenFile(primary(dir), os.O_WRONLY|os.O_APPEND, 0o600) // nolint:gosec
	tst.RequireNoError(t, err)
	_, err = f.Write(garbage)
	tst.RequireNoError(t, err)
	tst.RequireNoError(t, f.Close())

	l2 := testutil.MustOpen(t, baseOpts(), dir)
	tst.RequireNoError(t, l2.Sync())

	info, err := os.Stat(primary(dir))
	tst.RequireNoError(t, err)
	tst.RequireDeepEqual(t, uint64(info.Size()), committed)

	// With the tail gone the next sync short-circuits again.
	before, err := os.Stat(filepath.Join(dir, meta.FileName))
	tst.RequireNoError(t, err)
	tst.RequireNoError(t, l2.Sync())
	after, err := os.Stat(filepath.Join(dir, meta.FileName))
	tst.RequireNoError(t, err)
	tst.RequireDeepEqual(t, after.ModTime(), before.ModTime())
}

// A checkpoint file covering bytes the metadata does not know about is
// stale: it is discarded and the index rebuilt from the committed region.
func TestStaleIndexCheckpointDiscarded(t *testing.T) {
	dir := t.TempDir()
	opts := logstore.NewOpenOptions().
		Index(testutil.FirstWordIndex("words").WithLagThreshold(0)).
		Create(true)

	l := testutil.MustOpen(t, opts, dir)
	testutil.AppendAll(t, l, "alpha one")
	tst.RequireNoError(t, l.Sync())
	tst.RequireNoError(t, l.Close())

	// Reset the log but keep the checkpoint, which now covers more bytes
	// than the fresh metadata commits.
	tst.RequireNoError(t, os.Remove(primary(dir)))
	tst.RequireNoError(t, os.Remove(filepath.Join(dir, meta.FileName)))

	l2 := testutil.MustOpen(t, opts, dir)
	hits, err := l2.Lookup("words", []byte("alpha"))
	tst.RequireNoError(t, err)
	tst.RequireDeepEqual(t, len(hits), 0)
	tst.RequireNoError(t, l2.Close())
}

// A primary file shorter than the committed length is real damage, not a
// crash artifact, and must be reported rather than papered over.
func TestShortPrimaryFileIsCorruption(t *testing.T) {
	dir := t.TempDir()
	l := testutil.MustOpen(t, baseOpts(), dir)
	testutil.AppendAll(t, l, "about to vanish")
	tst.RequireNoError(t, l.Sync())
	tst.RequireNoError(t, l.Close())

	tst.RequireNoError(t, os.Truncate(primary(dir), 3))

	_, err := baseOpts().Open(dir)
	tst.AssertTrue(t, err != nil, "expected corruption error")
}

func TestBitFlipDetectedOnRead(t *testing.T) {
	dir := t.TempDir()
	opts := logstore.NewOpenOptions().Create(true)

	l := testutil.MustOpen(t, opts, dir)
	testutil.AppendAll(t, l, "protect me from silent damage")
	tst.RequireNoError(t, l.Sync())
	tst.RequireNoError(t, l.Close())

	// Flip one payload byte inside the first frame.
	testutil.FlipByte(t, primary(dir), entry.LenHeaderSize+entry.ChecksumTypeSize+2)

	l2 := testutil.MustOpen(t, opts, dir)
	_, err := l2.Iter().Next()
	tst.AssertTrue(t, err != nil, "expected checksum failure")
	tst.AssertTrue(t, entry.IsCorruption(err), "expected corruption classification")
}

// With an index declared, the open-time tail replay walks the damaged
// frame and reports corruption immediately.
func TestBitFlipDetectedDuringReplay(t *testing.T) {
	dir := t.TempDir()
	l := testutil.MustOpen(t, baseOpts(), dir)
	testutil.AppendAll(t, l, "indexed entry")
	tst.RequireNoError(t, l.Sync())
	tst.RequireNoError(t, l.Close())

	testutil.FlipByte(t, primary(dir), entry.LenHeaderSize+entry.ChecksumTypeSize+1)

	_, err := baseOpts().Open(dir)
	tst.AssertTrue(t, err != nil, "expected corruption error at open")
	tst.AssertTrue(t, entry.IsCorruption(err), "expected corruption classification")
}
