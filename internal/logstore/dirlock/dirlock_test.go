package dirlock_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/julianstephens/logstore/internal/logstore/dirlock"
)

func TestExclusiveReleaseCycle(t *testing.T) {
	dir := t.TempDir()

	l, err := dirlock.Exclusive(dir)
	assert.NoError(t, err)
	assert.True(t, l.Exclusive())
	assert.NoError(t, l.Release())
	assert.NoError(t, l.Release()) // idempotent

	// Reacquirable after release.
	l2, err := dirlock.Exclusive(dir)
	assert.NoError(t, err)
	assert.NoError(t, l2.Release())
}

func TestTryExclusive(t *testing.T) {
	dir := t.TempDir()

	l, ok, err := dirlock.TryExclusive(dir)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, l.Release())
}

func TestSharedLock(t *testing.T) {
	dir := t.TempDir()

	l, err := dirlock.Shared(dir)
	assert.NoError(t, err)
	assert.False(t, l.Exclusive())
	assert.NoError(t, l.Release())
}

func writeMeta(t *testing.T, path, content string) {
	t.Helper()
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestChangeDetectorUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta")
	writeMeta(t, path, `{"primary_len":10}`)

	d, err := dirlock.NewChangeDetector(path, "e1", 10)
	assert.NoError(t, err)
	assert.False(t, d.Changed(path))
	assert.True(t, d.Matches("e1", 10))
}

func TestChangeDetectorSeesRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta")
	writeMeta(t, path, `{"primary_len":10}`)

	d, err := dirlock.NewChangeDetector(path, "e1", 10)
	assert.NoError(t, err)

	// Different size always trips the stat check even when mtime
	// granularity is coarse.
	writeMeta(t, path, `{"primary_len":100000}`)
	assert.True(t, d.Changed(path))
	assert.False(t, d.Matches("e1", 100000))
}

func TestChangeDetectorMissingFileIsChanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta")
	writeMeta(t, path, "x")

	d, err := dirlock.NewChangeDetector(path, "e1", 0)
	assert.NoError(t, err)
	assert.NoError(t, os.Remove(path))
	assert.True(t, d.Changed(path))
}

func TestChangeDetectorSeesTouch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta")
	writeMeta(t, path, "same-size")

	d, err := dirlock.NewChangeDetector(path, "e1", 0)
	assert.NoError(t, err)

	future := time.Now().Add(2 * time.Second)
	assert.NoError(t, os.Chtimes(path, future, future))
	assert.True(t, d.Changed(path))
}
