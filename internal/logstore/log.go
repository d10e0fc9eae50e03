package logstore

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/julianstephens/logstore/internal/logger"
	"github.com/julianstephens/logstore/internal/logstore/dirlock"
	"github.com/julianstephens/logstore/internal/logstore/entry"
	"github.com/julianstephens/logstore/internal/logstore/fold"
	"github.com/julianstephens/logstore/internal/logstore/index"
	"github.com/julianstephens/logstore/internal/logstore/meta"
	"github.com/julianstephens/logstore/internal/metrics"
)

// Entry is one stored payload together with its logical offset.
type Entry struct {
	Offset uint64
	Data   []byte
}

// Log is one view of a log directory: an immutable snapshot of the
// committed region plus this process's append buffer. Multiple Logs may
// share a directory across processes; each sees others' entries after its
// own Sync. All methods are safe for concurrent use within a process.
type Log struct {
	mu sync.Mutex

	dir  string // empty for in-memory instances
	opts *OpenOptions

	meta    *meta.Metadata
	diskBuf []byte // committed region, immutable until the next adopt

	mem     []byte   // encoded frames past the committed region
	pending [][]byte // raw payloads, parallel to the frames in mem
	tailLen uint64   // uncommitted bytes seen past PrimaryLen at load

	tables map[string]*index.Table
	folds  map[string]*fold.State

	detector *dirlock.ChangeDetector
	closed   bool
	log      logger.Logger
}

// Dir returns the backing directory, empty for in-memory instances.
func (l *Log) Dir() string {
	return l.dir
}

// CommittedLen returns the committed length this view was loaded at.
func (l *Log) CommittedLen() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.meta.PrimaryLen
}

// BufferedLen returns the encoded size of unsynced entries.
func (l *Log) BufferedLen() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.mem))
}

// Meta returns a copy of the metadata this view was loaded at.
func (l *Log) Meta() *meta.Metadata {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.meta.Clone()
}

func (l *Log) inMemory() bool {
	return l.dir == ""
}

// Append stages one entry in the buffer and returns its provisional
// offset. The entry is immediately visible to this instance's lookups,
// iteration and folds; it becomes durable and visible to others at Sync.
func (l *Log) Append(data []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}

	frame, err := entry.Encode(data, l.opts.checksum)
	if err != nil {
		return 0, wrapErr("append", l.dir, err)
	}

	payload := bytes.Clone(data)
	// Validate every reference output before touching any state, so a
	// failed append leaves all indexes unchanged.
	for _, tbl := range l.tables {
		for _, out := range tbl.Def().Func(payload) {
			if out.Kind == index.OutputReference {
				if _, err := out.KeyBytes(payload); err != nil {
					return 0, err
				}
			}
		}
	}

	offset := l.meta.PrimaryLen + uint64(len(l.mem))
	end := offset + uint64(len(frame))
	for _, tbl := range l.tables {
		if err := tbl.Apply(payload, offset, end); err != nil {
			return 0, err
		}
	}
	for _, st := range l.folds {
		if err := st.Apply(payload, end); err != nil {
			return 0, wrapErr("append", l.dir, err)
		}
	}

	l.mem = append(l.mem, frame...)
	l.pending = append(l.pending, payload)
	metrics.Appends.Inc()
	metrics.AppendedBytes.Add(float64(len(frame)))

	if !l.inMemory() && l.opts.autoSync != nil && uint64(len(l.mem)) > *l.opts.autoSync {
		if err := l.syncLocked(); err != nil {
			return 0, err
		}
	}
	return offset, nil
}

// Sync commits buffered entries, truncates any crashed tail off the
// primary file, and picks up entries committed by other processes since
// the last load. Rejected for in-memory instances.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.inMemory() {
		return ErrMemoryOnly
	}
	return l.syncLocked()
}

func (l *Log) syncLocked() error {
	// Fast path: nothing of ours to write, no crashed tail to drop, and
	// nobody moved the log.
	if len(l.pending) == 0 && l.tailLen == 0 && !l.needsCatchUp() &&
		l.detector != nil && !l.detector.Changed(meta.Path(l.dir)) {
		return nil
	}

	lock, err := dirlock.Exclusive(l.dir)
	if err != nil {
		return wrapErr("sync", l.dir, err)
	}
	defer func() { _ = lock.Release() }()

	onDisk, err := meta.Load(l.dir)
	if err != nil {
		return wrapErr("sync", l.dir, err)
	}

	payloads := l.pending
	moved := onDisk.Epoch != l.meta.Epoch || onDisk.PrimaryLen != l.meta.PrimaryLen
	if l.opts.flushFilter != nil && moved && len(payloads) > 0 {
		payloads, err = l.runFlushFilter(onDisk, payloads)
		if err != nil {
			return err
		}
	}

	written, err := l.commitPayloads(onDisk, payloads)
	if err != nil {
		return err
	}

	if written > 0 {
		next := onDisk.Clone()
		next.PrimaryLen = onDisk.PrimaryLen + written
		if err := next.Save(l.dir); err != nil {
			return wrapErr("sync", l.dir, err)
		}
	}
	metrics.Syncs.Inc()
	metrics.CommittedBytes.Add(float64(written))
	l.log.Debug("synced log", "dir", l.dir,
		"entries", len(payloads), "bytes", written)

	// Rebuild from on-disk truth under the held lock. This replays newly
	// visible entries into indexes and folds in commit order, and flushes
	// whatever now lags past its threshold.
	fresh, err := openInternal(l.dir, l.opts, lock)
	if err != nil {
		return err
	}
	l.adopt(fresh)
	return nil
}

// runFlushFilter loads the current on-disk state and asks the filter about
// each of this instance's buffered payloads.
func (l *Log) runFlushFilter(onDisk *meta.Metadata, payloads [][]byte) ([][]byte, error) {
	freshView, err := loadLog(l.dir, l.opts, onDisk)
	if err != nil {
		return nil, err
	}
	ctx := &FlushFilterContext{log: freshView}

	out := make([][]byte, 0, len(payloads))
	dropped := 0
	for _, p := range payloads {
		verdict, err := l.opts.flushFilter(ctx, p)
		if err != nil {
			return nil, wrapErr("sync", l.dir, err)
		}
		switch verdict.Decision {
		case FlushKeep:
			out = append(out, p)
		case FlushDrop:
			dropped++
		case FlushReplace:
			out = append(out, verdict.Replacement)
		default:
			return nil, wrapErr("sync", l.dir,
				fmt.Errorf("flush filter returned unknown decision %d", verdict.Decision))
		}
	}
	if dropped > 0 || len(out) != len(payloads) {
		l.log.Info("flush filter adjusted buffered entries", "dir", l.dir,
			"in", len(payloads), "out", len(out), "dropped", dropped)
	}
	return out, nil
}

// commitPayloads truncates any uncommitted tail off the primary file and
// appends the surviving frames after the committed region. Caller holds
// the exclusive lock; metadata is written afterwards, never here.
func (l *Log) commitPayloads(onDisk *meta.Metadata, payloads [][]byte) (uint64, error) {
	f, err := os.OpenFile(primaryPath(l.dir), os.O_RDWR|os.O_CREATE, 0o600) //nolint:gosec
	if err != nil {
		return 0, wrapErr("sync", l.dir, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return 0, wrapErr("sync", l.dir, err)
	}
	if uint64(info.Size()) < onDisk.PrimaryLen {
		metrics.CorruptionErrors.Inc()
		return 0, wrapErr("sync", l.dir,
			fmt.Errorf("%w: primary file is %d bytes, committed length is %d",
				ErrCorrupt, info.Size(), onDisk.PrimaryLen))
	}
	truncated := false
	if uint64(info.Size()) > onDisk.PrimaryLen {
		l.log.Warn("truncating uncommitted tail", "dir", l.dir,
			"file_len", info.Size(), "committed", onDisk.PrimaryLen)
		if err := f.Truncate(int64(onDisk.PrimaryLen)); err != nil { //nolint:gosec
			return 0, wrapErr("sync", l.dir, err)
		}
		truncated = true
	}
	if _, err := f.Seek(int64(onDisk.PrimaryLen), io.SeekStart); err != nil { //nolint:gosec
		return 0, wrapErr("sync", l.dir, err)
	}

	var written uint64
	for _, p := range payloads {
		frame, err := entry.Encode(p, l.opts.checksum)
		if err != nil {
			return 0, wrapErr("sync", l.dir, err)
		}
		if _, err := f.Write(frame); err != nil {
			return 0, wrapErr("sync", l.dir, err)
		}
		written += uint64(len(frame))
	}

	if l.opts.fsync && (written > 0 || truncated) {
		if err := f.Sync(); err != nil {
			return 0, wrapErr("sync", l.dir, err)
		}
	}
	return written, nil
}

// adopt replaces this view's state with a freshly opened one. The buffer
// is cleared: its entries are either committed or filtered out.
func (l *Log) adopt(fresh *Log) {
	l.meta = fresh.meta
	l.diskBuf = fresh.diskBuf
	l.tables = fresh.tables
	l.folds = fresh.folds
	l.detector = fresh.detector
	l.tailLen = fresh.tailLen
	l.mem = nil
	l.pending = nil
}

func (l *Log) needsCatchUp() bool {
	for _, tbl := range l.tables {
		if tbl.Lag() > tbl.Def().LagThreshold {
			return true
		}
	}
	for _, st := range l.folds {
		if st.Lag() > st.Def().LagThreshold {
			return true
		}
	}
	return false
}

// flushLagging rewrites every index and fold file whose lag exceeds its
// threshold, then records the new coverage in metadata. Caller holds the
// exclusive lock; all buffered state must already be committed.
func (l *Log) flushLagging() error {
	changed := false
	for _, tbl := range l.tables {
		if tbl.Lag() <= tbl.Def().LagThreshold {
			continue
		}
		if err := tbl.Flush(l.dir, l.opts.fsync); err != nil {
			return wrapErr("flush", l.dir, err)
		}
		l.meta.IndexLens[tbl.Def().MetaName()] = tbl.FlushedLen()
		metrics.IndexFlushes.Inc()
		l.log.Debug("flushed index", "index", tbl.Def().Name, "covered", tbl.FlushedLen())
		changed = true
	}
	for _, st := range l.folds {
		if st.Lag() <= st.Def().LagThreshold {
			continue
		}
		if err := st.Flush(l.dir, l.opts.fsync); err != nil {
			return wrapErr("flush", l.dir, err)
		}
		l.meta.FoldLens[st.Def().MetaName()] = st.FlushedLen()
		metrics.FoldFlushes.Inc()
		l.log.Debug("flushed fold", "fold", st.Def().Name, "covered", st.FlushedLen())
		changed = true
	}
	if changed {
		if err := l.meta.Save(l.dir); err != nil {
			return wrapErr("flush", l.dir, err)
		}
	}
	return nil
}

// Lookup returns all entries whose extraction output for the named index
// included key, most recent first. Every hit is re-decoded and
// checksum-verified.
func (l *Log) Lookup(indexName string, key []byte) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	return l.lookupLocked(indexName, key)
}

func (l *Log) lookupLocked(indexName string, key []byte) ([]Entry, error) {
	tbl, ok := l.tables[indexName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoIndex, indexName)
	}
	offs := tbl.Lookup(key)
	out := make([]Entry, 0, len(offs))
	for i := len(offs) - 1; i >= 0; i-- {
		f, err := l.readFrameLocked(offs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Offset: offs[i], Data: bytes.Clone(f.Payload)})
	}
	return out, nil
}

// readFrameLocked decodes the frame at a logical offset, from the
// committed snapshot or the buffer.
func (l *Log) readFrameLocked(offset uint64) (entry.Frame, error) {
	src, base := l.diskBuf, uint64(0)
	if offset >= l.meta.PrimaryLen {
		src, base = l.mem, l.meta.PrimaryLen
	}
	rel := offset - base
	if rel >= uint64(len(src)) {
		metrics.CorruptionErrors.Inc()
		return entry.Frame{}, wrapErr("read", l.dir,
			fmt.Errorf("%w: offset %d out of range", ErrCorrupt, offset))
	}
	f, err := entry.DecodePrefix(src[rel:])
	if err != nil {
		if entry.IsCorruption(err) || entry.IsTruncation(err) {
			metrics.CorruptionErrors.Inc()
		}
		return entry.Frame{}, wrapErr("read", l.dir, err)
	}
	f.Offset = offset
	return f, nil
}

// FoldValue returns the named aggregate, including buffered entries.
// The returned value is live; callers must treat it as read-only.
func (l *Log) FoldValue(name string) (fold.Fold, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	st, ok := l.folds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoFold, name)
	}
	return st.Value(), nil
}

// Close releases the view. Unsynced buffered entries are discarded.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	if n := len(l.pending); n > 0 {
		l.log.Warn("closing with unsynced entries", "dir", l.dir, "count", n)
	}
	l.closed = true
	l.mem = nil
	l.pending = nil
	return nil
}
