// Package logstore is an append-only, log-structured storage engine with
// lagging secondary indexes and streaming aggregates. Entries are opaque
// checksummed byte strings addressed by the byte offset of their frame.
// The metadata file is the commit point: data, index and fold files are
// written first and metadata last, so a crash at any point recovers to the
// previous commit.
package logstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/julianstephens/go-utils/helpers"
	"github.com/julianstephens/logstore/internal/logstore/dirlock"
	"github.com/julianstephens/logstore/internal/logstore/entry"
	"github.com/julianstephens/logstore/internal/logstore/fold"
	"github.com/julianstephens/logstore/internal/logstore/index"
	"github.com/julianstephens/logstore/internal/logstore/meta"
	"github.com/julianstephens/logstore/internal/metrics"
)

func primaryPath(dir string) string {
	return filepath.Join(dir, PrimaryFileName)
}

// Open opens the log at dir. An empty dir yields an in-memory instance.
func (o *OpenOptions) Open(dir string) (*Log, error) {
	if dir == "" {
		return o.OpenInMemory()
	}
	opts := o.clone()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return openInternal(dir, opts, nil)
}

// OpenInMemory creates a log with no backing directory. Appends and
// lookups work normally; Sync is rejected and nothing survives Close.
func (o *OpenOptions) OpenInMemory() (*Log, error) {
	opts := o.clone()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	l := &Log{
		opts:   opts,
		meta:   meta.New(),
		tables: make(map[string]*index.Table, len(opts.indexes)),
		folds:  make(map[string]*fold.State, len(opts.folds)),
		log:    opts.log,
	}
	for _, def := range opts.indexes {
		l.tables[def.Name] = index.NewTable(def)
	}
	for _, def := range opts.folds {
		l.folds[def.Name] = fold.NewState(def)
	}
	return l, nil
}

// openInternal builds a Log from the directory's current committed state.
// held, when non-nil, is an exclusive lock the caller owns; openInternal
// then never blocks and never releases it. Without a held lock, the open
// is optimistic: it loads lock-free, and only acquires the exclusive lock
// when it must write (directory creation, lagging index/fold flush), then
// loops once more so state is rebuilt from on-disk truth under the lock.
func openInternal(dir string, o *OpenOptions, held *dirlock.Lock) (*Log, error) {
	lock := held
	acquired := false
	defer func() {
		if acquired {
			_ = lock.Release()
		}
	}()
	acquire := func() error {
		if lock != nil {
			return nil
		}
		l, err := dirlock.Exclusive(dir)
		if err != nil {
			return wrapErr("open", dir, err)
		}
		lock, acquired = l, true
		return nil
	}

	m, err := meta.Load(dir)
	if err != nil {
		if !errors.Is(err, meta.ErrUninitialized) || !o.create {
			return nil, wrapErr("open", dir, err)
		}
		if err := helpers.Ensure(dir, true); err != nil {
			return nil, wrapErr("open", dir, err)
		}
		if err := acquire(); err != nil {
			return nil, err
		}
		// Someone else may have initialized while we waited on the lock.
		m, err = meta.Load(dir)
		if errors.Is(err, meta.ErrUninitialized) {
			m, err = initDir(dir, o)
		}
		if err != nil {
			return nil, wrapErr("open", dir, err)
		}
	}

	// At most two passes: the second holds the exclusive lock, so the
	// state it loads cannot move before the flush below.
	for {
		l, err := loadLog(dir, o, m)
		if err != nil {
			return nil, err
		}
		if !l.needsCatchUp() {
			det, err := dirlock.NewChangeDetector(meta.Path(dir), m.Epoch, m.PrimaryLen)
			if err != nil {
				return nil, wrapErr("open", dir, err)
			}
			l.detector = det
			return l, nil
		}
		if lock == nil {
			if err := acquire(); err != nil {
				return nil, err
			}
			m, err = meta.Load(dir)
			if err != nil {
				return nil, wrapErr("open", dir, err)
			}
			continue
		}
		if err := l.flushLagging(); err != nil {
			return nil, err
		}
		det, err := dirlock.NewChangeDetector(meta.Path(dir), m.Epoch, m.PrimaryLen)
		if err != nil {
			return nil, wrapErr("open", dir, err)
		}
		l.detector = det
		return l, nil
	}
}

// initDir creates an empty primary file and the initial metadata. Caller
// holds the exclusive lock.
func initDir(dir string, o *OpenOptions) (*meta.Metadata, error) {
	f, err := os.OpenFile(primaryPath(dir), os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec
	if err != nil {
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	m := meta.New()
	if err := m.Save(dir); err != nil {
		return nil, err
	}
	o.log.Info("initialized log directory", "dir", dir, "epoch", m.Epoch)
	return m, nil
}

// loadLog reads the committed region and rebuilds index and fold state
// against it: durable files first, then an in-memory replay of whatever
// tail each one has not covered yet.
func loadLog(dir string, o *OpenOptions, m *meta.Metadata) (*Log, error) {
	data, err := os.ReadFile(primaryPath(dir)) //nolint:gosec
	if err != nil {
		if !os.IsNotExist(err) || m.PrimaryLen > 0 {
			return nil, wrapErr("open", dir, err)
		}
		data = nil
	}
	if uint64(len(data)) < m.PrimaryLen {
		metrics.CorruptionErrors.Inc()
		return nil, wrapErr("open", dir,
			fmt.Errorf("%w: primary file is %d bytes, committed length is %d",
				ErrCorrupt, len(data), m.PrimaryLen))
	}
	// Bytes past the committed length are an uncommitted or crashed tail.
	// They stay invisible until the next sync truncates them away.
	diskBuf := data[:m.PrimaryLen]

	l := &Log{
		dir:     dir,
		opts:    o,
		meta:    m,
		diskBuf: diskBuf,
		tailLen: uint64(len(data)) - m.PrimaryLen,
		tables:  make(map[string]*index.Table, len(o.indexes)),
		folds:   make(map[string]*fold.State, len(o.folds)),
		log:     o.log,
	}

	for _, def := range o.indexes {
		tbl, err := index.Load(dir, def)
		if err != nil {
			metrics.CorruptionErrors.Inc()
			return nil, wrapErr("open", dir, err)
		}
		if tbl.CoveredLen() > m.PrimaryLen {
			// The durable file describes uncommitted data; rebuild.
			o.log.Warn("discarding stale index file", "index", def.Name,
				"covered", tbl.CoveredLen(), "committed", m.PrimaryLen)
			tbl = index.NewTable(def)
		}
		if err := replayIndex(tbl, diskBuf); err != nil {
			return nil, wrapErr("open", dir, err)
		}
		l.tables[def.Name] = tbl
	}

	for _, def := range o.folds {
		st, err := fold.Load(dir, def)
		if err != nil {
			metrics.CorruptionErrors.Inc()
			return nil, wrapErr("open", dir, err)
		}
		if st.CoveredLen() > m.PrimaryLen {
			o.log.Warn("discarding stale fold checkpoint", "fold", def.Name,
				"covered", st.CoveredLen(), "committed", m.PrimaryLen)
			st = fold.NewState(def)
		}
		if err := replayFold(st, diskBuf); err != nil {
			return nil, wrapErr("open", dir, err)
		}
		l.folds[def.Name] = st
	}

	return l, nil
}

func replayIndex(tbl *index.Table, diskBuf []byte) error {
	start := tbl.CoveredLen()
	if start >= uint64(len(diskBuf)) {
		return nil
	}
	fr := entry.NewFrameReader(bytes.NewReader(diskBuf[start:]), start)
	for {
		f, err := fr.Next()
		if entry.IsCleanEOF(err) {
			return nil
		}
		if err != nil {
			metrics.CorruptionErrors.Inc()
			return err
		}
		if err := tbl.Apply(f.Payload, f.Offset, f.Offset+f.Size); err != nil {
			return err
		}
	}
}

func replayFold(st *fold.State, diskBuf []byte) error {
	start := st.CoveredLen()
	if start >= uint64(len(diskBuf)) {
		return nil
	}
	fr := entry.NewFrameReader(bytes.NewReader(diskBuf[start:]), start)
	for {
		f, err := fr.Next()
		if entry.IsCleanEOF(err) {
			return nil
		}
		if err != nil {
			metrics.CorruptionErrors.Inc()
			return err
		}
		if err := st.Apply(f.Payload, f.Offset+f.Size); err != nil {
			return err
		}
	}
}
