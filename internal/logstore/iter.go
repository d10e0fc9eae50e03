package logstore

import (
	"bytes"
	"io"
)

// Iter walks entries in offset order over the committed and buffered
// regions as one sequence. The end of the sequence is fixed when the
// iterator is created; entries appended afterwards are not visited. A Sync
// whose flush filter drops buffered entries can shrink the sequence below
// that end; the iterator then finishes early. Next returns io.EOF when the
// sequence is exhausted.
type Iter struct {
	l     *Log
	pos   uint64
	limit uint64
}

// Iter creates an iterator positioned at the first entry.
func (l *Log) Iter() *Iter {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Iter{
		l:     l,
		limit: l.meta.PrimaryLen + uint64(len(l.mem)),
	}
}

// Next decodes and returns the entry at the current position.
func (it *Iter) Next() (Entry, error) {
	it.l.mu.Lock()
	defer it.l.mu.Unlock()
	if it.l.closed {
		return Entry{}, ErrClosed
	}
	limit := it.limit
	if end := it.l.meta.PrimaryLen + uint64(len(it.l.mem)); end < limit {
		limit = end
	}
	if it.pos >= limit {
		return Entry{}, io.EOF
	}

	f, err := it.l.readFrameLocked(it.pos)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Offset: it.pos, Data: bytes.Clone(f.Payload)}
	it.pos += f.Size
	return e, nil
}
