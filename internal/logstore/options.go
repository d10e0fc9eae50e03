package logstore

import (
	"fmt"

	"github.com/julianstephens/logstore/internal/logger"
	"github.com/julianstephens/logstore/internal/logstore/entry"
	"github.com/julianstephens/logstore/internal/logstore/fold"
	"github.com/julianstephens/logstore/internal/logstore/index"
)

// FlushDecision is a flush filter's verdict on one buffered entry.
type FlushDecision int

const (
	FlushKeep FlushDecision = iota
	FlushDrop
	FlushReplace
)

// FlushFilterOutput carries a decision plus the replacement payload when
// the decision is FlushReplace.
type FlushFilterOutput struct {
	Decision    FlushDecision
	Replacement []byte
}

// KeepEntry writes the entry unchanged.
func KeepEntry() FlushFilterOutput {
	return FlushFilterOutput{Decision: FlushKeep}
}

// DropEntry skips the entry. Its provisional offset never becomes durable.
func DropEntry() FlushFilterOutput {
	return FlushFilterOutput{Decision: FlushDrop}
}

// ReplaceEntry writes data in the entry's place.
func ReplaceEntry(data []byte) FlushFilterOutput {
	return FlushFilterOutput{Decision: FlushReplace, Replacement: data}
}

// FlushFilterFunc decides, entry by entry, what happens to this process's
// buffered payloads when sync discovers the log moved on disk. It runs
// under the exclusive lock against the freshly loaded on-disk state;
// entries committed by other processes are never re-filtered.
type FlushFilterFunc func(ctx *FlushFilterContext, data []byte) (FlushFilterOutput, error)

// FlushFilterContext gives a flush filter read access to the on-disk state
// the buffered entries are about to land on.
type FlushFilterContext struct {
	log *Log
}

// Lookup queries the named index over the freshly loaded committed state.
func (c *FlushFilterContext) Lookup(indexName string, key []byte) ([]Entry, error) {
	return c.log.lookupLocked(indexName, key)
}

// OpenOptions configures how a log is opened. The zero value is not
// usable; start from NewOpenOptions. Setters return the receiver for
// chaining and the options are cloned at Open, so one OpenOptions can
// open many logs.
type OpenOptions struct {
	indexes     []index.Def
	folds       []fold.Def
	create      bool
	fsync       bool
	checksum    entry.ChecksumType
	autoSync    *uint64
	flushFilter FlushFilterFunc
	log         logger.Logger
}

// NewOpenOptions returns options with the auto checksum policy, no
// auto-sync, and a no-op logger.
func NewOpenOptions() *OpenOptions {
	return &OpenOptions{
		checksum: entry.ChecksumAuto,
		log:      logger.NoOpLogger{},
	}
}

// Index declares one lagging secondary index.
func (o *OpenOptions) Index(def index.Def) *OpenOptions {
	o.indexes = append(o.indexes, def)
	return o
}

// Indexes declares several indexes at once.
func (o *OpenOptions) Indexes(defs ...index.Def) *OpenOptions {
	o.indexes = append(o.indexes, defs...)
	return o
}

// FoldDef declares one streaming aggregate.
func (o *OpenOptions) FoldDef(def fold.Def) *OpenOptions {
	o.folds = append(o.folds, def)
	return o
}

// Create makes Open initialize the directory and metadata when absent.
func (o *OpenOptions) Create(create bool) *OpenOptions {
	o.create = create
	return o
}

// Fsync forces committed bytes to stable storage during Sync.
func (o *OpenOptions) Fsync(fsync bool) *OpenOptions {
	o.fsync = fsync
	return o
}

// Checksum sets the policy for newly appended entries.
func (o *OpenOptions) Checksum(t entry.ChecksumType) *OpenOptions {
	o.checksum = t
	return o
}

// AutoSync makes Append call Sync once the buffer exceeds n bytes.
// AutoSync(0) syncs after every append.
func (o *OpenOptions) AutoSync(n uint64) *OpenOptions {
	o.autoSync = &n
	return o
}

// NoAutoSync restores the default: sync only when the caller asks.
func (o *OpenOptions) NoAutoSync() *OpenOptions {
	o.autoSync = nil
	return o
}

// FlushFilter installs a per-entry keep/drop/replace hook for sync.
func (o *OpenOptions) FlushFilter(fn FlushFilterFunc) *OpenOptions {
	o.flushFilter = fn
	return o
}

// Logger sets the structured logger. Defaults to a no-op logger.
func (o *OpenOptions) Logger(lg logger.Logger) *OpenOptions {
	o.log = lg
	return o
}

// withZeroIndexLag forces every index and fold to flush on any lag. Used
// when durable files must be exactly current, e.g. before handing the
// directory to another tool.
func (o *OpenOptions) withZeroIndexLag() *OpenOptions {
	for i := range o.indexes {
		o.indexes[i].LagThreshold = 0
	}
	for i := range o.folds {
		o.folds[i].LagThreshold = 0
	}
	return o
}

func (o *OpenOptions) clone() *OpenOptions {
	out := *o
	out.indexes = append([]index.Def(nil), o.indexes...)
	out.folds = append([]fold.Def(nil), o.folds...)
	return &out
}

func (o *OpenOptions) validate() error {
	seen := map[string]bool{}
	for _, def := range o.indexes {
		if err := def.Validate(); err != nil {
			return err
		}
		if seen[def.Name] {
			return fmt.Errorf("%w: duplicate index %q", ErrInvalidOptions, def.Name)
		}
		seen[def.Name] = true
	}
	seen = map[string]bool{}
	for _, def := range o.folds {
		if err := def.Validate(); err != nil {
			return err
		}
		if seen[def.Name] {
			return fmt.Errorf("%w: duplicate fold %q", ErrInvalidOptions, def.Name)
		}
		seen[def.Name] = true
	}
	switch o.checksum {
	case entry.ChecksumAuto, entry.ChecksumXxhash64, entry.ChecksumCRC32C:
	default:
		return fmt.Errorf("%w: unknown checksum type %d", ErrInvalidOptions, o.checksum)
	}
	if o.log == nil {
		return fmt.Errorf("%w: nil logger", ErrInvalidOptions)
	}
	return nil
}
