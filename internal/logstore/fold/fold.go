// Package fold maintains streaming aggregates over the log's entry
// sequence. A fold consumes entries in strict commit order, exactly the
// order indexes observe, and its progress is checkpointed alongside index
// progress so only the un-checkpointed tail is re-folded on open.
package fold

import (
	"encoding"
	"fmt"
	"strings"
)

const (
	// DefaultLagThreshold matches the index default: fold checkpoints
	// persist the same way index progress does.
	DefaultLagThreshold = 25 * 500

	filePrefix = "fold-"
	metaPrefix = "fold:"
)

// Fold is a streaming aggregate. Implementations must be pure reductions:
// the state after Fold depends only on the prior state and the entry
// bytes. Marshal/Unmarshal support checkpointing; Reset returns the
// aggregate to its initial state.
type Fold interface {
	Fold(entry []byte) error
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
	Reset()
}

// Factory produces fresh aggregate state.
type Factory func() Fold

// Def names a fold and binds it to a state factory.
type Def struct {
	// Name identifies the fold. Used in file names; same restrictions as
	// index names.
	Name string

	// New produces fresh aggregate state.
	New Factory

	// LagThreshold is how many primary-sequence bytes the checkpoint may
	// trail the in-memory state by before a durable write is required.
	LagThreshold uint64
}

// NewDef creates a fold definition with the default lag threshold.
func NewDef(name string, factory Factory) Def {
	return Def{
		Name:         name,
		New:          factory,
		LagThreshold: DefaultLagThreshold,
	}
}

// WithLagThreshold returns a copy of the definition with the given lag
// threshold.
func (d Def) WithLagThreshold(n uint64) Def {
	d.LagThreshold = n
	return d
}

// MetaName is the key used for this fold in log metadata.
func (d Def) MetaName() string {
	return metaPrefix + d.Name
}

// FileName is the on-disk file name for this fold's checkpoint.
func (d Def) FileName() string {
	return filePrefix + d.Name
}

// Validate checks that the definition is usable.
func (d Def) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: empty fold name", ErrInvalidDef)
	}
	if strings.ContainsAny(d.Name, "/\\") || strings.Contains(d.Name, "..") {
		return fmt.Errorf("%w: fold name %q contains path elements", ErrInvalidDef, d.Name)
	}
	if d.New == nil {
		return fmt.Errorf("%w: fold %q has no factory", ErrInvalidDef, d.Name)
	}
	return nil
}
