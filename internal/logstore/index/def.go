package index

import (
	"fmt"
	"strings"
)

const (
	// DefaultLagThreshold is the default number of primary-sequence bytes an
	// index may absorb in memory only before a durable catch-up write is
	// required. Tuned for typical fixed-width keys (~25 bytes) at a batch of
	// ~500 entries; callers with expensive extraction functions should
	// override it.
	DefaultLagThreshold = 25 * 500

	filePrefix = "index-"
	metaPrefix = "idx:"
)

// Func extracts index keys from an entry's raw bytes. It must be pure: the
// output may depend only on the input bytes. This is a caller obligation,
// not enforced.
//
// An entry can produce zero or more outputs for the same index. See Output
// for the supported variants.
type Func func(data []byte) []Output

// Def names an index and binds it to an extraction function.
//
// The name keys both the metadata entry and the on-disk file, so reusing a
// name across semantically different functions silently reuses stale index
// data. When an extraction function changes, change the name.
type Def struct {
	// Name identifies the index. Used in file names; do not use
	// user-generated content, path separators, or "..".
	Name string

	// Func extracts keys from entry bytes.
	Func Func

	// LagThreshold is how many primary-sequence bytes this index may be
	// behind on disk. 0 keeps the index fully caught up at every
	// durability point.
	LagThreshold uint64
}

// NewDef creates an index definition with the default lag threshold.
func NewDef(name string, fn Func) Def {
	return Def{
		Name:         name,
		Func:         fn,
		LagThreshold: DefaultLagThreshold,
	}
}

// WithLagThreshold returns a copy of the definition with the given lag
// threshold.
func (d Def) WithLagThreshold(n uint64) Def {
	d.LagThreshold = n
	return d
}

// MetaName is the key used for this index in log metadata.
func (d Def) MetaName() string {
	return metaPrefix + d.Name
}

// FileName is the on-disk file name for this index. The prefix guarantees
// no collision with the primary log's own files.
func (d Def) FileName() string {
	return filePrefix + d.Name
}

// Validate checks that the definition is usable.
func (d Def) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: empty index name", ErrInvalidDef)
	}
	if strings.ContainsAny(d.Name, "/\\") || strings.Contains(d.Name, "..") {
		return fmt.Errorf("%w: index name %q contains path elements", ErrInvalidDef, d.Name)
	}
	if d.Func == nil {
		return fmt.Errorf("%w: index %q has no extraction function", ErrInvalidDef, d.Name)
	}
	return nil
}
