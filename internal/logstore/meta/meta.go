// Package meta persists the log's commit record. The metadata file is the
// single commit point for the whole directory: bytes in the primary file
// beyond PrimaryLen are uncommitted and invisible to readers, and an index
// or fold checkpoint whose own recorded coverage extends past PrimaryLen is
// discarded as stale. The per-checkpoint lengths stored here are advisory;
// each checkpoint file carries its authoritative, checksummed coverage.
// Data files are written first, metadata last.
package meta

import (
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/julianstephens/go-utils/helpers"
	"github.com/julianstephens/go-utils/jsonutil"
)

const (
	FileName = "meta"

	Version = 1
)

// Metadata is the commit record for a log directory.
type Metadata struct {
	Version int `json:"version"`

	// Epoch changes whenever the primary file is rewritten rather than
	// appended to (currently only at creation). Readers use it to detect
	// that cached offsets no longer apply.
	Epoch string `json:"epoch"`

	// PrimaryLen is the committed length of the primary file in bytes.
	PrimaryLen uint64 `json:"primary_len"`

	// IndexLens maps index meta names to the primary length each durable
	// index file covers.
	IndexLens map[string]uint64 `json:"index_lens,omitempty"`

	// FoldLens maps fold meta names to the primary length each durable
	// fold checkpoint covers.
	FoldLens map[string]uint64 `json:"fold_lens,omitempty"`
}

// New returns metadata for a freshly created, empty log.
func New() *Metadata {
	return &Metadata{
		Version:    Version,
		Epoch:      uuid.NewString(),
		PrimaryLen: 0,
		IndexLens:  map[string]uint64{},
		FoldLens:   map[string]uint64{},
	}
}

// Clone returns a deep copy.
func (m *Metadata) Clone() *Metadata {
	out := *m
	out.IndexLens = maps.Clone(m.IndexLens)
	out.FoldLens = maps.Clone(m.FoldLens)
	return &out
}

// Path returns the metadata file path for a log directory.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads metadata from dir. A missing file yields ErrUninitialized.
func Load(dir string) (*Metadata, error) {
	path := Path(dir)
	if exists := helpers.Exists(path); !exists {
		return nil, &MetaError{Kind: MetaErrorKindNotFound, Dir: dir, Err: fs.ErrNotExist}
	}

	m := &Metadata{}
	if err := jsonutil.ReadFileStrict(path, m); err != nil {
		return nil, &MetaError{Kind: MetaErrorKindDecode, Dir: dir, Err: err}
	}

	if m.Version > Version {
		return nil, &MetaError{
			Kind: MetaErrorKindUnsupportedVersion,
			Dir:  dir,
			Err:  fmt.Errorf("metadata version %d is not supported", m.Version),
		}
	}

	if m.IndexLens == nil {
		m.IndexLens = map[string]uint64{}
	}
	if m.FoldLens == nil {
		m.FoldLens = map[string]uint64{}
	}
	return m, nil
}

// Save atomically writes metadata into dir and syncs the directory. This
// is the commit: every data file the metadata refers to must already be
// durable before Save is called.
func (m *Metadata) Save(dir string) error {
	data, err := jsonutil.Marshal(m)
	if err != nil {
		return &MetaError{Kind: MetaErrorKindEncode, Dir: dir, Err: err}
	}

	path := Path(dir)
	if err := helpers.AtomicFileWrite(path, data); err != nil {
		return &MetaError{Kind: MetaErrorKindWrite, Dir: dir, Err: err}
	}

	d, err := os.Open(dir) //nolint:gosec
	if err != nil {
		return &MetaError{Kind: MetaErrorKindWrite, Dir: dir, Err: err}
	}
	defer func() { _ = d.Close() }()

	if err := d.Sync(); err != nil {
		return &MetaError{Kind: MetaErrorKindWrite, Dir: dir, Err: err}
	}
	return nil
}
