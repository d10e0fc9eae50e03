// Package cli implements the logstore command surface: small maintenance
// and inspection commands over a log directory.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/julianstephens/go-utils/cliutil"
	"github.com/julianstephens/logstore/internal/logstore"
	"github.com/julianstephens/logstore/internal/logstore/entry"
	"github.com/julianstephens/logstore/internal/logstore/meta"
)

func printErrorf(format string, args ...interface{}) {
	cliutil.PrintError(fmt.Sprintf(format, args...))
}

// openOpts returns the engine configuration the CLI uses. Commands operate
// on raw entries only; index and fold definitions belong to embedding
// programs, so none are declared here.
func openOpts(create bool) *logstore.OpenOptions {
	return logstore.NewOpenOptions().
		Create(create).
		Fsync(true)
}

// InitCmd initializes a new log directory.
type InitCmd struct {
	Dir string `arg:"" help:"Log directory to initialize"`
}

func (c *InitCmd) Run() error {
	l, err := openOpts(true).Open(c.Dir)
	if err != nil {
		printErrorf("Failed to initialize %s: %v", c.Dir, err)
		return err
	}
	defer func() { _ = l.Close() }()

	fmt.Printf("Initialized log at %s\n", c.Dir)
	return nil
}

// AppendCmd appends entries and syncs them durable.
type AppendCmd struct {
	Dir  string   `arg:"" help:"Log directory"`
	Data []string `arg:"" optional:"" help:"Entries to append; reads lines from stdin when omitted"`
}

func (c *AppendCmd) Run() error {
	l, err := openOpts(false).Open(c.Dir)
	if err != nil {
		printErrorf("Failed to open %s: %v", c.Dir, err)
		return err
	}
	defer func() { _ = l.Close() }()

	entries := c.Data
	if len(entries) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), entry.MaxEntrySize)
		for scanner.Scan() {
			entries = append(entries, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			printErrorf("Failed to read stdin: %v", err)
			return err
		}
	}

	for _, e := range entries {
		if _, err := l.Append([]byte(e)); err != nil {
			printErrorf("Failed to append: %v", err)
			return err
		}
	}
	if err := l.Sync(); err != nil {
		printErrorf("Failed to sync %s: %v", c.Dir, err)
		return err
	}

	fmt.Printf("Appended %d entries to %s\n", len(entries), c.Dir)
	return nil
}

// CatCmd dumps committed entries to stdout.
type CatCmd struct {
	Dir     string `arg:"" help:"Log directory"`
	Offsets bool   `help:"Prefix each entry with its offset"`
}

func (c *CatCmd) Run() error {
	l, err := openOpts(false).Open(c.Dir)
	if err != nil {
		printErrorf("Failed to open %s: %v", c.Dir, err)
		return err
	}
	defer func() { _ = l.Close() }()

	it := l.Iter()
	for {
		e, err := it.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			printErrorf("Failed to read entry: %v", err)
			return err
		}
		if c.Offsets {
			fmt.Printf("%d\t%s\n", e.Offset, e.Data)
		} else {
			fmt.Printf("%s\n", e.Data)
		}
	}
}

// StatsCmd summarizes the directory's committed metadata.
type StatsCmd struct {
	Dir string `arg:"" help:"Log directory"`
}

func (c *StatsCmd) Run() error {
	m, err := meta.Load(c.Dir)
	if err != nil {
		printErrorf("Failed to read metadata for %s: %v", c.Dir, err)
		return err
	}

	fmt.Printf("version:      %d\n", m.Version)
	fmt.Printf("epoch:        %s\n", m.Epoch)
	fmt.Printf("primary_len:  %d\n", m.PrimaryLen)
	printLens("index", m.IndexLens)
	printLens("fold", m.FoldLens)
	return nil
}

func printLens(kind string, lens map[string]uint64) {
	names := make([]string, 0, len(lens))
	for name := range lens {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s %-12s %d\n", kind, name, lens[name])
	}
}

// DoctorCmd walks every committed entry, verifying framing and checksums.
type DoctorCmd struct {
	Dir string `arg:"" help:"Log directory"`
}

func (c *DoctorCmd) Run() error {
	l, err := openOpts(false).Open(c.Dir)
	if err != nil {
		printErrorf("Failed to open %s: %v", c.Dir, err)
		return err
	}
	defer func() { _ = l.Close() }()

	var entries, bytes uint64
	it := l.Iter()
	for {
		e, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			printErrorf("Corruption at entry %d: %v", entries, err)
			return err
		}
		entries++
		bytes += uint64(len(e.Data))
	}

	fmt.Printf("ok: %d entries, %d payload bytes, %d committed bytes\n",
		entries, bytes, l.CommittedLen())
	return nil
}

// SyncCmd runs an empty commit, catching up lagging index and fold files
// and truncating any crashed tail.
type SyncCmd struct {
	Dir string `arg:"" help:"Log directory"`
}

func (c *SyncCmd) Run() error {
	l, err := openOpts(false).Open(c.Dir)
	if err != nil {
		printErrorf("Failed to open %s: %v", c.Dir, err)
		return err
	}
	defer func() { _ = l.Close() }()

	if err := l.Sync(); err != nil {
		printErrorf("Failed to sync %s: %v", c.Dir, err)
		return err
	}

	fmt.Printf("Synced %s at %d committed bytes\n", c.Dir, l.CommittedLen())
	return nil
}
