package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// File is a Store persisted as one JSON document per namespace.
// Layout: {dir}/{namespace}.json
//
// Every write rewrites the document through a temp file and rename, so a
// crash leaves either the old or the new state on disk.
type File struct {
	*Memory
	path string
}

// OpenFile loads or creates the store for namespace under dir. A corrupt
// document is moved aside to {namespace}.json.corrupt and the store starts
// from first-run defaults.
func OpenFile(dir, namespace string) (*File, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}
	f := &File{Memory: NewMemory(), path: filepath.Join(dir, namespace+".json")}

	raw, err := os.ReadFile(f.path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	default:
		loaded := newSnapshot()
		if jerr := json.Unmarshal(raw, &loaded); jerr != nil {
			if rerr := os.Rename(f.path, f.path+".corrupt"); rerr != nil {
				return nil, fmt.Errorf("move aside corrupt %s: %w", f.path, rerr)
			}
		} else {
			f.Memory.data = fillSnapshot(loaded)
		}
	}

	f.Memory.persist = f.save
	return f, nil
}

// Path returns the document path.
func (f *File) Path() string { return f.path }

func fillSnapshot(s snapshot) snapshot {
	empty := newSnapshot()
	if s.Days == nil {
		s.Days = empty.Days
	}
	if s.Counters == nil {
		s.Counters = empty.Counters
	}
	if s.Sets == nil {
		s.Sets = empty.Sets
	}
	if s.KV == nil {
		s.KV = empty.KV
	}
	return s
}

func (f *File) save(s snapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

var _ Store = (*File)(nil)
