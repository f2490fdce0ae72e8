package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store reads and writes archived records under a single directory.
// Writes go through a temp file and rename so a crash never leaves a
// half-written record; the presence of <topic_id>.md is the only resume
// marker the crawler relies on.
type Store struct {
	dir string
}

// NewStore opens (creating if necessary) the archive directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory the store operates on.
func (s *Store) Dir() string { return s.dir }

// Path returns the record file path for a topic id.
func (s *Store) Path(topicID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.md", topicID))
}

// Exists reports whether a record for the topic is already on disk.
func (s *Store) Exists(topicID int64) bool {
	_, err := os.Stat(s.Path(topicID))
	return err == nil
}

// Save writes the record atomically.
func (s *Store) Save(rec *Record) error {
	data, err := rec.Encode()
	if err != nil {
		return err
	}
	return s.writeAtomic(rec.Filename(), data)
}

// Load reads and decodes one record by file path.
func (s *Store) Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

// List returns the paths of all records in the store, sorted by file name.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing archive dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// AssetPath returns the path an asset file shares with its record.
func (s *Store) AssetPath(name string) string {
	return filepath.Join(s.dir, name)
}

// AssetExists reports whether an asset file is already on disk.
func (s *Store) AssetExists(name string) bool {
	_, err := os.Stat(s.AssetPath(name))
	return err == nil
}

func (s *Store) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming %s: %w", name, err)
	}
	return nil
}
