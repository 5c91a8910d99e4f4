// Package cache provides the stage cache used by every pipeline stage to
// decide "regenerate or reuse".
//
// Conventions:
//   - The document lives at <work>/cache.json and is rewritten as a whole.
//   - Writes go to a temporary file in the same directory which is then
//     renamed, so readers never observe a partially-written document.
//   - The document is loaded lazily once per Store and memoized; every read
//     hands out a deep copy.
//
// A Store assumes a single invocation per working copy; there is no locking.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileName is the default document name inside the work directory.
const FileName = "cache.json"

// Store owns the cache document for one invocation.
type Store struct {
	path   string
	loaded bool
	rec    Record
}

// NewStore returns a store backed by the document at path. Nothing is read
// until the first Load.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Load returns a copy of the cached record. A missing document yields an
// empty record, never an error.
func (s *Store) Load() (Record, error) {
	if !s.loaded {
		rec, err := readRecord(s.path)
		if err != nil {
			return nil, err
		}
		s.rec = rec
		s.loaded = true
	}
	return s.rec.Clone(), nil
}

func readRecord(path string) (Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, nil
		}
		return nil, err
	}
	var d document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return fromDocument(d), nil
}

// Save overwrites the document with r. The memoized copy is replaced only
// after the rename succeeded.
func (s *Store) Save(r Record) error {
	if err := validate(r); err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, f, err := createTempFile(dir, filepath.Base(s.path))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(toDocument(r)); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	s.rec = r.Clone()
	s.loaded = true
	return nil
}

// Get returns the entry for stage.
func (s *Store) Get(stage Stage) (Entry, bool, error) {
	rec, err := s.Load()
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := rec[stage]
	return e, ok, nil
}

// Put records that stage produced its output under key and saves the
// document.
func (s *Store) Put(stage Stage, key string, metadata map[string][]string) error {
	rec, err := s.Load()
	if err != nil {
		return err
	}
	rec[stage] = Entry{Key: key, Metadata: metadata}
	return s.Save(rec)
}

// Reusable reports whether stage may reuse its output: the cached key equals
// key and the artifact still exists. Either failing forces regeneration.
func (s *Store) Reusable(stage Stage, key, artifact string) (bool, error) {
	e, ok, err := s.Get(stage)
	if err != nil || !ok || key == "" || e.Key != key {
		return false, err
	}
	if _, err := os.Stat(artifact); err != nil {
		return false, nil
	}
	return true, nil
}

// Remove deletes the document and forgets the memoized copy.
func (s *Store) Remove() error {
	s.rec = nil
	s.loaded = false
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// createTempFile creates ".tmp-<base>-*" next to the target so the final
// rename stays on one filesystem.
func createTempFile(dir, base string) (string, *os.File, error) {
	f, err := os.CreateTemp(dir, ".tmp-"+base+"-")
	if err != nil {
		return "", nil, err
	}
	return f.Name(), f, nil
}
