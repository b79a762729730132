// Package index persists the last known agreement between local and remote
// state for one container: one JSON file per container, replaced atomically
// on every mutation. Loss or corruption of the file is recoverable: the
// store restarts empty and the next diff pass rebuilds it from local and
// remote content.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MKhiriev/go-vault-sync/internal/logger"
	"github.com/MKhiriev/go-vault-sync/models"
)

// ErrCorrupt reports that an index file existed but could not be decoded.
// The store self-heals by starting from an empty index, so the error is only
// logged, never fatal.
var ErrCorrupt = errors.New("index file corrupt")

type persistedIndex struct {
	ContainerID string                       `json:"container_id"`
	Entries     map[string]models.IndexEntry `json:"entries"`
}

// Store is the durable path→IndexEntry mapping for one container. All
// mutations go through the internal mutex, making the owning sync pool the
// effective single writer, and every mutation is persisted with a temp file
// plus rename so a crash mid-write never leaves a torn index.
type Store struct {
	containerID string
	path        string
	log         *logger.Logger

	mu      sync.Mutex
	entries map[string]models.IndexEntry
}

// Open loads the index file for containerID from dir, creating dir if needed.
// A missing file yields an empty store. A corrupt file is renamed aside,
// logged, and likewise yields an empty store (the next diff pass re-observes
// everything; at worst content is re-transferred, never lost).
func Open(dir, containerID string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	s := &Store{
		containerID: containerID,
		path:        filepath.Join(dir, containerID+".idx.json"),
		log:         log,
		entries:     make(map[string]models.IndexEntry),
	}

	if err := s.load(); err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return nil, err
		}
		// Keep the bad file around for diagnosis, then start empty.
		_ = os.Rename(s.path, s.path+".corrupt")
		log.Warn().Str("container_id", containerID).Err(err).
			Msg("index file corrupt, rebuilding from empty")
	}

	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read index file: %w", err)
	}

	var idx persistedIndex
	if err = json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]models.IndexEntry)
	}

	s.entries = idx.Entries
	return nil
}

// persist writes the full index to a temp file in the same directory and
// renames it over the live file. Callers must hold s.mu.
func (s *Store) persist() error {
	idx := persistedIndex{ContainerID: s.containerID, Entries: s.entries}
	payload, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}

	if _, err = tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp index file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp index file: %w", err)
	}

	if err = os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace index file: %w", err)
	}

	return nil
}

// Get returns the entry for path and whether it exists.
func (s *Store) Get(path string) (models.IndexEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[path]
	return e, ok
}

// Entries returns a copy of all entries keyed by path.
func (s *Store) Entries() map[string]models.IndexEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]models.IndexEntry, len(s.entries))
	for p, e := range s.entries {
		out[p] = e
	}
	return out
}

// Put stores entry under entry.Path and persists the index.
func (s *Store) Put(entry models.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Path] = entry
	return s.persist()
}

// PutAll stores all entries in one persisted write.
func (s *Store) PutAll(entries []models.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		s.entries[e.Path] = e
	}
	return s.persist()
}

// Forget removes the entries for paths and persists the index. Unknown paths
// are ignored.
func (s *Store) Forget(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, p := range paths {
		if _, ok := s.entries[p]; ok {
			delete(s.entries, p)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.persist()
}

// Move re-keys the entry at fromPath to toPath, updating the entry's own Path
// field, and persists the index. Missing source entries are a no-op.
func (s *Store) Move(fromPath, toPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[fromPath]
	if !ok {
		return nil
	}

	delete(s.entries, fromPath)
	e.Path = toPath
	s.entries[toPath] = e
	return s.persist()
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Path returns the index file location on disk.
func (s *Store) Path() string {
	return s.path
}
