package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// FileStore persists values as a single JSON document. Writes go
// through a temp file and rename so a crash never leaves a torn file.
type FileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// NewFileStore opens (or creates) the store at path.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, values: map[string]string{}}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] read state file")
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.values); err != nil {
			return nil, errors.Wrap(err, "[NewFileStore] decode state file")
		}
	}
	return s, nil
}

func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.flush()
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.flush()
}

// flush must be called with the mutex held.
func (s *FileStore) flush() error {
	raw, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[FileStore.flush] encode state")
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "[FileStore.flush] create state dir")
	}
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return errors.Wrap(err, "[FileStore.flush] write temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "[FileStore.flush] replace state file")
	}
	return nil
}
