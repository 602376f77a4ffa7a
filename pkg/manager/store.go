package manager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// JSONStore persists one JSON file per record under a directory. Writes go
// through a temp file and rename so a crash never leaves a torn record.
type JSONStore[T any] struct {
	mu  sync.Mutex
	dir string
}

func NewJSONStore[T any](dir string) (*JSONStore[T], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &JSONStore[T]{dir: dir}, nil
}

func (s *JSONStore[T]) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes or replaces the record for id.
func (s *JSONStore[T]) Save(id string, record T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record %s: %w", id, err)
	}

	tmp := s.path(id) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write record %s: %w", id, err)
	}
	if err := os.Rename(tmp, s.path(id)); err != nil {
		return fmt.Errorf("commit record %s: %w", id, err)
	}
	return nil
}

// Load reads the record for id. exists=false with a nil error on a miss.
func (s *JSONStore[T]) Load(id string) (record T, exists bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return record, false, nil
	}
	if err != nil {
		return record, false, fmt.Errorf("read record %s: %w", id, err)
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, false, fmt.Errorf("decode record %s: %w", id, err)
	}
	return record, true, nil
}

// Delete removes the record for id. Missing records are not an error.
func (s *JSONStore[T]) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

// ListIDs returns the ids of all stored records.
func (s *JSONStore[T]) ListIDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list store dir: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}
