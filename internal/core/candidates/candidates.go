// Package candidates provides the read-only list of candidates served by the
// API. The default store is empty; a JSON file store serves the list written
// by the generate command.
package candidates

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Candidate is one entry a vote may refer to. ID is the position in the
// source list.
type Candidate struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Store lists candidates.
type Store interface {
	List(ctx context.Context) ([]Candidate, error)
	// Exists reports whether id names a known candidate. id is the literal
	// JSON number from a vote.
	Exists(ctx context.Context, id string) (bool, error)
	// Source names the backing store for logs and metrics.
	Source() string
}

// Source names.
const (
	SourceStub = "stub"
	SourceFile = "file"
)

// StubStore has no candidates.
type StubStore struct{}

func (StubStore) List(context.Context) ([]Candidate, error) { return []Candidate{}, nil }

func (StubStore) Exists(context.Context, string) (bool, error) { return false, nil }

func (StubStore) Source() string { return SourceStub }

// FileStore serves candidates read from a JSON array of names.
type FileStore struct {
	path string

	mu         sync.RWMutex
	candidates []Candidate
}

// NewFileStore loads path. The file must hold a JSON array of strings.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the file. On error the previous list is kept.
func (s *FileStore) Reload() error {
	names, err := ReadFile(s.path)
	if err != nil {
		return err
	}

	list := make([]Candidate, len(names))
	for i, name := range names {
		list[i] = Candidate{ID: i, Name: name}
	}

	s.mu.Lock()
	s.candidates = list
	s.mu.Unlock()
	return nil
}

func (s *FileStore) List(context.Context) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Candidate, len(s.candidates))
	copy(out, s.candidates)
	return out, nil
}

func (s *FileStore) Exists(_ context.Context, id string) (bool, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil {
		return false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return idx >= 0 && idx < len(s.candidates), nil
}

func (s *FileStore) Source() string { return SourceFile }

// Path returns the file backing the store.
func (s *FileStore) Path() string { return s.path }

// ReadFile reads a JSON array of candidate names.
func ReadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candidates file: %w", err)
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("parse candidates file %s: %w", path, err)
	}
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("parse candidates file %s: entry %d is empty", path, i)
		}
	}
	return names, nil
}
