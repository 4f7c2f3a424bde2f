package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const stateFileName = "positions.json"

// Position is the saved place in one book.
type Position struct {
	Chapter int `json:"chapter"`
	Line    int `json:"line"`
}

type fileData struct {
	Last  string              `json:"last"`
	Books map[string]Position `json:"books"`
}

// Store manages persistent reading positions, keyed by book path.
type Store struct {
	path string
	data fileData
	mu   sync.RWMutex
}

// NewStore creates or loads state from XDG_STATE_HOME/bk/
func NewStore() (*Store, error) {
	dir := getStateDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	store := &Store{
		path: filepath.Join(dir, stateFileName),
		data: fileData{Books: make(map[string]Position)},
	}
	if err := store.load(); err != nil {
		// Non-fatal - start with empty state
		store.data = fileData{Books: make(map[string]Position)}
	}
	return store, nil
}

// getStateDir returns XDG_STATE_HOME/bk or ~/.local/state/bk
func getStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "bk")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "bk")
}

// Position returns the saved place for a book and whether one exists.
func (s *Store) Position(path string) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.data.Books[path]
	return pos, ok
}

// SetPosition saves the place for a book and marks it as the last one read.
func (s *Store) SetPosition(path string, pos Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Books[path] = pos
	s.data.Last = path
	return s.save()
}

// Last returns the path of the most recently read book, or "".
func (s *Store) Last() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Last
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &s.data); err != nil {
		return err
	}
	if s.data.Books == nil {
		s.data.Books = make(map[string]Position)
	}
	return nil
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}
