package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists committed trees
type Store interface {
	// Load returns the last saved tree, or nil when nothing was saved yet
	Load() (*Node, error)
	// Save persists root, implementations must not leave partial content behind
	Save(root *Node) error
}

// FileStore keeps the tree as JSON in a file within a directory
type FileStore struct {
	dir  string
	file string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore writing to dir/repository.json
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		dir:  dir,
		file: filepath.Join(dir, "repository.json"),
	}
}

func (f *FileStore) Load() (*Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read repository file: %w", err)
	}

	root := &Node{}
	if err := json.Unmarshal(data, root); err != nil {
		return nil, fmt.Errorf("failed to decode repository file: %w", err)
	}

	return root, nil
}

func (f *FileStore) Save(root *Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	buf := bytes.NewBuffer([]byte{})
	enc := json.NewEncoder(buf)
	enc.SetIndent("", " ")

	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("unable to encode repository: %w", err)
	}

	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}

	// write to a temporary file first so a crash never truncates the state
	tmpFile := f.file + ".tmp"
	if err := os.WriteFile(tmpFile, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write temporary repository file: %w", err)
	}

	if err := os.Rename(tmpFile, f.file); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to save repository file: %w", err)
	}

	return nil
}

// MemoryStore keeps the last saved tree in memory, a repository re-opened on
// the same MemoryStore sees everything that was committed before
type MemoryStore struct {
	mu   sync.Mutex
	root *Node
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.root == nil {
		return nil, nil
	}

	return m.root.clone(nil), nil
}

func (m *MemoryStore) Save(root *Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.root = root.clone(nil)

	return nil
}
