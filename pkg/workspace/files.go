package workspace

import (
	"fmt"
	"slices"
)

// MainFile is the reserved file every workspace contains.
const MainFile = "main"

// File is a named unit of source text.
type File struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Store maps file names to content and remembers creation order.
// It is the only authority on which files exist.
type Store struct {
	files map[string]string
	order []string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{files: make(map[string]string)}
}

// Create inserts a new file.
func (s *Store) Create(name, content string) (File, error) {
	if _, exists := s.files[name]; exists {
		return File{}, fmt.Errorf("%w: %q", ErrDuplicateFile, name)
	}
	s.files[name] = content
	s.order = append(s.order, name)
	return File{Name: name, Content: content}, nil
}

// Delete removes a file. The main file cannot be deleted.
func (s *Store) Delete(name string) error {
	if name == MainFile {
		return fmt.Errorf("%w: %q", ErrProtectedFile, name)
	}
	if _, exists := s.files[name]; !exists {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(s.files, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	return nil
}

// Write replaces the content of an existing file. Last write wins.
func (s *Store) Write(name, content string) error {
	if _, exists := s.files[name]; !exists {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	s.files[name] = content
	return nil
}

// Read returns the content of a file.
func (s *Store) Read(name string) (string, error) {
	content, exists := s.files[name]
	if !exists {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return content, nil
}

// Has reports whether the file exists.
func (s *Store) Has(name string) bool {
	_, exists := s.files[name]
	return exists
}

// Names returns the file names in creation order.
func (s *Store) Names() []string {
	return slices.Clone(s.order)
}
