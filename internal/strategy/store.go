package strategy

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store owns the on-disk decision document and its compiled form. Every
// successful write or reload bumps a monotonic version so callers can
// tell when the active logic changed without re-reading the file.
type Store struct {
	path string

	mu      sync.RWMutex
	version uint64
	doc     *Document
	program *Program
}

// NewStore loads the document at path, bootstrapping the default
// document when the file does not exist yet.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}

	source, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		doc := DefaultDocument()
		source, err = doc.Source()
		if err != nil {
			return nil, fmt.Errorf("failed to render default document: %w", err)
		}
		if err := s.writeAtomic(source); err != nil {
			return nil, fmt.Errorf("failed to bootstrap document: %w", err)
		}
		log.Info().Str("path", path).Msg("Bootstrapped default decision document")
	} else if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	if err := s.install(source); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the location of the document on disk
func (s *Store) Path() string {
	return s.path
}

// Version returns the current document version counter
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Active returns the compiled program together with the version it
// belongs to
func (s *Store) Active() (*Program, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.program, s.version
}

// ActiveDocument returns a copy of the current document
func (s *Store) ActiveDocument() (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// ReadSource returns the raw bytes of the document currently on disk
func (s *Store) ReadSource() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return data, nil
}

// Write validates and compiles the new source, persists it atomically,
// and swaps it in as the active program. A source that fails validation
// or compilation leaves both disk and memory untouched.
func (s *Store) Write(source []byte) error {
	doc, program, err := compileSource(source)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeAtomic(source); err != nil {
		return err
	}

	s.doc = doc
	s.program = program
	s.version++
	log.Info().
		Uint64("version", s.version).
		Str("document", doc.Metadata.Name).
		Str("document_version", doc.Metadata.Version).
		Msg("Activated decision document")
	return nil
}

// Reload re-reads the document from disk and swaps it in. Used after
// an external process has replaced the file.
func (s *Store) Reload() error {
	source, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	return s.install(source)
}

func (s *Store) install(source []byte) error {
	doc, program, err := compileSource(source)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.program = program
	s.version++
	return nil
}

// writeAtomic writes to a temp file in the target directory and renames
// it over the document, so readers never observe a partial write.
// Callers hold s.mu where concurrent writes are possible.
func (s *Store) writeAtomic(source []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(source); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace document: %w", err)
	}
	return nil
}

// compileSource parses, migrates, validates, and compiles raw document
// bytes without touching store state.
func compileSource(source []byte) (*Document, *Program, error) {
	doc, err := Parse(source)
	if err != nil {
		return nil, nil, err
	}
	if err := Migrate(doc); err != nil {
		return nil, nil, err
	}
	program, err := doc.Compile()
	if err != nil {
		return nil, nil, err
	}
	return doc, program, nil
}
