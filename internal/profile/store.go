package profile

import (
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// State is the lifecycle of a Store.
type State int

const (
	// StateUninitialized means no load has been attempted yet.
	StateUninitialized State = iota
	// StateReady means at least one load was attempted. The document may
	// still be empty if every attempt failed.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// LoadFunc reads a document from a path.
type LoadFunc func(path string) (Document, error)

// LoadHook observes every load attempt; err is nil on success.
type LoadHook func(err error)

// Store holds the process-wide profile document. Reads take a read lock;
// a reload swaps the document wholesale. Concurrent reloads share a single
// file read.
type Store struct {
	path   string
	load   LoadFunc
	hook   LoadHook
	logger *slog.Logger

	mu    sync.RWMutex
	doc   Document
	state State

	group singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithLoadFunc replaces LoadFile (for testing).
func WithLoadFunc(fn LoadFunc) Option {
	return func(s *Store) { s.load = fn }
}

// WithLoadHook registers an observer for load attempts.
func WithLoadHook(fn LoadHook) Option {
	return func(s *Store) { s.hook = fn }
}

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a Store for the document at path. Nothing is read until
// Load or Reload is called.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		load:   LoadFile,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the file the store reads from.
func (s *Store) Path() string { return s.path }

// Load performs the startup load. A failure is logged and returned but
// leaves the store usable with an empty document.
func (s *Store) Load() error {
	_, err := s.Reload()
	return err
}

// Get returns the current document.
func (s *Store) Get() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// State returns the lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Reload re-reads the file and replaces the document on success. On failure
// the previous document is kept. Callers arriving while a reload is in
// flight wait for it and share its result.
func (s *Store) Reload() (Document, error) {
	v, err, shared := s.group.Do("reload", func() (any, error) {
		return s.reload()
	})
	if shared {
		s.logger.Debug("profile reload shared with concurrent caller", "path", s.path)
	}
	doc, _ := v.(Document)
	return doc, err
}

func (s *Store) reload() (Document, error) {
	doc, err := s.load(s.path)

	s.mu.Lock()
	s.state = StateReady
	if err == nil {
		s.doc = doc
	} else {
		doc = s.doc
	}
	s.mu.Unlock()

	if s.hook != nil {
		s.hook(err)
	}
	if err != nil {
		s.logger.Error("failed to load resume data", "path", s.path, "error", err)
		return doc, err
	}
	s.logger.Info("resume data loaded successfully", "path", s.path, "keys", doc.Len())
	return doc, nil
}
