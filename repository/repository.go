package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/jumppad-labs/modeltypes/errors"
	"github.com/jumppad-labs/modeltypes/logger"
)

const (
	// DefaultName is the repository name reported to plugins
	DefaultName = "modeltypes"
	// DefaultVersion is the engine version used to select plugin archives
	DefaultVersion = "3.8.1.Final"

	maxUpdateAttempts = 5
)

// Repository is the engine, it owns the committed tree and its backing store
type Repository struct {
	name    string
	version string
	store   Store
	log     logger.Logger

	mu       sync.RWMutex
	root     *Node
	revision uint64
}

// Option configures a Repository
type Option func(r *Repository)

// WithName sets the repository name
func WithName(name string) Option {
	return func(r *Repository) { r.name = name }
}

// WithVersion sets the engine version string
func WithVersion(version string) Option {
	return func(r *Repository) { r.version = version }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(r *Repository) { r.log = l }
}

// New opens a repository on top of store, loading the committed tree when the
// store has one
func New(store Store, opts ...Option) (*Repository, error) {
	r := &Repository{
		name:    DefaultName,
		version: DefaultVersion,
		store:   store,
		log:     logger.Nop(),
	}

	for _, o := range opts {
		o(r)
	}

	root, err := store.Load()
	if err != nil {
		return nil, errors.TransientIO("open repository", err, "unable to load repository content")
	}

	if root == nil {
		root = NewRoot()
	}

	root.relink()
	r.root = root

	return r, nil
}

// Name returns the repository name
func (r *Repository) Name() string {
	return r.name
}

// Version returns the engine version string
func (r *Repository) Version() string {
	return r.version
}

// Login opens a new session on a snapshot of the committed tree
func (r *Repository) Login(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.TransientIO("login", err, "session not opened")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return &Session{
		repo:     r,
		root:     r.root.clone(nil),
		revision: r.revision,
	}, nil
}

// View runs fn in a session that is always discarded
func (r *Repository) View(ctx context.Context, fn func(s *Session) error) error {
	s, err := r.Login(ctx)
	if err != nil {
		return err
	}
	defer s.Logout()

	return fn(s)
}

// Update runs fn in a new session and saves it when fn succeeds. When the save
// loses against a concurrent commit fn is re-run on a fresh session.
func (r *Repository) Update(ctx context.Context, fn func(s *Session) error) error {
	var err error

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		err = r.View(ctx, func(s *Session) error {
			if err := fn(s); err != nil {
				return err
			}

			return s.Save()
		})

		if errors.KindOf(err) != errors.KindConflict {
			return err
		}

		r.log.Debug("retrying update after conflict", "attempt", attempt)
	}

	return err
}

func (r *Repository) commit(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.revision != r.revision {
		return errors.Conflict("save", "repository changed since the session was opened")
	}

	committed := s.root.clone(nil)
	if err := r.store.Save(committed); err != nil {
		return errors.TransientIO("save", err, "unable to persist repository content")
	}

	r.root = committed
	r.revision++
	s.revision = r.revision

	return nil
}

// Session is a unit of work on a private snapshot of the tree
type Session struct {
	repo     *Repository
	root     *Node
	revision uint64
	closed   bool
}

// Repository returns the engine the session belongs to
func (s *Session) Repository() *Repository {
	return s.repo
}

// Root returns the root node of the session snapshot
func (s *Session) Root() *Node {
	return s.root
}

// Node returns the node at the absolute path p
func (s *Session) Node(p string) (*Node, error) {
	if !strings.HasPrefix(p, "/") {
		return nil, errors.InvalidArgument("resolve", "path %q is not absolute", p)
	}

	return s.root.Node(p)
}

// NodeExists returns true when the absolute path p resolves
func (s *Session) NodeExists(p string) bool {
	_, err := s.Node(p)
	return err == nil
}

// CreatePath resolves p creating any missing node with primaryType
func (s *Session) CreatePath(p, primaryType string) (*Node, error) {
	current := s.root
	for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
		if seg == "" {
			continue
		}

		if c, ok := current.Child(seg); ok {
			current = c
			continue
		}

		c, err := current.AddNode(seg, primaryType)
		if err != nil {
			return nil, err
		}
		current = c
	}

	return current, nil
}

// Save commits the session, the session stays usable afterwards
func (s *Session) Save() error {
	if s.closed {
		return errors.InvalidArgument("save", "session is closed")
	}

	return s.repo.commit(s)
}

// Logout discards any unsaved change
func (s *Session) Logout() {
	s.closed = true
	s.root = nil
}
