package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/chunkcache/codec"
	ifs "github.com/hupe1980/chunkcache/internal/fs"
)

// State is the persisted session.
type State struct {
	CacheKey       string `json:"cache_key"`
	CacheBuster    string `json:"cache_buster"`
	Counter        int    `json:"counter"`
	MaxTotalChunks int    `json:"max_total_chunks,omitempty"`
}

type options struct {
	fsys  ifs.FileSystem
	codec codec.Codec
	newID func() string
}

// Option configures Open.
type Option func(*options)

// WithFileSystem sets the file system the session file lives on.
func WithFileSystem(fsys ifs.FileSystem) Option {
	return func(o *options) {
		o.fsys = fsys
	}
}

// WithCodec sets the codec used to write the session file. Files written
// with any registered codec can be read back.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithIDGenerator overrides how cache keys and busters are minted.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// Store holds a session and writes every change through to its file.
// A Store with an empty path keeps the session in memory only.
type Store struct {
	path string
	opts options

	mu    sync.Mutex
	state State
}

// Open loads the session at path, creating it with fresh identifiers when the
// file does not exist.
func Open(path string, optFns ...Option) (*Store, error) {
	o := options{
		fsys:  ifs.Default,
		codec: codec.Default,
		newID: uuid.NewString,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	s := &Store{path: path, opts: o}

	if path != "" {
		state, err := s.load()
		switch {
		case err == nil:
			s.state = state
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("session: load %s: %w", path, err)
		}
	}

	changed := false
	if s.state.CacheKey == "" {
		s.state.CacheKey = o.newID()
		changed = true
	}
	if s.state.CacheBuster == "" {
		s.state.CacheBuster = o.newID()
		changed = true
	}
	if changed {
		if err := s.save(s.state); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Path returns the session file path.
func (s *Store) Path() string { return s.path }

// State returns a copy of the session.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CacheKey returns the session's cache key.
func (s *Store) CacheKey() string { return s.State().CacheKey }

// CacheBuster returns the session's cache buster.
func (s *Store) CacheBuster() string { return s.State().CacheBuster }

// Counter returns the current item counter.
func (s *Store) Counter() int { return s.State().Counter }

// MaxTotalChunks returns the persisted chunk limit, if any.
func (s *Store) MaxTotalChunks() (int, bool) {
	st := s.State()
	return st.MaxTotalChunks, st.MaxTotalChunks > 0
}

// NextCounter increments the item counter and returns the new value.
func (s *Store) NextCounter() (int, error) {
	var n int
	err := s.update(func(st *State) {
		st.Counter++
		n = st.Counter
	})
	return n, err
}

// ResetCounter sets the item counter back to zero.
func (s *Store) ResetCounter() error {
	return s.update(func(st *State) { st.Counter = 0 })
}

// ResetCacheBuster mints and persists a new cache buster.
func (s *Store) ResetCacheBuster() (string, error) {
	buster := s.opts.newID()
	err := s.update(func(st *State) { st.CacheBuster = buster })
	return buster, err
}

// SetMaxTotalChunks persists the chunk limit.
func (s *Store) SetMaxTotalChunks(n int) error {
	if n < 1 {
		return fmt.Errorf("session: max total chunks must be at least 1, got %d", n)
	}
	return s.update(func(st *State) { st.MaxTotalChunks = n })
}

// Reset replaces the whole session with fresh identifiers.
func (s *Store) Reset() error {
	key, buster := s.opts.newID(), s.opts.newID()
	return s.update(func(st *State) {
		*st = State{CacheKey: key, CacheBuster: buster}
	})
}

// update applies fn to a copy of the state and installs it once persisted.
func (s *Store) update(fn func(*State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	fn(&next)
	if err := s.save(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *Store) load() (State, error) {
	f, err := s.opts.fsys.OpenFile(s.path, os.O_RDONLY, 0)
	if err != nil {
		return State{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return State{}, err
	}

	var st State
	if err := codec.Decode(data, &st); err != nil {
		return State{}, err
	}
	return st, nil
}

func (s *Store) save(st State) error {
	if s.path == "" {
		return nil
	}
	data, err := codec.Encode(s.opts.codec, st)
	if err != nil {
		return err
	}
	if err := ifs.WriteFileAtomic(s.opts.fsys, s.path, data, 0o600); err != nil {
		return fmt.Errorf("session: save %s: %w", s.path, err)
	}
	return nil
}
