package testutil

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/chunkcache/blobstore"
)

// ErrInjected is returned by puts rejected with FailPuts.
var ErrInjected = errors.New("testutil: injected failure")

// Store is an in-memory blob store that can reject or hold puts and counts
// opens.
type Store struct {
	*blobstore.MemoryStore

	mu      sync.Mutex
	failPut func(name string) bool
	hold    *hold

	opens atomic.Int64
	puts  atomic.Int64
}

type hold struct {
	entered chan struct{} // closed when the first held put arrives
	release chan struct{}
	once    sync.Once
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{MemoryStore: blobstore.NewMemoryStore()}
}

// FailPuts makes every put of a name matching fn fail with ErrInjected.
// A nil fn accepts all puts again.
func (s *Store) FailPuts(fn func(name string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPut = fn
}

// HoldPuts blocks every put until the returned function is called.
// Calling release more than once is a no-op.
func (s *Store) HoldPuts() (release func()) {
	h := &hold{entered: make(chan struct{}), release: make(chan struct{})}

	s.mu.Lock()
	s.hold = h
	s.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(h.release) }) }
}

// Held returns a channel that is closed once a put is being held.
// It must be called after HoldPuts.
func (s *Store) Held() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hold.entered
}

// Opens returns the number of Open calls.
func (s *Store) Opens() int64 { return s.opens.Load() }

// Puts returns the number of successful Put calls.
func (s *Store) Puts() int64 { return s.puts.Load() }

// Open implements blobstore.BlobStore.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	s.opens.Add(1)
	return s.MemoryStore.Open(ctx, name)
}

// Put implements blobstore.BlobStore.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	fail, h := s.failPut, s.hold
	s.mu.Unlock()

	if h != nil {
		h.once.Do(func() { close(h.entered) })
		select {
		case <-h.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if fail != nil && fail(name) {
		return fmt.Errorf("put %s: %w", name, ErrInjected)
	}
	if err := s.MemoryStore.Put(ctx, name, data); err != nil {
		return err
	}
	s.puts.Add(1)
	return nil
}

// RNG is a seeded random source safe for concurrent use.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Bytes returns n random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	_, _ = r.rand.Read(b)
	return b
}

// String returns n random bytes as a string. The result does not compress.
func (r *RNG) String(n int) string {
	return string(r.Bytes(n))
}
