package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chunkcache/codec"
	ifs "github.com/hupe1980/chunkcache/internal/fs"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestOpen_CreatesAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	s, err := Open(path, WithIDGenerator(sequentialIDs()))
	require.NoError(t, err)
	assert.Equal(t, "id-1", s.CacheKey())
	assert.Equal(t, "id-2", s.CacheBuster())
	assert.Equal(t, 0, s.Counter())

	n, err := s.NextCounter()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, s.SetMaxTotalChunks(42))

	reloaded, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, s.State(), reloaded.State())

	limit, ok := reloaded.MaxTotalChunks()
	assert.True(t, ok)
	assert.Equal(t, 42, limit)
}

func TestOpen_DefaultIDsAreUUIDs(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	assert.Len(t, s.CacheKey(), 36)
	assert.NotEqual(t, s.CacheKey(), s.CacheBuster())
}

func TestStore_Counter(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "s.json"))
	require.NoError(t, err)

	for want := 1; want <= 3; want++ {
		n, err := s.NextCounter()
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	require.NoError(t, s.ResetCounter())
	assert.Equal(t, 0, s.Counter())
}

func TestStore_ResetCacheBuster(t *testing.T) {
	s, err := Open("", WithIDGenerator(sequentialIDs()))
	require.NoError(t, err)

	key := s.CacheKey()
	buster, err := s.ResetCacheBuster()
	require.NoError(t, err)
	assert.Equal(t, "id-3", buster)
	assert.Equal(t, buster, s.CacheBuster())
	assert.Equal(t, key, s.CacheKey())
}

func TestStore_Reset(t *testing.T) {
	s, err := Open("", WithIDGenerator(sequentialIDs()))
	require.NoError(t, err)
	_, err = s.NextCounter()
	require.NoError(t, err)
	require.NoError(t, s.SetMaxTotalChunks(7))

	require.NoError(t, s.Reset())
	assert.Equal(t, State{CacheKey: "id-3", CacheBuster: "id-4"}, s.State())
}

func TestStore_SetMaxTotalChunksValidates(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	assert.Error(t, s.SetMaxTotalChunks(0))

	_, ok := s.MaxTotalChunks()
	assert.False(t, ok)
}

func TestStore_FailedSaveKeepsState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.json")
	fsys := ifs.NewFaultyFS(ifs.Default)

	s, err := Open(path, WithFileSystem(fsys))
	require.NoError(t, err)

	fsys.AddRule("s.json", ifs.Fault{Op: ifs.OpRename})
	_, err = s.NextCounter()
	require.Error(t, err)
	assert.Equal(t, 0, s.Counter())

	// No temporary files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ifs.TempSuffix), e.Name())
	}
}

func TestOpen_ReadsAnyCodec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")

	s, err := Open(path, WithCodec(codec.GoJSON{}))
	require.NoError(t, err)
	_, err = s.NextCounter()
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "go-json\n"))

	reloaded, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Counter())
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	require.NoError(t, os.WriteFile(path, []byte("not a session"), 0o600))

	_, err := Open(path)
	assert.ErrorIs(t, err, codec.ErrUnknownCodec)
}
