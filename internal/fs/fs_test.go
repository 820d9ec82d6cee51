package fs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	assert.NoError(t, f.Close())

	entries, err := lfs.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	newPath := filepath.Join(dir, "renamed.txt")
	assert.NoError(t, lfs.Rename(fpath, newPath))
	assert.NoError(t, lfs.Remove(newPath))

	_, err = lfs.Stat(newPath)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFileAtomic(t *testing.T) {
	tmp := t.TempDir()
	name := filepath.Join(tmp, "ns", "item", "0.chk")

	require.NoError(t, WriteFileAtomic(nil, name, []byte("chunk"), 0o644))

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "chunk", string(data))

	// Overwrite replaces the content.
	require.NoError(t, WriteFileAtomic(nil, name, []byte("v2"), 0o644))
	data, err = os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	entries, err := os.ReadDir(filepath.Dir(name))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestWriteFileAtomic_Faults(t *testing.T) {
	tests := []struct {
		name  string
		fault Fault
	}{
		{"open", Fault{Op: OpOpen}},
		{"write", Fault{Op: OpWrite, After: 2}},
		{"sync", Fault{Op: OpSync}},
		{"close", Fault{Op: OpClose}},
		{"rename", Fault{Op: OpRename}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := t.TempDir()
			ffs := NewFaultyFS(nil)
			ffs.AddRule("0.chk", tt.fault)

			name := filepath.Join(tmp, "0.chk")
			err := WriteFileAtomic(ffs, name, []byte("chunk"), 0o644)
			require.ErrorIs(t, err, ErrInjected)

			_, err = os.Stat(name)
			assert.True(t, os.IsNotExist(err))

			entries, err := os.ReadDir(tmp)
			require.NoError(t, err)
			for _, e := range entries {
				assert.False(t, strings.HasSuffix(e.Name(), TempSuffix), "temporary file %s left behind", e.Name())
			}
		})
	}
}

func TestFaultyFS(t *testing.T) {
	tmp := t.TempDir()
	custom := errors.New("disk full")
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("faulty", Fault{Op: OpWrite, After: 5, Err: custom})
	ffs.AddRule("other", Fault{Op: OpRemove})

	fpath := filepath.Join(tmp, "faulty.txt")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	n, err := f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = f.Write([]byte("!"))
	assert.ErrorIs(t, err, custom)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(5), ffs.Written())
	assert.NoError(t, f.Sync(), "only writes fail")
	require.NoError(t, f.Close())

	ffs.AddRule("faulty", Fault{Op: OpRemove})
	assert.ErrorIs(t, ffs.Remove(fpath), ErrInjected)

	ffs.ClearRules()
	assert.NoError(t, RemoveIfExists(ffs, fpath))
	assert.NoError(t, RemoveIfExists(ffs, fpath), "missing file is not an error")
}
