package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chunkcache/internal/fs"
)

func TestLocalStore_Layout(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalStore(tmpDir)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "ns/item/0.chk", []byte("chunk")))
	assert.FileExists(t, filepath.Join(tmpDir, "ns", "item", "0.chk"))

	// Leftover temporary files are invisible.
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ns", "item", "1.chk.7"+fs.TempSuffix), []byte("partial"), 0o644))

	names, err := store.List(ctx, "ns/item/")
	require.NoError(t, err)
	assert.Equal(t, []string{"ns/item/0.chk"}, names)
}

func TestLocalStore_MissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "missing"))

	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStore_WriteFault(t *testing.T) {
	tmpDir := t.TempDir()
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("0.chk", fs.Fault{Op: fs.OpSync})

	store := &LocalStore{root: tmpDir, fsys: ffs}
	ctx := context.Background()

	require.ErrorIs(t, store.Put(ctx, "ns/item/0.chk", []byte("chunk")), fs.ErrInjected)

	_, err := store.Open(ctx, "ns/item/0.chk")
	require.ErrorIs(t, err, ErrNotFound)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStore_OverwriteWhileOpen(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a", []byte("old")))
	blob, err := store.Open(ctx, "a")
	require.NoError(t, err)
	defer blob.Close()

	require.NoError(t, store.Put(ctx, "a", []byte("new!")))

	buf := make([]byte, 3)
	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "old", string(buf), "open blobs keep the replaced content")

	got, err := ReadAll(ctx, store, "a")
	require.NoError(t, err)
	assert.Equal(t, "new!", string(got))
}
