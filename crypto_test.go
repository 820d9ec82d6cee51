package chunkcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespace(t *testing.T) {
	a := Namespace("key-a")
	assert.Len(t, a, 64)
	assert.Equal(t, a, Namespace("key-a"))
	assert.NotEqual(t, a, Namespace("key-b"))
	assert.NotContains(t, a, "key-a")
}

func TestKeyring_SealOpen(t *testing.T) {
	k, err := deriveKeys("secret", Namespace("secret"), 1)
	require.NoError(t, err)

	nonce, err := newNonce()
	require.NoError(t, err)
	h := &chunkHeader{Seq: 1, Index: 0, Total: 1, Size: 5, ItemSize: 5, Nonce: nonce}

	blob := k.seal(h, []byte("hello"))

	got, plain, err := k.open(blob)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(plain))
	assert.Equal(t, h.Seq, got.Seq)

	t.Run("TamperedHeader", func(t *testing.T) {
		b := append([]byte(nil), blob...)
		b[8] ^= 1 // sequence is authenticated
		_, _, err := k.open(b)
		assert.Error(t, err)
	})

	t.Run("WrongKey", func(t *testing.T) {
		other, err := deriveKeys("other", Namespace("secret"), 1)
		require.NoError(t, err)
		_, _, err = other.open(blob)
		assert.Error(t, err)
	})
}

func TestKeyring_ItemID(t *testing.T) {
	a, err := deriveKeys("secret", Namespace("secret"), 1)
	require.NoError(t, err)
	b, err := deriveKeys("other", Namespace("other"), 1)
	require.NoError(t, err)

	assert.Equal(t, a.itemID("x"), a.itemID("x"))
	assert.NotEqual(t, a.itemID("x"), a.itemID("y"))
	assert.NotEqual(t, a.itemID("x"), b.itemID("x"))
	assert.Len(t, a.itemID("x"), 64)
}
