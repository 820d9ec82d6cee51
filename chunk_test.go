package chunkcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkHeader_RoundTrip(t *testing.T) {
	h := &chunkHeader{
		Compression: CompressionZstd,
		Seq:         42,
		Timestamp:   1_700_000_000_000_000_000,
		Index:       3,
		Total:       7,
		ItemSize:    123456,
		Size:        25600,
		BusterTag:   busterTag("b"),
		Nonce:       [nonceSize]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
	}

	b := h.marshal()
	require.Len(t, b, headerSize)
	assert.Equal(t, "CKC1", string(b[:4]))

	got, err := parseHeader(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestParseHeader_Errors(t *testing.T) {
	valid := (&chunkHeader{Index: 0, Total: 1}).marshal()

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"Short", func(b []byte) []byte { return b[:headerSize-1] }},
		{"BadMagic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"BadVersion", func(b []byte) []byte { b[4] = 99; return b }},
		{"ZeroTotal", func(b []byte) []byte { b[28] = 0; return b }},
		{"IndexOutOfRange", func(b []byte) []byte { b[24] = 1; return b }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := append([]byte(nil), valid...)
			_, err := parseHeader(tt.mutate(b))
			assert.Error(t, err)
		})
	}
}

func TestChunkName(t *testing.T) {
	name := chunkName("ns", "item", 12)
	assert.Equal(t, "ns/item/12.chk", name)

	item, index, ok := parseChunkName("ns", name)
	require.True(t, ok)
	assert.Equal(t, "item", item)
	assert.Equal(t, uint32(12), index)

	for _, bad := range []string{
		"other/item/1.chk",
		"ns/item/1.tmp",
		"ns/item/x.chk",
		"ns//1.chk",
		"ns/item/sub/1.chk",
		"ns/1.chk",
		"ns/item/-1.chk",
	} {
		_, _, ok := parseChunkName("ns", bad)
		assert.False(t, ok, bad)
	}
}
