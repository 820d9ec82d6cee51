package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32C(t *testing.T) {
	// Known answer from RFC 3720 B.4.
	assert.Equal(t, uint32(0x8a9136aa), CRC32C(make([]byte, 32)))

	h := NewCRC32C()
	_, _ = h.Write([]byte("buster-"))
	_, _ = h.Write([]byte("1"))
	assert.Equal(t, CRC32C([]byte("buster-1")), h.Sum32())
}

func TestFold32(t *testing.T) {
	assert.Equal(t, Fold32("seed-1"), Fold32("seed-1"))
	assert.NotEqual(t, Fold32("seed-1"), Fold32("seed-2"))
	assert.NotZero(t, Fold32(""))
}
