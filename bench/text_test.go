package bench

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicHash(t *testing.T) {
	a := DeterministicHash("seed-1")
	assert.Equal(t, a, DeterministicHash("seed-1"))
	assert.NotEqual(t, a, DeterministicHash("seed-2"))
	assert.Regexp(t, `^[0-9a-z]{1,7}$`, a)
}

func TestGenerateText(t *testing.T) {
	for _, size := range []int{0, 1, 7, 1024, 32 * 1024} {
		text := GenerateText("seed", size)
		assert.Len(t, text, size)
		assert.Equal(t, text, GenerateText("seed", size))
	}

	assert.NotEqual(t, GenerateText("a", 256), GenerateText("b", 256))
	assert.Empty(t, GenerateText("x", -1))
}
