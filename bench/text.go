package bench

import (
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/chunkcache/internal/hash"
)

// DeterministicHash returns a short base-36 digest of s.
func DeterministicHash(s string) string {
	return strconv.FormatUint(uint64(hash.Fold32(s)), 36)
}

var words = strings.Fields(`lorem ipsum dolor sit amet consectetur adipiscing
elit sed do eiusmod tempor incididunt ut labore et dolore magna aliqua enim ad
minim veniam quis nostrud exercitation ullamco laboris nisi aliquip ex ea
commodo consequat duis aute irure in reprehenderit voluptate velit esse cillum
fugiat nulla pariatur excepteur sint occaecat cupidatat non proident sunt culpa
qui officia deserunt mollit anim id est laborum`)

// GenerateText returns size bytes of word-like ASCII text. The same seed
// always yields the same text.
func GenerateText(seed string, size int) string {
	if size <= 0 {
		return ""
	}

	rng := rand.New(rand.NewPCG(xxhash.Sum64String(seed), uint64(size)))

	var sb strings.Builder
	sb.Grow(size + 16)
	for sb.Len() < size {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(words[rng.IntN(len(words))])
	}
	return sb.String()[:size]
}
