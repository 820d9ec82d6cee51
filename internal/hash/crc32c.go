package hash

import (
	"hash"
	"hash/crc32"

	"github.com/cespare/xxhash/v2"
)

// crc32cTable is pre-computed for CRC32-Castagnoli polynomial.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// NewCRC32C returns a new CRC32-Castagnoli hash.Hash32.
func NewCRC32C() hash.Hash32 {
	return crc32.New(crc32cTable)
}

// Fold32 returns the xxhash64 of s folded into 32 bits.
func Fold32(s string) uint32 {
	h := xxhash.Sum64String(s)
	return uint32(h>>32) ^ uint32(h)
}
