// Package hash provides the checksums and content hashes used by the chunk
// format and the benchmark fixtures.
//
// CRC32-Castagnoli tags the cache buster a chunk was written under, so chunks
// of a foreign buster can be recognised from the header alone:
//
//	tag := hash.CRC32C([]byte(buster))
//
// Fold32 folds a 64-bit xxhash into 32 bits. It is stable across platforms
// and releases and is used wherever a short deterministic digest is printed.
package hash
