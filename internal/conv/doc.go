// Package conv provides checked integer conversions.
//
// Chunk headers carry fixed-width sizes and counts that are read back from
// storage, so every conversion between them and Go's int is bounds checked.
// Conversions that are safe by construction (loop indices below a checked
// total) use plain casts.
package conv
