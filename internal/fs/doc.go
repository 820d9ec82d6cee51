// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with read/write/sync capabilities
//   - [FileSystem]: filesystem operations (open, remove, rename, etc.)
//
// [LocalFS] is the production implementation. [FaultyFS] wraps any
// FileSystem and injects errors on write, sync, close, rename or remove for
// files matching a pattern.
//
// [WriteFileAtomic] writes a file through a temporary sibling and a rename,
// so readers never observe a partially written chunk.
//
// Operations take no context.Context: local syscalls are not interruptible.
// Slow remote storage goes through the blobstore package instead.
package fs
