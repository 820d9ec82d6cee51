// Package mmap maps chunk files read-only into memory.
//
//	m, err := mmap.Open("ns/item/0.chk")
//	if err != nil { ... }
//	defer m.Close()
//
//	n, err := m.ReadAt(buf, 0)
//
// Unix uses mmap(2) with madvise(2) access hints. Windows uses
// CreateFileMapping/MapViewOfFile and ignores hints.
//
// A Mapping is safe for concurrent reads. Close is idempotent; ReadAt after
// Close returns ErrClosed.
package mmap
