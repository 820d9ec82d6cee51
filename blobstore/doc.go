// Package blobstore provides the storage abstraction chunks are written to.
//
// A BlobStore holds small immutable blobs addressed by slash-separated names.
// Put replaces a blob atomically; readers see either the old or the new
// content, never a mix. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, used by tests and the default CLI backend
//   - LocalStore: local filesystem, atomic temp+rename writes and mmap reads
//   - s3.Store: Amazon S3 (aws-sdk-go-v2) with range reads
//   - minio.Store: MinIO and other S3-compatible services
//   - CachingStore: read-through block cache in front of any store
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Open and ReadAt return an error matching ErrNotFound for missing blobs.
// Delete of a missing blob is not an error.
package blobstore
