// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("chunks/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
//	c, err := chunkcache.Open(ctx, store, cfg)
//
// Credentials come from the default AWS credential chain.
//
// # Features
//
//   - Range reads for header scans
//   - CRC32C-checked single-request puts for chunk-sized blobs
//   - Multipart uploads via the transfer manager above the part size
//   - Automatic pagination for listing
package s3
