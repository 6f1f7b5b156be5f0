// Package s3 provides an S3 implementation of the blobstore.BlobStore
// interface for segment files.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("corpus/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads with CRC32C checksums
//   - Automatic pagination for listing
package s3
