// Package blobstore provides the storage abstraction for immutable segment
// files of the integrated forward index.
//
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local file system, blobs are memory mapped
//   - MemoryStore: in-process, for tests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible object stores
//
// Remote stores serve ReadAt with ranged GETs. Segment readers load the
// whole blob once and pace that read through the resource controller.
package blobstore
