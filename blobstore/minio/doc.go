// Package minio stores segment files in MinIO or another S3-compatible
// object store (Ceph, Garage, SeaweedFS) through the MinIO client, without
// the AWS SDK.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds: credentials.NewStaticV4(accessKey, secretKey, ""),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := minioblob.NewStore(client, "corpora", "brown/")
//	fi, err := forwardindex.OpenSegments(ctx, store, "segments/", "contents", annotations)
//
// Blob reads are ranged GET requests; Create streams the upload through a
// pipe so a segment is never buffered twice.
package minio
