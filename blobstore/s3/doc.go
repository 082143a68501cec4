// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("vecsearch/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	db, err := vecsearch.Open(ctx, vecsearch.WithDir(dir), vecsearch.WithSnapshotStore(store))
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads for large snapshots (feature/s3/manager)
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
