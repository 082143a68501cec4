// Package minio provides a MinIO implementation of blobstore.BlobStore.
//
// It works with any S3-compatible server that minio-go can talk to.
//
// # Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	store := vsminio.NewStore(client, "snapshots", "vecsearch/")
//
//	db, err := vecsearch.Open(ctx, vecsearch.WithDir(dir), vecsearch.WithSnapshotStore(store))
package minio
