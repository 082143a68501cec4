package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/vecsearch/blobstore"
)

const snapshotContentType = "application/vnd.vecsearch.snapshot"

// Option configures a Store.
type Option func(*Store)

// WithPartSize sets the multipart upload part size in bytes.
func WithPartSize(n uint64) Option {
	return func(s *Store) { s.partSize = n }
}

// WithStorageClass sets the storage class of uploaded snapshots.
func WithStorageClass(class string) Option {
	return func(s *Store) { s.storageClass = class }
}

// Store keeps snapshots as objects in a single bucket.
type Store struct {
	client       *minio.Client
	bucket       string
	root         string
	partSize     uint64
	storageClass string
}

// NewStore returns a Store writing below rootPrefix in bucket.
func NewStore(client *minio.Client, bucket, rootPrefix string, opts ...Option) *Store {
	s := &Store{
		client: client,
		bucket: bucket,
		root:   strings.Trim(rootPrefix, "/"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(name string) string {
	return path.Join(s.root, name)
}

func (s *Store) name(key string) string {
	if s.root == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, s.root), "/")
}

func notFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return true
	}
	return false
}

// Open stats the object. Reads are pinned to the ETag seen here, so a
// concurrent overwrite fails the read instead of mixing two snapshots.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if notFound(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, fmt.Errorf("minio: stat %s: %w", key, err)
	}
	return &object{store: s, key: key, etag: info.ETag, size: info.Size}, nil
}

func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	key := s.key(name)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:    snapshotContentType,
		PartSize:       s.partSize,
		StorageClass:   s.storageClass,
		SendContentMd5: true,
	})
	if err != nil {
		return fmt.Errorf("minio: put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	key := s.key(name)
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil && !notFound(err) {
		return fmt.Errorf("minio: delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	full := s.key(prefix)
	if strings.HasSuffix(prefix, "/") {
		full += "/"
	}

	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: full, Recursive: true}) {
		if obj.Err != nil {
			if notFound(obj.Err) {
				return nil, nil
			}
			return nil, fmt.Errorf("minio: list %s: %w", full, obj.Err)
		}
		if n := s.name(obj.Key); n != "" {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names, nil
}

// object issues one GET per ReadAt. A read covering the whole object
// is sent without a Range header.
type object struct {
	store *Store
	key   string
	etag  string
	size  int64
}

func (o *object) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off >= o.size {
		return 0, io.EOF
	}
	end := min(off+int64(len(p)), o.size) - 1

	opts := minio.GetObjectOptions{}
	if err := opts.SetMatchETag(o.etag); err != nil {
		return 0, err
	}
	if off > 0 || end < o.size-1 {
		if err := opts.SetRange(off, end); err != nil {
			return 0, err
		}
	}
	r, err := o.store.client.GetObject(ctx, o.store.bucket, o.key, opts)
	if err != nil {
		return 0, fmt.Errorf("minio: get %s: %w", o.key, err)
	}
	defer r.Close()

	n, err := io.ReadFull(r, p[:end-off+1])
	if err != nil {
		return n, fmt.Errorf("minio: read %s: %w", o.key, err)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (o *object) Size() int64 { return o.size }

func (o *object) Close() error { return nil }
