package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/vecsearch"
	"github.com/hupe1980/vecsearch/blobstore"
	miniostore "github.com/hupe1980/vecsearch/blobstore/minio"
	s3store "github.com/hupe1980/vecsearch/blobstore/s3"
	"github.com/hupe1980/vecsearch/catalog"
	"github.com/hupe1980/vecsearch/codec"
	"github.com/hupe1980/vecsearch/embed"
	"github.com/hupe1980/vecsearch/index"
	"github.com/hupe1980/vecsearch/internal/config"
	"github.com/hupe1980/vecsearch/resource"
)

// openDB translates cfg into database options. Log output goes to logOut.
func openDB(ctx context.Context, cfg *config.Config, logOut io.Writer) (*vecsearch.DB, error) {
	opts, err := dbOptions(ctx, cfg, logOut)
	if err != nil {
		return nil, err
	}
	return vecsearch.Open(ctx, opts...)
}

func dbOptions(ctx context.Context, cfg *config.Config, logOut io.Writer) ([]vecsearch.Option, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(logOut, handlerOpts)
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(logOut, handlerOpts)
	}

	backend, err := vecsearch.ParseBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}
	c, ok := codec.ByName(cfg.Codec)
	if !ok {
		return nil, fmt.Errorf("unknown codec %q", cfg.Codec)
	}
	compression, err := index.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	opts := []vecsearch.Option{
		vecsearch.WithLogger(vecsearch.NewLogger(handler)),
		vecsearch.WithBackend(backend),
		vecsearch.WithCodec(c),
		vecsearch.WithSnapshotCompression(compression),
		vecsearch.WithIngestConcurrency(cfg.IngestConcurrency),
	}
	if backend != vecsearch.BackendMemory {
		opts = append(opts, vecsearch.WithDir(cfg.Dir))
	}

	snaps, err := snapshotStore(ctx, cfg.Snapshots)
	if err != nil {
		return nil, err
	}
	if snaps != nil || cfg.Snapshots.Store == "none" {
		opts = append(opts, vecsearch.WithSnapshotStore(snaps))
	}

	cat, err := collectionCatalog(ctx, cfg.Catalog)
	if err != nil {
		return nil, err
	}
	if cat != nil {
		opts = append(opts, vecsearch.WithCatalog(cat))
	}

	if cfg.Resources.MemoryLimitBytes > 0 || cfg.Resources.IOLimitBytesPerSec > 0 {
		opts = append(opts, vecsearch.WithResourceController(resource.NewController(resource.Config{
			MemoryLimitBytes:   cfg.Resources.MemoryLimitBytes,
			IOLimitBytesPerSec: cfg.Resources.IOLimitBytesPerSec,
		})))
	}

	if cfg.Embed.Enabled {
		var e embed.Embedder = embed.Hashing{Dim: cfg.Embed.Dimension}
		if cfg.Embed.RequestsPerSec > 0 {
			e = embed.RateLimited(e, cfg.Embed.RequestsPerSec, cfg.Embed.Concurrency)
		}
		opts = append(opts, vecsearch.WithEmbedder(e))
	}
	return opts, nil
}

// snapshotStore returns nil for "local", leaving the default in place.
func snapshotStore(ctx context.Context, sc config.SnapshotConfig) (blobstore.BlobStore, error) {
	switch sc.Store {
	case "local", "none":
		return nil, nil
	case "memory":
		return blobstore.NewMemoryStore(), nil
	case "s3":
		var s3opts []s3store.Option
		if sc.Prefix != "" {
			s3opts = append(s3opts, s3store.WithPrefix(sc.Prefix))
		}
		if sc.Region != "" {
			s3opts = append(s3opts, s3store.WithRegion(sc.Region))
		}
		if sc.Endpoint != "" {
			s3opts = append(s3opts, s3store.WithEndpoint(sc.Endpoint))
		}
		s, err := s3store.New(ctx, sc.Bucket, s3opts...)
		if err != nil {
			return nil, fmt.Errorf("s3 snapshot store: %w", err)
		}
		return s, nil
	case "minio":
		client, err := minio.New(sc.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(sc.AccessKey, sc.SecretKey, ""),
			Secure: sc.UseSSL,
			Region: sc.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("minio snapshot store: %w", err)
		}
		return miniostore.NewStore(client, sc.Bucket, sc.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown snapshot store %q", sc.Store)
	}
}

// collectionCatalog returns nil for "file", leaving the default in place.
func collectionCatalog(ctx context.Context, cc config.CatalogConfig) (catalog.Catalog, error) {
	switch cc.Kind {
	case "file":
		return nil, nil
	case "memory":
		return catalog.NewMemory(), nil
	case "dynamodb":
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cc.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cc.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("dynamodb catalog: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cc.Endpoint != "" {
				o.BaseEndpoint = aws.String(cc.Endpoint)
			}
		})
		return catalog.NewDynamoDB(client, cc.Table), nil
	default:
		return nil, fmt.Errorf("unknown catalog kind %q", cc.Kind)
	}
}
