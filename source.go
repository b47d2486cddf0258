package twinsync

import (
	"context"
	"fmt"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
)

// A Source fetches the exported document of an import job.
type Source interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// BlobSource fetches documents from gocloud blob buckets.
type BlobSource struct {
	// Open opens the named bucket. When nil, buckets are opened by URL: see
	// BucketURL.
	Open func(ctx context.Context, bucket string) (*blob.Bucket, error)
}

// BucketURL returns the gocloud URL of a bucket. Names containing a scheme
// ("file:///tmp/export", "mem://") are used as is, and plain names are S3
// buckets.
func BucketURL(bucket string) string {
	if strings.Contains(bucket, "://") {
		return bucket
	}
	return "s3://" + bucket
}

func (s BlobSource) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	open := s.Open
	if open == nil {
		open = func(ctx context.Context, bucket string) (*blob.Bucket, error) {
			return blob.OpenBucket(ctx, BucketURL(bucket))
		}
	}
	b, err := open(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("open bucket %v: %w", bucket, err)
	}
	defer func() { _ = b.Close() }()

	p, err := b.ReadAll(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, fmt.Errorf("read %v/%v: %w", bucket, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %v/%v: %w", bucket, key, err)
	}
	return p, nil
}
