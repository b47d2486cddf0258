package twinmaker

import (
	"context"
	"net/url"
	"strings"

	"gocloud.dev/blob"

	"github.com/go-digitaltwin/twinsync"
)

// Source returns a document source that reads S3 buckets with the region and
// endpoint of the Backend's clients.
func (b *Backend) Source() twinsync.BlobSource {
	return twinsync.BlobSource{
		Open: func(ctx context.Context, bucket string) (*blob.Bucket, error) {
			return blob.OpenBucket(ctx, b.bucketURL(bucket))
		},
	}
}

// Call bucketURL to get the gocloud URL of a bucket; names that already carry a
// scheme are used as is.
func (b *Backend) bucketURL(bucket string) string {
	if strings.Contains(bucket, "://") {
		return bucket
	}
	q := make(url.Values)
	if b.region != "" {
		q.Set("region", b.region)
	}
	if b.endpoint != "" {
		q.Set("endpoint", b.endpoint)
		q.Set("use_path_style", "true")
	}
	u := url.URL{Scheme: "s3", Host: bucket, RawQuery: q.Encode()}
	return u.String()
}
