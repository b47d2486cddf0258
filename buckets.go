package twinsync

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gocloud.dev/blob/fileblob"
)

// DirBuckets implements Buckets with directories under Root, for service
// backends that do not come with a storage service of their own (e.g. the
// Neo4j and in-memory backends).
type DirBuckets struct {
	Root string
	// WaitTimeout bounds WaitUntilBucketExists; zero means one minute.
	WaitTimeout time.Duration
}

func (d DirBuckets) path(name string) string {
	return filepath.Join(d.Root, name)
}

func (d DirBuckets) CreateBucket(_ context.Context, name string) error {
	if d.Root == "" {
		return fmt.Errorf("bucket root directory not configured")
	}
	return os.MkdirAll(d.path(name), 0o755)
}

// WaitUntilBucketExists opens the directory as a gocloud bucket and polls
// until it is accessible.
func (d DirBuckets) WaitUntilBucketExists(ctx context.Context, name string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = orDefault(d.WaitTimeout, time.Minute)

	return backoff.Retry(func() error {
		bucket, err := fileblob.OpenBucket(d.path(name), nil)
		if err != nil {
			return fmt.Errorf("open bucket: %w", err)
		}
		defer bucket.Close()
		ok, err := bucket.IsAccessible(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return fmt.Errorf("bucket %v not accessible", name)
		}
		return nil
	}, backoff.WithContext(b, ctx))
}

func (d DirBuckets) StorageLocation(name string) string {
	abs, err := filepath.Abs(d.path(name))
	if err != nil {
		abs = d.path(name)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}
