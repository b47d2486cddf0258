package twinsync

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDirBuckets(t *testing.T) {
	ctx := context.Background()
	b := DirBuckets{Root: t.TempDir(), WaitTimeout: time.Second}

	if err := b.CreateBucket(ctx, "iottwinmaker-plant"); err != nil {
		t.Fatalf("CreateBucket() = %v", err)
	}
	// Creating an owned bucket again is not an error.
	if err := b.CreateBucket(ctx, "iottwinmaker-plant"); err != nil {
		t.Fatalf("CreateBucket() of an existing bucket = %v", err)
	}
	if err := b.WaitUntilBucketExists(ctx, "iottwinmaker-plant"); err != nil {
		t.Fatalf("WaitUntilBucketExists() = %v", err)
	}

	u, err := url.Parse(b.StorageLocation("iottwinmaker-plant"))
	if err != nil {
		t.Fatal(err)
	}
	if u.Scheme != "file" {
		t.Errorf("StorageLocation() scheme = %v, want file", u.Scheme)
	}
	if fi, err := os.Stat(filepath.FromSlash(u.Path)); err != nil || !fi.IsDir() {
		t.Errorf("StorageLocation() = %v does not name the bucket directory", u)
	}
}

func TestDirBucketsWaitMissing(t *testing.T) {
	b := DirBuckets{Root: t.TempDir(), WaitTimeout: 50 * time.Millisecond}
	if err := b.WaitUntilBucketExists(context.Background(), "missing"); err == nil {
		t.Error("WaitUntilBucketExists() of a missing bucket succeeded")
	}
}

func TestDirBucketsNoRoot(t *testing.T) {
	if err := (DirBuckets{}).CreateBucket(context.Background(), "b"); err == nil {
		t.Error("CreateBucket() without a root succeeded")
	}
}
