package twinsync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
)

func TestBucketURL(t *testing.T) {
	tests := []struct {
		bucket string
		want   string
	}{
		{bucket: "exports", want: "s3://exports"},
		{bucket: "file:///tmp/exports", want: "file:///tmp/exports"},
		{bucket: "mem://", want: "mem://"},
	}
	for _, tt := range tests {
		if got := BucketURL(tt.bucket); got != tt.want {
			t.Errorf("BucketURL(%q) = %v, want %v", tt.bucket, got, tt.want)
		}
	}
}

func TestBlobSourceFetch(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	if err := bucket.WriteAll(ctx, "plant/entities.json", []byte(`{"entities": []}`), nil); err != nil {
		t.Fatal(err)
	}
	src := BlobSource{Open: func(context.Context, string) (*blob.Bucket, error) {
		// Fetch closes the bucket it opened; hand it a fresh view.
		return blob.PrefixedBucket(bucket, ""), nil
	}}

	got, err := src.Fetch(ctx, "exports", "plant/entities.json")
	if err != nil {
		t.Fatalf("Fetch() = %v", err)
	}
	if string(got) != `{"entities": []}` {
		t.Errorf("Fetch() = %s", got)
	}

	_, err = src.Fetch(ctx, "exports", "missing.json")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch() of a missing key = %v, want %v", err, ErrNotFound)
	}
}

func TestBlobSourceFetchURL(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "entities.json"), []byte(`{"entities": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := BlobSource{}.Fetch(context.Background(), "file://"+filepath.ToSlash(dir), "entities.json")
	if err != nil {
		t.Fatalf("Fetch() = %v", err)
	}
	if string(got) != `{"entities": []}` {
		t.Errorf("Fetch() = %s", got)
	}
}
