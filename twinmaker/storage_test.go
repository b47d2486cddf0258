package twinmaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

type fakeS3 struct {
	createErr error
	created   []*s3.CreateBucketInput
	heads     int
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.created = append(f.created, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return new(s3.CreateBucketOutput), nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.heads++
	return new(s3.HeadBucketOutput), nil
}

func TestCreateBucketLocationConstraint(t *testing.T) {
	tests := []struct {
		region string
		want   s3types.BucketLocationConstraint
	}{
		{region: "eu-west-1", want: s3types.BucketLocationConstraintEuWest1},
		{region: "us-east-1"},
		{region: ""},
	}
	for _, tt := range tests {
		t.Run(tt.region, func(t *testing.T) {
			f := new(fakeS3)
			if err := (S3Buckets{Client: f, Region: tt.region}).CreateBucket(context.Background(), "iottwinmaker-ws"); err != nil {
				t.Fatal(err)
			}
			in := f.created[0]
			if aws.ToString(in.Bucket) != "iottwinmaker-ws" {
				t.Errorf("Bucket = %v, want iottwinmaker-ws", aws.ToString(in.Bucket))
			}
			var got s3types.BucketLocationConstraint
			if in.CreateBucketConfiguration != nil {
				got = in.CreateBucketConfiguration.LocationConstraint
			}
			if got != tt.want {
				t.Errorf("LocationConstraint = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCreateBucketAlreadyOwned(t *testing.T) {
	f := &fakeS3{createErr: &s3types.BucketAlreadyOwnedByYou{}}
	if err := (S3Buckets{Client: f}).CreateBucket(context.Background(), "b"); err != nil {
		t.Errorf("CreateBucket of an owned bucket = %v, want nil", err)
	}

	f = &fakeS3{createErr: &s3types.BucketAlreadyExists{}}
	err := (S3Buckets{Client: f}).CreateBucket(context.Background(), "b")
	var exists *s3types.BucketAlreadyExists
	if !errors.As(err, &exists) {
		t.Errorf("CreateBucket of a foreign bucket = %v, want %T", err, exists)
	}
}

func TestWaitUntilBucketExists(t *testing.T) {
	f := new(fakeS3)
	b := S3Buckets{Client: f, Wait: time.Minute}
	if err := b.WaitUntilBucketExists(context.Background(), "b"); err != nil {
		t.Fatal(err)
	}
	if f.heads == 0 {
		t.Error("WaitUntilBucketExists never checked the bucket")
	}
	if got, want := b.StorageLocation("b"), "arn:aws:s3:::b"; got != want {
		t.Errorf("StorageLocation = %v, want %v", got, want)
	}
}

func TestRoleARN(t *testing.T) {
	tests := []struct {
		identity string
		want     string
		wantErr  bool
	}{
		{
			identity: "arn:aws:sts::123456789012:assumed-role/importer/session-1",
			want:     "arn:aws:iam::123456789012:role/importer",
		},
		{
			identity: "arn:aws-cn:sts::123456789012:assumed-role/importer/session-1",
			want:     "arn:aws-cn:iam::123456789012:role/importer",
		},
		{
			identity: "arn:aws:iam::123456789012:role/importer",
			want:     "arn:aws:iam::123456789012:role/importer",
		},
		{identity: "arn:aws:iam::123456789012:user/alice", wantErr: true},
		{identity: "not-an-arn", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.identity, func(t *testing.T) {
			got, err := RoleARN(tt.identity)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RoleARN() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RoleARN() = %v, want %v", got, tt.want)
			}
		})
	}
}

type fakeSTS struct{ arn string }

func (f fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return &sts.GetCallerIdentityOutput{Arn: aws.String(f.arn)}, nil
}

func TestCallerRoleARN(t *testing.T) {
	id := STSIdentity{Client: fakeSTS{arn: "arn:aws:sts::123456789012:assumed-role/lambda-role/fn"}}
	got, err := id.CallerRoleARN(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if want := "arn:aws:iam::123456789012:role/lambda-role"; got != want {
		t.Errorf("CallerRoleARN() = %v, want %v", got, want)
	}
}
