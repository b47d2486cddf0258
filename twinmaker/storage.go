package twinmaker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// S3API is the subset of the Amazon S3 client used by S3Buckets.
// *s3.Client implements it.
type S3API interface {
	s3.HeadBucketAPIClient
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// DefaultBucketWait bounds how long S3Buckets waits for a new bucket.
const DefaultBucketWait = 5 * time.Minute

// S3Buckets implements twinsync.Buckets on Amazon S3.
type S3Buckets struct {
	Client S3API
	// Region is where new buckets are created. Buckets outside us-east-1 need
	// an explicit location constraint.
	Region string
	// Wait bounds WaitUntilBucketExists; zero means DefaultBucketWait.
	Wait time.Duration
}

// CreateBucket creates the named bucket. A bucket the caller already owns is
// not an error.
func (b S3Buckets) CreateBucket(ctx context.Context, name string) error {
	in := &s3.CreateBucketInput{Bucket: aws.String(name)}
	if b.Region != "" && b.Region != "us-east-1" {
		in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(b.Region),
		}
	}
	_, err := b.Client.CreateBucket(ctx, in)
	var owned *s3types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create bucket %v: %w", name, err)
	}
	return nil
}

func (b S3Buckets) WaitUntilBucketExists(ctx context.Context, name string) error {
	wait := b.Wait
	if wait <= 0 {
		wait = DefaultBucketWait
	}
	waiter := s3.NewBucketExistsWaiter(b.Client)
	if err := waiter.Wait(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)}, wait); err != nil {
		return fmt.Errorf("wait for bucket %v: %w", name, err)
	}
	return nil
}

// StorageLocation returns the ARN of the bucket.
func (b S3Buckets) StorageLocation(name string) string {
	return "arn:aws:s3:::" + name
}

// STSAPI is the subset of the AWS STS client used by STSIdentity.
// *sts.Client implements it.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// STSIdentity implements twinsync.Identity with the caller identity reported by
// AWS STS.
type STSIdentity struct {
	Client STSAPI
}

// CallerRoleARN returns the IAM role ARN of the caller. Callers running under
// an assumed role (e.g. in a Lambda function) report an STS session ARN, which
// is converted to the ARN of the underlying role.
func (i STSIdentity) CallerRoleARN(ctx context.Context) (string, error) {
	out, err := i.Client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("get caller identity: %w", err)
	}
	return RoleARN(aws.ToString(out.Arn))
}

// RoleARN converts a caller identity ARN into an IAM role ARN:
//
//	arn:aws:sts::123456789012:assumed-role/importer/session
//	  -> arn:aws:iam::123456789012:role/importer
//
// IAM role ARNs are returned as is. Other identities (e.g. IAM users) cannot
// be assumed by the service and yield an error.
func RoleARN(identity string) (string, error) {
	a, err := arn.Parse(identity)
	if err != nil {
		return "", fmt.Errorf("caller identity %q: %w", identity, err)
	}
	switch {
	case a.Service == "iam" && strings.HasPrefix(a.Resource, "role/"):
		return identity, nil
	case a.Service == "sts" && strings.HasPrefix(a.Resource, "assumed-role/"):
		name, _, _ := strings.Cut(strings.TrimPrefix(a.Resource, "assumed-role/"), "/")
		if name == "" {
			return "", fmt.Errorf("caller identity %q: no role name", identity)
		}
		return arn.ARN{
			Partition: a.Partition,
			Service:   "iam",
			AccountID: a.AccountID,
			Resource:  "role/" + name,
		}.String(), nil
	default:
		return "", fmt.Errorf("caller identity %q is not a role; set the workspace role explicitly", identity)
	}
}
