// Package twinmaker implements the twinsync collaborators over AWS: the
// digital-twin service on AWS IoT TwinMaker, workspace buckets on Amazon S3, and
// the caller identity on AWS STS.
package twinmaker

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iottwinmaker"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Options configure Open.
type Options struct {
	// Region overrides the region of the shared AWS configuration.
	Region string
	// Endpoint overrides the endpoint of every client, e.g. to target a local
	// emulator. Empty means $AWS_ENDPOINT, or the AWS endpoints when unset.
	Endpoint string
}

// A Backend groups the AWS implementations of twinsync's collaborators.
type Backend struct {
	Service  *Service
	Buckets  S3Buckets
	Identity STSIdentity

	region   string
	endpoint string
}

// Open loads the shared AWS configuration (environment, shared config files,
// instance roles) and returns a Backend with clients built from it.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("AWS_ENDPOINT")
	}
	return NewBackend(cfg, endpoint), nil
}

// NewBackend returns a Backend with clients built from cfg. A non-empty
// endpoint overrides the endpoint of every client.
func NewBackend(cfg aws.Config, endpoint string) *Backend {
	var base *string
	if endpoint != "" {
		base = aws.String(endpoint)
	}
	twins := iottwinmaker.NewFromConfig(cfg, func(o *iottwinmaker.Options) {
		o.BaseEndpoint = base
	})
	buckets := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = base
		// Emulators rarely resolve virtual-hosted bucket names.
		o.UsePathStyle = base != nil
	})
	identity := sts.NewFromConfig(cfg, func(o *sts.Options) {
		o.BaseEndpoint = base
	})
	return &Backend{
		Service:  NewService(twins),
		Buckets:  S3Buckets{Client: buckets, Region: cfg.Region},
		Identity: STSIdentity{Client: identity},
		region:   cfg.Region,
		endpoint: endpoint,
	}
}
