package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/danielorbach/go-component"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/go-digitaltwin/twinsync"
	"github.com/go-digitaltwin/twinsync/memtwin"
	"github.com/go-digitaltwin/twinsync/neo4jtwin"
	"github.com/go-digitaltwin/twinsync/twinmaker"
)

// The supported values of the --backend flag.
const (
	backendTwinMaker = "twinmaker"
	backendNeo4j     = "neo4j"
	backendMemory    = "memory"
)

// localRole is the execution role recorded by workspaces of local backends when
// no role is given; local backends never assume it.
const localRole = "arn:aws:iam::000000000000:role/twinimport-local"

// A backend bundles the collaborators of an Importer and releases them on
// Close.
type backend struct {
	service  twinsync.Service
	buckets  twinsync.Buckets
	identity twinsync.Identity
	source   twinsync.Source
	closers  []func(context.Context) error
}

func (b *backend) importer(opts twinsync.Options) *twinsync.Importer {
	return &twinsync.Importer{
		Service:  b.service,
		Buckets:  b.buckets,
		Identity: b.identity,
		Source:   b.source,
		Options:  opts,
	}
}

func (b *backend) Close(ctx context.Context) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			component.Logger(ctx).Error("Failed to release backend resource", slog.Any("error", err))
		}
	}
}

func openBackend(ctx context.Context, f flags) (*backend, error) {
	switch f.backend {
	case backendTwinMaker:
		aws, err := twinmaker.Open(ctx, twinmaker.Options{Region: f.region, Endpoint: f.endpoint})
		if err != nil {
			return nil, err
		}
		return &backend{service: aws.Service, buckets: aws.Buckets, identity: aws.Identity, source: aws.Source()}, nil

	case backendNeo4j:
		b, err := localBackend(f)
		if err != nil {
			return nil, err
		}
		driver, err := neo4j.NewDriverWithContext(f.neo4jURI, neo4jAuth())
		if err != nil {
			b.Close(ctx)
			return nil, fmt.Errorf("open neo4j driver: %w", err)
		}
		b.closers = append(b.closers, driver.Close)
		if err := driver.VerifyConnectivity(ctx); err != nil {
			b.Close(ctx)
			return nil, fmt.Errorf("connect to neo4j: %w", err)
		}
		if err := neo4jtwin.BootstrapDatabase(ctx, driver, f.neo4jDatabase); err != nil {
			b.Close(ctx)
			return nil, fmt.Errorf("bootstrap neo4j: %w", err)
		}
		b.service = neo4jtwin.NewService(driver, f.neo4jDatabase)
		return b, nil

	case backendMemory:
		b, err := localBackend(f)
		if err != nil {
			return nil, err
		}
		b.service = new(memtwin.Service)
		return b, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", f.backend)
	}
}

// localBackend prepares the buckets and identity shared by backends that run
// without AWS.
func localBackend(f flags) (*backend, error) {
	b := &backend{identity: twinsync.StaticIdentity(localRole), source: twinsync.BlobSource{}}
	root := f.bucketDir
	if root == "" {
		dir, err := os.MkdirTemp("", "twinimport-buckets-")
		if err != nil {
			return nil, fmt.Errorf("create bucket directory: %w", err)
		}
		root = dir
		b.closers = append(b.closers, func(context.Context) error { return os.RemoveAll(dir) })
	}
	b.buckets = twinsync.DirBuckets{Root: root}
	return b, nil
}

// neo4jAuth reads basic-auth credentials from $NEO4J_USERNAME and
// $NEO4J_PASSWORD. Without a username, the driver connects unauthenticated.
func neo4jAuth() neo4j.AuthToken {
	user := os.Getenv("NEO4J_USERNAME")
	if user == "" {
		return neo4j.NoAuth()
	}
	return neo4j.BasicAuth(user, os.Getenv("NEO4J_PASSWORD"), "")
}
