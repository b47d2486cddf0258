package twinsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BucketPrefix prefixes the name of the storage bucket backing a workspace.
const BucketPrefix = "iottwinmaker-"

// WorkspaceBucket returns the deterministic bucket name backing the workspace.
func WorkspaceBucket(workspaceID string) string {
	return BucketPrefix + workspaceID
}

// Buckets is the storage backend that holds workspace artifacts.
type Buckets interface {
	// CreateBucket creates the named bucket. Creating a bucket the caller
	// already owns is not an error.
	CreateBucket(ctx context.Context, name string) error
	// WaitUntilBucketExists blocks until the storage backend confirms the
	// bucket exists.
	WaitUntilBucketExists(ctx context.Context, name string) error
	// StorageLocation returns the identifier of the bucket as understood by the
	// remote graph service.
	StorageLocation(name string) string
}

// Identity resolves the execution role used when none is given explicitly.
type Identity interface {
	CallerRoleARN(ctx context.Context) (string, error)
}

// StaticIdentity is an Identity that always resolves to itself.
type StaticIdentity string

func (s StaticIdentity) CallerRoleARN(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("no role configured")
	}
	return string(s), nil
}

// Workspaces ensures the target workspace, and its backing bucket, exist
// before any entity operation.
type Workspaces struct {
	Service  Service
	Buckets  Buckets
	Identity Identity
}

// Ensure guarantees that by the time it returns with a nil error, the
// workspace exists. It reports whether this call created it.
//
// When the workspace is missing, Ensure creates its bucket, waits for the bucket
// to exist, resolves the execution role (roleARN takes precedence over the
// caller's identity) and creates the workspace bound to both. It does not wait
// for the workspace to become active: services accept component type and
// entity calls as soon as the create call returns.
func (p Workspaces) Ensure(ctx context.Context, workspaceID, roleARN string) (created bool, err error) {
	ctx, span := tracer.Start(ctx, "EnsureWorkspace", trace.WithAttributes(
		attribute.String("workspace.id", workspaceID),
	))
	defer span.End()
	logger := component.Logger(ctx).With("workspace.id", workspaceID)

	logger.Debug("Listing workspaces...")
	summaries, err := p.Service.ListWorkspaces(ctx)
	if err != nil {
		return false, fmt.Errorf("list workspaces: %w", transportError("list workspaces", err))
	}
	for _, s := range summaries {
		if s.ID == workspaceID {
			logger.Debug("Workspace already exists")
			return false, nil
		}
	}

	bucket := WorkspaceBucket(workspaceID)
	logger.Info("Creating workspace bucket...", "bucket", bucket)
	if err := p.Buckets.CreateBucket(ctx, bucket); err != nil {
		return false, fmt.Errorf("create bucket %v: %w", bucket, transportError("create bucket", err))
	}
	if err := p.Buckets.WaitUntilBucketExists(ctx, bucket); err != nil {
		return false, fmt.Errorf("wait for bucket %v: %w", bucket, transportError("wait for bucket", err))
	}

	role := roleARN
	if role == "" {
		if p.Identity == nil {
			return false, errors.New("resolve role: no role given and no identity configured")
		}
		role, err = p.Identity.CallerRoleARN(ctx)
		if err != nil {
			return false, fmt.Errorf("resolve role: %w", transportError("resolve caller identity", err))
		}
		logger.Debug("Resolved execution role from caller identity", "role", role)
	}

	logger.Info("Creating workspace...", "role", role)
	err = p.Service.CreateWorkspace(ctx, WorkspaceRequest{
		ID:              workspaceID,
		StorageLocation: p.Buckets.StorageLocation(bucket),
		RoleARN:         role,
	})
	if errors.Is(err, ErrAlreadyExists) {
		logger.Info("Workspace was created concurrently")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create workspace: %w", transportError("create workspace", err))
	}
	return true, nil
}
