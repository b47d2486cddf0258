/*
Package servicetest provides a suite of tests designed to assess
implementations of [twinsync.Service] (e.g. in-memory, neo4j, AWS IoT
TwinMaker).

Call servicetest.Run in its own test to invoke the test-suite:

	func TestService(t *testing.T) {
		svc := new(memtwin.Service) // Create the tested service.
		servicetest.Run(t, svc)
	}

The test cases in this suite focus on the contract the importer relies on:

  - Reporting missing resources with an error wrapping twinsync.ErrNotFound.
  - Reporting conflicting creations with an error wrapping
    twinsync.ErrAlreadyExists.
  - Eventually reporting created resources as ACTIVE.
  - Attaching entities under their parent, or under the workspace root.

So, specific implementations are encouraged to perform additional tests which
are specific to the underlying service.
*/
package servicetest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"testing"
	"time"

	"github.com/go-digitaltwin/twinsync"
)

// The identifiers of the resources created by the suite.
const (
	workspaceID     = "servicetest"
	componentTypeID = "com.example.servicetest"
	rootEntityID    = "servicetest-root"
	childEntityID   = "servicetest-child"
)

type testCase struct {
	// Subtest name.
	name string
	// A path leading to the test-case's file and line in the source code.
	location string
	// An operation executes one or more calls against the tested service, and
	// reports unexpected outcomes as errors. Operations observe the resources
	// created by previous test-cases.
	operation func(ctx context.Context, svc twinsync.Service) error
}

var cases = []testCase{
	{
		name:     "get-entity-of-missing-workspace",
		location: locateSource(),
		operation: func(ctx context.Context, svc twinsync.Service) error {
			_, err := svc.GetEntity(ctx, workspaceID, rootEntityID)
			return wantNotFound(err)
		},
	},
	{
		name:     "create-workspace",
		location: locateSource(),
		operation: func(ctx context.Context, svc twinsync.Service) error {
			err := svc.CreateWorkspace(ctx, twinsync.WorkspaceRequest{
				ID:              workspaceID,
				StorageLocation: "arn:aws:s3:::" + twinsync.WorkspaceBucket(workspaceID),
				RoleARN:         "arn:aws:iam::000000000000:role/servicetest",
			})
			if err != nil {
				return fmt.Errorf("CreateWorkspace: %w", err)
			}
			return listsWorkspace(ctx, svc)
		},
	},
	{
		name:     "create-existing-workspace",
		location: locateSource(),
		operation: func(ctx context.Context, svc twinsync.Service) error {
			err := svc.CreateWorkspace(ctx, twinsync.WorkspaceRequest{
				ID:              workspaceID,
				StorageLocation: "arn:aws:s3:::" + twinsync.WorkspaceBucket(workspaceID),
				RoleARN:         "arn:aws:iam::000000000000:role/servicetest",
			})
			if err := wantAlreadyExists(err); err != nil {
				return err
			}
			return listsWorkspace(ctx, svc)
		},
	},
	{
		name:     "get-missing-entity",
		location: locateSource(),
		operation: func(ctx context.Context, svc twinsync.Service) error {
			_, err := svc.GetEntity(ctx, workspaceID, rootEntityID)
			return wantNotFound(err)
		},
	},
	{
		name:     "get-missing-component-type",
		location: locateSource(),
		operation: func(ctx context.Context, svc twinsync.Service) error {
			_, err := svc.GetComponentType(ctx, workspaceID, componentTypeID)
			return wantNotFound(err)
		},
	},
	{
		name:     "create-component-type",
		location: locateSource(),
		operation: func(ctx context.Context, svc twinsync.Service) error {
			err := svc.CreateComponentType(ctx, twinsync.ComponentTypeRequest{
				WorkspaceID:         workspaceID,
				ID:                  componentTypeID,
				PropertyDefinitions: twinsync.PropertiesSchema(),
			})
			if err != nil {
				return fmt.Errorf("CreateComponentType: %w", err)
			}
			summaries, err := svc.ListComponentTypes(ctx, workspaceID)
			if err != nil {
				return fmt.Errorf("ListComponentTypes: %w", err)
			}
			if !slices.Contains(summaries, twinsync.ComponentTypeSummary{ID: componentTypeID}) {
				return fmt.Errorf("ListComponentTypes = %v, want it to include %v", summaries, componentTypeID)
			}
			return await(ctx, "component type "+componentTypeID, func(ctx context.Context) (twinsync.Status, error) {
				return svc.GetComponentType(ctx, workspaceID, componentTypeID)
			})
		},
	},
	{
		name:     "create-existing-component-type",
		location: locateSource(),
		operation: func(ctx context.Context, svc twinsync.Service) error {
			err := svc.CreateComponentType(ctx, twinsync.ComponentTypeRequest{
				WorkspaceID:         workspaceID,
				ID:                  componentTypeID,
				PropertyDefinitions: twinsync.PropertiesSchema(),
			})
			return wantAlreadyExists(err)
		},
	},
	{
		name:     "create-root-entity",
		location: locateSource(),
		operation: func(ctx context.Context, svc twinsync.Service) error {
			err := svc.CreateEntity(ctx, twinsync.EntityRequest{
				WorkspaceID:    workspaceID,
				EntityID:       rootEntityID,
				EntityName:     "Root",
				ParentEntityID: twinsync.RootEntityID,
				Description:    "Root",
				Components: map[string]twinsync.Component{
					twinsync.PropertiesComponent: {
						ComponentTypeID: componentTypeID,
						Properties:      map[string]any{"site": "north", "floors": 3.0},
					},
				},
			})
			if err != nil {
				return fmt.Errorf("CreateEntity: %w", err)
			}
			return awaitEntity(ctx, svc, rootEntityID)
		},
	},
	{
		name:     "create-child-entity",
		location: locateSource(),
		operation: func(ctx context.Context, svc twinsync.Service) error {
			err := svc.CreateEntity(ctx, twinsync.EntityRequest{
				WorkspaceID:    workspaceID,
				EntityID:       childEntityID,
				EntityName:     "Child",
				ParentEntityID: rootEntityID,
				Description:    "Child",
			})
			if err != nil {
				return fmt.Errorf("CreateEntity: %w", err)
			}
			return awaitEntity(ctx, svc, childEntityID)
		},
	},
	{
		name:     "create-existing-entity",
		location: locateSource(),
		operation: func(ctx context.Context, svc twinsync.Service) error {
			err := svc.CreateEntity(ctx, twinsync.EntityRequest{
				WorkspaceID:    workspaceID,
				EntityID:       childEntityID,
				EntityName:     "Another child",
				ParentEntityID: twinsync.RootEntityID,
			})
			return wantAlreadyExists(err)
		},
	},
}

// Run executes a sequence of test cases on a twinsync.Service implementation.
// It verifies the service reports missing and conflicting resources the way
// the importer expects, and that created resources eventually become active.
//
// The testing process requires all cases to execute in a strict sequence because
// the resources created by one case are observed by the next. That is, a test
// case cannot run if the previous case had failed.
//
// The suite expects the service to hold no workspace named "servicetest".
func Run(t *testing.T, svc twinsync.Service) {
	t.Helper()

	// We deliberately use the background context because this test-suite does not
	// check performance; activation waits are bounded by the suite itself.
	ctx := context.Background()

	for _, c := range cases {
		// We encourage developers to read the source code directly, especially when
		// failures are not clear enough.
		t.Logf("Read the source for test-case %v at %v", c.name, c.location)
		if err := c.operation(ctx, svc); err != nil {
			t.Fatalf("%v: %v", c.name, err)
		}
	}
}

func listsWorkspace(ctx context.Context, svc twinsync.Service) error {
	summaries, err := svc.ListWorkspaces(ctx)
	if err != nil {
		return fmt.Errorf("ListWorkspaces: %w", err)
	}
	if !slices.Contains(summaries, twinsync.WorkspaceSummary{ID: workspaceID}) {
		return fmt.Errorf("ListWorkspaces = %v, want it to include %v", summaries, workspaceID)
	}
	return nil
}

func wantNotFound(err error) error {
	if !errors.Is(err, twinsync.ErrNotFound) {
		return fmt.Errorf("got error %v, want one wrapping %v", err, twinsync.ErrNotFound)
	}
	return nil
}

func wantAlreadyExists(err error) error {
	if !errors.Is(err, twinsync.ErrAlreadyExists) {
		return fmt.Errorf("got error %v, want one wrapping %v", err, twinsync.ErrAlreadyExists)
	}
	return nil
}

func awaitEntity(ctx context.Context, svc twinsync.Service, id string) error {
	return await(ctx, "entity "+id, func(ctx context.Context) (twinsync.Status, error) {
		return svc.GetEntity(ctx, workspaceID, id)
	})
}

// The suite polls fast because it targets local and in-memory services.
var waiter = twinsync.Waiter{Policy: twinsync.WaitPolicy{
	Timeout:         time.Minute,
	InitialInterval: 10 * time.Millisecond,
	MaxInterval:     time.Second,
}}

func await(ctx context.Context, resource string, poll twinsync.Poller) error {
	return waiter.Await(ctx, resource, poll)
}

// Call this function to set the location of every test-case in the source file.
// The returned string is used to guide developers of services to the
// appropriate test-case.
func locateSource() (path string) {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		panic("runtime.Caller failed")
	}
	return fmt.Sprintf("%v:%v", file, line)
}
