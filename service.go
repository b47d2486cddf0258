package twinsync

import (
	"context"
)

// RootEntityID is the sentinel parent id of top-level entities. The service
// attaches entities with this parent directly under the workspace root.
const RootEntityID = "$ROOT"

// PropertiesComponent is the name of the single component that carries an
// entity's exported properties, and of the single property definition of the
// component types this package provisions.
const PropertiesComponent = "attributes"

// State is the provisioning state of a remote resource.
type State string

// The states a resource goes through while the service provisions it.
const (
	StateCreating State = "CREATING"
	StateUpdating State = "UPDATING"
	StateDeleting State = "DELETING"
	StateActive   State = "ACTIVE"
	StateError    State = "ERROR"
)

// Status describes the provisioning state of a remote resource. Message
// carries the service's explanation when State is StateError.
type Status struct {
	State   State
	Message string
}

// A WorkspaceSummary identifies an existing workspace.
type WorkspaceSummary struct {
	ID string
}

// A WorkspaceRequest describes a workspace to create.
type WorkspaceRequest struct {
	ID              string
	StorageLocation string // Where the service keeps workspace artifacts, e.g. "arn:aws:s3:::bucket".
	RoleARN         string // The execution role the service assumes.
}

// A ComponentTypeSummary identifies an existing component type.
type ComponentTypeSummary struct {
	ID string
}

// DataType enumerates the property data types this package provisions.
type DataType string

const (
	DataTypeString DataType = "STRING"
)

// PropertyDefinition declares a single property of a component type.
type PropertyDefinition struct {
	DataType           DataType
	IsTimeSeries       bool
	IsRequiredInEntity bool
}

// A ComponentTypeRequest describes a component type to create.
type ComponentTypeRequest struct {
	WorkspaceID         string
	ID                  string
	PropertyDefinitions map[string]PropertyDefinition
}

// A Component is an instance of a component type attached to an entity.
//
// Properties are opaque: they come from the exported document and each Service
// implementation encodes them in its own way.
type Component struct {
	ComponentTypeID string
	Properties      map[string]any
}

// An EntityRequest describes an entity to create.
type EntityRequest struct {
	WorkspaceID    string
	EntityID       string
	EntityName     string
	ParentEntityID string
	Description    string
	Components     map[string]Component // Optional.
}

// Service abstracts the remote graph-structured digital-twin service: a managed
// API for workspaces, component-type schemas, and entities organised in a
// parent/child tree, each with an asynchronous provisioning lifecycle.
//
// Implementations must wrap ErrNotFound when the queried resource does not
// exist and ErrAlreadyExists when a create call conflicts with an existing
// resource. Every other error is treated as a transport or auth failure.
//
// Implementations must be safe for concurrent use.
type Service interface {
	ListWorkspaces(ctx context.Context) ([]WorkspaceSummary, error)
	CreateWorkspace(ctx context.Context, req WorkspaceRequest) error

	ListComponentTypes(ctx context.Context, workspaceID string) ([]ComponentTypeSummary, error)
	CreateComponentType(ctx context.Context, req ComponentTypeRequest) error
	GetComponentType(ctx context.Context, workspaceID, componentTypeID string) (Status, error)

	// GetEntity reports the status of an entity, or an error wrapping
	// ErrNotFound when it does not exist.
	GetEntity(ctx context.Context, workspaceID, entityID string) (Status, error)
	CreateEntity(ctx context.Context, req EntityRequest) error
}

// PropertiesSchema returns the fixed schema of the component types provisioned
// by this package: a single optional, non-time-series string property.
func PropertiesSchema() map[string]PropertyDefinition {
	return map[string]PropertyDefinition{
		PropertiesComponent: {
			DataType:           DataTypeString,
			IsTimeSeries:       false,
			IsRequiredInEntity: false,
		},
	}
}
