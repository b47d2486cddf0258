package twinmaker

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iottwinmaker"
	"github.com/aws/aws-sdk-go-v2/service/iottwinmaker/types"

	"github.com/go-digitaltwin/twinsync"
)

// API is the subset of the AWS IoT TwinMaker client used by Service.
// *iottwinmaker.Client implements it.
type API interface {
	ListWorkspaces(ctx context.Context, in *iottwinmaker.ListWorkspacesInput, optFns ...func(*iottwinmaker.Options)) (*iottwinmaker.ListWorkspacesOutput, error)
	CreateWorkspace(ctx context.Context, in *iottwinmaker.CreateWorkspaceInput, optFns ...func(*iottwinmaker.Options)) (*iottwinmaker.CreateWorkspaceOutput, error)
	ListComponentTypes(ctx context.Context, in *iottwinmaker.ListComponentTypesInput, optFns ...func(*iottwinmaker.Options)) (*iottwinmaker.ListComponentTypesOutput, error)
	CreateComponentType(ctx context.Context, in *iottwinmaker.CreateComponentTypeInput, optFns ...func(*iottwinmaker.Options)) (*iottwinmaker.CreateComponentTypeOutput, error)
	GetComponentType(ctx context.Context, in *iottwinmaker.GetComponentTypeInput, optFns ...func(*iottwinmaker.Options)) (*iottwinmaker.GetComponentTypeOutput, error)
	GetEntity(ctx context.Context, in *iottwinmaker.GetEntityInput, optFns ...func(*iottwinmaker.Options)) (*iottwinmaker.GetEntityOutput, error)
	CreateEntity(ctx context.Context, in *iottwinmaker.CreateEntityInput, optFns ...func(*iottwinmaker.Options)) (*iottwinmaker.CreateEntityOutput, error)
}

// Service implements twinsync.Service over AWS IoT TwinMaker.
type Service struct {
	api API
}

// NewService returns a Service that issues its calls with api.
func NewService(api API) *Service {
	return &Service{api: api}
}

func (s *Service) ListWorkspaces(ctx context.Context) ([]twinsync.WorkspaceSummary, error) {
	var (
		summaries []twinsync.WorkspaceSummary
		token     *string
	)
	for {
		out, err := s.api.ListWorkspaces(ctx, &iottwinmaker.ListWorkspacesInput{NextToken: token})
		if err != nil {
			return nil, classify("list workspaces", err)
		}
		for _, w := range out.WorkspaceSummaries {
			summaries = append(summaries, twinsync.WorkspaceSummary{ID: aws.ToString(w.WorkspaceId)})
		}
		if token = out.NextToken; aws.ToString(token) == "" {
			return summaries, nil
		}
	}
}

func (s *Service) CreateWorkspace(ctx context.Context, req twinsync.WorkspaceRequest) error {
	_, err := s.api.CreateWorkspace(ctx, &iottwinmaker.CreateWorkspaceInput{
		WorkspaceId: aws.String(req.ID),
		S3Location:  aws.String(req.StorageLocation),
		Role:        aws.String(req.RoleARN),
	})
	return classify("create workspace "+req.ID, err)
}

func (s *Service) ListComponentTypes(ctx context.Context, workspaceID string) ([]twinsync.ComponentTypeSummary, error) {
	var (
		summaries []twinsync.ComponentTypeSummary
		token     *string
	)
	for {
		out, err := s.api.ListComponentTypes(ctx, &iottwinmaker.ListComponentTypesInput{
			WorkspaceId: aws.String(workspaceID),
			NextToken:   token,
		})
		if err != nil {
			return nil, classify("list component types", err)
		}
		for _, c := range out.ComponentTypeSummaries {
			summaries = append(summaries, twinsync.ComponentTypeSummary{ID: aws.ToString(c.ComponentTypeId)})
		}
		if token = out.NextToken; aws.ToString(token) == "" {
			return summaries, nil
		}
	}
}

func (s *Service) CreateComponentType(ctx context.Context, req twinsync.ComponentTypeRequest) error {
	_, err := s.api.CreateComponentType(ctx, &iottwinmaker.CreateComponentTypeInput{
		WorkspaceId:         aws.String(req.WorkspaceID),
		ComponentTypeId:     aws.String(req.ID),
		PropertyDefinitions: propertyDefinitions(req.PropertyDefinitions),
	})
	return classify("create component type "+req.ID, err)
}

func (s *Service) GetComponentType(ctx context.Context, workspaceID, id string) (twinsync.Status, error) {
	out, err := s.api.GetComponentType(ctx, &iottwinmaker.GetComponentTypeInput{
		WorkspaceId:     aws.String(workspaceID),
		ComponentTypeId: aws.String(id),
	})
	if err != nil {
		return twinsync.Status{}, classify("get component type "+id, err)
	}
	return status(out.Status), nil
}

func (s *Service) GetEntity(ctx context.Context, workspaceID, id string) (twinsync.Status, error) {
	out, err := s.api.GetEntity(ctx, &iottwinmaker.GetEntityInput{
		WorkspaceId: aws.String(workspaceID),
		EntityId:    aws.String(id),
	})
	if err != nil {
		return twinsync.Status{}, classify("get entity "+id, err)
	}
	return status(out.Status), nil
}

func (s *Service) CreateEntity(ctx context.Context, req twinsync.EntityRequest) error {
	components, err := componentRequests(req.Components)
	if err != nil {
		return fmt.Errorf("entity %v: %w", req.EntityID, err)
	}
	in := &iottwinmaker.CreateEntityInput{
		WorkspaceId:    aws.String(req.WorkspaceID),
		EntityId:       aws.String(req.EntityID),
		EntityName:     aws.String(req.EntityName),
		ParentEntityId: aws.String(req.ParentEntityID),
		Components:     components,
	}
	if req.Description != "" {
		in.Description = aws.String(req.Description)
	}
	_, err = s.api.CreateEntity(ctx, in)
	return classify("create entity "+req.EntityID, err)
}

// classify wraps the service's "not found" and "conflict" exceptions with the
// matching twinsync sentinels. Other errors are wrapped as is.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		notFound *types.ResourceNotFoundException
		conflict *types.ConflictException
	)
	switch {
	case errors.As(err, &notFound):
		return fmt.Errorf("%v: %w: %v", op, twinsync.ErrNotFound, notFound.ErrorMessage())
	case errors.As(err, &conflict):
		return fmt.Errorf("%v: %w: %v", op, twinsync.ErrAlreadyExists, conflict.ErrorMessage())
	default:
		return fmt.Errorf("%v: %w", op, err)
	}
}

func status(s *types.Status) twinsync.Status {
	if s == nil {
		return twinsync.Status{}
	}
	st := twinsync.Status{State: twinsync.State(s.State)}
	if s.Error != nil {
		st.Message = fmt.Sprintf("%v: %v", s.Error.Code, aws.ToString(s.Error.Message))
	}
	return st
}

func propertyDefinitions(defs map[string]twinsync.PropertyDefinition) map[string]types.PropertyDefinitionRequest {
	requests := make(map[string]types.PropertyDefinitionRequest, len(defs))
	for name, d := range defs {
		requests[name] = types.PropertyDefinitionRequest{
			DataType:           &types.DataType{Type: types.Type(d.DataType)},
			IsTimeSeries:       aws.Bool(d.IsTimeSeries),
			IsRequiredInEntity: aws.Bool(d.IsRequiredInEntity),
		}
	}
	return requests
}

func componentRequests(components map[string]twinsync.Component) (map[string]types.ComponentRequest, error) {
	if len(components) == 0 {
		return nil, nil
	}
	requests := make(map[string]types.ComponentRequest, len(components))
	for name, c := range components {
		properties, err := propertyRequests(c.Properties)
		if err != nil {
			return nil, fmt.Errorf("component %v: %w", name, err)
		}
		requests[name] = types.ComponentRequest{
			ComponentTypeId: aws.String(c.ComponentTypeID),
			Properties:      properties,
		}
	}
	return requests, nil
}
