package twinmaker

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iottwinmaker"
	"github.com/aws/aws-sdk-go-v2/service/iottwinmaker/types"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/go-digitaltwin/twinsync"
)

// fakeAPI answers calls from canned values and records the inputs it got. The
// embedded API panics on calls a test did not expect.
type fakeAPI struct {
	API

	workspacePages [][]string
	getEntity      func(*iottwinmaker.GetEntityInput) (*iottwinmaker.GetEntityOutput, error)
	createEntity   func(*iottwinmaker.CreateEntityInput) error

	listed  []*string
	created []*iottwinmaker.CreateEntityInput
}

func (f *fakeAPI) ListWorkspaces(_ context.Context, in *iottwinmaker.ListWorkspacesInput, _ ...func(*iottwinmaker.Options)) (*iottwinmaker.ListWorkspacesOutput, error) {
	f.listed = append(f.listed, in.NextToken)
	page := len(f.listed) - 1
	out := new(iottwinmaker.ListWorkspacesOutput)
	for _, id := range f.workspacePages[page] {
		out.WorkspaceSummaries = append(out.WorkspaceSummaries, types.WorkspaceSummary{WorkspaceId: aws.String(id)})
	}
	if page+1 < len(f.workspacePages) {
		out.NextToken = aws.String("next")
	}
	return out, nil
}

func (f *fakeAPI) GetEntity(_ context.Context, in *iottwinmaker.GetEntityInput, _ ...func(*iottwinmaker.Options)) (*iottwinmaker.GetEntityOutput, error) {
	return f.getEntity(in)
}

func (f *fakeAPI) CreateEntity(_ context.Context, in *iottwinmaker.CreateEntityInput, _ ...func(*iottwinmaker.Options)) (*iottwinmaker.CreateEntityOutput, error) {
	f.created = append(f.created, in)
	if f.createEntity != nil {
		if err := f.createEntity(in); err != nil {
			return nil, err
		}
	}
	return new(iottwinmaker.CreateEntityOutput), nil
}

func TestListWorkspacesPaginates(t *testing.T) {
	api := &fakeAPI{workspacePages: [][]string{{"a", "b"}, {"c"}}}
	got, err := NewService(api).ListWorkspaces(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []twinsync.WorkspaceSummary{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListWorkspaces mismatch (-want +got):\n%v", diff)
	}
	if diff := cmp.Diff([]*string{nil, aws.String("next")}, api.listed); diff != "" {
		t.Errorf("Page tokens mismatch (-want +got):\n%v", diff)
	}
}

func TestGetEntityClassifiesErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "NotFound", err: &types.ResourceNotFoundException{Message: aws.String("no such entity")}, want: twinsync.ErrNotFound},
		{name: "Conflict", err: &types.ConflictException{Message: aws.String("exists")}, want: twinsync.ErrAlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{getEntity: func(*iottwinmaker.GetEntityInput) (*iottwinmaker.GetEntityOutput, error) {
				return nil, tt.err
			}}
			_, err := NewService(api).GetEntity(context.Background(), "ws", "e")
			if !errors.Is(err, tt.want) {
				t.Errorf("GetEntity error = %v, want one wrapping %v", err, tt.want)
			}
		})
	}

	t.Run("Other", func(t *testing.T) {
		denied := &types.AccessDeniedException{Message: aws.String("denied")}
		api := &fakeAPI{getEntity: func(*iottwinmaker.GetEntityInput) (*iottwinmaker.GetEntityOutput, error) {
			return nil, denied
		}}
		_, err := NewService(api).GetEntity(context.Background(), "ws", "e")
		if errors.Is(err, twinsync.ErrNotFound) || errors.Is(err, twinsync.ErrAlreadyExists) {
			t.Errorf("GetEntity error = %v must not be classified", err)
		}
		var got *types.AccessDeniedException
		if !errors.As(err, &got) {
			t.Errorf("GetEntity error = %v, want it to wrap the service exception", err)
		}
	})
}

func TestGetEntityStatus(t *testing.T) {
	api := &fakeAPI{getEntity: func(in *iottwinmaker.GetEntityInput) (*iottwinmaker.GetEntityOutput, error) {
		return &iottwinmaker.GetEntityOutput{Status: &types.Status{
			State: types.StateError,
			Error: &types.ErrorDetails{Code: types.ErrorCodeValidationError, Message: aws.String("bad parent")},
		}}, nil
	}}
	got, err := NewService(api).GetEntity(context.Background(), "ws", "e")
	if err != nil {
		t.Fatal(err)
	}
	want := twinsync.Status{State: twinsync.StateError, Message: "VALIDATION_ERROR: bad parent"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetEntity mismatch (-want +got):\n%v", diff)
	}
}

func TestCreateEntityRequest(t *testing.T) {
	api := new(fakeAPI)
	err := NewService(api).CreateEntity(context.Background(), twinsync.EntityRequest{
		WorkspaceID:    "ws",
		EntityID:       "pump-1",
		EntityName:     "Pump 1",
		ParentEntityID: twinsync.RootEntityID,
		Description:    "Pump 1",
		Components: map[string]twinsync.Component{
			twinsync.PropertiesComponent: {
				ComponentTypeID: "com.example.pump",
				Properties: map[string]any{
					"attributes": map[string]any{"value": map[string]any{"stringValue": "{}"}},
				},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []*iottwinmaker.CreateEntityInput{{
		WorkspaceId:    aws.String("ws"),
		EntityId:       aws.String("pump-1"),
		EntityName:     aws.String("Pump 1"),
		ParentEntityId: aws.String("$ROOT"),
		Description:    aws.String("Pump 1"),
		Components: map[string]types.ComponentRequest{
			"attributes": {
				ComponentTypeId: aws.String("com.example.pump"),
				Properties: map[string]types.PropertyRequest{
					"attributes": {Value: &types.DataValue{StringValue: aws.String("{}")}},
				},
			},
		},
	}}
	opts := cmpopts.IgnoreUnexported(
		iottwinmaker.CreateEntityInput{},
		types.ComponentRequest{},
		types.PropertyRequest{},
		types.DataValue{},
	)
	if diff := cmp.Diff(want, api.created, opts); diff != "" {
		t.Errorf("CreateEntity input mismatch (-want +got):\n%v", diff)
	}
}

func TestCreateEntityConflict(t *testing.T) {
	api := &fakeAPI{createEntity: func(*iottwinmaker.CreateEntityInput) error {
		return &types.ConflictException{Message: aws.String("entity already exists")}
	}}
	err := NewService(api).CreateEntity(context.Background(), twinsync.EntityRequest{WorkspaceID: "ws", EntityID: "e", ParentEntityID: twinsync.RootEntityID})
	if !errors.Is(err, twinsync.ErrAlreadyExists) {
		t.Errorf("CreateEntity error = %v, want one wrapping %v", err, twinsync.ErrAlreadyExists)
	}
}

func TestPropertyDefinitions(t *testing.T) {
	got := propertyDefinitions(twinsync.PropertiesSchema())
	want := map[string]types.PropertyDefinitionRequest{
		"attributes": {
			DataType:           &types.DataType{Type: types.TypeString},
			IsTimeSeries:       aws.Bool(false),
			IsRequiredInEntity: aws.Bool(false),
		},
	}
	opts := cmpopts.IgnoreUnexported(types.PropertyDefinitionRequest{}, types.DataType{})
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("propertyDefinitions mismatch (-want +got):\n%v", diff)
	}
}
