package memtwin

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/go-digitaltwin/twinsync"
	"github.com/go-digitaltwin/twinsync/servicetest"
)

func TestService(t *testing.T) {
	servicetest.Run(t, &Service{ActivationPolls: 2})
}

func TestActivationPolls(t *testing.T) {
	ctx := context.Background()
	svc := &Service{ActivationPolls: 2}
	svc.SeedComponentType("ws", "ct")
	err := svc.CreateEntity(ctx, twinsync.EntityRequest{WorkspaceID: "ws", EntityID: "a", ParentEntityID: twinsync.RootEntityID})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	var got []twinsync.State
	for range 4 {
		st, err := svc.GetEntity(ctx, "ws", "a")
		if err != nil {
			t.Fatalf("GetEntity: %v", err)
		}
		got = append(got, st.State)
	}
	want := []twinsync.State{twinsync.StateCreating, twinsync.StateCreating, twinsync.StateActive, twinsync.StateActive}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("States mismatch (-want +got):\n%v", diff)
	}
}

func TestCreateEntityRequiresActiveParent(t *testing.T) {
	ctx := context.Background()
	svc := &Service{ActivationPolls: 1}
	svc.Seed(twinsync.EntityRequest{WorkspaceID: "ws", EntityID: "parent", ParentEntityID: twinsync.RootEntityID}, twinsync.StateCreating)

	err := svc.CreateEntity(ctx, twinsync.EntityRequest{WorkspaceID: "ws", EntityID: "child", ParentEntityID: "parent"})
	if err == nil {
		t.Fatal("CreateEntity under a CREATING parent succeeded, want an error")
	}
	if errors.Is(err, twinsync.ErrNotFound) || errors.Is(err, twinsync.ErrAlreadyExists) {
		t.Errorf("CreateEntity error %v must not be classified", err)
	}

	err = svc.CreateEntity(ctx, twinsync.EntityRequest{WorkspaceID: "ws", EntityID: "orphan", ParentEntityID: "missing"})
	if err == nil {
		t.Fatal("CreateEntity under a missing parent succeeded, want an error")
	}
}

func TestCreateEntityRequiresActiveComponentType(t *testing.T) {
	ctx := context.Background()
	svc := new(Service)
	svc.SeedComponentType("ws", "other")

	err := svc.CreateEntity(ctx, twinsync.EntityRequest{
		WorkspaceID:    "ws",
		EntityID:       "a",
		ParentEntityID: twinsync.RootEntityID,
		Components: map[string]twinsync.Component{
			twinsync.PropertiesComponent: {ComponentTypeID: "missing"},
		},
	})
	if err == nil {
		t.Fatal("CreateEntity with a missing component type succeeded, want an error")
	}
}

func TestFail(t *testing.T) {
	ctx := context.Background()
	svc := new(Service)
	svc.SeedComponentType("ws", "ct")
	boom := errors.New("boom")

	svc.Fail(OpGetEntity, "a", boom)
	if _, err := svc.GetEntity(ctx, "ws", "a"); !errors.Is(err, boom) {
		t.Errorf("GetEntity error = %v, want %v", err, boom)
	}
	if _, err := svc.GetEntity(ctx, "ws", "b"); !errors.Is(err, twinsync.ErrNotFound) {
		t.Errorf("GetEntity of another entity = %v, want %v", err, twinsync.ErrNotFound)
	}

	svc.Fail(OpGetEntity, "a", nil)
	if _, err := svc.GetEntity(ctx, "ws", "a"); !errors.Is(err, twinsync.ErrNotFound) {
		t.Errorf("GetEntity after clearing the fault = %v, want %v", err, twinsync.ErrNotFound)
	}

	want := []Call{{OpGetEntity, "a"}, {OpGetEntity, "b"}, {OpGetEntity, "a"}}
	if diff := cmp.Diff(want, svc.Calls()); diff != "" {
		t.Errorf("Journal mismatch (-want +got):\n%v", diff)
	}
}

func TestPin(t *testing.T) {
	ctx := context.Background()
	svc := new(Service)
	svc.Seed(twinsync.EntityRequest{WorkspaceID: "ws", EntityID: "a", ParentEntityID: twinsync.RootEntityID}, twinsync.StateActive)

	if err := svc.Pin("ws", "a", twinsync.StateError); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	st, err := svc.GetEntity(ctx, "ws", "a")
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if st.State != twinsync.StateError || st.Message == "" {
		t.Errorf("GetEntity = %+v, want an ERROR state with a message", st)
	}
	if err := svc.Pin("ws", "missing", twinsync.StateError); !errors.Is(err, twinsync.ErrNotFound) {
		t.Errorf("Pin(missing) = %v, want %v", err, twinsync.ErrNotFound)
	}
}
