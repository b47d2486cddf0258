// Package memtwin implements twinsync.Service in memory.
//
// The in-memory service mimics the asynchronous lifecycle of a real
// digital-twin service: created component types and entities stay CREATING
// for a configurable number of status polls before turning ACTIVE. It also
// enforces the ordering constraints of a real service (an entity's parent and
// component types must be active when the entity is created), journals every
// call, and can inject faults. That makes it suitable for tests and dry runs.
package memtwin

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/go-digitaltwin/twinsync"
)

// The operations recorded in the journal, and targeted by faults.
const (
	OpListWorkspaces      = "ListWorkspaces"
	OpCreateWorkspace     = "CreateWorkspace"
	OpListComponentTypes  = "ListComponentTypes"
	OpCreateComponentType = "CreateComponentType"
	OpGetComponentType    = "GetComponentType"
	OpGetEntity           = "GetEntity"
	OpCreateEntity        = "CreateEntity"
)

// A Call is a journal entry: one call to the service. ID is the id of the
// resource the call targets, or the workspace id for list calls.
type Call struct {
	Op string
	ID string
}

// An Entity is a snapshot of an entity held by the service.
type Entity struct {
	ID          string
	Name        string
	ParentID    string
	Description string
	Components  map[string]twinsync.Component
	State       twinsync.State
}

// Service is an in-memory twinsync.Service. The zero value is an empty service
// whose resources become active immediately. A Service is safe for concurrent
// use.
type Service struct {
	// ActivationPolls is the number of status polls a new component type or
	// entity answers with CREATING before it turns ACTIVE.
	ActivationPolls int

	mu         sync.Mutex
	workspaces map[string]*workspace
	journal    []Call
	faults     map[Call]error
}

type workspace struct {
	req            twinsync.WorkspaceRequest
	componentTypes map[string]*resource
	entities       map[string]*resource
}

// A resource tracks the provisioning lifecycle of a single component type or
// entity.
type resource struct {
	entity Entity // Unused for component types.
	polls  int
	// pinned, when set, overrides the lifecycle.
	pinned twinsync.State
}

func (r *resource) state() twinsync.State {
	if r.pinned != "" {
		return r.pinned
	}
	return r.entity.State
}

// poll advances the lifecycle by one status poll.
func (r *resource) poll(activationPolls int) twinsync.State {
	if r.pinned == "" && r.entity.State == twinsync.StateCreating {
		r.polls++
		if r.polls > activationPolls {
			r.entity.State = twinsync.StateActive
		}
	}
	return r.state()
}

// Fail makes every subsequent call of op on the resource id fail with err, until
// Fail is called again with a nil error.
func (s *Service) Fail(op, id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults == nil {
		s.faults = make(map[Call]error)
	}
	if err == nil {
		delete(s.faults, Call{Op: op, ID: id})
		return
	}
	s.faults[Call{Op: op, ID: id}] = err
}

// Pin fixes the state reported for an existing component type or entity,
// regardless of how many times it is polled. Pinning the empty state restores
// the regular lifecycle.
func (s *Service) Pin(workspaceID, id string, state twinsync.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, err := s.workspace(workspaceID)
	if err != nil {
		return err
	}
	if r, ok := ws.entities[id]; ok {
		r.pinned = state
		return nil
	}
	if r, ok := ws.componentTypes[id]; ok {
		r.pinned = state
		return nil
	}
	return fmt.Errorf("resource %v: %w", id, twinsync.ErrNotFound)
}

// Calls returns a copy of the journal, in call order.
func (s *Service) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.journal)
}

// Count returns how many times op was called, on any resource.
func (s *Service) Count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, c := range s.journal {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Entities returns a snapshot of the workspace's entities, sorted by id.
func (s *Service) Entities(workspaceID string) []Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.workspaces[workspaceID]
	if ws == nil {
		return nil
	}
	entities := make([]Entity, 0, len(ws.entities))
	for _, id := range slices.Sorted(maps.Keys(ws.entities)) {
		r := ws.entities[id]
		e := r.entity
		e.State = r.state()
		e.Components = maps.Clone(e.Components)
		entities = append(entities, e)
	}
	return entities
}

// Entity returns a snapshot of a single entity.
func (s *Service) Entity(workspaceID, id string) (Entity, bool) {
	for _, e := range s.Entities(workspaceID) {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}

// Workspace returns the request a workspace was created with.
func (s *Service) Workspace(id string) (twinsync.WorkspaceRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return twinsync.WorkspaceRequest{}, false
	}
	return ws.req, true
}

// Seed adds an entity to a workspace without journaling a call, as if another
// client had created it. The workspace is created when missing.
func (s *Service) Seed(req twinsync.EntityRequest, state twinsync.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.ensureWorkspace(twinsync.WorkspaceRequest{ID: req.WorkspaceID})
	ws.entities[req.EntityID] = &resource{entity: entityOf(req, state)}
}

// SeedComponentType adds an active component type to a workspace without
// journaling a call. The workspace is created when missing.
func (s *Service) SeedComponentType(workspaceID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.ensureWorkspace(twinsync.WorkspaceRequest{ID: workspaceID})
	ws.componentTypes[id] = &resource{entity: Entity{ID: id, State: twinsync.StateActive}}
}

// Call record journals a call and returns the fault injected for it, if any.
// The caller must hold s.mu.
func (s *Service) record(op, id string) error {
	c := Call{Op: op, ID: id}
	s.journal = append(s.journal, c)
	return s.faults[c]
}

func (s *Service) workspace(id string) (*workspace, error) {
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, fmt.Errorf("workspace %v: %w", id, twinsync.ErrNotFound)
	}
	return ws, nil
}

func (s *Service) ensureWorkspace(req twinsync.WorkspaceRequest) *workspace {
	if s.workspaces == nil {
		s.workspaces = make(map[string]*workspace)
	}
	ws, ok := s.workspaces[req.ID]
	if !ok {
		ws = &workspace{
			req:            req,
			componentTypes: make(map[string]*resource),
			entities:       make(map[string]*resource),
		}
		s.workspaces[req.ID] = ws
	}
	return ws
}

func (s *Service) ListWorkspaces(context.Context) ([]twinsync.WorkspaceSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpListWorkspaces, ""); err != nil {
		return nil, err
	}
	var summaries []twinsync.WorkspaceSummary
	for _, id := range slices.Sorted(maps.Keys(s.workspaces)) {
		summaries = append(summaries, twinsync.WorkspaceSummary{ID: id})
	}
	return summaries, nil
}

func (s *Service) CreateWorkspace(_ context.Context, req twinsync.WorkspaceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpCreateWorkspace, req.ID); err != nil {
		return err
	}
	if _, ok := s.workspaces[req.ID]; ok {
		return fmt.Errorf("workspace %v: %w", req.ID, twinsync.ErrAlreadyExists)
	}
	if req.StorageLocation == "" || req.RoleARN == "" {
		return fmt.Errorf("workspace %v: storage location and role are required", req.ID)
	}
	s.ensureWorkspace(req)
	return nil
}

func (s *Service) ListComponentTypes(_ context.Context, workspaceID string) ([]twinsync.ComponentTypeSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpListComponentTypes, workspaceID); err != nil {
		return nil, err
	}
	ws, err := s.workspace(workspaceID)
	if err != nil {
		return nil, err
	}
	var summaries []twinsync.ComponentTypeSummary
	for _, id := range slices.Sorted(maps.Keys(ws.componentTypes)) {
		summaries = append(summaries, twinsync.ComponentTypeSummary{ID: id})
	}
	return summaries, nil
}

func (s *Service) CreateComponentType(_ context.Context, req twinsync.ComponentTypeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpCreateComponentType, req.ID); err != nil {
		return err
	}
	ws, err := s.workspace(req.WorkspaceID)
	if err != nil {
		return err
	}
	if _, ok := ws.componentTypes[req.ID]; ok {
		return fmt.Errorf("component type %v: %w", req.ID, twinsync.ErrAlreadyExists)
	}
	ws.componentTypes[req.ID] = &resource{entity: Entity{ID: req.ID, State: twinsync.StateCreating}}
	return nil
}

func (s *Service) GetComponentType(_ context.Context, workspaceID, id string) (twinsync.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpGetComponentType, id); err != nil {
		return twinsync.Status{}, err
	}
	ws, err := s.workspace(workspaceID)
	if err != nil {
		return twinsync.Status{}, err
	}
	r, ok := ws.componentTypes[id]
	if !ok {
		return twinsync.Status{}, fmt.Errorf("component type %v: %w", id, twinsync.ErrNotFound)
	}
	return status(r.poll(s.ActivationPolls)), nil
}

func (s *Service) GetEntity(_ context.Context, workspaceID, id string) (twinsync.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpGetEntity, id); err != nil {
		return twinsync.Status{}, err
	}
	ws, err := s.workspace(workspaceID)
	if err != nil {
		return twinsync.Status{}, err
	}
	r, ok := ws.entities[id]
	if !ok {
		return twinsync.Status{}, fmt.Errorf("entity %v: %w", id, twinsync.ErrNotFound)
	}
	return status(r.poll(s.ActivationPolls)), nil
}

// CreateEntity rejects entities whose parent or component types are missing
// or not yet active, as a real service would.
func (s *Service) CreateEntity(_ context.Context, req twinsync.EntityRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpCreateEntity, req.EntityID); err != nil {
		return err
	}
	ws, err := s.workspace(req.WorkspaceID)
	if err != nil {
		return err
	}
	if _, ok := ws.entities[req.EntityID]; ok {
		return fmt.Errorf("entity %v: %w", req.EntityID, twinsync.ErrAlreadyExists)
	}
	if req.ParentEntityID != twinsync.RootEntityID {
		parent, ok := ws.entities[req.ParentEntityID]
		if !ok {
			return fmt.Errorf("entity %v: parent %v does not exist", req.EntityID, req.ParentEntityID)
		}
		if st := parent.state(); st != twinsync.StateActive {
			return fmt.Errorf("entity %v: parent %v is %v", req.EntityID, req.ParentEntityID, st)
		}
	}
	for name, c := range req.Components {
		ct, ok := ws.componentTypes[c.ComponentTypeID]
		if !ok {
			return fmt.Errorf("entity %v: component %v: component type %v does not exist", req.EntityID, name, c.ComponentTypeID)
		}
		if st := ct.state(); st != twinsync.StateActive {
			return fmt.Errorf("entity %v: component %v: component type %v is %v", req.EntityID, name, c.ComponentTypeID, st)
		}
	}
	ws.entities[req.EntityID] = &resource{entity: entityOf(req, twinsync.StateCreating)}
	return nil
}

func entityOf(req twinsync.EntityRequest, state twinsync.State) Entity {
	return Entity{
		ID:          req.EntityID,
		Name:        req.EntityName,
		ParentID:    req.ParentEntityID,
		Description: req.Description,
		Components:  maps.Clone(req.Components),
		State:       state,
	}
}

func status(state twinsync.State) twinsync.Status {
	if state == twinsync.StateError {
		return twinsync.Status{State: state, Message: "provisioning failed"}
	}
	return twinsync.Status{State: state}
}
