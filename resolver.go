package twinsync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// RootDisplayName is the display name of a placeholder whose parent_name is the
// RootEntityID sentinel.
const RootDisplayName = "ROOT"

// A Resolver guarantees that entities, and every ancestor required to reach
// the workspace root, exist in the remote service. It creates missing entities
// in root-to-leaf order.
//
// A Resolver is bound to one workspace, one input set and one Cache; create a
// new Resolver per import job.
//
// A Resolver is safe for concurrent use. Concurrent resolutions that need the
// same missing entity share a single creation.
type Resolver struct {
	service        Service
	componentTypes *ComponentTypes
	waiter         Waiter
	cache          *Cache
	workspaceID    string
	// defaultComponentType is instantiated by ancestors that the resolver
	// reaches through parent references rather than by the caller.
	defaultComponentType string
	// Index of the input set by entity_id; the first occurrence of a duplicated
	// id wins.
	index map[string]*EntityRecord

	creations singleflight.Group
	awaits    singleflight.Group

	mu sync.Mutex
	// Entities this resolver created without waiting for them to become active.
	// They are awaited before anything references them as a parent.
	unconfirmed map[string]struct{}
	// Entities created by this resolver, as opposed to found in the service.
	owned map[string]struct{}

	created, synthesized, skipped, revisited atomic.Int64
}

// ResolverConfig groups the collaborators and job-level parameters of a
// Resolver.
type ResolverConfig struct {
	Service              Service
	ComponentTypes       *ComponentTypes
	Waiter               Waiter
	Cache                *Cache
	WorkspaceID          string
	DefaultComponentType string
}

// NewResolver returns a Resolver over the given input set.
func NewResolver(cfg ResolverConfig, records []EntityRecord) *Resolver {
	index := make(map[string]*EntityRecord, len(records))
	for i := range records {
		if _, dup := index[records[i].EntityID]; !dup {
			index[records[i].EntityID] = &records[i]
		}
	}
	cache := cfg.Cache
	if cache == nil {
		cache = new(Cache)
	}
	types := cfg.ComponentTypes
	if types == nil {
		types = &ComponentTypes{Service: cfg.Service, Waiter: cfg.Waiter}
	}
	return &Resolver{
		service:              cfg.Service,
		componentTypes:       types,
		waiter:               cfg.Waiter,
		cache:                cache,
		workspaceID:          cfg.WorkspaceID,
		defaultComponentType: cfg.DefaultComponentType,
		index:                index,
		unconfirmed:          make(map[string]struct{}),
		owned:                make(map[string]struct{}),
	}
}

// Resolve guarantees that by the time it returns with a nil error, the entity
// described by record, and all of its ancestors, exist in the remote service.
//
// An entity that already exists (in the cache or remotely) is left untouched,
// even if its attributes differ from the record: first write wins. Otherwise,
// Resolve provisions the record's component type (if any, in which case the
// record's own payload replaces the given components), makes sure the parent
// exists, and creates the entity. When mustBeActive is set, Resolve also waits
// for the new entity to become active; set it when another creation depends on
// this entity.
//
// Resolve fails with a *CyclicParentReferenceError when the parent references
// of the input set loop back onto the path being resolved.
func (r *Resolver) Resolve(ctx context.Context, record EntityRecord, components map[string]Component, mustBeActive bool) (err error) {
	ctx, span := tracer.Start(ctx, "Resolve", trace.WithAttributes(
		attribute.String("workspace.id", r.workspaceID),
		attribute.String("entity.id", record.EntityID),
	))
	defer span.End()
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if record.EntityID == "" {
		return errors.New("record has no entity_id")
	}
	found, _, err := r.exists(ctx, record.EntityID)
	if err != nil {
		return err
	}
	if found {
		if r.isOwned(record.EntityID) {
			component.Logger(ctx).Debug("Entity was created earlier in this run", "entity.id", record.EntityID)
			r.revisited.Add(1)
			return nil
		}
		r.skip(ctx, record.EntityID)
		return nil
	}
	return r.create(ctx, record, components, mustBeActive, nil)
}

// Call create once the record's entity is known to be missing. The path lists
// the entity ids on the way from the top-level record to this one.
func (r *Resolver) create(ctx context.Context, record EntityRecord, components map[string]Component, mustBeActive bool, path []string) error {
	if slices.Contains(path, record.EntityID) {
		chain := append(slices.Clone(path), record.EntityID)
		return &CyclicParentReferenceError{Chain: chain}
	}
	path = append(path[:len(path):len(path)], record.EntityID)

	logger := component.Logger(ctx).With("entity.id", record.EntityID)
	logger.Debug("Processing entity", "parent.id", record.ParentEntityID)

	// A component type named by the record belongs to that record only; it
	// never travels to the ancestors created along the way.
	if record.ComponentType != "" {
		if _, err := r.componentTypes.Ensure(ctx, r.cache, r.workspaceID, record.ComponentType); err != nil {
			return fmt.Errorf("entity %v: %w", record.EntityID, err)
		}
		components = record.Components(record.ComponentType)
	}

	parentID := RootEntityID
	if record.HasParent() {
		parentID = record.ParentEntityID
		if err := r.ensureParent(ctx, record, path); err != nil {
			return err
		}
	}

	return r.createEntity(ctx, EntityRequest{
		WorkspaceID:    r.workspaceID,
		EntityID:       record.EntityID,
		EntityName:     record.EntityName,
		ParentEntityID: parentID,
		Description:    record.description(),
		Components:     components,
	}, mustBeActive, false)
}

// Call ensureParent to make the record's parent usable as a dependency: an
// existing parent must be active, a parent defined by the input set is resolved
// first, and any other parent is replaced by a placeholder.
func (r *Resolver) ensureParent(ctx context.Context, record EntityRecord, path []string) error {
	id := record.ParentEntityID
	found, state, err := r.exists(ctx, id)
	if err != nil {
		return err
	}
	if found {
		return r.confirm(ctx, id, state)
	}
	if parent, ok := r.index[id]; ok {
		err := r.create(ctx, *parent, parent.Components(r.defaultComponentType), true, path)
		if err != nil {
			return fmt.Errorf("parent of %v: %w", record.EntityID, err)
		}
		return nil
	}
	return r.synthesize(ctx, id, record.ParentName)
}

// Call synthesize to create a placeholder for a parent that is referenced but
// not defined by the input set. The placeholder attaches under the workspace
// root and is awaited, since the referencing entity depends on it.
func (r *Resolver) synthesize(ctx context.Context, id, name string) error {
	switch name {
	case RootEntityID:
		name = RootDisplayName
	case "":
		name = id
	}
	component.Logger(ctx).Info("Parent is not part of the input, creating a placeholder", "entity.id", id, "entity.name", name)
	err := r.createEntity(ctx, EntityRequest{
		WorkspaceID:    r.workspaceID,
		EntityID:       id,
		EntityName:     name,
		ParentEntityID: RootEntityID,
		Description:    name,
	}, true, true)
	if err != nil {
		return fmt.Errorf("placeholder %v: %w", id, err)
	}
	return nil
}

type creation struct {
	active bool // Whether the entity was confirmed active.
}

// Call createEntity to issue the creation call. Concurrent calls for the same
// entity share one creation; a call that needs an active entity waits even if
// it joined a creation that did not.
func (r *Resolver) createEntity(ctx context.Context, req EntityRequest, mustBeActive, placeholder bool) error {
	v, err, _ := r.creations.Do(req.EntityID, func() (any, error) {
		if r.cache.HasEntity(req.EntityID) {
			return creation{}, nil
		}
		logger := component.Logger(ctx).With("entity.id", req.EntityID)
		logger.Info("Creating entity...", "parent.id", req.ParentEntityID)

		// Owned before the call, so concurrent resolutions that observe the new
		// entity in the service do not mistake it for a pre-existing one.
		r.setOwned(req.EntityID, true)
		err := r.service.CreateEntity(ctx, req)
		if err != nil {
			r.setOwned(req.EntityID, false)
		}
		switch {
		case errors.Is(err, ErrAlreadyExists):
			logger.Info("Entity was created concurrently")
		case err != nil:
			return nil, fmt.Errorf("create entity %v: %w", req.EntityID, transportError("create entity", err))
		default:
			r.created.Add(1)
			if placeholder {
				r.synthesized.Add(1)
			}
			entitiesCreated.Add(ctx, 1)
		}

		if mustBeActive {
			if err := r.awaitEntity(ctx, req.EntityID); err != nil {
				return nil, err
			}
		} else {
			r.setUnconfirmed(req.EntityID)
		}
		r.cache.MarkEntity(req.EntityID)
		return creation{active: mustBeActive}, nil
	})
	if err != nil {
		return err
	}
	if mustBeActive && !v.(creation).active {
		return r.confirm(ctx, req.EntityID, "")
	}
	return nil
}

// Call exists to check whether the entity exists, consulting the cache before
// the remote service. A remote hit is recorded in the cache. Failures other than
// ErrNotFound are returned rather than being mistaken for absence.
func (r *Resolver) exists(ctx context.Context, id string) (found bool, state State, err error) {
	if r.cache.HasEntity(id) {
		return true, "", nil
	}
	status, err := r.service.GetEntity(ctx, r.workspaceID, id)
	if errors.Is(err, ErrNotFound) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("check entity %v: %w", id, transportError("get entity", err))
	}
	if status.State != StateActive {
		// Later cache hits must not mistake it for an active entity.
		r.setUnconfirmed(id)
	}
	r.cache.MarkEntity(id)
	return true, status.State, nil
}

// Call confirm before referencing an existing entity as a parent. It waits for
// entities observed in a non-active state and for entities this resolver
// created without waiting. Concurrent confirmations of one entity share a
// single wait.
func (r *Resolver) confirm(ctx context.Context, id string, state State) error {
	if state == StateActive || (state == "" && !r.isUnconfirmed(id)) {
		return nil
	}
	_, err, _ := r.awaits.Do(id, func() (any, error) {
		if err := r.awaitEntity(ctx, id); err != nil {
			return nil, err
		}
		r.clearUnconfirmed(id)
		return nil, nil
	})
	return err
}

func (r *Resolver) awaitEntity(ctx context.Context, id string) error {
	err := r.waiter.Await(ctx, "entity "+id, func(ctx context.Context) (Status, error) {
		return r.service.GetEntity(ctx, r.workspaceID, id)
	})
	if err != nil {
		return fmt.Errorf("await entity %v: %w", id, err)
	}
	return nil
}

func (r *Resolver) skip(ctx context.Context, id string) {
	component.Logger(ctx).Debug("Entity already exists, not creating again", "entity.id", id)
	r.skipped.Add(1)
	entitiesSkipped.Add(ctx, 1)
}

func (r *Resolver) setOwned(id string, owned bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owned {
		r.owned[id] = struct{}{}
	} else {
		delete(r.owned, id)
	}
}

func (r *Resolver) isOwned(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.owned[id]
	return ok
}

func (r *Resolver) setUnconfirmed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unconfirmed[id] = struct{}{}
}

func (r *Resolver) isUnconfirmed(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.unconfirmed[id]
	return ok
}

func (r *Resolver) clearUnconfirmed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.unconfirmed, id)
}

// ResolverStats counts what a Resolver did so far.
type ResolverStats struct {
	Created     int // Entities created, including placeholders.
	Synthesized int // Placeholders created for parents missing from the input set.
	// Skipped counts records whose entity existed in the service before this
	// resolver ran; they are left untouched.
	Skipped int
	// Revisited counts records whose entity this resolver had already created,
	// e.g. as the ancestor of an earlier record.
	Revisited int
}

// Stats returns the counters accumulated by all calls to Resolve.
func (r *Resolver) Stats() ResolverStats {
	return ResolverStats{
		Created:     int(r.created.Load()),
		Synthesized: int(r.synthesized.Load()),
		Skipped:     int(r.skipped.Load()),
		Revisited:   int(r.revisited.Load()),
	}
}
