package twinsync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// ComponentTypes ensures the component types referenced by entities exist and
// are active before those entities are created.
//
// A ComponentTypes is safe for concurrent use; concurrent calls for the same
// component type share a single provisioning sequence.
type ComponentTypes struct {
	Service Service
	Waiter  Waiter

	group   singleflight.Group
	created atomic.Int64
}

// Created returns the number of component types created by this registry.
func (r *ComponentTypes) Created() int {
	return int(r.created.Load())
}

// Ensure guarantees that by the time it returns with a nil error, the named
// component type exists in the workspace and is active. It reports whether
// this call created it.
//
// It does nothing for an empty id or one already recorded in the cache.
// Otherwise, it lists the workspace's component types and, if the id is among
// them, records it without further calls; an existing schema is accepted as is
// even if it differs from the one this package would create. A missing
// component type is created with PropertiesSchema and awaited.
func (r *ComponentTypes) Ensure(ctx context.Context, cache *Cache, workspaceID, id string) (created bool, err error) {
	if id == "" || cache.HasComponentType(id) {
		return false, nil
	}
	v, err, _ := r.group.Do(workspaceID+"/"+id, func() (any, error) {
		// Another caller may have finished provisioning while we queued.
		if cache.HasComponentType(id) {
			return false, nil
		}
		created, err := r.provision(ctx, workspaceID, id)
		if err != nil {
			return false, err
		}
		cache.MarkComponentType(id)
		return created, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (r *ComponentTypes) provision(ctx context.Context, workspaceID, id string) (created bool, err error) {
	ctx, span := tracer.Start(ctx, "EnsureComponentType", trace.WithAttributes(
		attribute.String("workspace.id", workspaceID),
		attribute.String("componentType.id", id),
	))
	defer span.End()
	logger := component.Logger(ctx).With("workspace.id", workspaceID, "componentType.id", id)

	logger.Debug("Listing component types...")
	summaries, err := r.Service.ListComponentTypes(ctx, workspaceID)
	if err != nil {
		return false, fmt.Errorf("list component types: %w", transportError("list component types", err))
	}
	for _, s := range summaries {
		if s.ID == id {
			logger.Debug("Component type already exists, skipping creation")
			return false, nil
		}
	}

	logger.Info("Creating component type...")
	err = r.Service.CreateComponentType(ctx, ComponentTypeRequest{
		WorkspaceID:         workspaceID,
		ID:                  id,
		PropertyDefinitions: PropertiesSchema(),
	})
	switch {
	case errors.Is(err, ErrAlreadyExists):
		// Lost a race with another creator; it still has to become active.
		logger.Info("Component type was created concurrently")
	case err != nil:
		return false, fmt.Errorf("create component type %v: %w", id, transportError("create component type", err))
	default:
		created = true
		r.created.Add(1)
		componentTypesCreated.Add(ctx, 1)
	}

	err = r.Waiter.Await(ctx, "component type "+id, func(ctx context.Context) (Status, error) {
		return r.Service.GetComponentType(ctx, workspaceID, id)
	})
	if err != nil {
		return created, fmt.Errorf("await component type %v: %w", id, err)
	}
	return created, nil
}
