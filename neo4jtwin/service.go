package neo4jtwin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielorbach/go-component"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-digitaltwin/twinsync"
)

// Service implements twinsync.Service on a Neo4j graph.
//
// Workspaces, component types and entities are stored as nodes labelled
// Workspace, ComponentType and Entity respectively. An entity is linked to
// its parent entity, or to its workspace when it is a top-level entity, with a
// CHILD_OF relationship. Component types are linked to their workspace with a
// DEFINED_IN relationship.
//
// Neo4j commits synchronously, so every resource is ACTIVE as soon as its
// creating transaction commits.
//
// Each call executes in its own managed transaction, so the driver retries
// transient failures on our behalf.
type Service struct {
	driver   neo4j.DriverWithContext // Connection to the neo4j server/cluster.
	database string                  // Target database name that identifies the specific underlying neo4j graph.
}

// NewService returns a Service that stores its graph in the given database. Call
// BootstrapDatabase once beforehand.
func NewService(driver neo4j.DriverWithContext, database string) *Service {
	return &Service{driver: driver, database: database}
}

func (s *Service) ListWorkspaces(ctx context.Context) ([]twinsync.WorkspaceSummary, error) {
	ids, err := s.read(ctx, "ListWorkspaces", func(ctx context.Context, tx neo4j.ManagedTransaction) (any, error) {
		return collectIDs(ctx, tx, `
			MATCH (w:Workspace)
			RETURN w.id AS id
			ORDER BY id
		`, nil)
	})
	if err != nil {
		return nil, err
	}
	var summaries []twinsync.WorkspaceSummary
	for _, id := range ids.([]string) {
		summaries = append(summaries, twinsync.WorkspaceSummary{ID: id})
	}
	return summaries, nil
}

func (s *Service) CreateWorkspace(ctx context.Context, req twinsync.WorkspaceRequest) error {
	_, err := s.write(ctx, "CreateWorkspace", func(ctx context.Context, tx neo4j.ManagedTransaction) (any, error) {
		created, err := mergeCreated(ctx, tx, `
			MERGE (w:Workspace {id: $id})
			ON CREATE SET
				w.storageLocation = $storageLocation,
				w.roleArn = $roleArn,
				w.createdAt = datetime(),
				w._created = true
			WITH w, coalesce(w._created, false) AS created
			REMOVE w._created
			RETURN created
		`, map[string]any{
			"id":              req.ID,
			"storageLocation": req.StorageLocation,
			"roleArn":         req.RoleARN,
		})
		if err != nil {
			return nil, err
		}
		if !created {
			return nil, fmt.Errorf("workspace %v: %w", req.ID, twinsync.ErrAlreadyExists)
		}
		return nil, nil
	})
	return err
}

func (s *Service) ListComponentTypes(ctx context.Context, workspaceID string) ([]twinsync.ComponentTypeSummary, error) {
	ids, err := s.read(ctx, "ListComponentTypes", func(ctx context.Context, tx neo4j.ManagedTransaction) (any, error) {
		if err := requireWorkspace(ctx, tx, workspaceID); err != nil {
			return nil, err
		}
		return collectIDs(ctx, tx, `
			MATCH (c:ComponentType {workspaceId: $workspaceId})
			RETURN c.id AS id
			ORDER BY id
		`, map[string]any{"workspaceId": workspaceID})
	})
	if err != nil {
		return nil, err
	}
	var summaries []twinsync.ComponentTypeSummary
	for _, id := range ids.([]string) {
		summaries = append(summaries, twinsync.ComponentTypeSummary{ID: id})
	}
	return summaries, nil
}

func (s *Service) CreateComponentType(ctx context.Context, req twinsync.ComponentTypeRequest) error {
	definitions, err := json.Marshal(req.PropertyDefinitions)
	if err != nil {
		return fmt.Errorf("encode property definitions: %w", err)
	}
	_, err = s.write(ctx, "CreateComponentType", func(ctx context.Context, tx neo4j.ManagedTransaction) (any, error) {
		if err := requireWorkspace(ctx, tx, req.WorkspaceID); err != nil {
			return nil, err
		}
		created, err := mergeCreated(ctx, tx, `
			MATCH (w:Workspace {id: $workspaceId})
			MERGE (c:ComponentType {workspaceId: $workspaceId, id: $id})
			ON CREATE SET
				c.propertyDefinitions = $propertyDefinitions,
				c.state = $state,
				c._created = true
			MERGE (c)-[:DEFINED_IN]->(w)
			WITH c, coalesce(c._created, false) AS created
			REMOVE c._created
			RETURN created
		`, map[string]any{
			"workspaceId":         req.WorkspaceID,
			"id":                  req.ID,
			"propertyDefinitions": string(definitions),
			"state":               string(twinsync.StateActive),
		})
		if err != nil {
			return nil, err
		}
		if !created {
			return nil, fmt.Errorf("component type %v: %w", req.ID, twinsync.ErrAlreadyExists)
		}
		return nil, nil
	})
	return err
}

func (s *Service) GetComponentType(ctx context.Context, workspaceID, id string) (twinsync.Status, error) {
	return s.status(ctx, "GetComponentType", `
		MATCH (c:ComponentType {workspaceId: $workspaceId, id: $id})
		RETURN c.state AS state
	`, workspaceID, id, "component type")
}

func (s *Service) GetEntity(ctx context.Context, workspaceID, id string) (twinsync.Status, error) {
	return s.status(ctx, "GetEntity", `
		MATCH (e:Entity {workspaceId: $workspaceId, id: $id})
		RETURN e.state AS state
	`, workspaceID, id, "entity")
}

// CreateEntity links the new entity to its parent, which must exist. Entities
// whose parent is twinsync.RootEntityID are linked to the workspace itself.
func (s *Service) CreateEntity(ctx context.Context, req twinsync.EntityRequest) error {
	components, err := json.Marshal(req.Components)
	if err != nil {
		return fmt.Errorf("encode components: %w", err)
	}
	_, err = s.write(ctx, "CreateEntity", func(ctx context.Context, tx neo4j.ManagedTransaction) (any, error) {
		if err := requireWorkspace(ctx, tx, req.WorkspaceID); err != nil {
			return nil, err
		}
		// An entity attaches either to another entity or to the workspace itself.
		parentMatch := `MATCH (p:Entity {workspaceId: $workspaceId, id: $parentId})`
		if req.ParentEntityID == twinsync.RootEntityID {
			parentMatch = `MATCH (p:Workspace {id: $workspaceId})`
		}
		result, err := tx.Run(ctx, parentMatch+`
			MERGE (e:Entity {workspaceId: $workspaceId, id: $id})
			ON CREATE SET
				e.name = $name,
				e.description = $description,
				e.components = $components,
				e.state = $state,
				e._created = true
			WITH p, e, coalesce(e._created, false) AS created
			FOREACH (_ IN CASE WHEN created THEN [1] ELSE [] END |
				MERGE (e)-[:CHILD_OF]->(p)
			)
			REMOVE e._created
			RETURN created
		`, map[string]any{
			"workspaceId": req.WorkspaceID,
			"id":          req.EntityID,
			"parentId":    req.ParentEntityID,
			"name":        req.EntityName,
			"description": req.Description,
			"components":  string(components),
			"state":       string(twinsync.StateActive),
		})
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			// The parent MATCH found nothing.
			return nil, fmt.Errorf("entity %v: parent %v does not exist", req.EntityID, req.ParentEntityID)
		}
		created, err := getRecordProperty[bool](records[0], "created")
		if err != nil {
			return nil, err
		}
		if !created {
			return nil, fmt.Errorf("entity %v: %w", req.EntityID, twinsync.ErrAlreadyExists)
		}
		return nil, nil
	})
	return err
}

// Entity reads back an entity as it was created. Its ParentEntityID is
// twinsync.RootEntityID when it is a top-level entity.
func (s *Service) Entity(ctx context.Context, workspaceID, id string) (twinsync.EntityRequest, error) {
	v, err := s.read(ctx, "Entity", func(ctx context.Context, tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (e:Entity {workspaceId: $workspaceId, id: $id})-[:CHILD_OF]->(p)
			RETURN
				e.name AS name,
				e.description AS description,
				e.components AS components,
				CASE WHEN p:Workspace THEN $root ELSE p.id END AS parentId
		`, map[string]any{"workspaceId": workspaceID, "id": id, "root": twinsync.RootEntityID})
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("entity %v: %w", id, twinsync.ErrNotFound)
		}
		return decodeEntity(workspaceID, id, records[0])
	})
	if err != nil {
		return twinsync.EntityRequest{}, err
	}
	return v.(twinsync.EntityRequest), nil
}

func decodeEntity(workspaceID, id string, record *neo4j.Record) (req twinsync.EntityRequest, err error) {
	req = twinsync.EntityRequest{WorkspaceID: workspaceID, EntityID: id}
	if req.EntityName, err = getRecordProperty[string](record, "name"); err != nil {
		return req, fmt.Errorf("name: %w", err)
	}
	if req.Description, err = getRecordProperty[string](record, "description"); err != nil {
		return req, fmt.Errorf("description: %w", err)
	}
	if req.ParentEntityID, err = getRecordProperty[string](record, "parentId"); err != nil {
		return req, fmt.Errorf("parentId: %w", err)
	}
	components, err := getRecordProperty[string](record, "components")
	if err != nil {
		return req, fmt.Errorf("components: %w", err)
	}
	if err := json.Unmarshal([]byte(components), &req.Components); err != nil {
		return req, fmt.Errorf("decode components: %w", err)
	}
	return req, nil
}

// status reads the state of a single node. The query must return a single
// "state" column, or no rows when the node does not exist.
func (s *Service) status(ctx context.Context, op, query, workspaceID, id, kind string) (twinsync.Status, error) {
	v, err := s.read(ctx, op, func(ctx context.Context, tx neo4j.ManagedTransaction) (any, error) {
		if err := requireWorkspace(ctx, tx, workspaceID); err != nil {
			return nil, err
		}
		result, err := tx.Run(ctx, query, map[string]any{"workspaceId": workspaceID, "id": id})
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("%v %v: %w", kind, id, twinsync.ErrNotFound)
		}
		return getRecordProperty[string](records[0], "state")
	})
	if err != nil {
		return twinsync.Status{}, err
	}
	return twinsync.Status{State: twinsync.State(v.(string))}, nil
}

// A work function runs queries within a managed transaction.
type work func(ctx context.Context, tx neo4j.ManagedTransaction) (any, error)

func (s *Service) read(ctx context.Context, op string, w work) (any, error) {
	return s.execute(ctx, op, neo4j.AccessModeRead, w)
}

func (s *Service) write(ctx context.Context, op string, w work) (any, error) {
	return s.execute(ctx, op, neo4j.AccessModeWrite, w)
}

// execute opens a new session for every call, and runs w in a managed
// transaction of the given access mode. Errors that w classifies with a
// twinsync sentinel are returned as is; a constraint violation (caused by a
// concurrent creation of the same node) is reported as
// twinsync.ErrAlreadyExists.
func (s *Service) execute(ctx context.Context, op string, mode neo4j.AccessMode, w work) (v any, err error) {
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("neo4j.database", s.database),
	))
	defer span.End()
	logger := component.Logger(ctx).With("neo4j.database", s.database)

	defer func(start time.Time) {
		measureTransaction(ctx, op, err == nil, time.Since(start))
	}(time.Now())

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   mode,
	})
	defer func() {
		if err := sess.Close(ctx); err != nil {
			logger.Error("Failed to close session", "error", err, "op", op)
		}
	}()

	fn := func(tx neo4j.ManagedTransaction) (any, error) { return w(ctx, tx) }
	if mode == neo4j.AccessModeRead {
		v, err = sess.ExecuteRead(ctx, fn)
	} else {
		v, err = sess.ExecuteWrite(ctx, fn)
	}
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, twinsync.ErrNotFound), errors.Is(err, twinsync.ErrAlreadyExists):
		return nil, err
	case isConstraintViolation(err):
		return nil, fmt.Errorf("%v: %w: %v", op, twinsync.ErrAlreadyExists, err)
	case errors.Is(err, errPropertyNotFound) || errors.As(err, &unexpectedPropertyTypeError{}):
		logger.Error("A Cypher query was modified without care", "error", err)
		panic(fmt.Errorf("seek developer attention: neo4j cypher query: %w", err))
	default:
		return nil, fmt.Errorf("neo4j execute: %w", err)
	}
}

func isConstraintViolation(err error) bool {
	var neo4jErr *neo4j.Neo4jError
	return errors.As(err, &neo4jErr) && neo4jErr.Code == "Neo.ClientError.Schema.ConstraintValidationFailed"
}

func requireWorkspace(ctx context.Context, tx neo4j.ManagedTransaction, workspaceID string) error {
	result, err := tx.Run(ctx, `
		MATCH (w:Workspace {id: $id})
		RETURN count(w) AS count
	`, map[string]any{"id": workspaceID})
	if err != nil {
		return err
	}
	record, err := result.Single(ctx)
	if err != nil {
		return fmt.Errorf("query single result: %w", err)
	}
	count, err := getRecordProperty[int64](record, "count")
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("workspace %v: %w", workspaceID, twinsync.ErrNotFound)
	}
	return nil
}

// mergeCreated runs a MERGE query returning a single "created" column.
func mergeCreated(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) (bool, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return false, err
	}
	record, err := result.Single(ctx)
	if err != nil {
		return false, fmt.Errorf("query single result: %w", err)
	}
	return getRecordProperty[bool](record, "created")
}

// collectIDs runs a query returning a single "id" column.
func collectIDs(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]string, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		id, err := getRecordProperty[string](r, "id")
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
