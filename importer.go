package twinsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielorbach/go-component"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Options tune an Importer. The zero value is valid.
type Options struct {
	// Parallelism bounds how many top-level records are resolved concurrently.
	// Values below 2 resolve records one at a time, in input order.
	Parallelism int
	// Wait bounds every activation wait of the job.
	Wait WaitPolicy
}

// An Importer drives import jobs: it provisions the workspace and the job's
// default component type, then resolves every record of the exported document.
type Importer struct {
	Service  Service
	Buckets  Buckets
	Identity Identity
	Source   Source
	Options  Options
}

// A Report summarises a completed import job.
type Report struct {
	RunID                 string
	WorkspaceID           string
	WorkspaceCreated      bool
	ComponentTypesCreated int
	Records               int
	Entities              ResolverStats
	Elapsed               time.Duration
}

// Run fetches the job's document from its Source, then imports it.
func (imp *Importer) Run(ctx context.Context, job ImportJob) (Report, error) {
	if err := job.Validate(); err != nil {
		return Report{}, err
	}
	if imp.Source == nil {
		return Report{}, errors.New("importer has no source")
	}
	p, err := imp.Source.Fetch(ctx, job.OutputBucket, job.OutputPath)
	if err != nil {
		return Report{}, fmt.Errorf("fetch document: %w", transportError("fetch document", err))
	}
	doc, err := ParseDocument(p)
	if err != nil {
		return Report{}, fmt.Errorf("parse %v/%v: %w", job.OutputBucket, job.OutputPath, err)
	}
	return imp.Import(ctx, job, doc)
}

// Import provisions the job's workspace and default component type, and then
// resolves every record of doc in input order (or concurrently, see
// Options.Parallelism). Ancestors are always created before their
// descendants, whatever the input order.
//
// Any failure aborts the job. Entities created before the failure remain in
// the remote service and are skipped when the job is retried.
func (imp *Importer) Import(ctx context.Context, job ImportJob, doc Document) (report Report, err error) {
	report = Report{
		RunID:       uuid.NewString(),
		WorkspaceID: job.WorkspaceID,
		Records:     len(doc.Entities),
	}
	ctx, span := tracer.Start(ctx, "Import", trace.WithAttributes(
		attribute.String("workspace.id", job.WorkspaceID),
		attribute.String("run.id", report.RunID),
		attribute.Int("records", len(doc.Entities)),
	))
	defer span.End()
	logger := component.Logger(ctx).With("run.id", report.RunID, "workspace.id", job.WorkspaceID)
	ctx = component.InjectLogger(ctx, logger) // Inject for further logs down the call-stack.

	start := time.Now()
	defer func() {
		report.Elapsed = time.Since(start)
		measureImport(ctx, job.WorkspaceID, err == nil, report.Elapsed)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	logger.Info("Starting import...", "records", len(doc.Entities))
	workspaces := Workspaces{Service: imp.Service, Buckets: imp.Buckets, Identity: imp.Identity}
	report.WorkspaceCreated, err = workspaces.Ensure(ctx, job.WorkspaceID, job.RoleARN)
	if err != nil {
		return report, fmt.Errorf("ensure workspace %v: %w", job.WorkspaceID, err)
	}

	waiter := Waiter{Policy: imp.Options.Wait}
	cache := new(Cache)
	types := &ComponentTypes{Service: imp.Service, Waiter: waiter}
	defer func() { report.ComponentTypesCreated = types.Created() }()
	if _, err := types.Ensure(ctx, cache, job.WorkspaceID, job.ComponentTypeID); err != nil {
		return report, fmt.Errorf("ensure component type %v: %w", job.ComponentTypeID, err)
	}

	resolver := NewResolver(ResolverConfig{
		Service:              imp.Service,
		ComponentTypes:       types,
		Waiter:               waiter,
		Cache:                cache,
		WorkspaceID:          job.WorkspaceID,
		DefaultComponentType: job.ComponentTypeID,
	}, doc.Entities)
	defer func() { report.Entities = resolver.Stats() }()

	resolve := func(ctx context.Context, record EntityRecord) error {
		// Every top-level record starts from its own default payload.
		components := record.Components(job.ComponentTypeID)
		if err := resolver.Resolve(ctx, record, components, false); err != nil {
			return fmt.Errorf("resolve entity %v: %w", record.EntityID, err)
		}
		return nil
	}

	if imp.Options.Parallelism < 2 {
		for _, record := range doc.Entities {
			if err := resolve(ctx, record); err != nil {
				return report, err
			}
		}
	} else {
		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(imp.Options.Parallelism)
		for _, record := range doc.Entities {
			g.Go(func() error {
				return resolve(ctx, record)
			})
		}
		if err := g.Wait(); err != nil {
			return report, err
		}
	}

	stats := resolver.Stats()
	logger.Info("Import completed",
		"created", stats.Created,
		"synthesized", stats.Synthesized,
		"skipped", stats.Skipped,
		"revisited", stats.Revisited,
		"componentTypesCreated", types.Created(),
	)
	return report, nil
}
