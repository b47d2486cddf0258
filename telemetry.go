package twinsync

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/go-digitaltwin/twinsync")
var meter = otel.Meter("github.com/go-digitaltwin/twinsync")

// ---- resolver.go & registry.go ----

var (
	// entitiesCreated counts the entities created in the remote service,
	// including placeholders for parents missing from the input.
	entitiesCreated metric.Int64Counter
	// entitiesSkipped counts the records whose entity existed before the import
	// job started.
	entitiesSkipped metric.Int64Counter
	// componentTypesCreated counts the component types created in the remote
	// service.
	componentTypesCreated metric.Int64Counter
)

// ---- waiter.go ----

var (
	// activationDuration measures how long it took a resource to become active,
	// from the first poll until the poll that observed the ACTIVE state.
	activationDuration metric.Float64Histogram
	// activationFailures counts waits that ended without the resource becoming
	// active (timeouts, failed provisioning, poll errors).
	activationFailures metric.Int64Counter
)

// ---- importer.go ----

const (
	// workspaceIDKey is the attribute key that associates import records with
	// the target workspace.
	workspaceIDKey = "workspace.id"
)

var (
	// importDuration measures the duration of a complete import job.
	//
	// Each record is associated with the workspaceIDKey.
	importDuration metric.Float64Histogram
	// importFailures counts import jobs that failed.
	//
	// Each record is associated with the workspaceIDKey.
	importFailures metric.Int64Counter
)

func init() {
	var err error
	entitiesCreated, err = meter.Int64Counter(
		"twinsync.entities.created",
		metric.WithDescription("The number of entities created in the remote service."),
	)
	if err != nil {
		panic("twinsync: failed to init 'twinsync.entities.created' instrument")
	}

	entitiesSkipped, err = meter.Int64Counter(
		"twinsync.entities.skipped",
		metric.WithDescription("The number of records whose entity existed in the remote service before the import job."),
	)
	if err != nil {
		panic("twinsync: failed to init 'twinsync.entities.skipped' instrument")
	}

	componentTypesCreated, err = meter.Int64Counter(
		"twinsync.componentTypes.created",
		metric.WithDescription("The number of component types created in the remote service."),
	)
	if err != nil {
		panic("twinsync: failed to init 'twinsync.componentTypes.created' instrument")
	}

	activationDuration, err = meter.Float64Histogram(
		"twinsync.activation.duration",
		metric.WithDescription("The time it took a created resource to become active."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("twinsync: failed to init 'twinsync.activation.duration' instrument")
	}

	activationFailures, err = meter.Int64Counter(
		"twinsync.activation.failures",
		metric.WithDescription("The number of resources that did not become active."),
	)
	if err != nil {
		panic("twinsync: failed to init 'twinsync.activation.failures' instrument")
	}

	importDuration, err = meter.Float64Histogram(
		"twinsync.import.duration",
		metric.WithDescription("The duration of a complete import job."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("twinsync: failed to init 'twinsync.import.duration' instrument")
	}

	importFailures, err = meter.Int64Counter(
		"twinsync.import.failures",
		metric.WithDescription("The number of import jobs that have failed."),
	)
	if err != nil {
		panic("twinsync: failed to init 'twinsync.import.failures' instrument")
	}
}

// measureActivation records the duration of a successful wait, or counts a
// failed one.
func measureActivation(ctx context.Context, succeeded bool, d time.Duration) {
	if succeeded {
		// Floating-point division for sub-millisecond precision.
		activationDuration.Record(ctx, float64(d)/float64(time.Millisecond))
	} else {
		activationFailures.Add(ctx, 1)
	}
}

// measureImport records the duration of a successful import job, or counts a
// failed one. Both are labelled with the target workspace.
//
// According to [metric] documentation, [metric.WithAttributeSet] should be used
// instead of [metric.WithAttributes] for performance optimization.
func measureImport(ctx context.Context, workspaceID string, succeeded bool, d time.Duration) {
	attrs := attribute.NewSet(attribute.String(workspaceIDKey, workspaceID))
	if succeeded {
		importDuration.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributeSet(attrs))
	} else {
		importFailures.Add(ctx, 1, metric.WithAttributeSet(attrs))
	}
}
