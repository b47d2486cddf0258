package neo4jtwin

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/go-digitaltwin/twinsync/neo4jtwin")
var meter = otel.Meter("github.com/go-digitaltwin/twinsync/neo4jtwin")

var (
	// transactionDuration measures the duration of each managed transaction,
	// retries included, labelled by the service operation and its outcome.
	transactionDuration metric.Float64Histogram
)

func init() {
	// We're initiating the metric instruments on the otel meter. Encounter an error
	// during an instrument's initialisation, triggering a panic. This scenario
	// should not occur, if it does, it is likely related to the attributes applied
	// on the instrument.
	var err error
	transactionDuration, err = meter.Float64Histogram(
		"neo4jtwin.transaction.duration",
		metric.WithDescription("The duration of a managed neo4j transaction, retries included."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		s := fmt.Sprintf("neo4jtwin: failed to init 'neo4jtwin.transaction.duration' instrument: %v", err)
		panic(s)
	}
}

func measureTransaction(ctx context.Context, op string, succeeded bool, d time.Duration) {
	attrs := attribute.NewSet(
		attribute.String("op", op),
		attribute.Bool("success", succeeded),
	)
	// Floating-point division for sub-millisecond precision.
	transactionDuration.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributeSet(attrs))
}
