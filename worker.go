package twinsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gocloud.dev/pubsub"
)

// ImportJobs returns a component.Proc that receives JSON-encoded ImportJob
// messages from sub and runs each with imp, one at a time.
//
// A message is acknowledged once its job completes. A failed job is logged and
// negatively acknowledged for redelivery when the driver supports it. Messages
// that do not decode into a valid job are logged and acknowledged, otherwise
// they would be redelivered forever.
func ImportJobs(sub *pubsub.Subscription, imp *Importer) component.Proc {
	return func(l *component.L) {
		for l.Continue() {
			msg, err := sub.Receive(l.GraceContext())
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					// we're shutting down
					return
				}
				l.Fatal(fmt.Errorf("receive: %w", err))
			}
			settle(msg, handleJob(l.GraceContext(), imp, msg))
		}
	}
}

// settle acknowledges msg unless err asks for its redelivery.
func settle(msg *pubsub.Message, err error) {
	var failed *jobFailedError
	if errors.As(err, &failed) && msg.Nackable() {
		msg.Nack()
		return
	}
	msg.Ack()
}

// jobFailedError marks a decoded job whose import failed, as opposed to a
// message that never carried a valid job.
type jobFailedError struct{ err error }

func (e *jobFailedError) Error() string { return e.err.Error() }
func (e *jobFailedError) Unwrap() error { return e.err }

// handleJob decodes the job carried by msg and runs it. It logs the outcome
// and reports a *jobFailedError when the import itself failed.
func handleJob(ctx context.Context, imp *Importer, msg *pubsub.Message) error {
	ctx, span := tracer.Start(ctx, "handleJob", trace.WithAttributes(
		attribute.String("msg.id", msg.LoggableID),
	))
	defer span.End()
	logger := component.Logger(ctx)

	job, err := DecodeJob(msg.Body)
	if err != nil {
		logger.Warn("Dropping malformed import job message", slog.Any("error", err))
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	report, err := imp.Run(ctx, job)
	if err != nil {
		logger.Error("Import job failed",
			slog.String("workspace.id", job.WorkspaceID),
			slog.Any("error", err),
		)
		span.SetStatus(codes.Error, err.Error())
		return &jobFailedError{err: err}
	}
	logger.Info("Import job done",
		slog.String("run.id", report.RunID),
		slog.String("workspace.id", report.WorkspaceID),
		slog.Int("records", report.Records),
		slog.Int("created", report.Entities.Created),
		slog.Int("skipped", report.Entities.Skipped),
		slog.Int("revisited", report.Entities.Revisited),
		slog.Duration("elapsed", report.Elapsed),
	)
	return nil
}
