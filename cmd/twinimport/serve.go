package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/danielorbach/go-component"
	"github.com/spf13/cobra"
	"gocloud.dev/pubsub"
	_ "gocloud.dev/pubsub/awssnssqs"
	_ "gocloud.dev/pubsub/mempubsub"

	"github.com/go-digitaltwin/twinsync"
)

func newServeCommand(f *flags) *cobra.Command {
	var subscription string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run import jobs received from a pubsub subscription",
		Long: "serve receives JSON import jobs from a gocloud pubsub subscription (e.g.\n" +
			"awssqs://sqs.us-east-2.amazonaws.com/123456789012/import-jobs) and runs them one\n" +
			"at a time, until interrupted. A job is either the bare job object or an event\n" +
			"envelope carrying it in its \"body\" field:\n\n" +
			`  {"outputBucket": "...", "outputPath": "...", "workspaceId": "...", "componentTypeId": "..."}`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := f.setup(cmd)
			if err != nil {
				return err
			}
			return serve(ctx, subscription, *f)
		},
	}
	cmd.Flags().StringVar(&subscription, "subscription", "", "gocloud pubsub URL of the job subscription")
	_ = cmd.MarkFlagRequired("subscription")
	return cmd
}

func serve(ctx context.Context, url string, f flags) error {
	logger := component.Logger(ctx)

	b, err := openBackend(ctx, f)
	if err != nil {
		return err
	}
	defer b.Close(ctx)

	sub, err := pubsub.OpenSubscription(ctx, url)
	if err != nil {
		return fmt.Errorf("open subscription: %w", err)
	}
	defer func() {
		if err := sub.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("Failed to shut down subscription", slog.Any("error", err))
		}
	}()

	logger.Info("Serving import jobs...", slog.String("subscription", url), slog.String("backend", f.backend))
	component.RunProc(twinsync.ImportJobs(sub, b.importer(f.options())))
	return nil
}
