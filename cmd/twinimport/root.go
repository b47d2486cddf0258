package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/danielorbach/go-component"
	"github.com/spf13/cobra"

	"github.com/go-digitaltwin/twinsync"
)

// flags holds the command-line options shared by all commands.
type flags struct {
	job twinsync.ImportJob

	backend       string
	endpoint      string
	region        string
	neo4jURI      string
	neo4jDatabase string
	bucketDir     string

	activationTimeout time.Duration
	parallelism       int
	logLevel          string
}

// NewRootCommand returns the twinimport command, which runs a single import
// job described by its flags.
func NewRootCommand() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "twinimport",
		Short: "Import an exported entity graph into a digital-twin workspace",
		Long: "twinimport reads an exported entity document from a bucket and creates its\n" +
			"entities in a digital-twin workspace, parents before children. It creates the\n" +
			"workspace and its component type when missing. Entities that already exist are\n" +
			"left untouched, so an interrupted import can simply be run again.",
		Example:       "  twinimport -b exports -p plant/entities.json -w plant -c com.example.attributes",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := f.setup(cmd)
			if err != nil {
				return err
			}
			return runImport(ctx, cmd.OutOrStdout(), f)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	persistent := cmd.PersistentFlags()
	persistent.StringVar(&f.backend, "backend", backendTwinMaker, "Digital-twin service backend. One of: (twinmaker | neo4j | memory)")
	persistent.StringVar(&f.endpoint, "endpoint", "", "Override the AWS endpoint (default $AWS_ENDPOINT)")
	persistent.StringVar(&f.region, "region", "", "Override the AWS region")
	persistent.StringVar(&f.neo4jURI, "neo4j-uri", "neo4j://localhost:7687", "Bolt URI of the neo4j backend")
	persistent.StringVar(&f.neo4jDatabase, "neo4j-database", "neo4j", "Database of the neo4j backend")
	persistent.StringVar(&f.bucketDir, "bucket-dir", "", "Directory holding workspace buckets of the neo4j and memory backends (default: a temporary directory)")
	persistent.DurationVar(&f.activationTimeout, "activation-timeout", twinsync.DefaultActivationTimeout, "How long to wait for a created resource to become active")
	persistent.IntVar(&f.parallelism, "parallelism", 1, "How many records to resolve concurrently")
	persistent.StringVar(&f.logLevel, "log-level", "info", "Log level. One of: (debug | info | warn | error)")

	local := cmd.Flags()
	local.StringVarP(&f.job.OutputBucket, "bucket", "b", "", "Bucket holding the exported document (a name, or a gocloud URL such as file:///tmp/exports)")
	local.StringVarP(&f.job.OutputPath, "prefix", "p", "", "Key of the exported document within the bucket")
	local.StringVarP(&f.job.WorkspaceID, "workspace-id", "w", "", "Workspace to create entities in")
	local.StringVarP(&f.job.ComponentTypeID, "component-type-id", "c", "", "Component type to create all properties under")
	local.StringVarP(&f.job.RoleARN, "iottwinmaker-role-arn", "r", "", "Execution role of a new workspace (default: the caller's role)")
	for _, name := range []string{"bucket", "prefix", "workspace-id", "component-type-id"} {
		_ = cmd.MarkFlagRequired(name)
	}

	cmd.AddCommand(newServeCommand(&f))
	return cmd
}

// setup configures logging from the flags and returns a context carrying the
// configured logger.
func (f *flags) setup(cmd *cobra.Command) (context.Context, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(f.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return component.InjectLogger(cmd.Context(), logger), nil
}

func (f *flags) options() twinsync.Options {
	return twinsync.Options{
		Parallelism: f.parallelism,
		Wait:        twinsync.WaitPolicy{Timeout: f.activationTimeout},
	}
}

func runImport(ctx context.Context, out io.Writer, f flags) error {
	if err := f.job.Validate(); err != nil {
		return err
	}
	b, err := openBackend(ctx, f)
	if err != nil {
		return err
	}
	defer b.Close(ctx)

	imp := b.importer(f.options())
	report, err := imp.Run(ctx, f.job)
	if err != nil {
		return err
	}
	printReport(out, report)
	return nil
}

func printReport(w io.Writer, r twinsync.Report) {
	fmt.Fprintf(w, "Imported %d records into workspace %v in %v (run %v)\n", r.Records, r.WorkspaceID, r.Elapsed.Round(time.Millisecond), r.RunID)
	fmt.Fprintf(w, "  workspace created:       %v\n", r.WorkspaceCreated)
	fmt.Fprintf(w, "  component types created: %d\n", r.ComponentTypesCreated)
	fmt.Fprintf(w, "  entities created:        %d (%d placeholders)\n", r.Entities.Created, r.Entities.Synthesized)
	fmt.Fprintf(w, "  entities skipped:        %d\n", r.Entities.Skipped)
	fmt.Fprintf(w, "  entities revisited:      %d\n", r.Entities.Revisited)
}
