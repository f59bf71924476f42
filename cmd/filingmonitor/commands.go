package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"FilingMonitor/internal/app"
	"FilingMonitor/internal/config"
	"FilingMonitor/internal/logging"
	"FilingMonitor/internal/usecase"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "filingmonitor",
		Short: "Acquire regulatory filings and extract their documents",
		Long: `filingmonitor discovers new filings on the regulator's document site,
downloads their documents, extracts text and hands the result to the
analysis service. Every stage can be run on its own.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config (default $FILING_MONITOR_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging level")

	root.AddCommand(
		stageCmd(opts, "acquire", "Discover and record new filings", func(ctx context.Context, a *app.Application) (fmt.Stringer, error) {
			return a.Acquire(ctx)
		}),
		stageCmd(opts, "fetch", "Download documents of pending filings", func(ctx context.Context, a *app.Application) (fmt.Stringer, error) {
			return a.Fetch(ctx)
		}),
		stageCmd(opts, "extract", "Extract text from downloaded documents", func(ctx context.Context, a *app.Application) (fmt.Stringer, error) {
			return a.Extract(ctx)
		}),
		stageCmd(opts, "analyze", "Hand extracted filings to the analysis service", func(ctx context.Context, a *app.Application) (fmt.Stringer, error) {
			return a.Analyze(ctx)
		}),
		runCmd(opts),
	)
	return root
}

func (o *rootOptions) open() (*app.Application, error) {
	cfg := config.Load()
	if o.configPath != "" {
		cfg = config.LoadFile(o.configPath)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return app.New(cfg, logging.New(cfg.Logging))
}

func stageCmd(opts *rootOptions, name, short string, run func(context.Context, *app.Application) (fmt.Stringer, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := opts.open()
			if err != nil {
				return err
			}
			defer application.Close()

			result, err := run(cmd.Context(), application)
			if result != nil {
				cmd.Printf("%s: %s\n", name, result)
			}
			if err != nil {
				return fmt.Errorf("%s failed: %w", name, err)
			}
			return nil
		},
	}
}

func runCmd(opts *rootOptions) *cobra.Command {
	var every time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage in order",
		Long: `Runs acquire, fetch, extract and analyze once. With --every the
pipeline repeats at that interval until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := opts.open()
			if err != nil {
				return err
			}
			defer application.Close()

			if every > 0 {
				return application.Schedule(cmd.Context(), every, func(res usecase.PipelineResult, err error) {
					printPipeline(cmd, res, err)
				})
			}

			res, err := application.Run(cmd.Context())
			printPipeline(cmd, res, err)
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&every, "every", 0, "repeat the pipeline at this interval")
	return cmd
}

func printPipeline(cmd *cobra.Command, res usecase.PipelineResult, err error) {
	cmd.Printf("acquire: %s\n", res.Acquire)
	cmd.Printf("fetch: %s\n", res.Fetch)
	cmd.Printf("extract: %s\n", res.Extract)
	cmd.Printf("analyze: %s\n", res.Analysis)
	if err != nil {
		cmd.PrintErrf("errors: %v\n", err)
	}
}
