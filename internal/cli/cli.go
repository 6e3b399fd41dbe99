package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vk/phylogrid/internal/app"
	"github.com/vk/phylogrid/internal/executor"
)

// New builds the root command. Command output goes to outW and logs to
// logW.
func New(outW, logW io.Writer) *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "phylogrid [command]",
		Short: "Build phylogenetic analyses for every configured region",
		Long: `phylogrid resolves requested outputs into a graph of jobs using a workflow of
wildcard rule templates and a YAML build configuration, then runs the jobs
with bounded concurrency and thread and memory budgets. Jobs whose outputs
are newer than their inputs are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}
	cmd.SetOut(outW)
	cmd.SetErr(outW)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})
	opts.register(cmd.PersistentFlags())

	cmd.AddCommand(newRunCommand(opts, outW, logW))
	cmd.AddCommand(newPlanCommand(opts, outW, logW))
	return cmd
}

// Execute runs the command line args against a fresh root command.
func Execute(ctx context.Context, args []string, outW, logW io.Writer) error {
	cmd := New(outW, logW)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)

	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// Cobra reports unknown commands and argument errors as plain errors.
		return usageError(err)
	}
	return err
}

func newRunCommand(global *globalOptions, outW, logW io.Writer) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [target...]",
		Short: "Resolve targets and execute the job graph",
		Long: `Resolve the requested targets, or the workflow's default targets, into a job
graph and execute it. A target may carry a {region} placeholder, which is
expanded over every configured region.`,
		Example: `  phylogrid run -c builds.yaml
  phylogrid run -c builds.yaml -j 8 --memory-mb 16000 'auspice/ncov_{region}.json'
  phylogrid run -c builds.yaml --dry-run results/swiss/tree.nwk`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.config(args)
			if err != nil {
				return usageError(err)
			}
			opts.apply(&cfg)

			a, err := newApp(logW, cfg)
			if err != nil {
				return err
			}
			if opts.dryRun {
				return plan(cmd.Context(), a, outW)
			}

			rep, err := a.Run(cmd.Context())
			if rep != nil {
				writeSummary(outW, rep)
			}
			if err != nil {
				return &ExitError{Code: ExitFailure, Message: err.Error()}
			}
			return nil
		},
	}
	opts.register(cmd.Flags())
	return cmd
}

func newPlanCommand(global *globalOptions, outW, logW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "plan [target...]",
		Short: "Print the job graph without executing it",
		Long: `Resolve the requested targets and print every job in execution order with its
binding, dependencies and resource declarations. Jobs that depend on a
checkpoint's output are only known once it has run and are not listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.config(args)
			if err != nil {
				return usageError(err)
			}
			a, err := newApp(logW, cfg)
			if err != nil {
				return err
			}
			return plan(cmd.Context(), a, outW)
		},
	}
}

func newApp(logW io.Writer, raw app.Config) (*app.App, error) {
	cfg, err := app.NewConfig(raw)
	if err != nil {
		return nil, usageError(err)
	}
	a, err := app.NewApp(logW, cfg)
	if err != nil {
		return nil, &ExitError{Code: ExitFailure, Message: err.Error()}
	}
	return a, nil
}

func plan(ctx context.Context, a *app.App, outW io.Writer) error {
	g, err := a.Plan(ctx)
	if err != nil {
		return &ExitError{Code: ExitFailure, Message: err.Error()}
	}
	return app.WritePlan(outW, g)
}

func writeSummary(w io.Writer, rep *executor.Report) {
	fmt.Fprintf(w, "%d succeeded (%d up to date), %d failed, %d cancelled\n",
		len(rep.Succeeded), len(rep.UpToDate), len(rep.Failed), len(rep.Cancelled))
}
