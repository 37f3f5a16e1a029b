package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"featureflow/internal/feature"
	"featureflow/internal/orchestrator"
	"featureflow/internal/preflight"
	"featureflow/internal/progress"
	"featureflow/internal/report"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var features []string
	var all bool
	var concurrency int
	var timeout time.Duration

	runCmd := &cobra.Command{
		Use:   "run <operation>",
		Short: "Apply one operation to many features in parallel",
		Long: "Apply one operation to many features in parallel.\n\n" +
			"Operations: create, advance, refine, validate, reset:<stage>, auto, auto:<stage>.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := feature.ParseOp(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				if err := preflight.Error(preflight.RunAll(cmd.Context(), a.cfg)); err != nil {
					return err
				}
				names := cleanNames(features)
				if all {
					states, err := a.machine.List(cmd.Context())
					if err != nil {
						return err
					}
					for _, st := range states {
						if !slices.Contains(names, st.Name) {
							names = append(names, st.Name)
						}
					}
				}
				req := progress.RunRequest{
					OperationID:      op.ID(),
					Features:         names,
					ConcurrencyLimit: concurrency,
					FeatureTimeout:   timeout,
				}

				rep, err := a.orch.Run(cmd.Context(), req, a.machine.Operation(op))
				if err != nil {
					return err
				}
				return finishRun(cmd.OutOrStdout(), rep)
			})
		},
	}
	runCmd.Flags().StringSliceVarP(&features, "features", "f", nil, "Comma-separated feature names")
	runCmd.Flags().BoolVar(&all, "all", false, "Include every known feature")
	runCmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "Maximum features in flight (default from config)")
	runCmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-feature time budget (default from config)")

	runCmd.AddCommand(newRunStatusCommand(ctx))
	runCmd.AddCommand(newRunResumeCommand(ctx))
	runCmd.AddCommand(newRunListCommand(ctx))
	return runCmd
}

func newRunStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a run's per-feature results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				rep, err := a.orch.Report(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, rep)
				}
				printRun(cmd.OutOrStdout(), rep)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func newRunResumeCommand(ctx *commandContext) *cobra.Command {
	var includeFailed bool
	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Re-execute a run's unfinished features",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				stored, err := a.store.LoadRunReport(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				op, err := feature.ParseOp(stored.Request.OperationID)
				if err != nil {
					return err
				}

				rep, err := a.orch.Resume(cmd.Context(), args[0], a.machine.Operation(op), orchestrator.ResumeOptions{IncludeFailed: includeFailed})
				if err != nil {
					return err
				}
				return finishRun(cmd.OutOrStdout(), rep)
			})
		},
	}
	cmd.Flags().BoolVar(&includeFailed, "include-failed", false, "Also re-execute failed features")
	return cmd
}

func newRunListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				runs, err := a.orch.Runs(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, runs)
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs")
					return nil
				}
				color := shouldColorize(out)
				now := time.Now()
				rows := make([][]string, 0, len(runs))
				for _, rep := range runs {
					s := report.Summarize(rep, now)
					rows = append(rows, []string{
						s.RunID,
						s.OperationID,
						colorize(string(s.Overall), overallColor(s.Overall), color),
						fmt.Sprintf("%d/%d", s.Counts[progress.StatusSuccess], s.Total),
						strconv.Itoa(len(s.Failures)),
						formatTime(rep.StartedAt),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"Run", "Operation", "Overall", "Succeeded", "Failed", "Started"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print reports as JSON")
	return cmd
}

// finishRun prints rep and turns a non-successful run into an exit error.
func finishRun(out io.Writer, rep *progress.RunReport) error {
	printRun(out, rep)
	s := report.Summarize(rep, time.Now())
	if s.Succeeded() {
		return nil
	}
	return fmt.Errorf("run %s finished %s", s.RunID, s.Overall)
}

func printRun(out io.Writer, rep *progress.RunReport) {
	color := shouldColorize(out)
	s := report.Summarize(rep, time.Now())

	fmt.Fprintf(out, "Run %s (%s): %s\n", s.RunID, s.OperationID, colorize(string(s.Overall), overallColor(s.Overall), color))
	fmt.Fprintf(out, "Features: %d  success %d  failure %d  skipped %d  in progress %d  elapsed %s\n",
		s.Total,
		s.Counts[progress.StatusSuccess],
		s.Counts[progress.StatusFailure],
		s.Counts[progress.StatusSkipped],
		s.Counts[progress.StatusInProgress],
		s.Elapsed.Round(time.Millisecond),
	)

	rows := make([][]string, 0, len(rep.Request.Features))
	for _, name := range rep.Request.Features {
		res, ok := rep.Results[name]
		if !ok {
			continue
		}
		detail := strings.Join(res.ArtifactRefs, ", ")
		if res.Error != "" {
			detail = res.Error
		}
		rows = append(rows, []string{
			name,
			colorize(string(res.Status), featureStatusColor(res.Status), color),
			res.Stage.Label(),
			res.ErrorKind,
			detail,
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Feature", "Status", "Stage", "Kind", "Detail"}, rows, nil))

	for _, f := range s.Failures {
		for _, issue := range f.Issues {
			fmt.Fprintf(out, "  %s: %s\n", f.Feature, issue)
		}
	}
}

func cleanNames(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

