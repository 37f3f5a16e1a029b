package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"featureflow/internal/feature"
	"featureflow/internal/progress"
	"featureflow/internal/services"
	"featureflow/internal/stage"
)

func newFeatureCommand(ctx *commandContext) *cobra.Command {
	featureCmd := &cobra.Command{
		Use:   "feature",
		Short: "Create and move individual features",
	}
	featureCmd.AddCommand(
		newFeatureCreateCommand(ctx),
		newFeatureAdvanceCommand(ctx),
		newFeatureRefineCommand(ctx),
		newFeatureResetCommand(ctx),
		newFeatureBlockCommand(ctx),
		newFeatureValidateCommand(ctx),
		newFeatureAutoCommand(ctx),
		newFeatureShowCommand(ctx),
		newFeatureListCommand(ctx),
	)
	return featureCmd
}

func newFeatureCreateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Register a feature and generate its requirements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				state, err := a.machine.Create(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created %s at %s\n", state.Name, state.Stage.Label())
				printArtifacts(out, state.ActiveArtifacts(state.Stage))
				if state.LastValidation != nil && !state.LastValidation.Pass {
					fmt.Fprintln(out, "Requirements do not pass the gate yet:")
					printIssues(out, state.LastValidation.Issues)
				}
				return nil
			})
		},
	}
}

func newFeatureAdvanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "advance <name>",
		Short: "Validate the current stage and move to the next one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				tr, err := a.machine.Advance(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printTransition(cmd.OutOrStdout(), tr)
			})
		},
	}
}

func newFeatureRefineCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refine <name>",
		Short: "Regenerate the current stage's artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				tr, err := a.machine.Refine(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Refined %s at %s\n", tr.Feature, tr.To.Label())
				printArtifacts(out, tr.ArtifactRefs)
				if !tr.Validation.Pass {
					printIssues(out, tr.Validation.Issues)
					return fmt.Errorf("%s: refined %s artifacts fail validation", tr.Feature, tr.To)
				}
				return nil
			})
		},
	}
}

func newFeatureResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <name> <stage>",
		Short: "Move a feature back to an earlier stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, ok := stage.Parse(args[1])
			if !ok {
				return fmt.Errorf("%w: %q", feature.ErrInvalidStage, args[1])
			}
			return ctx.withApp(func(a *app) error {
				state, err := a.machine.Reset(cmd.Context(), args[0], target)
				if err != nil {
					return err
				}
				last := state.History[len(state.History)-1]
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %s to %s (%d records superseded)\n", state.Name, state.Stage.Label(), len(last.Supersedes))
				return nil
			})
		},
	}
}

func newFeatureBlockCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "block <name>",
		Short: "Block a feature until it is reset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				state, err := a.machine.Block(cmd.Context(), args[0], strings.TrimSpace(reason))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Blocked %s in %s: %s\n", state.Name, state.BlockedFrom.Label(), state.BlockReason)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the feature is blocked")
	return cmd
}

func newFeatureValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <name>",
		Short: "Run the gate over the current stage without changing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				result, err := a.machine.Validate(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s: %s\n", result.Stage.Label(), gateLabel(&result, shouldColorize(out)))
				printIssues(out, result.Issues)
				if !result.Pass {
					return fmt.Errorf("%s: %s", args[0], result.Summary())
				}
				return nil
			})
		},
	}
}

func newFeatureAutoCommand(ctx *commandContext) *cobra.Command {
	var until string
	cmd := &cobra.Command{
		Use:   "auto <name>",
		Short: "Advance repeatedly until a stage is reached or a gate fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := stage.Complete
			if strings.TrimSpace(until) != "" {
				parsed, ok := stage.Parse(until)
				if !ok {
					return fmt.Errorf("%w: %q", feature.ErrInvalidStage, until)
				}
				target = parsed
			}
			return ctx.withApp(func(a *app) error {
				runCtx := services.WithStopSignal(context.WithoutCancel(cmd.Context()), cmd.Context().Done())

				res, err := a.machine.AutoAdvance(runCtx, args[0], target)
				out := cmd.OutOrStdout()
				for _, tr := range res.Transitions {
					if tr.Advanced {
						fmt.Fprintf(out, "%s → %s\n", tr.From.Label(), tr.To.Label())
					}
				}
				if err != nil {
					return err
				}
				if last, ok := res.Last(); ok && !last.Advanced {
					printIssues(out, last.Validation.Issues)
					return fmt.Errorf("%s: stopped at %s, gate failed", args[0], res.Final)
				}
				fmt.Fprintf(out, "%s is at %s\n", args[0], res.Final.Label())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&until, "until", "", "Stop once this stage is reached (default complete)")
	return cmd
}

func newFeatureShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a feature's stage and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				state, err := a.machine.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, state)
				}
				out := cmd.OutOrStdout()
				color := shouldColorize(out)
				fmt.Fprintf(out, "Feature: %s\n", state.Name)
				fmt.Fprintf(out, "Stage:   %s\n", colorize(state.Stage.Label(), stageColor(state.Stage), color))
				if state.Blocked() {
					fmt.Fprintf(out, "Blocked: in %s: %s\n", state.BlockedFrom.Label(), state.BlockReason)
				}
				fmt.Fprintf(out, "Gate:    %s\n", gateLabel(state.LastValidation, color))
				fmt.Fprintln(out, renderHistory(state))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the stored record as JSON")
	return cmd
}

func newFeatureListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				states, err := a.machine.List(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, states)
				}
				out := cmd.OutOrStdout()
				if len(states) == 0 {
					fmt.Fprintln(out, "No features")
					return nil
				}
				color := shouldColorize(out)
				rows := make([][]string, 0, len(states))
				for _, st := range states {
					rows = append(rows, []string{
						st.Name,
						colorize(st.Stage.Label(), stageColor(st.Stage), color),
						gateLabel(st.LastValidation, color),
						strconv.Itoa(len(st.ActiveRecords())),
						formatTime(st.UpdatedAt),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"Feature", "Stage", "Gate", "Active", "Updated"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

func printTransition(out io.Writer, tr feature.Transition) error {
	if !tr.Advanced {
		fmt.Fprintf(out, "%s stays at %s: gate failed\n", tr.Feature, tr.From.Label())
		printIssues(out, tr.Validation.Issues)
		return fmt.Errorf("%s: %s", tr.Feature, tr.Validation.Summary())
	}
	fmt.Fprintf(out, "Advanced %s: %s → %s\n", tr.Feature, tr.From.Label(), tr.To.Label())
	printArtifacts(out, tr.ArtifactRefs)
	return nil
}

func renderHistory(state *progress.FeatureState) string {
	superseded := state.SupersededSeqs()
	rows := make([][]string, 0, len(state.History))
	for _, rec := range state.History {
		status := "active"
		if _, ok := superseded[rec.Seq]; ok {
			status = "superseded"
		} else if rec.Kind != progress.KindEnter && rec.Kind != progress.KindRefine {
			status = "-"
		}
		detail := strings.Join(rec.ArtifactRefs, ", ")
		if detail == "" {
			detail = rec.Note
		}
		rows = append(rows, []string{
			strconv.Itoa(rec.Seq),
			rec.Stage.Label(),
			string(rec.Kind),
			formatTime(rec.EnteredAt),
			status,
			detail,
		})
	}
	return renderTable([]string{"#", "Stage", "Kind", "At", "Status", "Artifacts"}, rows,
		[]columnAlignment{alignRight})
}
