package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"featureflow/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, the generator, and the progress store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			results = append(results, preflight.CheckStore(cmd.Context(), cfg))

			out := cmd.OutOrStdout()
			color := shouldColorize(out)
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := colorize("ok", ansiGreen, color)
				if !r.Passed {
					status = colorize("fail", ansiRed, color)
				}
				rows = append(rows, []string{r.Name, status, r.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
			return preflight.Error(results)
		},
	}
}
