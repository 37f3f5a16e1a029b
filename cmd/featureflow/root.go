package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	root := &cobra.Command{
		Use:   "featureflow",
		Short: "Move features through requirements, design, planning, and building",
		Long: `featureflow drives features through a fixed sequence of stages. Every
stage transition is checked by a validation gate and recorded in a durable
progress store, and batch operations fan out across features in parallel.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
	}
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	root.AddCommand(
		newFeatureCommand(ctx),
		newRunCommand(ctx),
		newConfigCommand(ctx),
		newDoctorCommand(ctx),
	)
	return root
}
