package main

import (
	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/config"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "forge-transfer",
		Short:         "Copy objects between storage providers with short-lived credentials",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("config", "", "path to a YAML configuration file")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newCopyCommand(), newPlanCommand())
	return cmd
}

// loadConfig reads the configuration named by --config, overlaid with the
// environment and the command's flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path, cmd.Flags())
}
