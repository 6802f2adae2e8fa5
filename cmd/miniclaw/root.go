package main

import (
	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags.
var version = "0.1.0"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "miniclaw",
		Short:         "MiniClaw educational sandbox assistant",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	chat := chatCmd(&configPath)
	root.AddCommand(chat)

	// Bare "miniclaw" starts the interactive chat.
	root.RunE = chat.RunE
	root.Flags().AddFlagSet(chat.Flags())

	return root
}
