package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	v := newViper()
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "relay",
		Short:         "WebSocket relay between design-tool plugins and agents",
		Long:          "relay pairs one plugin and one agent per channel, forwards frames between them, validates tool calls and records transcripts and token usage.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(v, cmd, keyLogLevel); err != nil {
				return err
			}
			return readConfigFile(v, configFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: relay.toml in . or the user config dir)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newServeCmd(v),
		newWatchCmd(v),
		newUsageCmd(v),
		newConfigCmd(v),
	)
	return rootCmd
}
