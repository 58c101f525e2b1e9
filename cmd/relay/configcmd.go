package main

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configFile is the TOML shape of Config. Durations are written as Go
// duration strings so the output can be read back as relay.toml.
type configFile struct {
	Config
	WriteTimeout string `toml:"write_timeout"`
	PingInterval string `toml:"ping_interval"`
}

func newConfigCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			data, err := toml.Marshal(configFile{
				Config:       cfg,
				WriteTimeout: cfg.WriteTimeout.String(),
				PingInterval: cfg.PingInterval.String(),
			})
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
