package main

import (
	"os"
	"time"

	"github.com/fwojciec/relay"
	bt "github.com/fwojciec/relay/bubbletea"
	"github.com/fwojciec/relay/jsonl"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newWatchCmd(v *viper.Viper) *cobra.Command {
	var (
		channel  string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the transcript log in a terminal viewer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(v, cmd, keyTranscriptLog); err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			path := existingPath(jsonl.Candidates(cfg.TranscriptLog, jsonl.TranscriptFile))
			follower := jsonl.NewFollower(path)
			m := bt.New(follower.Poll, relay.DefaultTheme(),
				bt.WithChannel(channel),
				bt.WithInterval(interval),
			)
			return bt.Run(cmd.Context(), m)
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "Only show this channel")
	cmd.Flags().DurationVar(&interval, "interval", bt.DefaultInterval, "Poll interval")
	cmd.Flags().String("transcript-log", "", "Transcript log path (default: first existing default location)")
	return cmd
}

// existingPath returns the first candidate that exists, or the first
// candidate when none does.
func existingPath(candidates []string) string {
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[0]
}
