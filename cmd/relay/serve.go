package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/jsonl"
	"github.com/fwojciec/relay/jsonschema"
	"github.com/fwojciec/relay/sqlite"
	"github.com/fwojciec/relay/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(v, cmd,
				keyAddr, keyTranscriptLog, keyUsageLog, keySchemaDir, keySchemaGlob,
				keyAuditDB, keyMaxMessageBytes, keyWriteTimeout, keyPingInterval,
			); err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return runServe(cmd, cfg)
		},
	}

	transport := websocket.DefaultConfig()
	f := cmd.Flags()
	f.String("addr", defaultAddr, "Listen address")
	f.String("transcript-log", "", "Transcript log path, tried before the default locations")
	f.String("usage-log", "", "Token usage log path, tried before the default locations")
	f.String("schema-dir", "", "Directory with extra <command>.json schemas")
	f.String("schema-glob", jsonschema.DefaultPattern, "Glob selecting schema files in --schema-dir")
	f.String("audit-db", "", "Also mirror records into this SQLite database")
	f.Int64("max-message-bytes", transport.MaxMessageBytes, "Largest accepted frame; 0 disables the limit")
	f.Duration("write-timeout", transport.WriteTimeout, "Timeout of each socket write")
	f.Duration("ping-interval", transport.PingInterval, "Keepalive ping interval; 0 disables keepalive")
	return cmd
}

func runServe(cmd *cobra.Command, cfg Config) error {
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	schemas, err := jsonschema.Load(cfg.SchemaDir, cfg.SchemaGlob)
	if err != nil {
		return err
	}
	logger.Info("schemas loaded", "commands", len(schemas.Commands()), "dir", cfg.SchemaDir)

	transcripts := relay.TranscriptLogs{
		jsonl.NewTranscriptLog(jsonl.Candidates(cfg.TranscriptLog, jsonl.TranscriptFile)...),
	}
	usage := relay.UsageLogs{
		jsonl.NewUsageLog(jsonl.Candidates(cfg.UsageLog, jsonl.UsageFile)...),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AuditDB != "" {
		store, err := sqlite.Open(ctx, cfg.AuditDB)
		if err != nil {
			return fmt.Errorf("audit db: %w", err)
		}
		defer store.Close()
		transcripts = append(transcripts, store)
		usage = append(usage, store)
		logger.Info("audit db opened", "path", cfg.AuditDB)
	}

	r := relay.New(
		relay.WithSchemas(schemas),
		relay.WithTranscriptLog(transcripts),
		relay.WithUsageLog(usage),
		relay.WithLogger(logger),
	)
	srv := websocket.NewServer(r, logger, cfg.Transport())
	return srv.ListenAndServe(ctx, cfg.Addr)
}
