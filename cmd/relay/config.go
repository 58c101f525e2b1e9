package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fwojciec/relay/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config keys. Environment variables are the upper-cased key with the
// RELAY_ prefix.
const (
	keyAddr            = "addr"
	keyLogLevel        = "log_level"
	keyTranscriptLog   = "transcript_log"
	keyUsageLog        = "usage_log"
	keySchemaDir       = "schema_dir"
	keySchemaGlob      = "schema_glob"
	keyAuditDB         = "audit_db"
	keyMaxMessageBytes = "max_message_bytes"
	keyWriteTimeout    = "write_timeout"
	keyPingInterval    = "ping_interval"
)

const (
	defaultAddr = ":3055"
	configName  = "relay"
	configType  = "toml"
)

// Config is the effective relay configuration.
type Config struct {
	Addr            string        `toml:"addr"`
	LogLevel        string        `toml:"log_level"`
	TranscriptLog   string        `toml:"transcript_log"`
	UsageLog        string        `toml:"usage_log"`
	SchemaDir       string        `toml:"schema_dir"`
	SchemaGlob      string        `toml:"schema_glob"`
	AuditDB         string        `toml:"audit_db"`
	MaxMessageBytes int64         `toml:"max_message_bytes"`
	WriteTimeout    time.Duration `toml:"-"`
	PingInterval    time.Duration `toml:"-"`
}

// Transport returns the websocket settings of c.
func (c Config) Transport() websocket.Config {
	return websocket.Config{
		MaxMessageBytes: c.MaxMessageBytes,
		WriteTimeout:    c.WriteTimeout,
		PingInterval:    c.PingInterval,
	}
}

// newViper returns a viper instance with defaults, env binding and the
// config file search path set.
func newViper() *viper.Viper {
	v := viper.New()
	transport := websocket.DefaultConfig()
	v.SetDefault(keyAddr, defaultAddr)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyTranscriptLog, "")
	v.SetDefault(keyUsageLog, "")
	v.SetDefault(keySchemaDir, "")
	v.SetDefault(keySchemaGlob, "")
	v.SetDefault(keyAuditDB, "")
	v.SetDefault(keyMaxMessageBytes, transport.MaxMessageBytes)
	v.SetDefault(keyWriteTimeout, transport.WriteTimeout)
	v.SetDefault(keyPingInterval, transport.PingInterval)

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "relay"))
	}
	return v
}

// readConfigFile reads the explicit config file, or searches for
// relay.toml. A missing searched file is not an error.
func readConfigFile(v *viper.Viper, explicit string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}

// bindFlags binds the named flags of cmd to config keys. Flag names are
// the keys with dashes.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys ...string) error {
	for _, key := range keys {
		name := strings.ReplaceAll(key, "_", "-")
		f := cmd.Flags().Lookup(name)
		if f == nil {
			return fmt.Errorf("bind flag %s: not defined", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// loadConfig reads the effective configuration from v.
func loadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		Addr:            v.GetString(keyAddr),
		LogLevel:        v.GetString(keyLogLevel),
		TranscriptLog:   v.GetString(keyTranscriptLog),
		UsageLog:        v.GetString(keyUsageLog),
		SchemaDir:       v.GetString(keySchemaDir),
		SchemaGlob:      v.GetString(keySchemaGlob),
		AuditDB:         v.GetString(keyAuditDB),
		MaxMessageBytes: v.GetInt64(keyMaxMessageBytes),
		WriteTimeout:    v.GetDuration(keyWriteTimeout),
		PingInterval:    v.GetDuration(keyPingInterval),
	}
	if cfg.Addr == "" {
		return Config{}, errors.New("addr is empty")
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	if cfg.MaxMessageBytes < 0 || cfg.WriteTimeout < 0 || cfg.PingInterval < 0 {
		return Config{}, errors.New("max_message_bytes, write_timeout and ping_interval must not be negative")
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", s, err)
	}
	return level, nil
}

// newLogger returns a text logger writing to w at level. The level must
// have been validated by loadConfig.
func newLogger(w io.Writer, level string) *slog.Logger {
	l, _ := parseLevel(level)
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}
