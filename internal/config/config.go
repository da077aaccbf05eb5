// Package config loads agent settings from flags, BROWSETRACE_* environment
// variables and an optional YAML file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrHelp is returned by Load when -h or --help was requested.
var ErrHelp = pflag.ErrHelp

// Config holds the agent settings.
type Config struct {
	Address          string
	DatabasePath     string
	Journal          bool
	CollectURL       string
	TrackingID       string
	TransportTimeout time.Duration
	MaxQueuedErrors  int
	PageIdleTimeout  time.Duration
	LogLevel         slog.Level
}

const (
	keyConfig           = "config"
	keyAddress          = "address"
	keyDatabasePath     = "database_path"
	keyJournal          = "journal"
	keyCollectURL       = "collect_url"
	keyTrackingID       = "tracking_id"
	keyTransportTimeout = "transport_timeout"
	keyMaxQueuedErrors  = "max_queued_errors"
	keyPageIdleTimeout  = "page_idle_timeout"
	keyLogLevel         = "log_level"
)

// Load parses args (without the program name) and resolves every setting.
func Load(args []string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BROWSETRACE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyAddress, "127.0.0.1:8123")
	v.SetDefault(keyDatabasePath, filepath.Join(DefaultDataDir(), "hits.db"))
	v.SetDefault(keyJournal, true)
	v.SetDefault(keyCollectURL, "")
	v.SetDefault(keyTrackingID, "")
	v.SetDefault(keyTransportTimeout, 5*time.Second)
	v.SetDefault(keyMaxQueuedErrors, 100)
	v.SetDefault(keyPageIdleTimeout, 30*time.Minute)
	v.SetDefault(keyLogLevel, "info")

	flagSet := pflag.NewFlagSet("browsetrace-vitals", pflag.ContinueOnError)
	flagSet.String(keyConfig, "", "path to a YAML config file")
	flagSet.String(keyAddress, v.GetString(keyAddress), "listen address for the signal endpoint")
	flagSet.String(keyDatabasePath, v.GetString(keyDatabasePath), "SQLite hit journal path")
	flagSet.Bool(keyJournal, v.GetBool(keyJournal), "record every hit in the local journal")
	flagSet.String(keyCollectURL, "", "Measurement Protocol collect endpoint (empty disables upload)")
	flagSet.String(keyTrackingID, "", "analytics property tracking id")
	flagSet.Duration(keyTransportTimeout, v.GetDuration(keyTransportTimeout), "per-hit upload timeout")
	flagSet.Int(keyMaxQueuedErrors, v.GetInt(keyMaxQueuedErrors), "errors kept per page before tracking starts")
	flagSet.Duration(keyPageIdleTimeout, v.GetDuration(keyPageIdleTimeout), "evict pages silent for this long (0 keeps them until unload)")
	flagSet.String(keyLogLevel, v.GetString(keyLogLevel), "debug, info, warn or error")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	// Only flags the user actually passed override env and file values.
	flagSet.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			_ = v.BindPFlag(f.Name, f)
		}
	})

	if path := v.GetString(keyConfig); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Address:          v.GetString(keyAddress),
		DatabasePath:     v.GetString(keyDatabasePath),
		Journal:          v.GetBool(keyJournal),
		CollectURL:       v.GetString(keyCollectURL),
		TrackingID:       v.GetString(keyTrackingID),
		TransportTimeout: v.GetDuration(keyTransportTimeout),
		MaxQueuedErrors:  v.GetInt(keyMaxQueuedErrors),
		PageIdleTimeout:  v.GetDuration(keyPageIdleTimeout),
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString(keyLogLevel))); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", keyLogLevel, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.Address == "" {
		return errors.New("address cannot be empty")
	}
	if c.Journal && c.DatabasePath == "" {
		return errors.New("database_path required when the journal is enabled")
	}
	if c.CollectURL != "" && c.TrackingID == "" {
		return errors.New("tracking_id required when collect_url is set")
	}
	if c.TransportTimeout <= 0 {
		return errors.New("transport_timeout must be positive")
	}
	if c.MaxQueuedErrors <= 0 {
		return errors.New("max_queued_errors must be positive")
	}
	if c.PageIdleTimeout < 0 {
		return errors.New("page_idle_timeout cannot be negative")
	}
	return nil
}

// DefaultDataDir returns the platform-specific application data directory.
func DefaultDataDir() string {
	homeDirectory, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDirectory, "Library", "Application Support", "BrowserTrace")
	case "windows":
		return filepath.Join(homeDirectory, "AppData", "Roaming", "BrowserTrace")
	default: // linux and others
		return filepath.Join(homeDirectory, ".local", "share", "BrowserTrace")
	}
}
