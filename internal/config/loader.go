package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rpattn/lobbyxml/internal/db"
)

// DefaultSourceURL is the SOPR page that links the contribution zip archives.
const DefaultSourceURL = "https://www.senate.gov/legislative/Public_Disclosure/contributions_download.htm"

// Config is the full runtime configuration.
type Config struct {
	Database db.Config
	Archive  ArchiveConfig
	Fetch    FetchConfig
	Parse    ParseConfig
	Load     LoadConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

// ArchiveConfig locates run directories.
type ArchiveConfig struct {
	DataDir string
}

// FetchConfig controls the download of source archives.
type FetchConfig struct {
	URL     string
	Timeout time.Duration
}

// ParseConfig bounds document parsing.
type ParseConfig struct {
	MaxDuration time.Duration
	GroupPolicy string
}

// LoadConfig chooses the bulk-load failure policy.
type LoadConfig struct {
	OnError string
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig points at an optional textfile-collector output.
type MetricsConfig struct {
	Textfile string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Database: db.DefaultConfig(),
		Archive:  ArchiveConfig{DataDir: "./data"},
		Fetch:    FetchConfig{URL: DefaultSourceURL, Timeout: 60 * time.Second},
		Parse:    ParseConfig{MaxDuration: 2 * time.Minute, GroupPolicy: "lenient"},
		Load:     LoadConfig{OnError: "skip"},
		Log:      LogConfig{Level: "info", Format: "console"},
	}
}

// NewViper returns a viper instance preloaded with defaults and env bindings
// (LOBBYXML_DATABASE_DRIVER, LOBBYXML_LOAD_ON_ERROR, ...).
func NewViper() *viper.Viper {
	defaults := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LOBBYXML")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.driver", defaults.Database.Driver)
	v.SetDefault("database.path", defaults.Database.Path)
	v.SetDefault("database.host", defaults.Database.Host)
	v.SetDefault("database.port", defaults.Database.Port)
	v.SetDefault("database.user", defaults.Database.User)
	v.SetDefault("database.password", defaults.Database.Password)
	v.SetDefault("database.dbname", defaults.Database.DBName)
	v.SetDefault("database.sslmode", defaults.Database.SSLMode)
	v.SetDefault("archive.data_dir", defaults.Archive.DataDir)
	v.SetDefault("fetch.url", defaults.Fetch.URL)
	v.SetDefault("fetch.timeout", defaults.Fetch.Timeout)
	v.SetDefault("parse.max_duration", defaults.Parse.MaxDuration)
	v.SetDefault("parse.group_policy", defaults.Parse.GroupPolicy)
	v.SetDefault("load.on_error", defaults.Load.OnError)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("metrics.textfile", "")

	return v
}

// Load reads config.yaml from configPath when present; defaults and environment
// variables fill everything else. found reports whether a file was read.
func Load(v *viper.Viper, configPath string) (cfg Config, found bool, err error) {
	if configPath != "" {
		v.AddConfigPath(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, false, fmt.Errorf("failed to read config: %w", err)
			}
		} else {
			found = true
		}
	}

	cfg = Config{
		Database: db.Config{
			Driver:   v.GetString("database.driver"),
			Path:     v.GetString("database.path"),
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
		},
		Archive: ArchiveConfig{DataDir: v.GetString("archive.data_dir")},
		Fetch: FetchConfig{
			URL:     v.GetString("fetch.url"),
			Timeout: v.GetDuration("fetch.timeout"),
		},
		Parse: ParseConfig{
			MaxDuration: v.GetDuration("parse.max_duration"),
			GroupPolicy: v.GetString("parse.group_policy"),
		},
		Load:    LoadConfig{OnError: v.GetString("load.on_error")},
		Log:     LogConfig{Level: v.GetString("log.level"), Format: v.GetString("log.format")},
		Metrics: MetricsConfig{Textfile: v.GetString("metrics.textfile")},
	}

	if _, err := db.ParseDialect(cfg.Database.Driver); err != nil {
		return Config{}, found, err
	}
	if cfg.Fetch.Timeout <= 0 {
		return Config{}, found, fmt.Errorf("fetch.timeout must be positive, got %s", cfg.Fetch.Timeout)
	}
	if cfg.Parse.MaxDuration <= 0 {
		return Config{}, found, fmt.Errorf("parse.max_duration must be positive, got %s", cfg.Parse.MaxDuration)
	}

	return cfg, found, nil
}
