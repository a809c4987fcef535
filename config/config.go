// Package config loads the daemon configuration from file and environment
// via viper. Every field has a usable default so a bare binary with only a
// TMDB token in the environment comes up working.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// BackendMode selects the persistence implementation.
type BackendMode string

const (
	// BackendLocal stores user data in an embedded SQLite database.
	BackendLocal BackendMode = "local"
	// BackendRemote talks to a hosted backend over REST.
	BackendRemote BackendMode = "remote"
)

// Config holds all daemon configuration.
type Config struct {
	ListenAddr string        `mapstructure:"listen_addr"`
	DataDir    string        `mapstructure:"data_dir"`
	TMDB       TMDBConfig    `mapstructure:"tmdb"`
	Backend    BackendConfig `mapstructure:"backend"`
	Cache      CacheConfig   `mapstructure:"cache"`
	RateLimit  RateConfig    `mapstructure:"rate_limit"`
	Logging    LogConfig     `mapstructure:"logging"`
}

// TMDBConfig holds upstream catalog API settings.
type TMDBConfig struct {
	Token    string `mapstructure:"token"`
	Language string `mapstructure:"language"`
	BaseURL  string `mapstructure:"base_url"`
}

// BackendConfig selects and configures the persistence backend.
type BackendConfig struct {
	Mode   BackendMode `mapstructure:"mode"`
	URL    string      `mapstructure:"url"`
	APIKey string      `mapstructure:"api_key"`
}

// CacheConfig holds the staleness windows per query class and the global
// eviction window.
type CacheConfig struct {
	SearchTTL    time.Duration `mapstructure:"search_ttl"`
	ListTTL      time.Duration `mapstructure:"list_ttl"`
	DetailsTTL   time.Duration `mapstructure:"details_ttl"`
	ReferenceTTL time.Duration `mapstructure:"reference_ttl"`
	EvictAfter   time.Duration `mapstructure:"evict_after"`
}

// RateConfig holds the per-client request budget.
type RateConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

// LogConfig holds log file rotation settings. An empty file means stderr
// only.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Default returns the configuration used when file and environment have no
// say.
func Default() *Config {
	return &Config{
		ListenAddr: ":7788",
		DataDir:    "./data",
		TMDB: TMDBConfig{
			Language: "en",
		},
		Backend: BackendConfig{
			Mode: BackendLocal,
		},
		Cache: CacheConfig{
			SearchTTL:    5 * time.Minute,
			ListTTL:      30 * time.Minute,
			DetailsTTL:   6 * time.Hour,
			ReferenceTTL: 7 * 24 * time.Hour,
			EvictAfter:   24 * time.Hour,
		},
		RateLimit: RateConfig{
			PerSecond: 20,
			Burst:     40,
		},
		Logging: LogConfig{
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Load reads configuration from the given file (optional), the working
// directory, and CINELOG_* environment variables, layered over defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./data")
	}

	v.SetEnvPrefix("CINELOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Unmarshal only sees keys present in the file; pull the common
	// env-only settings explicitly.
	if cfg.TMDB.Token == "" {
		cfg.TMDB.Token = v.GetString("tmdb.token")
	}
	if cfg.Backend.APIKey == "" {
		cfg.Backend.APIKey = v.GetString("backend.api_key")
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.Backend.Mode {
	case BackendLocal:
	case BackendRemote:
		if c.Backend.URL == "" {
			return fmt.Errorf("backend.url is required in remote mode")
		}
	default:
		return fmt.Errorf("unknown backend mode %q", c.Backend.Mode)
	}
	if c.TMDB.Token == "" {
		return fmt.Errorf("tmdb.token is required (set CINELOG_TMDB_TOKEN)")
	}
	return nil
}
