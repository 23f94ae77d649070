// Package config loads client configuration from the environment and an
// optional config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all client configuration.
type Config struct {
	// Server
	ServerURL string
	Timeout   time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Browsing
	PageSize  int
	ItemsMode string // "append" or "paginated"

	// Auth
	TokenFile string

	// Download cache
	CacheDir     string
	CacheMaxSize int64

	// Metrics (empty = disabled)
	MetricsAddr string
}

// Load reads configuration with defaults. path may name a config file;
// when empty, $HOME/.config/quarry/config.yaml is used if present.
// Environment variables use the QUARRY_ prefix.
func Load(path string) (*Config, error) {
	v := viper.New()

	home, _ := os.UserHomeDir()
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("timeout", "30s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("page_size", 50)
	v.SetDefault("items_mode", "paginated")
	v.SetDefault("token_file", filepath.Join(home, ".config", "quarry", "token.json"))
	v.SetDefault("cache_dir", filepath.Join(home, ".cache", "quarry"))
	v.SetDefault("cache_max_size", int64(1<<30))
	v.SetDefault("metrics_addr", "")

	v.SetEnvPrefix("quarry")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, ".config", "quarry"))
		// A missing default config file is fine.
		_ = v.ReadInConfig()
	}

	cfg := &Config{
		ServerURL:    strings.TrimSuffix(v.GetString("server_url"), "/"),
		Timeout:      v.GetDuration("timeout"),
		LogLevel:     v.GetString("log_level"),
		LogFormat:    v.GetString("log_format"),
		PageSize:     v.GetInt("page_size"),
		ItemsMode:    v.GetString("items_mode"),
		TokenFile:    v.GetString("token_file"),
		CacheDir:     v.GetString("cache_dir"),
		CacheMaxSize: v.GetInt64("cache_max_size"),
		MetricsAddr:  v.GetString("metrics_addr"),
	}

	if cfg.ItemsMode != "append" && cfg.ItemsMode != "paginated" {
		return nil, fmt.Errorf("items_mode must be \"append\" or \"paginated\", got %q", cfg.ItemsMode)
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page_size must be positive, got %d", cfg.PageSize)
	}
	return cfg, nil
}
