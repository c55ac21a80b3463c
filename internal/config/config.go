// Package config loads host configuration from file and environment via
// viper, the way goatflow's CLI tooling binds its flags.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the host's runtime configuration.
type Config struct {
	// DataDir is the root directory containing the store file and the
	// plugins/ tree ({data_dir}/plugins/{author}/{plugin_id}/...).
	DataDir string `mapstructure:"data_dir"`

	// InitializeTimeout bounds a plugin's initialize() call.
	InitializeTimeout time.Duration `mapstructure:"initialize_timeout"`
	// ShutdownTimeout bounds a plugin's shutdown() call.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// DefaultRateLimitPerSecond is the default token-bucket refill rate
	// applied to a plugin's invoke_command dispatch when it has no
	// admin-set override.
	DefaultRateLimitPerSecond int `mapstructure:"default_rate_limit_per_second"`
	DefaultRateLimitBurst     int `mapstructure:"default_rate_limit_burst"`

	// IPCAddr is the bind address for the frontend IPC HTTP boundary.
	IPCAddr string `mapstructure:"ipc_addr"`
}

// Default returns the host's baseline configuration before overlaying any
// file or environment values.
func Default() Config {
	return Config{
		DataDir:                   "./data",
		InitializeTimeout:         30 * time.Second,
		ShutdownTimeout:           10 * time.Second,
		DefaultRateLimitPerSecond: 50,
		DefaultRateLimitBurst:     100,
		IPCAddr:                   "127.0.0.1:8787",
	}
}

// Load reads configuration from configPath (if non-empty), environment
// variables prefixed HOURGLASS_, and falls back to Default() for anything
// unset. Uses viper's precedence order: env > explicit file > defaults.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("HOURGLASS")
	v.AutomaticEnv()

	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("initialize_timeout", cfg.InitializeTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("default_rate_limit_per_second", cfg.DefaultRateLimitPerSecond)
	v.SetDefault("default_rate_limit_burst", cfg.DefaultRateLimitBurst)
	v.SetDefault("ipc_addr", cfg.IPCAddr)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// StorePath is the path to the embedded SQLite database file.
func (c Config) StorePath() string {
	return c.DataDir + "/hourglass.db"
}

// PluginsDir is the root directory the Loader walks for installed
// plugins: {data_dir}/plugins/{author}/{plugin_id}/.
func (c Config) PluginsDir() string {
	return c.DataDir + "/plugins"
}
