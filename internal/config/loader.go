// Package config provides centralized configuration management. Values are
// layered: built-in defaults, then an optional YAML config file, then
// VITALSYNC_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// EnvPrefix is the prefix for environment variable overrides, so that for
// example VITALSYNC_STORE_PATH overrides store.path.
const EnvPrefix = "VITALSYNC"

// SetDefaults seeds v with the built-in configuration defaults.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("user_repository.type", "service")
	v.SetDefault("user_repository.path", "")
	v.SetDefault("user_repository.service.base_url", "")
	v.SetDefault("user_repository.service.token_url", "")
	v.SetDefault("user_repository.service.client_id", "")
	v.SetDefault("user_repository.service.client_secret", "")
	v.SetDefault("user_repository.service.scope", "")
	v.SetDefault("user_repository.service.audience", "")
	v.SetDefault("user_repository.service.source_type", "")
	v.SetDefault("user_repository.service.refresh_interval", "1h")
	v.SetDefault("user_repository.service.timeout", "30s")

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("routes.enabled.heart_rate", true)
	v.SetDefault("routes.enabled.sleep", true)
	v.SetDefault("routes.enabled.daily_activity", true)
	v.SetDefault("routes.enabled.spo2", true)

	v.SetDefault("scheduler.base_url", "")
	v.SetDefault("scheduler.success_backoff", "1m")
	v.SetDefault("scheduler.failure_backoff", "10m")
	v.SetDefault("scheduler.user_backoff", "3h")
	v.SetDefault("scheduler.global_backoff", "10m")
	v.SetDefault("scheduler.buffer", "12h")
	v.SetDefault("scheduler.old_data_age", "168h")
	v.SetDefault("scheduler.empty_confirm_delay", "48h")
	v.SetDefault("scheduler.grace_period", "720h")
	v.SetDefault("scheduler.historical_threshold", "8760h")
	v.SetDefault("scheduler.historical_interval", "720h")
	v.SetDefault("scheduler.max_requests_per_pair", 20)

	v.SetDefault("runner.poll_interval", "1m")
	v.SetDefault("runner.workers", 4)
	v.SetDefault("runner.max_batch", 100)
	v.SetDefault("runner.request_timeout", "30s")

	v.SetDefault("sink.type", "stdout")
	v.SetDefault("sink.path", "")
	v.SetDefault("sink.bucket", "")
	v.SetDefault("sink.prefix", "")
	v.SetDefault("sink.region", "")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads the config file (when cfgFile is non-empty or a default
// location exists), applies environment overrides, and decodes the result.
// Safe to call multiple times.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "vitalsync"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("vitalsync")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; an explicit one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if cfgFile != "" || !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := decode(v.AllSettings(), cfg); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

func decode(settings map[string]any, cfg *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(settings); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// GetConfig returns the current application configuration.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultStorePath returns the default offset database location.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./vitalsync.db"
	}
	return filepath.Join(home, ".local", "share", "vitalsync", "vitalsync.db")
}
