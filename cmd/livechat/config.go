package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/livechat/pkg/chat/channel"
	"github.com/go-go-golems/livechat/pkg/redisstream"
)

// Config is the resolved CLI configuration. Values are layered:
// defaults, then the YAML file, then LIVECHAT_* environment variables,
// then command-line flags.
type Config struct {
	APIURL string `yaml:"api_url" env:"API_URL"`
	WSURL  string `yaml:"ws_url" env:"WS_URL"`
	Token  string `yaml:"token" env:"TOKEN"`
	// UserID overrides the identity parsed from the token.
	UserID string `yaml:"user_id" env:"USER_ID"`

	PageSize       int           `yaml:"page_size" env:"PAGE_SIZE"`
	BackoffInitial time.Duration `yaml:"backoff_initial" env:"BACKOFF_INITIAL"`
	BackoffMax     time.Duration `yaml:"backoff_max" env:"BACKOFF_MAX"`
	PingInterval   time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`

	// CachePath is the SQLite cache file; empty disables caching.
	CachePath string `yaml:"cache_path" env:"CACHE_PATH"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`

	Redis redisstream.Settings `yaml:"redis" envPrefix:"REDIS_"`
}

func DefaultConfig() Config {
	return Config{
		APIURL:         "http://localhost:8080/api/v1",
		WSURL:          "ws://localhost:8080/api/v1/ws",
		PageSize:       50,
		BackoffInitial: channel.DefaultBackoffInitial,
		BackoffMax:     channel.DefaultBackoffMax,
		PingInterval:   25 * time.Second,
		CachePath:      defaultCachePath(),
		LogLevel:       "info",
		Redis:          redisstream.DefaultSettings(),
	}
}

// defaultConfigPath returns $XDG_CONFIG_HOME/livechat/config.yaml.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "livechat", "config.yaml")
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "livechat", "cache.db")
}

// LoadConfig applies the YAML file at path (when set) and the environment
// on top of the defaults. A missing file at the default location is not an
// error; a missing explicit path is.
func LoadConfig(path string, explicit bool) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, errors.Wrapf(err, "parse config %s", path)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "LIVECHAT_"}); err != nil {
		return Config{}, errors.Wrap(err, "parse environment")
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("api_url is required")
	}
	if c.WSURL == "" {
		return errors.New("ws_url is required")
	}
	if c.PageSize <= 0 {
		return errors.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.BackoffInitial <= 0 || c.BackoffMax < c.BackoffInitial {
		return errors.Errorf("invalid backoff window %s..%s", c.BackoffInitial, c.BackoffMax)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(err, "invalid log level %q", c.LogLevel)
	}
	return nil
}
