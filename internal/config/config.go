package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ptscripts/ptbot/internal/errors"
)

const (
	// DefaultStatusURL is the public Cfx.re status page.
	DefaultStatusURL = "https://status.cfx.re"

	DriverSQLite = "sqlite"
	DriverJSON   = "json"
)

// Config is the full runtime configuration of the bot.
type Config struct {
	Token    string         `mapstructure:"token"`
	OwnerID  string         `mapstructure:"owner_id"`
	Status   StatusConfig   `mapstructure:"status"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Presence PresenceConfig `mapstructure:"presence"`
}

// StatusConfig controls the FiveM status poller.
type StatusConfig struct {
	URL      string        `mapstructure:"url"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StorageConfig selects the guild settings backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	File   string `mapstructure:"file"`
}

// MetricsConfig enables the health/metrics HTTP server when Listen is set.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

type PresenceConfig struct {
	Statuses []string      `mapstructure:"statuses"`
	Interval time.Duration `mapstructure:"interval"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Status: StatusConfig{
			URL:      DefaultStatusURL,
			Interval: 5 * time.Minute,
			Timeout:  10 * time.Second,
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   "ptbot_data.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Presence: PresenceConfig{
			Statuses: []string{"status.cfx.re", "for new tickets", "the community"},
			Interval: 60 * time.Second,
		},
	}
}

// Load reads configuration from .env, an optional YAML file at path, and the
// environment, in increasing order of precedence.
func Load(path string) (*Config, error) {
	// Missing .env is fine; real deployments usually export variables directly.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("token", "BOT_TOKEN", "DISCORD_BOT_TOKEN")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapWithCode(err, errors.ErrConfig,
					"Config file not found: "+path,
					"Check the path passed to --config")
			}
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file",
				"Check the file exists and is valid YAML")
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid configuration",
			"Check value types, durations look like 5m or 10s")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("token", d.Token)
	v.SetDefault("owner_id", d.OwnerID)
	v.SetDefault("status.url", d.Status.URL)
	v.SetDefault("status.interval", d.Status.Interval)
	v.SetDefault("status.timeout", d.Status.Timeout)
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
	v.SetDefault("presence.statuses", d.Presence.Statuses)
	v.SetDefault("presence.interval", d.Presence.Interval)
}

// Validate checks the settings needed to run the bot.
func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New(errors.ErrConfig,
			"BOT_TOKEN is not set",
			"Set BOT_TOKEN in the environment or in .env")
	}
	return c.ValidateStatus()
}

// ValidateStatus checks only the poller settings, which is all `ptbot check` needs.
func (c *Config) ValidateStatus() error {
	if c.Status.URL == "" {
		return errors.New(errors.ErrConfig, "status.url is empty", "Set STATUS_URL or status.url")
	}
	if c.Status.Interval <= 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("status.interval must be positive, got %v", c.Status.Interval),
			"Use a duration such as 5m")
	}
	if c.Status.Timeout <= 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("status.timeout must be positive, got %v", c.Status.Timeout),
			"Use a duration such as 10s")
	}
	if c.Status.Timeout >= c.Status.Interval {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("status.timeout (%v) must be less than status.interval (%v)", c.Status.Timeout, c.Status.Interval),
			"Lower status.timeout or raise status.interval")
	}
	switch c.Storage.Driver {
	case DriverSQLite, DriverJSON:
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("unknown storage.driver %q", c.Storage.Driver),
			"Use sqlite or json")
	}
	if c.Storage.Path == "" {
		return errors.New(errors.ErrConfig, "storage.path is empty", "Set STORAGE_PATH or storage.path")
	}
	return nil
}
