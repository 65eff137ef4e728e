// Package config loads and validates wsmonitor configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Checker  CheckerConfig  `mapstructure:"checker"`
	Registry RegistryConfig `mapstructure:"registry"`
	DBUpdate DBUpdateConfig `mapstructure:"dbupdate"`
	Ops      OpsConfig      `mapstructure:"ops"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DatabaseConfig controls access to the PostgreSQL backend.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig identifies the metric topic and the dbupdate subscription.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	Subscription string `mapstructure:"subscription"`
}

// CheckerConfig governs the checker daemon: how often each URL is checked,
// how long a single fetch may take, and how wide the worker pool is.
type CheckerConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Workers    int           `mapstructure:"workers"`
	QueueDepth int           `mapstructure:"queue_depth"`
	UserAgent  string        `mapstructure:"user_agent"`
}

// RegistryConfig controls how often the watched-URL list is re-read.
type RegistryConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// DBUpdateConfig governs the dbupdate daemon's consumer pipeline.
type DBUpdateConfig struct {
	Workers     int           `mapstructure:"workers"`
	DedupWindow int           `mapstructure:"dedup_window"`
	PersistWait time.Duration `mapstructure:"persist_wait"`
}

// OpsConfig sets the operational HTTP listener.
type OpsConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. An empty path falls back to
// defaults plus WSMONITOR_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WSMONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("pubsub.topic", "wsmonitor-metrics")
	v.SetDefault("pubsub.subscription", "wsmonitor-dbupdate")
	v.SetDefault("checker.interval", 60*time.Second)
	v.SetDefault("checker.timeout", 30*time.Second)
	v.SetDefault("checker.workers", 4)
	v.SetDefault("checker.queue_depth", 8)
	v.SetDefault("checker.user_agent", "wsmonitor/0.1")
	v.SetDefault("registry.poll_interval", 10*time.Second)
	v.SetDefault("dbupdate.workers", 4)
	v.SetDefault("dbupdate.dedup_window", 1024)
	v.SetDefault("dbupdate.persist_wait", 30*time.Second)
	v.SetDefault("ops.port", 8080)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Checker.Interval <= 0 {
		return fmt.Errorf("checker.interval must be > 0")
	}
	if c.Checker.Timeout <= 0 {
		return fmt.Errorf("checker.timeout must be > 0")
	}
	if c.Checker.Workers <= 0 {
		return fmt.Errorf("checker.workers must be > 0")
	}
	if c.Checker.QueueDepth <= 0 {
		return fmt.Errorf("checker.queue_depth must be > 0")
	}
	if c.Registry.PollInterval <= 0 {
		return fmt.Errorf("registry.poll_interval must be > 0")
	}
	if c.Registry.PollInterval > c.Checker.Interval {
		return fmt.Errorf("registry.poll_interval must not exceed checker.interval")
	}
	if c.DBUpdate.Workers <= 0 {
		return fmt.Errorf("dbupdate.workers must be > 0")
	}
	if c.DBUpdate.DedupWindow < 0 {
		return fmt.Errorf("dbupdate.dedup_window must be >= 0")
	}
	if c.Ops.Port <= 0 {
		return fmt.Errorf("ops.port must be > 0")
	}
	return nil
}
