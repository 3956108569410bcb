package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the engine's runtime configuration
type Config struct {
	App struct {
		Name string `mapstructure:"name"`
	} `mapstructure:"app"`

	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Pool struct {
		Size           int                      `mapstructure:"size"`
		DefaultTimeout time.Duration            `mapstructure:"default_timeout"`
		TaskTimeouts   map[string]time.Duration `mapstructure:"task_timeouts"`
	} `mapstructure:"pool"`

	Scheduler struct {
		Tick time.Duration `mapstructure:"tick"`
	} `mapstructure:"scheduler"`

	Resolver struct {
		PollInterval   time.Duration `mapstructure:"poll_interval"`
		FailDependents bool          `mapstructure:"fail_dependents"`
	} `mapstructure:"resolver"`

	Retry struct {
		InitialDelay time.Duration `mapstructure:"initial_delay"`
		MaxDelay     time.Duration `mapstructure:"max_delay"`
		Multiplier   float64       `mapstructure:"multiplier"`
	} `mapstructure:"retry"`

	Recovery struct {
		ScanInterval time.Duration `mapstructure:"scan_interval"`
		StallAfter   time.Duration `mapstructure:"stall_after"`
		Retention    time.Duration `mapstructure:"retention"`
	} `mapstructure:"recovery"`

	Notify struct {
		Buffer int `mapstructure:"buffer"`
	} `mapstructure:"notify"`

	NATS struct {
		Enabled        bool          `mapstructure:"enabled"`
		URL            string        `mapstructure:"url"`
		MaxReconnects  int           `mapstructure:"max_reconnects"`
		ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
		ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	} `mapstructure:"nats"`
}

// Load reads configuration from the given directory, falling back to
// defaults for anything the file leaves unset
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "promise-engine")
	v.SetDefault("database.path", "promises.db")

	v.SetDefault("pool.size", 4)
	v.SetDefault("pool.default_timeout", time.Hour)

	v.SetDefault("scheduler.tick", time.Second)

	v.SetDefault("resolver.poll_interval", 30*time.Second)
	v.SetDefault("resolver.fail_dependents", true)

	v.SetDefault("retry.initial_delay", 30*time.Second)
	v.SetDefault("retry.max_delay", 15*time.Minute)
	v.SetDefault("retry.multiplier", 2.0)

	v.SetDefault("recovery.scan_interval", 5*time.Minute)
	v.SetDefault("recovery.stall_after", 30*time.Minute)
	v.SetDefault("recovery.retention", 30*24*time.Hour)

	v.SetDefault("notify.buffer", 64)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)
}
