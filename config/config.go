// Package config loads procedure settings from defaults, environment
// variables and explicit overrides.
package config

import (
	"os"
	"runtime"
	"time"

	"github.com/aponysus/procedure/logger"
)

// EnvPrefix is the prefix of every environment variable Load reads.
const EnvPrefix = "PROCEDURE_"

type Config struct {
	Queue   QueueConfig   `koanf:"queue"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
	HTTP    HTTPConfig    `koanf:"http"`
}

// QueueConfig sizes the queue tasks are scheduled on.
type QueueConfig struct {
	Name        string        `koanf:"name"         validate:"required"`
	Workers     int           `koanf:"workers"      validate:"min=1,max=1024"`
	Buffer      int           `koanf:"buffer"       validate:"min=0"`
	TaskTimeout time.Duration `koanf:"task_timeout" validate:"min=0"`
}

type LogConfig struct {
	Level     string `koanf:"level"      validate:"oneof=debug info warn error"`
	JSON      bool   `koanf:"json"`
	AddSource bool   `koanf:"add_source"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Namespace string `koanf:"namespace" validate:"required_if=Enabled true"`
	Address   string `koanf:"address"   validate:"omitempty,hostname_port"`
}

// HTTPConfig tunes network data tasks.
type HTTPConfig struct {
	Timeout      time.Duration `koanf:"timeout"        validate:"min=0"`
	MaxBodyBytes int64         `koanf:"max_body_bytes" validate:"min=1"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Queue: QueueConfig{
			Name:    "procedure",
			Workers: runtime.GOMAXPROCS(0),
			Buffer:  64,
		},
		Log: LogConfig{
			Level: string(logger.InfoLevel),
		},
		Metrics: MetricsConfig{
			Namespace: "procedure",
			Address:   ":9090",
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			MaxBodyBytes: 10 << 20,
		},
	}
}

// LoggerConfig maps the log section onto a logger configuration writing to
// stderr.
func (c *Config) LoggerConfig() *logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = logger.ParseLevel(c.Log.Level)
	cfg.JSON = c.Log.JSON
	cfg.AddSource = c.Log.AddSource
	cfg.Output = os.Stderr
	return cfg
}
