package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all daemon configuration
type Config struct {
	Server  ServerConfig
	Engine  EngineConfig
	Logging LogConfig
	Notify  NotifyConfig
	Tracing TracingConfig

	// PrefsPath points at the TOML preferences file, if any
	PrefsPath string `envconfig:"PREFS"`
}

// ServerConfig holds the admin HTTP server configuration
type ServerConfig struct {
	Enabled   bool    `envconfig:"SERVER_ENABLED" default:"true"`
	Host      string  `envconfig:"ADMIN_HOST" default:"127.0.0.1"`
	Port      string  `envconfig:"ADMIN_PORT" default:"8790"`
	RateLimit float64 `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst     int     `envconfig:"RATE_LIMIT_BURST" default:"100"`
}

// EngineConfig holds lifecycle, policy and reclamation settings
type EngineConfig struct {
	EnableForegroundTrim bool `envconfig:"ENABLE_FOREGROUND_TRIM" default:"true"`
	EnableBackgroundTrim bool `envconfig:"ENABLE_BACKGROUND_TRIM" default:"true"`
	EnableBackgroundGC   bool `envconfig:"ENABLE_BACKGROUND_GC" default:"true"`
	MainBaselineScore    int  `envconfig:"MAIN_BASELINE_SCORE" default:"0"`
	AuxBaselineScore     int  `envconfig:"AUX_BASELINE_SCORE" default:"700"`

	ForegroundTrimPeriod  time.Duration `envconfig:"FOREGROUND_TRIM_PERIOD" default:"5m"`
	BackgroundTrimPeriod  time.Duration `envconfig:"BACKGROUND_TRIM_PERIOD" default:"10m"`
	GCDelay               time.Duration `envconfig:"GC_DELAY" default:"30s"`
	SchedulerWorkers      uint          `envconfig:"SCHEDULER_WORKERS" default:"4"`
	MinCompactInterval    time.Duration `envconfig:"MIN_COMPACT_INTERVAL" default:"30s"`
	CompactScoreThreshold int           `envconfig:"COMPACT_SCORE_THRESHOLD" default:"900"`

	EventWorkers   int `envconfig:"EVENT_WORKERS" default:"4"`
	EventQueueSize int `envconfig:"EVENT_QUEUE_SIZE" default:"256"`

	BreakerFailures uint32        `envconfig:"BREAKER_FAILURES" default:"5"`
	BreakerTimeout  time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// NotifyConfig holds lifecycle notification settings
type NotifyConfig struct {
	Enabled bool   `envconfig:"NOTIFY_ENABLED" default:"false"`
	URL     string `envconfig:"NATS_URL" default:"nats://127.0.0.1:4222"`
	Prefix  string `envconfig:"NOTIFY_PREFIX" default:"keepalive.lifecycle"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `envconfig:"TRACING_ENABLED" default:"false"`
	ServiceName string  `envconfig:"TRACING_SERVICE" default:"keepalive"`
	SampleRatio float64 `envconfig:"TRACING_SAMPLE_RATIO" default:"1"`
}

// Prefix is the environment prefix of every variable
const Prefix = "KEEPALIVE"

// Load loads configuration from KEEPALIVE_* environment variables and
// overlays the preferences file when one is named
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.PrefsPath != "" {
		prefs, err := LoadPreferences(cfg.PrefsPath)
		if err != nil {
			return nil, err
		}
		prefs.Apply(&cfg.Engine)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns the
// default
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Engine.EventWorkers <= 0:
		return fmt.Errorf("event workers must be positive, got %d", c.Engine.EventWorkers)
	case c.Engine.EventQueueSize <= 0:
		return fmt.Errorf("event queue size must be positive, got %d", c.Engine.EventQueueSize)
	case c.Engine.SchedulerWorkers == 0:
		return fmt.Errorf("scheduler workers must be positive")
	case c.Engine.ForegroundTrimPeriod <= 0 || c.Engine.BackgroundTrimPeriod <= 0:
		return fmt.Errorf("trim periods must be positive")
	case c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1:
		return fmt.Errorf("sample ratio must be within [0, 1], got %v", c.Tracing.SampleRatio)
	}
	return nil
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled:   true,
			Host:      "127.0.0.1",
			Port:      "8790",
			RateLimit: 50,
			Burst:     100,
		},
		Engine: EngineConfig{
			EnableForegroundTrim:  true,
			EnableBackgroundTrim:  true,
			EnableBackgroundGC:    true,
			MainBaselineScore:     0,
			AuxBaselineScore:      700,
			ForegroundTrimPeriod:  5 * time.Minute,
			BackgroundTrimPeriod:  10 * time.Minute,
			GCDelay:               30 * time.Second,
			SchedulerWorkers:      4,
			MinCompactInterval:    30 * time.Second,
			CompactScoreThreshold: 900,
			EventWorkers:          4,
			EventQueueSize:        256,
			BreakerFailures:       5,
			BreakerTimeout:        30 * time.Second,
		},
		Logging: LogConfig{
			Level: "info",
		},
		Notify: NotifyConfig{
			URL:    "nats://127.0.0.1:4222",
			Prefix: "keepalive.lifecycle",
		},
		Tracing: TracingConfig{
			ServiceName: "keepalive",
			SampleRatio: 1,
		},
	}
}
