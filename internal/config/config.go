// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Consumers ConsumersConfig `mapstructure:"consumers"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Geocode   GeocodeConfig   `mapstructure:"geocode"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// BrokerConfig selects and configures the queue transport.
type BrokerConfig struct {
	// Kind is one of "memory", "pubsub", or "redis".
	Kind string `mapstructure:"kind"`
	// ProjectID is required when kind is "pubsub".
	ProjectID string `mapstructure:"project_id"`
	// RedisAddr is required when kind is "redis".
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	// MemoryQueueDepth bounds each in-memory queue.
	MemoryQueueDepth int `mapstructure:"memory_queue_depth"`
}

// ConsumersConfig tunes the stage listeners.
type ConsumersConfig struct {
	Concurrency        int `mapstructure:"concurrency"`
	ReceiveWaitSeconds int `mapstructure:"receive_wait_seconds"`
}

// RetryConfig governs the in-process retry loop on every stage queue.
type RetryConfig struct {
	MaxAttempts      int     `mapstructure:"max_attempts"`
	InitialBackoffMs int     `mapstructure:"initial_backoff_ms"`
	Multiplier       float64 `mapstructure:"multiplier"`
	MaxBackoffMs     int     `mapstructure:"max_backoff_ms"`
}

// SweeperConfig governs the dead-letter sweep cycle.
type SweeperConfig struct {
	IntervalMinutes  int `mapstructure:"interval_minutes"`
	MaxSweepAttempts int `mapstructure:"max_sweep_attempts"`
	MaxPerSweep      int `mapstructure:"max_per_sweep"`
}

// StorageConfig selects and configures the blob store.
type StorageConfig struct {
	// Kind is "gcs" or "memory".
	Kind      string `mapstructure:"kind"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// DBConfig selects and configures case persistence.
type DBConfig struct {
	// Kind is "postgres" or "memory".
	Kind     string `mapstructure:"kind"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// OCRConfig points at the OCR model service.
type OCRConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// GeocodeConfig configures the Kakao Local client.
type GeocodeConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// CrawlerConfig tunes the bulletin-board crawler.
type CrawlerConfig struct {
	UserAgent       string `mapstructure:"user_agent"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	TempDir         string `mapstructure:"temp_dir"`
	TitleSelector   string `mapstructure:"title_selector"`
	ContentSelector string `mapstructure:"content_selector"`
	ImageSelector   string `mapstructure:"image_selector"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CASEFEED")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)
	v.SetDefault("broker.kind", "memory")
	v.SetDefault("broker.memory_queue_depth", 1024)
	v.SetDefault("broker.redis_addr", "localhost:6379")
	v.SetDefault("consumers.concurrency", 4)
	v.SetDefault("consumers.receive_wait_seconds", 1)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 2000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("sweeper.interval_minutes", 15)
	v.SetDefault("sweeper.max_sweep_attempts", 3)
	v.SetDefault("sweeper.max_per_sweep", 500)
	v.SetDefault("storage.kind", "memory")
	v.SetDefault("db.kind", "memory")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("ocr.timeout_seconds", 30)
	v.SetDefault("geocode.timeout_seconds", 10)
	v.SetDefault("crawler.user_agent", "casefeed/1.0")
	v.SetDefault("crawler.timeout_seconds", 15)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Broker.Kind {
	case "memory":
	case "pubsub":
		if c.Broker.ProjectID == "" {
			return fmt.Errorf("broker.project_id must be set when broker.kind is pubsub")
		}
	case "redis":
		if c.Broker.RedisAddr == "" {
			return fmt.Errorf("broker.redis_addr must be set when broker.kind is redis")
		}
	default:
		return fmt.Errorf("broker.kind must be one of memory, pubsub, redis")
	}
	switch c.Storage.Kind {
	case "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.kind is gcs")
		}
	default:
		return fmt.Errorf("storage.kind must be one of memory, gcs")
	}
	switch c.DB.Kind {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.kind is postgres")
		}
	default:
		return fmt.Errorf("db.kind must be one of memory, postgres")
	}
	if c.Consumers.Concurrency <= 0 {
		return fmt.Errorf("consumers.concurrency must be > 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be >= 1")
	}
	if c.Sweeper.IntervalMinutes <= 0 {
		return fmt.Errorf("sweeper.interval_minutes must be > 0")
	}
	if c.Sweeper.MaxSweepAttempts <= 0 {
		return fmt.Errorf("sweeper.max_sweep_attempts must be > 0")
	}
	if c.OCR.Endpoint == "" {
		return fmt.Errorf("ocr.endpoint must be set")
	}
	return nil
}

// ReceiveWait converts the listener receive window into a duration.
func (c ConsumersConfig) ReceiveWait() time.Duration {
	return time.Duration(c.ReceiveWaitSeconds) * time.Second
}

// Interval converts the sweep cadence into a duration.
func (c SweeperConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// InitialBackoff converts the first retry delay into a duration.
func (c RetryConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMs) * time.Millisecond
}

// MaxBackoff converts the retry delay cap into a duration.
func (c RetryConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMs) * time.Millisecond
}
