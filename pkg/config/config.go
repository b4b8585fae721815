// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Expansion, Cache, Modules, Redis, Kafka, Postgres, etc.).
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Expansion ExpansionConfig `yaml:"expansion"`
	Cache     CacheConfig     `yaml:"cache"`
	Modules   []ModuleConfig  `yaml:"modules"`
	Storage   StorageConfig   `yaml:"storage"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	CORS      CORSConfig      `yaml:"cors"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Bind            string        `yaml:"bind"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Bind, s.Port)
}

// ExpansionConfig controls the dispatcher: fan-out width, per-module
// deadlines, merge truncation and per-module circuit breakers.
type ExpansionConfig struct {
	TopN          int           `yaml:"topN"`
	ModuleTimeout time.Duration `yaml:"moduleTimeout"`
	Concurrency   int           `yaml:"concurrency"`
	Normalize     bool          `yaml:"normalize"`
	Breaker       BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker wrapped around each module.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
	HalfOpenMaxCalls int           `yaml:"halfOpenMaxCalls"`
}

// CacheConfig controls the suggestion cache. The in-process LRU is always
// used when enabled; Redis is added as a shared tier when UseRedis is set.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Size     int           `yaml:"size"`
	TTL      time.Duration `yaml:"ttl"`
	UseRedis bool          `yaml:"useRedis"`
}

// ModuleConfig describes one expansion module instance. Params carries the
// type-specific settings and is decoded strictly by the module factory.
type ModuleConfig struct {
	ID     string         `yaml:"id"`
	Name   string         `yaml:"name"`
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params"`
}

// DisplayName returns Name, falling back to ID.
func (m ModuleConfig) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// StorageConfig holds the S3-compatible endpoint used for s3:// lexicons.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"useSSL"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
	// Compression is one of none, gzip, snappy, lz4, zstd.
	Compression string `yaml:"compression"`
	// StartOffset is where a new consumer group begins: earliest or latest.
	StartOffset string `yaml:"startOffset"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ExpansionEvents string `yaml:"expansionEvents"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
	// OpTimeout bounds each cache read and write.
	OpTimeout time.Duration `yaml:"opTimeout"`
}

// AnalyticsConfig controls expansion event collection and the aggregator.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BufferSize       int           `yaml:"bufferSize"`
	Port             int           `yaml:"port"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	RetainSnapshots  int           `yaml:"retainSnapshots"`
}

// RateLimitConfig controls the per-client token bucket in front of the API.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// CORSConfig controls cross-origin headers.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
	AllowedMethods []string `yaml:"allowedMethods"`
	AllowedHeaders []string `yaml:"allowedHeaders"`
	MaxAge         int      `yaml:"maxAge"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

var moduleIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ValidModuleID reports whether id is a legal module identifier: non-empty,
// alphanumeric, no separators.
func ValidModuleID(id string) bool {
	return moduleIDPattern.MatchString(id)
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Parse decodes YAML data over cfg.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return apperrors.Configf("%v", err)
	}
	return nil
}

// Validate checks the module set and expansion settings. A misconfigured
// module set must never run partially, so every problem is an ErrConfig.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Modules))
	for i, m := range c.Modules {
		if !ValidModuleID(m.ID) {
			return apperrors.Configf("modules[%d]: invalid id %q (alphanumeric only)", i, m.ID)
		}
		if m.Type == "" {
			return apperrors.Configf("module %s: missing type", m.ID)
		}
		if _, dup := seen[m.ID]; dup {
			return apperrors.Configf("duplicate module id %q", m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	if c.Expansion.TopN < 0 {
		return apperrors.Configf("expansion.topN must not be negative")
	}
	if c.Expansion.Concurrency <= 0 {
		return apperrors.Configf("expansion.concurrency must be positive")
	}
	if c.Expansion.ModuleTimeout < 0 {
		return apperrors.Configf("expansion.moduleTimeout must not be negative")
	}
	if c.Cache.Enabled && c.Cache.Size <= 0 {
		return apperrors.Configf("cache.size must be positive when the cache is enabled")
	}
	switch c.Kafka.Compression {
	case "", "none", "gzip", "snappy", "lz4", "zstd":
	default:
		return apperrors.Configf("kafka.compression: unknown codec %q", c.Kafka.Compression)
	}
	switch c.Kafka.StartOffset {
	case "", "earliest", "latest":
	default:
		return apperrors.Configf("kafka.startOffset must be earliest or latest")
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Bind:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Expansion: ExpansionConfig{
			TopN:          10,
			ModuleTimeout: 2 * time.Second,
			Concurrency:   16,
			Breaker: BreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
				HalfOpenMaxCalls: 1,
			},
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    10000,
			TTL:     5 * time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "queryexpansion",
			User:            "queryexpansion",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "queryexpansion-analytics",
			Topics: KafkaTopics{
				ExpansionEvents: "expansion-events",
			},
			Compression: "lz4",
			StartOffset: "latest",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			OpTimeout: 100 * time.Millisecond,
		},
		Analytics: AnalyticsConfig{
			BufferSize:       1000,
			Port:             8083,
			SnapshotInterval: time.Minute,
			RetainSnapshots:  1440,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
			MaxAge:         86400,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads QE_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QE_SERVER_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("QE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("QE_EXPANSION_TOP_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Expansion.TopN = n
		}
	}
	if v := os.Getenv("QE_EXPANSION_MODULE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Expansion.ModuleTimeout = d
		}
	}
	if v := os.Getenv("QE_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = b
		}
	}
	if v := os.Getenv("QE_CACHE_USE_REDIS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.UseRedis = b
		}
	}
	if v := os.Getenv("QE_STORAGE_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv("QE_STORAGE_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("QE_STORAGE_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}
	if v := os.Getenv("QE_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("QE_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("QE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("QE_ANALYTICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Analytics.Enabled = b
		}
	}
	if v := os.Getenv("QE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("QE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("QE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("QE_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
