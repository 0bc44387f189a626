package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Search    SearchConfig    `mapstructure:"search"`
	Cache     CacheConfig     `mapstructure:"cache"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OracleConfig configures the OSRM table client.
type OracleConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxCoordinates    int           `mapstructure:"max_coordinates"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	MaxConcurrency    int           `mapstructure:"max_concurrency"`
}

// SearchConfig holds the default search tunables. Requests may override them.
type SearchConfig struct {
	GridSize              int     `mapstructure:"grid_size"`
	PaddingKm             float64 `mapstructure:"padding_km"`
	TopM                  int     `mapstructure:"top_m"`
	RefinementDedupMeters float64 `mapstructure:"refinement_dedup_meters"`
	RefinementRadiusKm    float64 `mapstructure:"refinement_radius_km"`
	FineGridResolution    int     `mapstructure:"fine_grid_resolution"`
	DedupThresholdMeters  float64 `mapstructure:"dedup_threshold_meters"`
	EnableLocalRefinement bool    `mapstructure:"enable_local_refinement"`
	IncludeVariance       bool    `mapstructure:"include_variance"`
}

// CacheConfig selects the matrix cache backend: valkey, redis or none.
type CacheConfig struct {
	Backend         string  `mapstructure:"backend"`
	Addr            string  `mapstructure:"addr"`
	TTLSeconds      int     `mapstructure:"ttl_seconds"`
	PrecisionMeters float64 `mapstructure:"precision_meters"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Enabled      bool   `mapstructure:"enabled"`
}

var cacheBackends = map[string]bool{"valkey": true, "redis": true, "none": true}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: MEETPOINT_ORACLE_BASE_URL → oracle.base_url
	v.SetEnvPrefix("MEETPOINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 120)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("oracle.base_url", "https://router.project-osrm.org")
	v.SetDefault("oracle.timeout", 30*time.Second)
	v.SetDefault("oracle.requests_per_second", 1.0)
	v.SetDefault("oracle.burst", 1)
	v.SetDefault("oracle.max_coordinates", 100)
	v.SetDefault("oracle.retry_delay", 500*time.Millisecond)
	v.SetDefault("oracle.max_concurrency", 4)
	v.SetDefault("search.grid_size", 5)
	v.SetDefault("search.padding_km", 5.0)
	v.SetDefault("search.top_m", 5)
	v.SetDefault("search.refinement_dedup_meters", 500.0)
	v.SetDefault("search.refinement_radius_km", 2.0)
	v.SetDefault("search.fine_grid_resolution", 5)
	v.SetDefault("search.dedup_threshold_meters", 100.0)
	v.SetDefault("search.enable_local_refinement", true)
	v.SetDefault("search.include_variance", false)
	v.SetDefault("cache.backend", "valkey")
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.ttl_seconds", 86400)
	v.SetDefault("cache.precision_meters", 100.0)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", true)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "meetpoint")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_endpoint", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Oracle.BaseURL == "" {
		errs = append(errs, "oracle.base_url is required")
	}
	if c.Oracle.Timeout <= 0 {
		errs = append(errs, "oracle.timeout must be positive")
	}
	if c.Oracle.RequestsPerSecond < 0 {
		errs = append(errs, "oracle.requests_per_second must not be negative")
	}
	if c.Oracle.MaxConcurrency <= 0 {
		errs = append(errs, "oracle.max_concurrency must be positive")
	}
	if c.Search.GridSize < 1 {
		errs = append(errs, fmt.Sprintf("search.grid_size must be at least 1, got %d", c.Search.GridSize))
	}
	if c.Search.PaddingKm < 0 {
		errs = append(errs, "search.padding_km must not be negative")
	}
	if !cacheBackends[c.Cache.Backend] {
		errs = append(errs, fmt.Sprintf("cache.backend must be valkey, redis or none, got %q", c.Cache.Backend))
	}
	if c.Cache.Backend != "none" && c.Cache.Addr == "" {
		errs = append(errs, "cache.addr is required unless cache.backend is none")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required when nats is enabled")
	}
	if c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal.task_queue is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
