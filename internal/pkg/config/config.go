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
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
	Terrain   TerrainConfig   `mapstructure:"terrain"`
	Snap      SnapConfig      `mapstructure:"snap"`
	Draw      DrawConfig      `mapstructure:"draw"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Enrich    EnrichConfig    `mapstructure:"enrich"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	OTLPAddr    string `mapstructure:"otlp_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TerrainConfig configures the terrain-RGB tile source.
type TerrainConfig struct {
	URLTemplate     string `mapstructure:"url_template"`
	Zoom            int    `mapstructure:"zoom"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	Retries         int    `mapstructure:"retries"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
	MemoryTiles     int    `mapstructure:"memory_tiles"`
	Concurrency     int    `mapstructure:"concurrency"`
}

func (t TerrainConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

type SnapConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	RadiusMeters float64 `mapstructure:"radius_meters"`
}

type DrawConfig struct {
	SessionTTLMinutes    int `mapstructure:"session_ttl_minutes"`
	SettleTimeoutSeconds int `mapstructure:"settle_timeout_seconds"`
}

func (d DrawConfig) SessionTTL() time.Duration {
	return time.Duration(d.SessionTTLMinutes) * time.Minute
}

func (d DrawConfig) SettleTimeout() time.Duration {
	return time.Duration(d.SettleTimeoutSeconds) * time.Second
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type EnrichConfig struct {
	SpacingMeters float64 `mapstructure:"spacing_meters"`
}

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

	// Environment variables: ATLAS_TERRAIN_URL_TEMPLATE → terrain.url_template
	v.SetEnvPrefix("ATLAS")
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
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "atlas")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "atlas")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("terrain.url_template", "https://api.mapbox.com/v4/mapbox.terrain-rgb/{z}/{x}/{y}.pngraw")
	v.SetDefault("terrain.zoom", 14)
	v.SetDefault("terrain.timeout_seconds", 5)
	v.SetDefault("terrain.retries", 2)
	v.SetDefault("terrain.cache_ttl_seconds", 86400)
	v.SetDefault("terrain.memory_tiles", 256)
	v.SetDefault("terrain.concurrency", 8)
	v.SetDefault("snap.enabled", true)
	v.SetDefault("snap.radius_meters", 30)
	v.SetDefault("draw.session_ttl_minutes", 30)
	v.SetDefault("draw.settle_timeout_seconds", 10)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "segment-enrichment")
	v.SetDefault("enrich.spacing_meters", 25)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if !strings.Contains(c.Terrain.URLTemplate, "{z}") ||
		!strings.Contains(c.Terrain.URLTemplate, "{x}") ||
		!strings.Contains(c.Terrain.URLTemplate, "{y}") {
		errs = append(errs, "terrain.url_template must contain {z}, {x} and {y}")
	}
	if c.Terrain.Zoom < 0 || c.Terrain.Zoom > 22 {
		errs = append(errs, fmt.Sprintf("terrain.zoom must be 0-22, got %d", c.Terrain.Zoom))
	}
	if c.Terrain.TimeoutSeconds <= 0 {
		errs = append(errs, "terrain.timeout_seconds must be positive")
	}
	if c.Terrain.Retries < 0 {
		errs = append(errs, "terrain.retries must not be negative")
	}
	if c.Terrain.Concurrency <= 0 {
		errs = append(errs, "terrain.concurrency must be positive")
	}
	if c.Snap.RadiusMeters <= 0 {
		errs = append(errs, "snap.radius_meters must be positive")
	}
	if c.Draw.SessionTTLMinutes <= 0 {
		errs = append(errs, "draw.session_ttl_minutes must be positive")
	}
	if c.Enrich.SpacingMeters <= 0 {
		errs = append(errs, "enrich.spacing_meters must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
