package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/earthring/chunkstream/internal/chunk"
	"github.com/earthring/chunkstream/internal/generator"
)

// ConfigPathEnv names the optional YAML file applied before environment
// overrides.
const ConfigPathEnv = "CHUNKSTREAM_CONFIG"

// Config holds all configuration for the chunkstream server
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	World     WorldConfig     `yaml:"world"`
	Workers   WorkerConfig    `yaml:"workers"`
	Processor ProcessorConfig `yaml:"processor"`
	Entities  EntitiesConfig  `yaml:"entities"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port" validate:"required,numeric"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	Environment  string        `yaml:"environment" validate:"oneof=development staging production test"`
	TileCodec    string        `yaml:"tile_codec" validate:"oneof=binary_gzip binary_zstd"`
}

// WorldConfig is the immutable per-session world layout.
type WorldConfig struct {
	ChunkSize   int    `yaml:"chunk_size" validate:"min=1,max=256"`
	TileSize    int    `yaml:"tile_size" validate:"min=1,max=1024"`
	LoadRadiusX int    `yaml:"load_radius_x" validate:"min=0,max=64"`
	LoadRadiusY int    `yaml:"load_radius_y" validate:"min=0,max=64"`
	Seed        string `yaml:"seed"`
	Debug       bool   `yaml:"debug"`
}

// WorkerConfig sizes the generation worker pool. PoolSize 0 picks a size
// from the CPU count.
type WorkerConfig struct {
	PoolSize    int           `yaml:"pool_size" validate:"min=0,max=64"`
	SeedTimeout time.Duration `yaml:"seed_timeout"`
}

// ProcessorConfig controls queue draining.
type ProcessorConfig struct {
	BatchSize int           `yaml:"batch_size" validate:"min=1,max=64"`
	IdleDelay time.Duration `yaml:"idle_delay"`
}

// EntitiesConfig selects where per-chunk entities are read from. An empty
// driver disables entity retrieval.
type EntitiesConfig struct {
	Driver          string        `yaml:"driver" validate:"omitempty,oneof=postgres sqlite"`
	DSN             string        `yaml:"dsn"`
	MaxConnections  int           `yaml:"max_connections" validate:"min=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AuthConfig holds observer token configuration. An empty secret leaves the
// observer stream open.
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	JWTExpiration time.Duration `yaml:"jwt_expiration"`
}

// RateLimitConfig holds HTTP rate limit configuration
type RateLimitConfig struct {
	Limit  int           `yaml:"limit" validate:"min=1"`
	Window time.Duration `yaml:"window"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// Defaults returns the configuration used when nothing else is set.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         "8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
			Environment:  "development",
			TileCodec:    "binary_gzip",
		},
		World: WorldConfig{
			ChunkSize:   16,
			TileSize:    16,
			LoadRadiusX: 2,
			LoadRadiusY: 2,
			Seed:        "chunkstream",
		},
		Workers: WorkerConfig{
			SeedTimeout: 5 * time.Second,
		},
		Processor: ProcessorConfig{
			BatchSize: 5,
			IdleDelay: 8 * time.Millisecond,
		},
		Entities: EntitiesConfig{
			MaxConnections:  25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Auth: AuthConfig{
			JWTExpiration: time.Hour,
		},
		RateLimit: RateLimitConfig{
			Limit:  600,
			Window: time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from defaults, an optional YAML file named by
// CHUNKSTREAM_CONFIG, the .env file and the environment, in that order of
// increasing precedence.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found (this is OK if using environment variables): %v", err)
	}

	config := Defaults()
	if path := strings.TrimSpace(os.Getenv(ConfigPathEnv)); path != "" {
		if err := config.loadYAML(path); err != nil {
			return nil, err
		}
	}
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

func (c *Config) loadYAML(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getDurationEnv("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.Environment = getEnv("ENVIRONMENT", c.Server.Environment)
	c.Server.TileCodec = getEnv("SERVER_TILE_CODEC", c.Server.TileCodec)

	c.World.ChunkSize = getIntEnv("WORLD_CHUNK_SIZE", c.World.ChunkSize)
	c.World.TileSize = getIntEnv("WORLD_TILE_SIZE", c.World.TileSize)
	c.World.LoadRadiusX = getIntEnv("WORLD_LOAD_RADIUS_X", c.World.LoadRadiusX)
	c.World.LoadRadiusY = getIntEnv("WORLD_LOAD_RADIUS_Y", c.World.LoadRadiusY)
	c.World.Seed = getEnv("WORLD_SEED", c.World.Seed)
	c.World.Debug = getBoolEnv("WORLD_DEBUG", c.World.Debug)

	c.Workers.PoolSize = getIntEnv("WORKER_POOL_SIZE", c.Workers.PoolSize)
	c.Workers.SeedTimeout = getDurationEnv("WORKER_SEED_TIMEOUT", c.Workers.SeedTimeout)

	c.Processor.BatchSize = getIntEnv("PROCESSOR_BATCH_SIZE", c.Processor.BatchSize)
	c.Processor.IdleDelay = getDurationEnv("PROCESSOR_IDLE_DELAY", c.Processor.IdleDelay)

	c.Entities.Driver = getEnv("ENTITY_DB_DRIVER", c.Entities.Driver)
	c.Entities.DSN = getEnv("ENTITY_DB_DSN", c.Entities.DSN)
	c.Entities.MaxConnections = getIntEnv("ENTITY_DB_MAX_CONNECTIONS", c.Entities.MaxConnections)
	c.Entities.MaxIdleConns = getIntEnv("ENTITY_DB_MAX_IDLE_CONNS", c.Entities.MaxIdleConns)
	c.Entities.ConnMaxLifetime = getDurationEnv("ENTITY_DB_CONN_MAX_LIFETIME", c.Entities.ConnMaxLifetime)

	c.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTExpiration = getDurationEnv("AUTH_JWT_EXPIRATION", c.Auth.JWTExpiration)

	c.RateLimit.Limit = getIntEnv("RATE_LIMIT", c.RateLimit.Limit)
	c.RateLimit.Window = getDurationEnv("RATE_LIMIT_WINDOW", c.RateLimit.Window)

	c.Logging.Level = strings.ToLower(getEnv("LOG_LEVEL", c.Logging.Level))
}

// Validate checks field ranges and the constraints that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			fe := ve[0]
			return fmt.Errorf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	if c.Entities.Driver != "" && c.Entities.DSN == "" {
		return fmt.Errorf("ENTITY_DB_DSN is required when ENTITY_DB_DRIVER is %q", c.Entities.Driver)
	}
	if c.Workers.SeedTimeout <= 0 {
		return fmt.Errorf("WORKER_SEED_TIMEOUT must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 16 characters")
	}
	return nil
}

// Meta returns the generation settings shared by every chunk of a session.
func (w WorldConfig) Meta() generator.Meta {
	return generator.Meta{
		ChunkSize: w.ChunkSize,
		TileSize:  w.TileSize,
		Seed:      w.Seed,
		Debug:     w.Debug,
	}
}

// Radius returns the load radius in chunks.
func (w WorldConfig) Radius() chunk.Radius {
	return chunk.Radius{X: uint(w.LoadRadiusX), Y: uint(w.LoadRadiusY)}
}

// Addr is the listen address.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// IsDevelopment returns true if running in development mode
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Enabled reports whether an entity database is configured.
func (c *EntitiesConfig) Enabled() bool {
	return c.Driver != ""
}

// Debug reports whether debug logging is on.
func (c *LoggingConfig) Debug() bool {
	return c.Level == "debug"
}

// Helper functions for environment variable access

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid integer value for %s: %s, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return intValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: invalid boolean value for %s: %s, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return boolValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid duration value for %s: %s, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return duration
}
