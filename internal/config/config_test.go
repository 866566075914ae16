package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/earthring/chunkstream/internal/chunk"
)

func TestLoad(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Test default values
	if config.Server.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", config.Server.Port)
	}
	if config.Processor.BatchSize != 5 {
		t.Errorf("Expected default batch size 5, got %d", config.Processor.BatchSize)
	}
	if config.Processor.IdleDelay != 8*time.Millisecond {
		t.Errorf("Expected default idle delay 8ms, got %v", config.Processor.IdleDelay)
	}
	if config.Workers.SeedTimeout != 5*time.Second {
		t.Errorf("Expected default seed timeout 5s, got %v", config.Workers.SeedTimeout)
	}
	if config.Entities.Enabled() {
		t.Error("Expected entity database disabled by default")
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	t.Setenv("WORLD_CHUNK_SIZE", "32")
	t.Setenv("WORLD_LOAD_RADIUS_X", "3")
	t.Setenv("WORLD_SEED", "12345")
	t.Setenv("WORLD_DEBUG", "true")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("SERVER_TILE_CODEC", "binary_zstd")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if config.World.ChunkSize != 32 {
		t.Errorf("ChunkSize = %d, want 32", config.World.ChunkSize)
	}
	if got := config.World.Radius(); got != (chunk.Radius{X: 3, Y: 2}) {
		t.Errorf("Radius() = %+v, want {3 2}", got)
	}
	meta := config.World.Meta()
	if meta.Seed != "12345" || !meta.Debug || meta.ChunkSize != 32 {
		t.Errorf("Meta() = %+v", meta)
	}
	if !config.Logging.Debug() {
		t.Error("Expected debug logging")
	}
	if config.Server.TileCodec != "binary_zstd" {
		t.Errorf("TileCodec = %q, want binary_zstd", config.Server.TileCodec)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunkstream.yaml")
	body := `
world:
  chunk_size: 8
  tile_size: 32
  seed: "overlay"
processor:
  batch_size: 3
  idle_delay: 20ms
entities:
  driver: sqlite
  dsn: "file:entities.db"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnv, path)
	t.Setenv("WORLD_TILE_SIZE", "64")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if config.World.ChunkSize != 8 || config.World.Seed != "overlay" {
		t.Errorf("YAML values not applied: %+v", config.World)
	}
	if config.World.TileSize != 64 {
		t.Errorf("Environment should override YAML tile size, got %d", config.World.TileSize)
	}
	if config.Processor.BatchSize != 3 || config.Processor.IdleDelay != 20*time.Millisecond {
		t.Errorf("Processor = %+v", config.Processor)
	}
	if config.Server.Port != "8080" {
		t.Errorf("Defaults lost under overlay, port = %s", config.Server.Port)
	}
	if !config.Entities.Enabled() || config.Entities.Driver != "sqlite" {
		t.Errorf("Entities = %+v", config.Entities)
	}
}

func TestLoadMissingYAML(t *testing.T) {
	t.Setenv(ConfigPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero chunk size", func(c *Config) { c.World.ChunkSize = 0 }, true},
		{"negative radius", func(c *Config) { c.World.LoadRadiusY = -1 }, true},
		{"zero batch size", func(c *Config) { c.Processor.BatchSize = 0 }, true},
		{"unknown driver", func(c *Config) { c.Entities.Driver = "mysql"; c.Entities.DSN = "x" }, true},
		{"driver without dsn", func(c *Config) { c.Entities.Driver = "postgres" }, true},
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "short" }, true},
		{"long jwt secret", func(c *Config) { c.Auth.JWTSecret = "0123456789abcdef" }, false},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"zero seed timeout", func(c *Config) { c.Workers.SeedTimeout = 0 }, true},
		{"non-numeric port", func(c *Config) { c.Server.Port = "http" }, true},
		{"zstd tile codec", func(c *Config) { c.Server.TileCodec = "binary_zstd" }, false},
		{"unknown tile codec", func(c *Config) { c.Server.TileCodec = "binary_lz4" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Defaults()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		expected bool
	}{
		{"development", "development", true},
		{"production", "production", false},
		{"staging", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := ServerConfig{Environment: tt.env}
			if config.IsDevelopment() != tt.expected {
				t.Errorf("IsDevelopment() = %v, want %v", config.IsDevelopment(), tt.expected)
			}
			if config.IsProduction() != (tt.env == "production") {
				t.Errorf("IsProduction() = %v for %s", config.IsProduction(), tt.env)
			}
		})
	}
}

func TestGetDurationEnv(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue time.Duration
		expected     time.Duration
	}{
		{"valid duration", "30s", 15 * time.Second, 30 * time.Second},
		{"empty env", "", 15 * time.Second, 15 * time.Second},
		{"invalid duration", "invalid", 15 * time.Second, 15 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.envValue)
			got := getDurationEnv("TEST_DURATION", tt.defaultValue)
			if got != tt.expected {
				t.Errorf("getDurationEnv() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		envValue string
		expected bool
	}{
		{"true", true},
		{"1", true},
		{"false", false},
		{"", true},
		{"maybe", true},
	}

	for _, tt := range tests {
		t.Run(tt.envValue, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.envValue)
			if got := getBoolEnv("TEST_BOOL", true); got != tt.expected {
				t.Errorf("getBoolEnv(%q) = %v, want %v", tt.envValue, got, tt.expected)
			}
		})
	}
}
