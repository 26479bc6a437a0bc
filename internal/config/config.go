// Package config loads voxelroom settings.
//
// Settings are layered: compiled-in defaults, then an optional YAML file,
// then VOXELROOM_* environment variables. The merged result is validated
// against an embedded CUE schema before use.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/roach88/voxelroom/internal/room"
	"github.com/roach88/voxelroom/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. VOXELROOM_STORE_DRIVER.
const EnvPrefix = "VOXELROOM"

// Config is the complete process configuration.
type Config struct {
	Listen string       `yaml:"listen"`
	Store  StoreConfig  `yaml:"store"`
	Room   RoomConfig   `yaml:"room"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// StoreConfig selects the durable backend.
type StoreConfig struct {
	// Driver is one of store.Drivers.
	Driver string `yaml:"driver"`

	// DSN is a file path (sqlite), directory (leveldb) or URL (redis,
	// postgres). Unused by memory.
	DSN string `yaml:"dsn"`
}

// RoomConfig tunes every room coordinator.
type RoomConfig struct {
	MaxBatch       int           `yaml:"maxBatch" split_words:"true"`
	BucketCapacity int           `yaml:"bucketCapacity" split_words:"true"`
	RefillInterval time.Duration `yaml:"refillInterval" split_words:"true"`
	FlushDelay     time.Duration `yaml:"flushDelay" split_words:"true"`
	IdleTimeout    time.Duration `yaml:"idleTimeout" split_words:"true"`
	PersistTimeout time.Duration `yaml:"persistTimeout" split_words:"true"`
}

// ServerConfig tunes the WebSocket transport.
type ServerConfig struct {
	// OutboxSize is the number of frames buffered per connection before
	// it is dropped as a slow consumer.
	OutboxSize   int           `yaml:"outboxSize" split_words:"true"`
	WriteTimeout time.Duration `yaml:"writeTimeout" split_words:"true"`
	PingInterval time.Duration `yaml:"pingInterval" split_words:"true"`
	ReadLimit    int64         `yaml:"readLimit" split_words:"true"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	limits := room.DefaultLimits()
	return Config{
		Listen: ":8080",
		Store:  StoreConfig{Driver: store.DriverMemory},
		Room: RoomConfig{
			MaxBatch:       limits.MaxBatch,
			BucketCapacity: limits.BucketCapacity,
			RefillInterval: limits.RefillInterval,
			FlushDelay:     limits.FlushDelay,
			IdleTimeout:    room.DefaultIdleTimeout,
			PersistTimeout: limits.PersistTimeout,
		},
		Server: ServerConfig{
			OutboxSize:   256,
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,
			ReadLimit:    64 << 10,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeYAML overlays data onto cfg, rejecting unknown keys. An empty
// document leaves cfg unchanged.
func decodeYAML(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks cfg against the schema and cross-field rules.
func (c Config) Validate() error {
	if err := validateSchema(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store.Driver != store.DriverMemory && strings.TrimSpace(c.Store.DSN) == "" {
		return fmt.Errorf("invalid config: store driver %q requires a dsn", c.Store.Driver)
	}
	return nil
}

// Limits returns the per-room limits.
func (c Config) Limits() room.Limits {
	return room.Limits{
		MaxBatch:       c.Room.MaxBatch,
		BucketCapacity: c.Room.BucketCapacity,
		RefillInterval: c.Room.RefillInterval,
		FlushDelay:     c.Room.FlushDelay,
		PersistTimeout: c.Room.PersistTimeout,
	}
}

// Logger builds a slog logger writing to w.
func (l LogConfig) Logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch l.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q: want text or json", l.Format)
	}
}
