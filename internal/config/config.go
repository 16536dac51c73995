// Package config loads ecs-snapshot configuration.
//
// Sources are layered with koanf, later ones overriding earlier ones:
// built-in defaults, an optional YAML file, then ARENA_* environment
// variables (ARENA_STORE_BACKEND sets store.backend). Command-line flags are
// applied by the caller on top of the loaded Config.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the environment variable prefix.
const DefaultEnvPrefix = "ARENA_"

// Config is the full application configuration.
type Config struct {
	Snapshot SnapshotConfig `koanf:"snapshot"`
	Store    StoreConfig    `koanf:"store"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// SnapshotConfig configures the snapshot manager.
type SnapshotConfig struct {
	// Version is the schema version snapshots are tagged with and restores expect.
	Version int `koanf:"version"`
}

// StoreConfig selects where snapshots are persisted.
type StoreConfig struct {
	Backend string `koanf:"backend"` // badger or sqlite
	Path    string `koanf:"path"`
	// Keep is how many snapshots to retain; 0 keeps everything.
	Keep int `koanf:"keep"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or text
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address serving /metrics; empty disables it.
	Listen string `koanf:"listen"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Snapshot: SnapshotConfig{Version: 1},
		Store: StoreConfig{
			Backend: "badger",
			Path:    "./snapshots",
			Keep:    10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultsMap() map[string]any {
	d := Default()
	return map[string]any{
		"snapshot": map[string]any{
			"version": d.Snapshot.Version,
		},
		"store": map[string]any{
			"backend": d.Store.Backend,
			"path":    d.Store.Path,
			"keep":    d.Store.Keep,
		},
		"log": map[string]any{
			"level":  d.Log.Level,
			"format": d.Log.Format,
		},
		"metrics": map[string]any{
			"listen": d.Metrics.Listen,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (if not empty)
// and the environment.
func Load(path string) (Config, error) {
	return load(path, DefaultEnvPrefix)
}

func load(path, envPrefix string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(mapProvider(defaultsMap()), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load file %s: %w", path, err)
		}
	}

	envTransformer := func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "_", ".")
	}
	if err := k.Load(env.Provider(envPrefix, ".", envTransformer), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the tool cannot work with.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case "badger", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("store.backend must be badger or sqlite, got %q", c.Store.Backend))
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Store.Keep < 0 {
		errs = append(errs, fmt.Errorf("store.keep must not be negative, got %d", c.Store.Keep))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

var errReadBytesNotSupported = errors.New("config: ReadBytes not supported by map provider")

// mapProvider is a koanf provider serving an in-memory nested map.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytesNotSupported
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
