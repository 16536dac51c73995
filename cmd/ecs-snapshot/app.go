package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/plus3/arena/internal/config"
	"github.com/plus3/arena/internal/logging"
	"github.com/plus3/arena/snapshot/store"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

const (
	metaConfig = "config"
	metaLogger = "logger"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "ecs-snapshot",
		Usage:   "Stress and manage versioned ECS world snapshots",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			StressCommand(),
			ListCommand(),
			ShowCommand(),
			DeleteCommand(),
			RestoreCheckCommand(),
		},
		Before:   setup,
		Metadata: map[string]any{},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML configuration file",
			EnvVars: []string{"ARENA_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Snapshot store backend: badger or sqlite",
		},
		&cli.StringFlag{
			Name:  "path",
			Usage: "Snapshot store location (directory for badger, file for sqlite)",
		},
		&cli.IntFlag{
			Name:  "snapshot-version",
			Usage: "Version snapshots are tagged with and restores expect",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
	}
}

// setup loads the configuration, applies flag overrides and builds the logger.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if c.IsSet("backend") {
		cfg.Store.Backend = c.String("backend")
	}
	if c.IsSet("path") {
		cfg.Store.Path = c.String("path")
	}
	if c.IsSet("snapshot-version") {
		cfg.Snapshot.Version = c.Int("snapshot-version")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.Log, c.App.ErrWriter)
	if err != nil {
		return err
	}

	c.App.Metadata[metaConfig] = cfg
	c.App.Metadata[metaLogger] = logger
	return nil
}

func appConfig(c *cli.Context) config.Config {
	if cfg, ok := c.App.Metadata[metaConfig].(config.Config); ok {
		return cfg
	}
	return config.Default()
}

func appLogger(c *cli.Context) *slog.Logger {
	if logger, ok := c.App.Metadata[metaLogger].(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

func openStore(c *cli.Context) (store.Store, error) {
	cfg := appConfig(c)
	s, err := store.Open(cfg.Store.Backend, cfg.Store.Path, appLogger(c))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

// closeStore closes s and folds a close error into err.
func closeStore(s store.Store, err *error) {
	if cerr := s.Close(); cerr != nil {
		*err = errors.Join(*err, cerr)
	}
}
