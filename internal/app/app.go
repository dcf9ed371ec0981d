package app

import (
	"io"
	"log/slog"
	"time"

	"github.com/vk/pkgchain/internal/config"
	"github.com/vk/pkgchain/internal/session"
)

// Config holds everything an App needs to run.
type Config struct {
	// ConfigDir overrides the per-user configuration directory. Empty
	// selects the default.
	ConfigDir string
	// StateDir overrides the session state directory. Empty selects the
	// default.
	StateDir string
	// LogFormat is "text" or "json".
	LogFormat string
	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string
	// Grace is the window between SIGTERM and SIGKILL when processes must
	// be terminated.
	Grace time.Duration
}

// App encapsulates the application's dependencies and lifecycle.
type App struct {
	out    io.Writer
	logger *slog.Logger
	loader *config.Loader
	store  *session.Store
	grace  time.Duration
}

// New constructs a fully initialized App with its own isolated logger.
// Human-facing output goes to out; logs go to logW.
func New(out, logW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)

	configDir := cfg.ConfigDir
	if configDir == "" {
		dir, err := config.DefaultDir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}

	stateDir := cfg.StateDir
	if stateDir == "" {
		dir, err := session.DefaultDir()
		if err != nil {
			return nil, err
		}
		stateDir = dir
	}

	logger.Debug("Application initialized.", "configDir", configDir, "stateDir", stateDir)
	return &App{
		out:    out,
		logger: logger,
		loader: config.NewLoader(configDir),
		store:  session.NewStore(stateDir),
		grace:  cfg.Grace,
	}, nil
}

// Store exposes the session store, primarily for tests.
func (a *App) Store() *session.Store {
	return a.store
}
