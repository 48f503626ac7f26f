// Package app wires configuration, logging and the command tree of the
// vysync CLI.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/centroplan/vysync/pkg/logging"
)

// App is the CLI application state shared by all commands.
type App struct {
	version string
	config  *Config
	logger  *zerolog.Logger
}

// New creates the application and loads its configuration.
func New(version string) (*App, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	logger := NewLogger(config)
	logging.SetDefault(logger)

	return &App{
		version: version,
		config:  config,
		logger:  &logger,
	}, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// ContextWithSignals returns a context cancelled on SIGINT/SIGTERM so
// a running pass can stop between entities.
func ContextWithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// ExitOnError prints the error to stderr and exits with status 1.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}
