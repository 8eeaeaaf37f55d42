package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/gnana997/propspec/pkg/config"
	"github.com/gnana997/propspec/pkg/util"
)

// lookupEnv is replaceable for testing.
var lookupEnv = os.LookupEnv

// loadConfig returns the configuration for a command, applying the
// fallback chain:
//  1. Explicit -config flag value
//  2. .propspec/config.yaml in the working directory
//  3. Built-in defaults
//
// PROPSPEC_* environment variables, including those set by a .env file in
// the working directory, override the file.
func loadConfig(path string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var (
		cfg *config.Config
		err error
	)
	switch {
	case path != "":
		cfg, err = config.Load(path)
	case fileExists(config.DefaultPath):
		cfg, err = config.Load(config.DefaultPath)
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(lookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the command logger. Logs always go to stderr; stdout
// carries JSON output and the MCP protocol.
func newLogger(cfg *config.Config, verbose bool, stderr io.Writer) *slog.Logger {
	lc := cfg.LoggerConfig()
	lc.Output = stderr
	if verbose {
		lc.Level = util.LevelDebug
	}
	return util.NewLogger(lc)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
