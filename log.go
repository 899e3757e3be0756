package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "cuecast").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cuecast.log"), nil
}

// setupLog configures the default logger. Interactive sessions log to a
// file only, since stderr belongs to the TUI; everything else logs to
// stderr and, when a file is configured, to the file as well.
func setupLog(debug bool, file string, interactive bool) (func() error, error) {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	log.SetReportTimestamp(debug)

	if file == "" && interactive {
		var err error
		if file, err = getLogFilePath(); err != nil {
			log.SetOutput(io.Discard)
			return func() error { return nil }, nil //nolint:nilerr
		}
	}
	if file == "" {
		log.SetOutput(os.Stderr)
		return func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}

	if interactive {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}
	return f.Close, nil
}
