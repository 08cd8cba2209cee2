package simulate

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/convtrack/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging initializes the global logger writing to stdout and, when
// logFile is set, to that file as well. The returned func closes the file.
func SetupLogging(logFile string, verbose bool) (func(), error) {
	var (
		w       io.Writer = os.Stdout
		closeFn           = func() {}
	)
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return closeFn, fmt.Errorf("failed to create log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, file)
		closeFn = func() { _ = file.Close() }
	}
	if err := logger.InitWith(w, logger.FormatText); err != nil {
		closeFn()
		return func() {}, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	if logFile != "" {
		logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	}
	return closeFn, nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Convtrack Session Simulator
===========================

Drives synthetic visitor sessions through real trackers against a running
collector and checks that every event sent is stored.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Base URL of the collector (default "http://localhost:9080")
  -visitors int
        Number of visitor sessions (default 200)
  -workers int
        Number of concurrent visitors (default CPU cores * 2)
  -timeout duration
        HTTP request timeout and stats wait (default 10s)
  -page string
        HTML page to browse (default: built-in landing page)
  -storage string
        Badger directory for visitor localStorage (default: in memory)
  -seed int
        Random seed (default: current time)
  -log string
        Also write logs to this file
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Simulate with default settings
  go run ./cmd/simulate

  # Keep visitor identities between runs so some come back as returning
  go run ./cmd/simulate -visitors 1000 -storage .simulate

  # Replay the same visitor behavior
  go run ./cmd/simulate -seed 42 -verbose
`)
}
