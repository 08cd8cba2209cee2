package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/convtrack/internal/simulate"
)

// Default configuration constants.
const (
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", simulate.DefaultBaseURL, "Base URL of the collector")
		visitors    = flag.Int("visitors", simulate.DefaultVisitors, "Number of visitor sessions")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent visitors")
		timeout     = flag.Duration("timeout", simulate.DefaultTimeout, "HTTP request timeout and stats wait")
		pagePath    = flag.String("page", "", "HTML page to browse (default: built-in landing page)")
		storagePath = flag.String("storage", "", "Badger directory for visitor localStorage (default: in memory)")
		seed        = flag.Int64("seed", 0, "Random seed (default: current time)")
		logFile     = flag.String("log", "", "Also write logs to this file")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	closeLog, err := simulate.SetupLogging(*logFile, *verbose)
	if err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)

	config := &simulate.Config{
		BaseURL:     *baseURL,
		Visitors:    *visitors,
		Workers:     *workers,
		Timeout:     *timeout,
		PagePath:    *pagePath,
		StoragePath: *storagePath,
		Seed:        *seed,
		LogFile:     *logFile,
		Verbose:     *verbose,
	}

	_, err = simulate.Run(ctx, config)
	cancel()
	stop()
	closeLog()
	if err != nil {
		_, _ = os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
