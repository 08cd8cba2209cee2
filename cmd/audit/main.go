// Command audit runs resumable axe-core and Lighthouse scans against a site.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/convtrack/internal/config"
	"github.com/okian/convtrack/pkg/logger"
)

func main() {
	if err := logger.InitWith(os.Stderr, logger.FormatText); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
	}

	root := newRootCmd(cfg, defaultTools())
	root.SetOut(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Get().Error(ctx, "audit failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}
