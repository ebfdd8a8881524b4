package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/fonix232/caddy/internal/app"
	"github.com/fonix232/caddy/internal/config"
	"github.com/fonix232/caddy/internal/logging"
)

func main() {
	var daemon bool
	flag.BoolVar(&daemon, "daemon", false, "run the check on an interval and serve the status endpoint")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("application setup failed", "error", err)
		os.Exit(1)
	}
	if daemon {
		err = application.RunDaemon(ctx)
	} else {
		err = application.RunOnce(ctx)
	}

	if closeErr := application.Close(); closeErr != nil {
		logger.Warn("cleanup failed", "error", closeErr)
	}

	if err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
