// Package main is the entry point for the reboosty badge server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reboosty/config"
	"reboosty/internal/app"
	"reboosty/internal/logging"
	"reboosty/internal/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Until config is loaded, log with defaults
	if _, err := logging.Setup(logging.Options{}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if _, err := logging.Setup(logging.Options{Format: cfg.Log.Format, Level: cfg.Log.Level}); err != nil {
		slog.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}

	// Log the version immediately on startup
	slog.Info("starting reboosty",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, app.Config{AppConfig: cfg})
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	// Run blocks until the server has drained and the store is closed
	if err := application.Run(ctx, ":"+cfg.Server.Port, shutdownTimeout); err != nil {
		slog.Error("server error", "error", err)
		stop()
		os.Exit(1)
	}
}
