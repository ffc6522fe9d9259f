package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/sensemaker"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present, so log settings in it apply from the start.
	_ = godotenv.Load()

	logger, closeLog, err := newLogger(os.Getenv("SENSEMAKER_LOG_FILE"), os.Getenv("SENSEMAKER_LOG_LEVEL"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "sensemaker:", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		// The terminal has been released by now; logs may be going to a file.
		fmt.Fprintln(os.Stderr, "sensemaker:", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	app, err := sensemaker.New(
		sensemaker.WithVersion(version),
		sensemaker.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()
	return app.Run(ctx)
}

// newLogger builds the JSON logger. The terminal belongs to the UI, so logs
// go to path when set and are discarded otherwise.
func newLogger(path, level string) (*slog.Logger, func(), error) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	var w io.Writer = io.Discard
	closeFn := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), closeFn, nil
}
