package main

import (
	"context"
	"log/slog"
	"os"

	"ridex/internal/app"
	"ridex/internal/config"
	"ridex/internal/infrastructure"
)

func main() {
	os.Exit(run(context.Background()))
}

// run returns the process exit code so deferred cleanup happens before os.Exit
func run(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		return 1
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", slog.String("error", err.Error()))
		return 1
	}
	defer infrastructure.CloseLogFile()

	// Create application instance
	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", slog.String("error", err.Error()))
		return 1
	}

	return application.Run(ctx)
}
