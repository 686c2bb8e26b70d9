package main

import (
	"context"
	"fmt"
	"os"

	"ronpa-server/internal/app"
	"ronpa-server/internal/config"
	"ronpa-server/shared/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := app.Serve(context.Background(), cfg, log); err != nil {
		log.Fatal("Server stopped with error", zap.Error(err))
	}
}
