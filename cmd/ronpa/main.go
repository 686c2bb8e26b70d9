package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ronpa-server/internal/app"
	"ronpa-server/internal/config"
	"ronpa-server/shared/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "ronpa",
		Short:         "Terminal client for the killing game narration engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newPlayCmd(),
		newSlotsCmd(),
		newArchiveCmd(),
		newSandboxCmd(),
		newServeCmd(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// session - собранный движок для одной команды.
type session struct {
	cfg    *config.Config
	log    *zap.Logger
	engine *app.App
	ctx    context.Context
}

func (s *session) Close() {
	s.engine.Close()
	_ = s.log.Sync()
}

// openSession loads configuration and wires the engine.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	ctx := app.TaskContext(cmd.Context(), cfg.Logger)
	engine, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, log: log, engine: engine, ctx: ctx}, nil
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return app.Serve(cmd.Context(), cfg, log)
		},
	}
}
