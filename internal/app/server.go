package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ronpa-server/internal/config"
	delivery "ronpa-server/internal/delivery/http"
	ws "ronpa-server/internal/delivery/websocket"

	"go.uber.org/zap"
)

// Serve runs the HTTP and websocket server until SIGINT/SIGTERM.
func Serve(parent context.Context, cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = TaskContext(ctx, cfg.Logger)

	engine, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	wsManager := ws.NewManager(cfg.Server.AllowedOrigins, log)
	go wsManager.Run(ctx)

	sessions := engine.NewSessionManager(ctx, wsManager)
	defer sessions.CloseAll()

	handler := delivery.NewHandler(sessions, engine.Store, engine.Archive, engine.Sandbox, log)
	router := delivery.NewRouter(delivery.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Release:        cfg.AppEnv == "production",
	}, handler, wsManager.Handle, log)

	if cfg.Avatar.SavePath != "" {
		router.Static("/avatars", cfg.Avatar.SavePath)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("Server exited gracefully")
	return nil
}
