// Package app собирает зависимости движка из конфигурации. Используется
// и HTTP-сервером, и терминальным клиентом.
package app

import (
	"context"
	"fmt"
	"io"

	"ronpa-server/internal/config"
	"ronpa-server/internal/domain"
	"ronpa-server/internal/service"
	"ronpa-server/pkg/ai"
	"ronpa-server/pkg/migration"
	"ronpa-server/pkg/speech"
	"ronpa-server/shared/database"
	"ronpa-server/shared/interfaces"
	"ronpa-server/shared/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App - собранный движок.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	KV      interfaces.KVStore
	Store   *service.SessionStore
	Archive *service.Archive
	Host    *ai.Host
	Avatars interfaces.AvatarGenerator // nil, если аватары выключены
	Speaker *speech.CommandSpeaker
	Phases  *domain.PhaseDetector
	Setup   *service.SetupService
	Sandbox *service.SandboxService

	closer io.Closer
}

// New wires storage, AI clients and services. ctx is used for start-up I/O
// only (pings, migrations, archive load).
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	kv, closer, err := OpenKVStore(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: log, KV: kv, closer: closer}

	a.Store = service.NewSessionStore(kv, log)
	a.Archive, err = service.NewArchive(ctx, a.Store, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load archive: %w", err)
	}

	a.Host, err = NewHost(ctx, cfg.AI, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	triggers := domain.DefaultPhaseTriggers()
	if len(cfg.Phases.Triggers) > 0 {
		triggers, err = domain.ParsePhaseTriggers(cfg.Phases.Triggers)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("phase triggers: %w", err)
		}
	}
	a.Phases = domain.NewPhaseDetector(triggers)

	if cfg.Avatar.Enabled {
		a.Avatars = ai.NewAvatarGenerator(ai.AvatarConfig{
			BaseURL:       cfg.Avatar.BaseURL,
			Size:          cfg.Avatar.Size,
			Model:         cfg.Avatar.Model,
			SavePath:      cfg.Avatar.SavePath,
			PublicBaseURL: cfg.Avatar.PublicBaseURL,
			Timeout:       cfg.Avatar.Timeout,
		}, log)
	}
	a.Speaker = speech.New(speech.Config{
		Command: cfg.Speech.Command,
		Args:    cfg.Speech.Args,
		Muted:   cfg.Speech.Muted,
	}, log)

	a.Setup = service.NewSetupService(a.Archive, log)
	a.Sandbox = service.NewSandboxService(a.Host, a.Archive, log)

	log.Info("Engine assembled",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("aiClient", cfg.AI.ClientType),
		zap.String("primaryModel", cfg.AI.PrimaryModel),
		zap.String("fallbackModel", cfg.AI.FallbackModel),
		zap.Int("archived", a.Archive.Len()),
	)
	return a, nil
}

// LoopDeps returns the game loop dependencies rendering to sink.
func (a *App) LoopDeps(sink interfaces.DisplaySink) service.GameLoopDeps {
	return service.GameLoopDeps{
		Host:       a.Host,
		Store:      a.Store,
		Archive:    a.Archive,
		Reconciler: service.NewCastReconciler(a.Logger),
		Phases:     a.Phases,
		Sink:       sink,
		Speaker:    a.Speaker,
		Avatars:    a.Avatars,
		AutoPlay: service.AutoPlayConfig{
			MaxTurns:  a.Config.AutoPlay.MaxTurns,
			BaseDelay: a.Config.AutoPlay.BaseDelay,
			Jitter:    a.Config.AutoPlay.Jitter,
		},
	}
}

// NewSessionManager creates the game registry. ctx bounds background work of
// every loop.
func (a *App) NewSessionManager(ctx context.Context, sink interfaces.DisplaySink) *service.SessionManager {
	return service.NewSessionManager(ctx, a.LoopDeps(sink), a.Store, a.Setup, a.Logger)
}

// Close releases the storage backend.
func (a *App) Close() {
	if a.Speaker != nil {
		a.Speaker.Stop()
	}
	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			a.Logger.Warn("Failed to close storage", zap.Error(err))
		}
	}
}

// TaskContext returns ctx carrying the zerolog logger read by background tasks.
func TaskContext(ctx context.Context, cfg logger.Config) context.Context {
	zl, err := logger.NewZerolog(cfg)
	if err != nil {
		return ctx
	}
	return zl.WithContext(ctx)
}

// NewHost builds the narrator from the primary and fallback models.
func NewHost(ctx context.Context, cfg config.AIConfig, log *zap.Logger) (*ai.Host, error) {
	clientCfg := ai.ClientConfig{
		ClientType: cfg.ClientType,
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		Referer:    cfg.Referer,
		AppTitle:   cfg.AppTitle,
	}
	primary, err := ai.NewTextGenerator(ctx, clientCfg, cfg.PrimaryModel, log)
	if err != nil {
		return nil, fmt.Errorf("primary model: %w", err)
	}
	var fallback ai.TextGenerator
	if cfg.FallbackModel != "" {
		fallback, err = ai.NewTextGenerator(ctx, clientCfg, cfg.FallbackModel, log)
		if err != nil {
			return nil, fmt.Errorf("fallback model: %w", err)
		}
	}
	return ai.NewHost(primary, fallback, ai.HostConfig{
		ContextWindow:     cfg.ContextWindow,
		Narration:         ai.Params(cfg.NarrationTemperature, cfg.NarrationMaxTokens),
		NarrationFallback: ai.Params(cfg.FallbackTemperature, cfg.FallbackMaxTokens),
		Roleplay:          ai.Params(cfg.RoleplayTemperature, cfg.RoleplayMaxTokens),
		RoleplayFallback:  ai.Params(cfg.RoleplayFallbackTemperature, cfg.RoleplayMaxTokens),
	}, log), nil
}

// OpenKVStore opens the configured backend. The returned closer is nil for
// backends without connections to release (memory, supabase).
func OpenKVStore(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (interfaces.KVStore, io.Closer, error) {
	switch cfg.Backend {
	case config.StorageMemory:
		return database.NewMemoryKVStore(), nil, nil

	case config.StorageSQLite, "":
		store, err := database.NewSqliteKVStore(cfg.SQLitePath, log)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil

	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		store := database.NewRedisKVStore(client, cfg.KeyPrefix, log)
		return store, store, nil

	case config.StoragePostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		if cfg.PostgresMaxConns > 0 {
			poolCfg.MaxConns = cfg.PostgresMaxConns
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		migrator := migration.NewMigrator(migration.Config{
			MigrationsPath: database.MigrationsPath,
			MigrationsFS:   database.MigrationsFS,
		}, pool, log)
		if err := migrator.Up(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		store := database.NewPgKVStore(pool, log)
		return store, store, nil

	case config.StorageSupabase:
		store, err := database.NewSupabaseKVStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseTable, log)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
