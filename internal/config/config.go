package config

import (
	"fmt"
	"strings"
	"time"

	"ronpa-server/shared/logger"
	"ronpa-server/shared/utils"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Поддерживаемые хранилища.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageSupabase = "supabase"
)

// Config структура для хранения всей конфигурации приложения.
type Config struct {
	AppEnv   string `env:"APP_ENV" env-default:"development"`
	Logger   logger.Config
	Server   ServerConfig
	AI       AIConfig
	Storage  StorageConfig
	Avatar   AvatarConfig
	Speech   SpeechConfig
	AutoPlay AutoPlayConfig
	Phases   PhaseConfig
}

// ServerConfig - HTTP/WebSocket сервер.
type ServerConfig struct {
	Port            int           `env:"SERVER_PORT" env-default:"8080"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000,http://localhost:5173"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"15s"`
}

// AIConfig - ведущий (основная модель со стримом и запасная без стрима).
type AIConfig struct {
	ClientType   string        `env:"AI_CLIENT_TYPE" env-default:"openrouter"` // openrouter, openai, ollama, gemini
	APIKey       string        `env:"AI_API_KEY"`
	APIKeySecret string        `env:"AI_API_KEY_SECRET" env-default:"ai_api_key"` // Имя Docker secret, имеет приоритет над AI_API_KEY
	BaseURL      string        `env:"AI_BASE_URL" env-default:"https://openrouter.ai/api/v1"`
	Timeout      time.Duration `env:"AI_TIMEOUT" env-default:"120s"`
	Referer      string        `env:"AI_HTTP_REFERER" env-default:"https://fan-game-ronpa"`
	AppTitle     string        `env:"AI_APP_TITLE" env-default:"Fan-Game-Ronpa"`

	PrimaryModel  string `env:"AI_PRIMARY_MODEL" env-default:"x-ai/grok-4-fast"`
	FallbackModel string `env:"AI_FALLBACK_MODEL" env-default:"meta-llama/llama-3.3-70b-instruct:free"` // Пусто = без запасной модели

	ContextWindow               int     `env:"AI_CONTEXT_WINDOW" env-default:"12"`
	NarrationTemperature        float64 `env:"AI_NARRATION_TEMPERATURE" env-default:"0.85"`
	NarrationMaxTokens          int     `env:"AI_NARRATION_MAX_TOKENS" env-default:"2048"`
	FallbackTemperature         float64 `env:"AI_FALLBACK_TEMPERATURE" env-default:"0.8"`
	FallbackMaxTokens           int     `env:"AI_FALLBACK_MAX_TOKENS" env-default:"1500"`
	RoleplayTemperature         float64 `env:"AI_ROLEPLAY_TEMPERATURE" env-default:"0.92"`
	RoleplayFallbackTemperature float64 `env:"AI_ROLEPLAY_FALLBACK_TEMPERATURE" env-default:"0.9"`
	RoleplayMaxTokens           int     `env:"AI_ROLEPLAY_MAX_TOKENS" env-default:"512"`
}

// StorageConfig - бэкенд KV-хранилища и его настройки.
type StorageConfig struct {
	Backend   string `env:"STORAGE_BACKEND" env-default:"sqlite"`
	KeyPrefix string `env:"STORAGE_KEY_PREFIX" env-default:"ronpa:"` // Только для redis

	SQLitePath string `env:"SQLITE_PATH" env-default:"data/ronpa.db"`

	RedisAddr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	PostgresDSN      string `env:"DATABASE_URL"`
	PostgresMaxConns int32  `env:"DB_MAX_CONNECTIONS" env-default:"5"`

	SupabaseURL       string `env:"SUPABASE_URL"`
	SupabaseKey       string `env:"SUPABASE_KEY"`
	SupabaseKeySecret string `env:"SUPABASE_KEY_SECRET" env-default:"supabase_key"`
	SupabaseTable     string `env:"SUPABASE_TABLE" env-default:"kv_entries"`
}

// AvatarConfig - генерация портретов.
type AvatarConfig struct {
	Enabled       bool          `env:"AVATAR_ENABLED" env-default:"true"`
	BaseURL       string        `env:"AVATAR_BASE_URL" env-default:"https://image.pollinations.ai/prompt"`
	Size          int           `env:"AVATAR_SIZE" env-default:"512"`
	Model         string        `env:"AVATAR_MODEL" env-default:"flux"`
	SavePath      string        `env:"AVATAR_SAVE_PATH"`       // Пусто = отдаем удаленный URL
	PublicBaseURL string        `env:"AVATAR_PUBLIC_BASE_URL"` // Обязателен вместе с AVATAR_SAVE_PATH
	Timeout       time.Duration `env:"AVATAR_TIMEOUT" env-default:"90s"`
}

// SpeechConfig - внешняя TTS-команда.
type SpeechConfig struct {
	Command string   `env:"SPEECH_COMMAND"`
	Args    []string `env:"SPEECH_ARGS" env-separator:" "`
	Muted   bool     `env:"SPEECH_MUTED" env-default:"false"`
}

// AutoPlayConfig - авто-режим.
type AutoPlayConfig struct {
	MaxTurns  int           `env:"AUTOPLAY_MAX_TURNS" env-default:"5"`
	BaseDelay time.Duration `env:"AUTOPLAY_BASE_DELAY" env-default:"2s"`
	Jitter    time.Duration `env:"AUTOPLAY_JITTER" env-default:"500ms"`
}

// PhaseConfig переопределяет фразы-триггеры фаз:
// PHASE_TRIGGERS="INCIDENT:body has been discovered|a body,TRIAL:class trial".
type PhaseConfig struct {
	Triggers map[string]string `env:"PHASE_TRIGGERS"`
}

// Load загружает конфигурацию из переменных окружения и .env файла.
func Load() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolveSecrets() error {
	key, err := utils.SecretOrValue(c.AI.APIKeySecret, c.AI.APIKey)
	if err != nil {
		return fmt.Errorf("ai api key: %w", err)
	}
	c.AI.APIKey = key

	key, err = utils.SecretOrValue(c.Storage.SupabaseKeySecret, c.Storage.SupabaseKey)
	if err != nil {
		return fmt.Errorf("supabase key: %w", err)
	}
	c.Storage.SupabaseKey = key
	return nil
}

// Validate checks cross-field requirements cleanenv tags cannot express.
func (c *Config) Validate() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	switch c.Storage.Backend {
	case StorageMemory, StorageSQLite, StorageRedis:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres storage backend")
		}
	case StorageSupabase:
		if c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY are required for the supabase storage backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	switch strings.ToLower(c.AI.ClientType) {
	case "openrouter", "openai", "gemini":
		if c.AI.APIKey == "" {
			return fmt.Errorf("AI_API_KEY is required for AI_CLIENT_TYPE=%s", c.AI.ClientType)
		}
	case "ollama":
	default:
		return fmt.Errorf("unknown AI_CLIENT_TYPE %q", c.AI.ClientType)
	}

	if c.Avatar.SavePath != "" && c.Avatar.PublicBaseURL == "" {
		return fmt.Errorf("AVATAR_PUBLIC_BASE_URL is required when AVATAR_SAVE_PATH is set")
	}
	return nil
}
