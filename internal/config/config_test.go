package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ronpa-server/shared/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useSecretsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev := utils.SecretsDir
	utils.SecretsDir = dir
	t.Cleanup(func() { utils.SecretsDir = prev })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	useSecretsDir(t)
	t.Setenv("AI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, StorageSQLite, cfg.Storage.Backend)
	assert.Equal(t, "openrouter", cfg.AI.ClientType)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.Equal(t, "x-ai/grok-4-fast", cfg.AI.PrimaryModel)
	assert.Equal(t, 12, cfg.AI.ContextWindow)
	assert.Equal(t, 5, cfg.AutoPlay.MaxTurns)
	assert.Equal(t, 2*time.Second, cfg.AutoPlay.BaseDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.AutoPlay.Jitter)
	assert.True(t, cfg.Avatar.Enabled)
	assert.Equal(t, 512, cfg.Avatar.Size)
}

func TestLoad_Overrides(t *testing.T) {
	useSecretsDir(t)
	t.Setenv("AI_CLIENT_TYPE", "ollama")
	t.Setenv("STORAGE_BACKEND", "Memory")
	t.Setenv("SPEECH_COMMAND", "espeak")
	t.Setenv("SPEECH_ARGS", "-s 160")
	t.Setenv("PHASE_TRIGGERS", "INCIDENT:alarm|bell,TRIAL:court")
	t.Setenv("AUTOPLAY_MAX_TURNS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, []string{"-s", "160"}, cfg.Speech.Args)
	assert.Equal(t, map[string]string{"INCIDENT": "alarm|bell", "TRIAL": "court"}, cfg.Phases.Triggers)
	assert.Equal(t, 3, cfg.AutoPlay.MaxTurns)
}

func TestLoad_SecretWinsOverEnv(t *testing.T) {
	dir := useSecretsDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ai_api_key"), []byte("sk-from-secret\n"), 0o600))
	t.Setenv("AI_API_KEY", "sk-from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-secret", cfg.AI.APIKey)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AI:      AIConfig{ClientType: "openrouter", APIKey: "k"},
			Storage: StorageConfig{Backend: StorageSQLite},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"ollama needs no key", func(c *Config) { c.AI.ClientType = "ollama"; c.AI.APIKey = "" }, ""},
		{"missing key", func(c *Config) { c.AI.APIKey = "" }, "AI_API_KEY"},
		{"unknown client", func(c *Config) { c.AI.ClientType = "claude" }, "AI_CLIENT_TYPE"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }, "STORAGE_BACKEND"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = StoragePostgres }, "DATABASE_URL"},
		{"supabase without key", func(c *Config) { c.Storage.Backend = StorageSupabase; c.Storage.SupabaseURL = "https://x" }, "SUPABASE"},
		{"avatar path without url", func(c *Config) { c.Avatar.SavePath = "/tmp/a" }, "AVATAR_PUBLIC_BASE_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
