package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"backstage/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY",
	"DEEPSEEK_API_KEY", "TAVILY_API_KEY", "YOUTUBE_API_KEY", "GOOGLE_CLIENT_ID",
	"GOOGLE_CLIENT_SECRET", "REDIS_ADDR", "REDIS_URL", "LOG_LEVEL", "PORT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Zero(t, cfg.Server.RequestTimeout)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.Equal(t, models.DefaultModel, cfg.AI.SelectedModel)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Cache.SweepSchedule)
	assert.False(t, cfg.YouTube.Enabled())
}

func TestLoadFileYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  addr: ":9090"
  request_timeout: 45s
storage:
  backend: redis
  redis_addr: localhost:6379
ai:
  selected_model: claude-3-opus-20240229
  api_keys:
    anthropic: sk-ant-yaml
  base_urls:
    anthropic: http://proxy.local
youtube:
  api_key: yt-key
cache:
  sweep_schedule: "0 0 * * * *"
logging:
  level: debug
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 45*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "localhost:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, "claude-3-opus-20240229", cfg.AI.SelectedModel)
	assert.Equal(t, "sk-ant-yaml", cfg.AI.APIKeys.Anthropic)
	assert.Equal(t, "http://proxy.local", cfg.AI.BaseURLs.Anthropic)
	assert.True(t, cfg.YouTube.Enabled())
	assert.Equal(t, "0 0 * * * *", cfg.Cache.SweepSchedule)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFileEnvFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("GOOGLE_API_KEY", "g-env")
	t.Setenv("TAVILY_API_KEY", "tv-env")
	t.Setenv("PORT", "3000")
	t.Setenv("LOG_LEVEL", "warn")

	path := writeConfig(t, `
ai:
  api_keys:
    openai: sk-yaml
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-yaml", cfg.AI.APIKeys.OpenAI, "file values win over env")
	assert.Equal(t, "g-env", cfg.AI.APIKeys.Google)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, models.APIKeys{OpenAI: "sk-yaml", Google: "g-env", Tavily: "tv-env"}, cfg.Keys())
}

func TestLoadFileEnvYouTubeAndRedis(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "ak")
	t.Setenv("YOUTUBE_API_KEY", "yt")
	t.Setenv("GOOGLE_CLIENT_ID", "cid")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("REDIS_URL", "localhost:6380")

	path := writeConfig(t, `
storage:
  backend: redis
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "ak", cfg.AI.APIKeys.Anthropic)
	assert.Equal(t, YouTubeConfig{APIKey: "yt", ClientID: "cid", ClientSecret: "secret", TokenFile: "youtube_token.json"}, cfg.YouTube)
	assert.Equal(t, "localhost:6380", cfg.Storage.RedisAddr)
}

func TestGeminiKeyPreferredOverGoogleKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "gemini")
	t.Setenv("GOOGLE_API_KEY", "google")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.AI.APIKeys.Google)
}

func TestLoadFileValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "unknown backend",
			body:    "storage:\n  backend: sqlite\n",
			wantErr: "unknown storage backend",
		},
		{
			name:    "redis without address",
			body:    "storage:\n  backend: redis\n",
			wantErr: "Redis address is required",
		},
		{
			name:    "unknown model",
			body:    "ai:\n  selected_model: llama-3\n",
			wantErr: "unknown model",
		},
		{
			name:    "bad schedule",
			body:    "cache:\n  sweep_schedule: \"every day\"\n",
			wantErr: "invalid cache.sweep_schedule",
		},
		{
			name:    "five field schedule",
			body:    "cache:\n  sweep_schedule: \"0 * * * *\"\n",
			wantErr: "invalid cache.sweep_schedule",
		},
		{
			name:    "negative timeout",
			body:    "server:\n  request_timeout: -1s\n",
			wantErr: "request_timeout",
		},
		{
			name:    "malformed yaml",
			body:    "server: [",
			wantErr: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDescriptorSchedule(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFile(writeConfig(t, "cache:\n  sweep_schedule: \"@hourly\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "@hourly", cfg.Cache.SweepSchedule)
}

func TestSettingsSeed(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEEPSEEK_API_KEY", "ds")
	cfg, err := LoadFile(writeConfig(t, "ai:\n  selected_model: deepseek-chat\n"))
	require.NoError(t, err)

	assert.Equal(t, models.Settings{
		APIKeys:             models.APIKeys{DeepSeek: "ds"},
		SelectedModel:       "deepseek-chat",
		SaveChatHistory:     true,
		AutoFetchTranscript: true,
	}, cfg.SettingsSeed())
}

func TestYouTubeEnabledWithOAuthClient(t *testing.T) {
	assert.True(t, YouTubeConfig{ClientID: "id", ClientSecret: "secret"}.Enabled())
	assert.False(t, YouTubeConfig{ClientID: "id"}.Enabled())
}
