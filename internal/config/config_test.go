package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"DB_DSN", "AI_PROVIDER", "HISTORY_THRESHOLD", "SUMMARIZE_COUNT", "CHAT_TIMEOUT", "RABBIT_URL", "GEMINI_API_KEY", "API_KEY"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, "sqlite:haru.db", cfg.DBDSN)
	assert.Equal(t, "gemini", cfg.AIProvider)
	assert.Equal(t, 10, cfg.HistoryThreshold)
	assert.Equal(t, 6, cfg.SummarizeCount)
	assert.Equal(t, 2*time.Minute, cfg.ChatTimeout)
	assert.Empty(t, cfg.RabbitURL)
	assert.Equal(t, "Puck", cfg.GeminiVoice)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AI_PROVIDER", " Mock ")
	t.Setenv("HISTORY_THRESHOLD", "12")
	t.Setenv("CHAT_TIMEOUT", "1500")
	t.Setenv("LIVE_WS_PING_INTERVAL", "5s")
	t.Setenv("WORKER_CONCURRENCY", "500")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "legacy-key")
	t.Setenv("LOG_DEVELOPMENT", "true")

	cfg := Load()
	assert.Equal(t, "mock", cfg.AIProvider)
	assert.Equal(t, 12, cfg.HistoryThreshold)
	assert.Equal(t, 1500*time.Millisecond, cfg.ChatTimeout)
	assert.Equal(t, 5*time.Second, cfg.LiveWSPingInterval)
	assert.Equal(t, 50, cfg.WorkerConcurrency)
	assert.Equal(t, "legacy-key", cfg.GeminiAPIKey)
	assert.True(t, cfg.LogDevelopment)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("REDIS_DB", "abc")
	t.Setenv("SUMMARIZE_COUNT", "0")

	cfg := Load()
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, 1, cfg.SummarizeCount)
}
