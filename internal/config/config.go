package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	CORSOrigins []string
	DBDSN       string
	JWTSecret   string
	TokenTTL    time.Duration

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	IdempotencyTTL time.Duration

	// rabbitMQ
	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int

	// AI provider
	AIProvider      string
	GeminiAPIKey    string
	GeminiTextModel string
	GeminiLiveModel string
	GeminiVoice     string

	// assistant
	HistoryThreshold int
	SummarizeCount   int
	ChatTimeout      time.Duration

	// live device link
	LiveWSPingInterval time.Duration
	LiveWSWriteTimeout time.Duration
	LiveWSReadTimeout  time.Duration
	LiveMaxFrameBytes  int64

	LogLevel       string
	LogDevelopment bool
}

func Load() Config {
	// DSN demo：
	// sqlite:haru.db
	// app:apppass@tcp(127.0.0.1:3306)/haru?charset=utf8mb4&parseTime=true&loc=Local
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = "sqlite:haru.db"
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-change-me"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}

	// AI provider config
	aiProvider := strings.ToLower(strings.TrimSpace(os.Getenv("AI_PROVIDER")))
	if aiProvider == "" {
		aiProvider = "gemini"
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("API_KEY")
	}

	// rabbitMQ config
	rabbitQueue := os.Getenv("RABBIT_QUEUE")
	if rabbitQueue == "" {
		rabbitQueue = "ledger_events"
	}

	return Config{
		HTTPAddr:    envOr("HTTP_ADDR", ":8080"),
		CORSOrigins: envList("CORS_ORIGINS"),
		DBDSN:       dsn,
		JWTSecret:   secret,
		TokenTTL:    envDurationOr("TOKEN_TTL", 24*time.Hour),

		RedisAddr:      redisAddr,
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        envIntOr("REDIS_DB", 0),
		IdempotencyTTL: envDurationOr("IDEMPOTENCY_TTL", 10*time.Minute),

		// empty disables ledger event publishing
		RabbitURL:         os.Getenv("RABBIT_URL"),
		RabbitQueue:       rabbitQueue,
		WorkerConcurrency: clamp(envIntOr("WORKER_CONCURRENCY", 2), 1, 50),

		AIProvider:      aiProvider,
		GeminiAPIKey:    apiKey,
		GeminiTextModel: envOr("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		GeminiLiveModel: envOr("GEMINI_LIVE_MODEL", "gemini-2.5-flash-native-audio-preview-09-2025"),
		GeminiVoice:     envOr("GEMINI_VOICE", "Puck"),

		HistoryThreshold: clamp(envIntOr("HISTORY_THRESHOLD", 10), 2, 200),
		SummarizeCount:   clamp(envIntOr("SUMMARIZE_COUNT", 6), 1, 200),
		ChatTimeout:      envDurationOr("CHAT_TIMEOUT", 2*time.Minute),

		LiveWSPingInterval: envDurationOr("LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout: envDurationOr("LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveWSReadTimeout:  envDurationOr("LIVE_WS_READ_TIMEOUT", 60*time.Second),
		LiveMaxFrameBytes:  int64(envIntOr("LIVE_MAX_FRAME_BYTES", 256*1024)),

		LogLevel:       envOr("LOG_LEVEL", "info"),
		LogDevelopment: envBoolOr("LOG_DEVELOPMENT", false),
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envList splits a comma separated value, dropping blanks.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envIntOr(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// envDurationOr accepts Go duration strings ("30s") or bare milliseconds.
func envDurationOr(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
