package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds watchparty-server configuration loaded from the environment.
type Config struct {
	AppEnv   string // APP_ENV
	AppHost  string // APP_HOST
	HTTPPort string // APP_PORT or HTTP_PORT
	LogLevel string // LOG_LEVEL

	// PostgreSQL
	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	// Redis (HTTP rate limiting + asynq broker)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT for the optional auth boundary
	JWTSecret string

	// CORS
	CORSAllowedOrigin string

	// WebSocket
	WSReadBufferSize  int
	WSWriteBufferSize int
	WSMaxMessageSize  int64

	// HTTP rate limiting (per client IP)
	HTTPRateLimitMax    int
	HTTPRateLimitWindow time.Duration

	// Chat rate limiting (per room + sender)
	ChatRateLimitMax    int
	ChatRateLimitWindow time.Duration

	// Anonymous room lifetime
	RoomTTL time.Duration

	// Best-effort playlist metadata
	YouTubeAPIKey string
}

// Load loads config from environment (.env if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	readBuf, _ := strconv.Atoi(getEnv("WS_READ_BUFFER_SIZE", "4096"))
	writeBuf, _ := strconv.Atoi(getEnv("WS_WRITE_BUFFER_SIZE", "4096"))
	maxMsg, _ := strconv.ParseInt(getEnv("WS_MAX_MESSAGE_SIZE", "65536"), 10, 64)
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	httpMax, _ := strconv.Atoi(getEnv("HTTP_RATE_LIMIT_MAX", "100"))
	httpWindow, _ := strconv.Atoi(getEnv("HTTP_RATE_LIMIT_WINDOW_SECONDS", "1"))
	chatMax, _ := strconv.Atoi(getEnv("CHAT_RATE_LIMIT_MAX", "5"))
	chatWindow, _ := strconv.Atoi(getEnv("CHAT_RATE_LIMIT_WINDOW_SECONDS", "10"))
	roomTTLHours, _ := strconv.Atoi(getEnv("ROOM_TTL_HOURS", "24"))

	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		AppHost:             getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:            firstEnv("APP_PORT", "HTTP_PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             redisDB,
		JWTSecret:           getEnv("JWT_SECRET", ""),
		CORSAllowedOrigin:   getEnv("CORS_ALLOWED_ORIGIN", "http://localhost:4200"),
		WSReadBufferSize:    readBuf,
		WSWriteBufferSize:   writeBuf,
		WSMaxMessageSize:    maxMsg,
		HTTPRateLimitMax:    httpMax,
		HTTPRateLimitWindow: time.Duration(httpWindow) * time.Second,
		ChatRateLimitMax:    chatMax,
		ChatRateLimitWindow: time.Duration(chatWindow) * time.Second,
		RoomTTL:             time.Duration(roomTTLHours) * time.Hour,
		YouTubeAPIKey:       getEnv("YOUTUBE_API_KEY", ""),
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "watchparty")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg, nil
}

// Validate checks required fields and production safety.
func (c *Config) Validate() error {
	if c.DB.Host == "" {
		return errors.New("config: DB_HOST is required")
	}
	if c.DB.User == "" {
		return errors.New("config: DB_USER is required")
	}
	if c.DB.Database == "" {
		return errors.New("config: DB_DATABASE is required")
	}
	if c.RedisAddr == "" {
		return errors.New("config: REDIS_ADDR is required")
	}
	if c.AppEnv == "production" {
		if c.DB.Password == "" {
			return errors.New("config: in production DB_PASSWORD is required")
		}
		if c.JWTSecret == "" {
			return errors.New("config: in production JWT_SECRET is required")
		}
	}
	return nil
}

// DSN returns the PostgreSQL connection string for GORM.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

// DatabaseURL returns the postgres URL for golang-migrate.
func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	keys := keysAndDef[:len(keysAndDef)-1]
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
