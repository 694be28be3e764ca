package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// WebSocket configuration
	WebSocket WebSocketConfig

	// Realtime fan-out configuration
	Realtime RealtimeConfig

	// Push notification configuration
	Push PushConfig

	// Logging configuration
	Logging LoggingConfig

	// Application metadata
	App AppConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	BurstSize         int
	AuthRPS           float64 // Stricter limit for auth endpoints
	AuthBurst         int
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	PingInterval    time.Duration
	PongWait        time.Duration
	MessageRate     float64 // inbound messages per second per connection
	MessageBurst    int
}

// Backend names for the realtime transport and the connection counter.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// RealtimeConfig holds transport and fan-out configuration
type RealtimeConfig struct {
	Transport            string // memory, postgres
	CounterStore         string // memory, postgres
	NotifyChannel        string
	SubscribeTimeout     time.Duration
	ClientBuffer         int
	HubQueue             int
	ReconnectMaxInterval time.Duration
}

// PushConfig holds push notification configuration
type PushConfig struct {
	Enabled bool
	Timeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
	InstanceID  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", ":8080"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getIntOrDefault("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntOrDefault("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getDurationOrDefault("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			AccessTokenTTL: getDurationOrDefault("JWT_ACCESS_TOKEN_TTL", 1*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getBoolOrDefault("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: getFloatOrDefault("RATE_LIMIT_RPS", 10),
			BurstSize:         getIntOrDefault("RATE_LIMIT_BURST", 20),
			AuthRPS:           getFloatOrDefault("RATE_LIMIT_AUTH_RPS", 1),
			AuthBurst:         getIntOrDefault("RATE_LIMIT_AUTH_BURST", 5),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins:  getStringSliceOrDefault("WS_ALLOWED_ORIGINS", []string{}),
			ReadBufferSize:  getIntOrDefault("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getIntOrDefault("WS_WRITE_BUFFER_SIZE", 1024),
			PingInterval:    getDurationOrDefault("WS_PING_INTERVAL", 54*time.Second),
			PongWait:        getDurationOrDefault("WS_PONG_WAIT", 60*time.Second),
			MessageRate:     getFloatOrDefault("WS_MESSAGE_RATE", 20),
			MessageBurst:    getIntOrDefault("WS_MESSAGE_BURST", 40),
		},
		Realtime: RealtimeConfig{
			Transport:            strings.ToLower(getEnvOrDefault("REALTIME_TRANSPORT", BackendMemory)),
			CounterStore:         strings.ToLower(getEnvOrDefault("REALTIME_COUNTER_STORE", BackendMemory)),
			NotifyChannel:        getEnvOrDefault("REALTIME_NOTIFY_CHANNEL", "realtime_events"),
			SubscribeTimeout:     getDurationOrDefault("REALTIME_SUBSCRIBE_TIMEOUT", 5*time.Second),
			ClientBuffer:         getIntOrDefault("REALTIME_CLIENT_BUFFER", 256),
			HubQueue:             getIntOrDefault("REALTIME_HUB_QUEUE", 1024),
			ReconnectMaxInterval: getDurationOrDefault("REALTIME_RECONNECT_MAX_INTERVAL", 30*time.Second),
		},
		Push: PushConfig{
			Enabled: getBoolOrDefault("PUSH_ENABLED", true),
			Timeout: getDurationOrDefault("PUSH_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		App: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "meal-realtime"),
			Version:     getEnvOrDefault("APP_VERSION", "dev"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
			InstanceID:  getEnvOrDefault("APP_INSTANCE_ID", defaultInstanceID()),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	// Required fields
	if c.UsesDatabase() && c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required when a postgres backend is selected")
	}

	if c.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}

	// Security validations
	if c.App.Environment == "production" {
		if len(c.JWT.Secret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}

		if len(c.WebSocket.AllowedOrigins) == 0 {
			errs = append(errs, "WS_ALLOWED_ORIGINS must be set in production")
		}
	}

	// Logical validations
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, "DB_MAX_IDLE_CONNS cannot be greater than DB_MAX_OPEN_CONNS")
	}

	if !validBackend(c.Realtime.Transport) {
		errs = append(errs, fmt.Sprintf("REALTIME_TRANSPORT must be %q or %q", BackendMemory, BackendPostgres))
	}

	if !validBackend(c.Realtime.CounterStore) {
		errs = append(errs, fmt.Sprintf("REALTIME_COUNTER_STORE must be %q or %q", BackendMemory, BackendPostgres))
	}

	if c.Realtime.Transport == BackendPostgres && c.Realtime.CounterStore == BackendMemory {
		errs = append(errs, "REALTIME_COUNTER_STORE must be postgres when REALTIME_TRANSPORT is postgres")
	}

	if c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		errs = append(errs, "WS_PING_INTERVAL must be shorter than WS_PONG_WAIT")
	}

	if c.Realtime.ClientBuffer <= 0 || c.Realtime.HubQueue <= 0 {
		errs = append(errs, "REALTIME_CLIENT_BUFFER and REALTIME_HUB_QUEUE must be positive")
	}

	if c.App.InstanceID == "" {
		errs = append(errs, "APP_INSTANCE_ID must not be empty")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// UsesDatabase reports whether any realtime backend needs Postgres.
func (c *Config) UsesDatabase() bool {
	return c.Realtime.Transport == BackendPostgres || c.Realtime.CounterStore == BackendPostgres
}

func validBackend(name string) bool {
	return name == BackendMemory || name == BackendPostgres
}

// defaultInstanceID names this process for the shared connection counter.
func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "instance"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// Environment lookups. A missing or unparsable value yields the default.

func lookupEnv[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := parse(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvOrDefault(key, defaultValue string) string {
	return lookupEnv(key, defaultValue, func(v string) (string, error) { return v, nil })
}

func getIntOrDefault(key string, defaultValue int) int {
	return lookupEnv(key, defaultValue, strconv.Atoi)
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	return lookupEnv(key, defaultValue, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	return lookupEnv(key, defaultValue, strconv.ParseBool)
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	return lookupEnv(key, defaultValue, time.ParseDuration)
}

// getStringSliceOrDefault splits a comma-separated list, dropping empty items.
func getStringSliceOrDefault(key string, defaultValue []string) []string {
	return lookupEnv(key, defaultValue, func(v string) ([]string, error) {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		if len(out) == 0 {
			return nil, errors.New("empty list")
		}
		return out, nil
	})
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: %s, DB: %s, JWT: [REDACTED], RateLimit: %v, Transport: %s, Counter: %s, Environment: %s}",
		c.Server.Port,
		redactURL(c.Database.URL),
		c.RateLimit.Enabled,
		c.Realtime.Transport,
		c.Realtime.CounterStore,
		c.App.Environment,
	)
}

// redactURL redacts sensitive parts of a database URL
func redactURL(url string) string {
	if url == "" {
		return ""
	}
	if idx := strings.Index(url, "@"); idx > 0 {
		return "[REDACTED]" + url[idx:]
	}
	return "[REDACTED]"
}
