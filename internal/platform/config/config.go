// Package config loads server configuration from the environment so main
// stays lean. Every knob has a development default; production deployments
// override via GATEPASS_* variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "gatepass/pkg/platform/strings"
)

// Config is the full runtime configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Directory  DirectoryConfig
	Credential CredentialConfig
	Auth       AuthConfig
	Kafka      KafkaConfig
	SMTP       SMTPConfig
	RateLimit  RateLimitConfig
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string
	Env             string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// DatabaseConfig captures Postgres connection settings.
// An empty URL means visits are kept in memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig captures Redis connection settings.
// An empty URL means Redis-backed features fall back to in-memory stores.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DirectoryConfig points at the building directory service that owns
// visitor, host, and building records.
type DirectoryConfig struct {
	BaseURL string
	Timeout time.Duration
}

// CredentialConfig controls entry credential issuance.
type CredentialConfig struct {
	SigningKey string
	TTL        time.Duration
}

// AuthConfig controls actor bearer token validation.
type AuthConfig struct {
	TokenSigningKey string
}

// KafkaConfig captures the notification event stream settings.
// Empty brokers disable the Kafka dispatcher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// SMTPConfig captures outbound mail settings for host notifications.
// An empty host disables the mail dispatcher.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// RateLimitConfig bounds the credential scan endpoint.
type RateLimitConfig struct {
	ScanRequestsPerWindow int
	ScanWindow            time.Duration
}

// FromEnv builds the configuration from environment variables.
func FromEnv() Config {
	return Config{
		Server: ServerConfig{
			Addr:            envString("GATEPASS_ADDR", ":8080"),
			Env:             envString("GATEPASS_ENV", "development"),
			RequestTimeout:  envDuration("GATEPASS_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: envDuration("GATEPASS_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     envList("GATEPASS_CORS_ORIGINS"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("GATEPASS_DATABASE_URL"),
			MaxOpenConns:    envInt("GATEPASS_DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("GATEPASS_DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("GATEPASS_DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("GATEPASS_REDIS_URL"),
			PoolSize:     envInt("GATEPASS_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("GATEPASS_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("GATEPASS_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("GATEPASS_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("GATEPASS_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Directory: DirectoryConfig{
			BaseURL: os.Getenv("GATEPASS_DIRECTORY_URL"),
			Timeout: envDuration("GATEPASS_DIRECTORY_TIMEOUT", 5*time.Second),
		},
		Credential: CredentialConfig{
			// Development fallback; must be overridden in production.
			SigningKey: envString("GATEPASS_CREDENTIAL_SIGNING_KEY", "dev-credential-key-change-in-production"),
			TTL:        envDuration("GATEPASS_CREDENTIAL_TTL", 24*time.Hour),
		},
		Auth: AuthConfig{
			TokenSigningKey: envString("GATEPASS_ACTOR_TOKEN_KEY", "dev-actor-key-change-in-production"),
		},
		Kafka: KafkaConfig{
			Brokers: envList("GATEPASS_KAFKA_BROKERS"),
			Topic:   envString("GATEPASS_KAFKA_TOPIC", "gatepass.visit-events"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("GATEPASS_SMTP_HOST"),
			Port:     envInt("GATEPASS_SMTP_PORT", 587),
			Username: os.Getenv("GATEPASS_SMTP_USERNAME"),
			Password: os.Getenv("GATEPASS_SMTP_PASSWORD"),
			From:     envString("GATEPASS_SMTP_FROM", "gatepass@localhost"),
		},
		RateLimit: RateLimitConfig{
			ScanRequestsPerWindow: envInt("GATEPASS_SCAN_RATE_LIMIT", 30),
			ScanWindow:            envDuration("GATEPASS_SCAN_RATE_WINDOW", time.Minute),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	out := platformstrings.DedupeAndTrim(strings.Split(v, ","))
	if len(out) == 0 {
		return nil
	}
	return out
}
