package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the asistente-backend service.
type Config struct {
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RAG       RAGConfig
	Connect   ConnectConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host      string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port      string `envconfig:"SERVER_PORT" default:"8080"`
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	DSN string `envconfig:"DATABASE_DSN" required:"true"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	URI string `envconfig:"REDIS_URI" required:"true"`
}

// RAGConfig holds configuration for the retrieval backend that owns
// search, chat streaming, audit and enhancement.
type RAGConfig struct {
	BaseURL string        `envconfig:"RAG_BASE_URL" required:"true"`
	Timeout time.Duration `envconfig:"RAG_TIMEOUT" default:"30s"`
	TopK    int           `envconfig:"RAG_TOP_K" default:"5"`
}

// ConnectConfig holds configuration for the lawyer marketplace collaborators.
type ConnectConfig struct {
	CedulaLookupURL string `envconfig:"CEDULA_LOOKUP_URL" required:"true"`
	PostalLookupURL string `envconfig:"POSTAL_LOOKUP_URL" required:"true"`
	MailWebhookURL  string `envconfig:"MAIL_WEBHOOK_URL" default:""`
}

// RateLimitConfig holds fixed-window API rate limiting configuration.
type RateLimitConfig struct {
	Requests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
	Window   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration for logical errors beyond required fields.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = 5
	}
	return nil
}
