package config

import (
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Config holds all runtime settings. Values come from the environment with
// defaults suitable for local development; a .env file is loaded first when
// present.
type Config struct {
	Host string `env:"TEAMCOLLAB_HOST,default=0.0.0.0"`
	Port int    `env:"TEAMCOLLAB_PORT,default=8080"`

	HTTPReadTimeout  time.Duration `env:"TEAMCOLLAB_HTTP_READ_TIMEOUT,default=30s"`
	HTTPWriteTimeout time.Duration `env:"TEAMCOLLAB_HTTP_WRITE_TIMEOUT,default=30s"`
	ShutdownTimeout  time.Duration `env:"TEAMCOLLAB_SHUTDOWN_TIMEOUT,default=10s"`

	DatabasePath string `env:"TEAMCOLLAB_DATABASE_PATH,default=./teamcollab.db"`

	JWTSecret string        `env:"TEAMCOLLAB_JWT_SECRET,default=dev-secret-change-me"`
	JWTTTL    time.Duration `env:"TEAMCOLLAB_JWT_TTL,default=24h"`

	WSPingInterval time.Duration `env:"TEAMCOLLAB_WS_PING_INTERVAL,default=30s"`
	WSReadTimeout  time.Duration `env:"TEAMCOLLAB_WS_READ_TIMEOUT,default=60s"`
	WSWriteTimeout time.Duration `env:"TEAMCOLLAB_WS_WRITE_TIMEOUT,default=10s"`
	WSBufferSize   int           `env:"TEAMCOLLAB_WS_BUFFER_SIZE,default=100"`

	MessageRateLimit int `env:"TEAMCOLLAB_MESSAGE_RATE_LIMIT,default=100"`

	LogLevel string `env:"TEAMCOLLAB_LOG_LEVEL,default=info"`
}

// Load reads configuration from the environment, loading a .env file first
// if one exists in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT secret cannot be empty")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT TTL must be positive")
	}
	if c.HTTPReadTimeout <= 0 || c.HTTPWriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.WSPingInterval <= 0 || c.WSReadTimeout <= 0 || c.WSWriteTimeout <= 0 {
		return fmt.Errorf("WebSocket timeouts must be positive")
	}
	if c.WSReadTimeout <= c.WSPingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WSBufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
