package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := Load()
	req.NoError(err)

	req.Equal("0.0.0.0", cfg.Host)
	req.Equal(8080, cfg.Port)
	req.Equal("./teamcollab.db", cfg.DatabasePath)
	req.Equal(24*time.Hour, cfg.JWTTTL)
	req.Equal(30*time.Second, cfg.WSPingInterval)
	req.Equal(100, cfg.MessageRateLimit)
	req.Equal("info", cfg.LogLevel)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	req := require.New(t)

	t.Setenv("TEAMCOLLAB_PORT", "9090")
	t.Setenv("TEAMCOLLAB_JWT_SECRET", "prod-secret")
	t.Setenv("TEAMCOLLAB_WS_PING_INTERVAL", "15s")

	cfg, err := Load()
	req.NoError(err)

	req.Equal(9090, cfg.Port)
	req.Equal("prod-secret", cfg.JWTSecret)
	req.Equal(15*time.Second, cfg.WSPingInterval)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	req := require.New(t)

	base := func() *Config {
		cfg, err := Load()
		req.NoError(err)
		return cfg
	}

	cfg := base()
	cfg.Port = 0
	req.Error(cfg.Validate())

	cfg = base()
	cfg.JWTSecret = ""
	req.Error(cfg.Validate())

	cfg = base()
	cfg.DatabasePath = ""
	req.Error(cfg.Validate())

	// Pings must arrive before the read deadline expires.
	cfg = base()
	cfg.WSReadTimeout = cfg.WSPingInterval
	req.Error(cfg.Validate())
}

func TestAddr(t *testing.T) {
	req := require.New(t)

	cfg := &Config{Host: "127.0.0.1", Port: 8080}
	req.Equal("127.0.0.1:8080", cfg.Addr())
}
