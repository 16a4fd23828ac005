// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For the credentials needed to connect to the gateway, use ValidateGateway.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
)

type Config struct {
	// Discord
	DiscordToken   string
	GuildID        int64
	PresenceIntent bool

	// Database
	DBDsn          string
	DBHost         string
	DBPort         int
	DBName         string
	DBUser         string
	DBPassword     string
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Fan-out
	NATSURL string

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It doesn't fail if the Discord
// token or guild are missing; use ValidateGateway() before connecting. Malformed numeric
// values are rejected.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	if v := os.Getenv("GUILD"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid GUILD %q: must be a positive snowflake id", v)
		}
		cfg.GuildID = id
	}
	cfg.PresenceIntent = os.Getenv("DISCORD_PRESENCE_INTENT") == "1"

	// DB
	cfg.DBHost = envOr("DB_HOST", "127.0.0.1")
	cfg.DBName = envOr("DB_DATABASE", "events")
	cfg.DBUser = envOr("DB_USER", "root")
	cfg.DBPassword = envOr("DB_PASS", "password")
	var err error
	if cfg.DBPort, err = envInt("DB_PORT", 5432); err != nil {
		return nil, err
	}
	if cfg.DBMaxOpenConns, err = envInt("DB_MAX_OPEN_CONNS", 10); err != nil {
		return nil, err
	}
	if cfg.DBMaxIdleConns, err = envInt("DB_MAX_IDLE_CONNS", 5); err != nil {
		return nil, err
	}
	cfg.DBDsn = os.Getenv("DB_DSN")
	if cfg.DBDsn == "" {
		cfg.DBDsn = cfg.buildDSN()
	}

	cfg.NATSURL = os.Getenv("NATS_URL")

	cfg.HTTPAddr = envOr("HTTP_ADDR", ":8080")

	return cfg, nil
}

// ValidateGateway checks the fields required to connect to the Discord gateway.
func (c *Config) ValidateGateway() error {
	if c.DiscordToken == "" || c.GuildID == 0 {
		return fmt.Errorf("missing discord env: require DISCORD_TOKEN and GUILD")
	}
	return nil
}

// buildDSN assembles a postgres URL from the individual DB_* parameters.
func (c *Config) buildDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", key, v)
	}
	return n, nil
}
