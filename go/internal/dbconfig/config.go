package dbconfig

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
)

// Config holds Postgres connection settings for the round archive.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	ApplicationName string
	MaxConns        int
}

// NewConfigFromEnv reads DB_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	return Config{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", "postgres"),
		Database:        getEnv("DB_NAME", "pokersync"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		ApplicationName: getEnv("DB_APPLICATION_NAME", "pokersync"),
		MaxConns:        getEnvAsInt("DB_MAX_CONNS", 4),
	}
}

// DSN returns the Postgres connection URL understood by pgxpool.
func (c Config) DSN() string {
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if c.ApplicationName != "" {
		q.Set("application_name", c.ApplicationName)
	}
	if c.MaxConns > 0 {
		q.Set("pool_max_conns", strconv.Itoa(c.MaxConns))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Redacted returns the DSN with the password masked, for logs.
func (c Config) Redacted() string {
	c.Password = "xxxxx"
	return c.DSN()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
