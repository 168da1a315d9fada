package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/pokersync/go/internal/models"
	"github.com/mcdev12/pokersync/go/internal/poker/connection"
	"github.com/mcdev12/pokersync/go/internal/poker/controller"
	"gopkg.in/yaml.v3"
)

const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Deck      []string        `yaml:"deck"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

type ServerConfig struct {
	URL           string `yaml:"url"`
	Transport     string `yaml:"transport"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type ReconnectConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

type BridgeConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type ArchiveConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the settings used when no file or env override is given.
func Default() *Config {
	conn := connection.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			URL:           "ws://localhost:3001/ws",
			Transport:     TransportWebSocket,
			SubjectPrefix: "poker",
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:  conn.MaxAttempts,
			InitialDelay: conn.InitialDelay,
			MaxDelay:     conn.MaxDelay,
		},
		Deck: append([]string(nil), models.DefaultDeck...),
		Bridge: BridgeConfig{
			Port:           "8080",
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.URL = getEnv("POKER_SERVER_URL", c.Server.URL)
	c.Server.Transport = strings.ToLower(getEnv("POKER_TRANSPORT", c.Server.Transport))
	c.Server.SubjectPrefix = getEnv("POKER_SUBJECT_PREFIX", c.Server.SubjectPrefix)

	c.Reconnect.MaxAttempts = getEnvAsInt("POKER_MAX_ATTEMPTS", c.Reconnect.MaxAttempts)
	c.Reconnect.InitialDelay = getEnvAsDuration("POKER_INITIAL_DELAY", c.Reconnect.InitialDelay)
	c.Reconnect.MaxDelay = getEnvAsDuration("POKER_MAX_DELAY", c.Reconnect.MaxDelay)

	if deck := getEnv("POKER_DECK", ""); deck != "" {
		c.Deck = splitList(deck)
	}

	c.Bridge.Enabled = getEnvAsBool("BRIDGE_ENABLED", c.Bridge.Enabled)
	c.Bridge.Port = getEnv("PORT", c.Bridge.Port)
	if origins := getEnv("BRIDGE_ALLOWED_ORIGINS", ""); origins != "" {
		c.Bridge.AllowedOrigins = splitList(origins)
	}

	c.Archive.Enabled = getEnvAsBool("ARCHIVE_ENABLED", c.Archive.Enabled)
}

func (c *Config) Validate() error {
	if c.Server.URL == "" && c.Server.Transport == TransportWebSocket {
		return fmt.Errorf("%w: server.url is required", ErrInvalidConfig)
	}
	switch c.Server.Transport {
	case TransportWebSocket, TransportNATS:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Server.Transport)
	}
	if c.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("%w: reconnect.max_attempts must be positive", ErrInvalidConfig)
	}
	if c.Reconnect.InitialDelay <= 0 || c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return fmt.Errorf("%w: reconnect delays must satisfy 0 < initial_delay <= max_delay", ErrInvalidConfig)
	}
	return nil
}

// Connection returns the manager settings.
func (c *Config) Connection() connection.Config {
	conn := connection.DefaultConfig()
	conn.MaxAttempts = c.Reconnect.MaxAttempts
	conn.InitialDelay = c.Reconnect.InitialDelay
	conn.MaxDelay = c.Reconnect.MaxDelay
	return conn
}

func (c *Config) Controller() controller.Config {
	ctrl := controller.DefaultConfig()
	ctrl.Deck = c.Deck
	return ctrl
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
